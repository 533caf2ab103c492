package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	App       AppConfig       `mapstructure:"app"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Invoice   InvoiceConfig   `mapstructure:"invoice"`
	OSS       OSSConfig       `mapstructure:"oss"`
	Push      PushConfig      `mapstructure:"push"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	Port         string        `mapstructure:"port"`
	SSLMode      string        `mapstructure:"sslmode"`
	TimeZone     string        `mapstructure:"timezone"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"` // 单个事务最长执行时间
}

// DSN 返回 key=value 形式的连接串 (gorm)
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone)
}

// URL 返回 postgres:// 形式的连接串 (golang-migrate)
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type StripeConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Currency      string        `mapstructure:"currency"`     // ISO 4217，小写，例如 gbp
	CallTimeout   time.Duration `mapstructure:"call_timeout"` // 单次网关调用超时
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type InvoiceConfig struct {
	Prefix  string `mapstructure:"prefix"`
	DueDays int    `mapstructure:"due_days"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type WorkerConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	MaxRetry  int `mapstructure:"max_retry"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	if c.App.Env != "test" {
		if c.Stripe.SecretKey == "" {
			return errors.New("stripe secret key is required")
		}
		if c.Stripe.WebhookSecret == "" {
			return errors.New("stripe webhook secret is required")
		}
	}
	if len(c.Stripe.Currency) != 3 {
		return fmt.Errorf("invalid currency %q", c.Stripe.Currency)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka is enabled but no brokers are configured")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.tx_timeout", "10s")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("stripe.currency", "gbp")
	v.SetDefault("stripe.call_timeout", "10s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic_prefix", "order-payment")
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("invoice.prefix", "INV")
	v.SetDefault("invoice.due_days", 30)
	v.SetDefault("rate_limit.rps", 100)
	v.SetDefault("rate_limit.burst", 200)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.queue_size", 1000)
	v.SetDefault("worker.max_retry", 3)
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量: STRIPE_SECRET_KEY -> stripe.secret_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.App.Env = env

	// 手动覆盖，AutomaticEnv 只对已知 key 生效
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	cfg.Stripe.Currency = strings.ToLower(cfg.Stripe.Currency)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	GlobalConfig = cfg
	log.Printf("Configuration loaded and validated successfully. Environment: %s", cfg.App.Env)
	return &cfg, nil
}
