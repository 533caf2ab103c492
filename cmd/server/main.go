package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "order_payment_service/internal/domain/checkout"
	_ "order_payment_service/internal/domain/common"
	_ "order_payment_service/internal/domain/coupon"
	_ "order_payment_service/internal/domain/invoice"
	_ "order_payment_service/internal/domain/order"
	_ "order_payment_service/internal/domain/payment"
	_ "order_payment_service/internal/domain/refund"
	_ "order_payment_service/internal/domain/shipping"
	_ "order_payment_service/internal/domain/tax"
	_ "order_payment_service/internal/domain/webhook"

	"order_payment_service/internal/domain/payment/gateway"
	"order_payment_service/internal/pkg/archive"
	"order_payment_service/internal/pkg/config"
	"order_payment_service/internal/pkg/events"
	"order_payment_service/internal/pkg/middleware"
	"order_payment_service/internal/pkg/notify"
	"order_payment_service/internal/pkg/registry"
	"order_payment_service/internal/pkg/worker"
	"order_payment_service/pkg/cache"
	"order_payment_service/pkg/database"
	"order_payment_service/pkg/logger"
	"order_payment_service/pkg/metrics"
	"order_payment_service/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// @title Order Payment Service API
// @version 1.0
// @description Checkout, payment reconciliation, refunds and invoicing.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// logger 还没初始化
		panic(err)
	}
	if err := logger.Init(cfg.App.Env, cfg.App.Debug); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	response.ExposeInternalErrors = cfg.App.Debug

	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// Redis 只用于缓存，连不上时降级为无缓存
	var rdb *redis.Client
	var cacheService cache.CacheService = cache.NopCache{}
	if cfg.Redis.Addr != "" {
		rdb, err = database.InitRedis(cfg.Redis)
		if err != nil {
			logger.Log.Warn("redis unavailable, caching disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			cacheService = cache.NewRedisCache(rdb, cfg.App.Env)
		}
	}

	gw, err := gateway.NewStripeGateway(cfg.Stripe)
	if err != nil {
		return err
	}

	pool := worker.NewWorkerPool(cfg.Worker.Workers, cfg.Worker.QueueSize, cfg.Worker.MaxRetry)
	pool.Start()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.WriteTimeout)
	}
	bus := events.NewBus(publisher, pool, cfg.Kafka.TopicPrefix)
	subscribe(cfg, bus)

	collector := metrics.Default()
	router := newRouter(cfg, collector)
	api := router.Group("/v1")
	api.Use(middleware.RateLimitMiddleware(middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)))

	if err := registry.InitModules(&registry.ModuleContext{
		DB:      db,
		Redis:   rdb,
		Router:  router,
		API:     api,
		Config:  cfg,
		Tx:      database.NewTransactor(db, cfg.Database.TxTimeout),
		Gateway: gw,
		Bus:     bus,
		Cache:   cacheService,
		Metrics: collector,
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停 HTTP，再排空事件任务，最后关 publisher
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("http shutdown", zap.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		logger.Log.Error("worker pool did not drain", zap.Error(err))
	}
	if err := bus.Close(); err != nil {
		logger.Log.Error("close event publisher", zap.Error(err))
	}
	return nil
}

func newRouter(cfg *config.Config, collector *metrics.MetricsCollector) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware(collector))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	r.Use(cors.New(corsConfig))
	return r
}

// subscribe 挂载本地订阅者，未配置的外部服务降级为 no-op
func subscribe(cfg *config.Config, bus *events.Bus) {
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Push.AccessKeyID != "" {
		n, err := notify.NewAliyunPushNotifier(cfg.Push)
		if err != nil {
			logger.Log.Warn("push notifications disabled", zap.Error(err))
		} else {
			notifier = n
		}
	}
	notify.Subscribe(bus, notifier)

	var store archive.Store = archive.NopStore{}
	if cfg.OSS.Endpoint != "" {
		s, err := archive.NewOSSStore(cfg.OSS)
		if err != nil {
			logger.Log.Warn("invoice archive disabled", zap.Error(err))
		} else {
			store = s
		}
	}
	archive.Subscribe(bus, store)
}
