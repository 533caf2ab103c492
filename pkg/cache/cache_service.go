package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// CacheService 缓存服务接口
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, pattern string) error
}

// RedisCache Redis 缓存实现
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 创建 Redis 缓存服务
func NewRedisCache(client *redis.Client, env string) CacheService {
	prefix := "order-payment:"
	if env == "test" {
		prefix = "test:" + prefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

// getKey 获取完整的缓存键
func (c *RedisCache) getKey(key string) string {
	return c.prefix + key
}

// Get 获取缓存
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, c.getKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

// Set 设置缓存
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if err := c.client.Set(ctx, c.getKey(key), data, expiration).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.getKey(key)).Err()
}

// InvalidatePattern 按模式删除缓存
// 使用 SCAN 分批遍历，避免 KEYS 阻塞 Redis
func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	match := c.getKey(pattern)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete error: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// NopCache 不缓存任何内容，Redis 未配置或测试时使用
type NopCache struct{}

func (NopCache) Get(context.Context, string, interface{}) error { return ErrCacheMiss }
func (NopCache) Set(context.Context, string, interface{}, time.Duration) error {
	return nil
}
func (NopCache) Delete(context.Context, string) error            { return nil }
func (NopCache) InvalidatePattern(context.Context, string) error { return nil }
