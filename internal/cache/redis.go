package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Namespace string
	TTL       time.Duration
}

// RedisCache shares records between processes through Redis. Expiry is
// delegated to Redis key TTLs.
type RedisCache struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

// NewRedisCache creates a cache over client.
func NewRedisCache(client redis.UniversalClient, cfg RedisConfig) *RedisCache {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisCacheFromCommander(client, closeFn, cfg)
}

func newRedisCacheFromCommander(client redisCommander, closeFn func() error, cfg RedisConfig) *RedisCache {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "github-stats-card"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &RedisCache{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		ttl:       cfg.TTL,
		now:       time.Now,
	}
}

// Get returns the record under key. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (stats.UserStats, bool, error) {
	if c == nil || c.client == nil {
		return stats.UserStats{}, false, fmt.Errorf("redis cache is not initialized")
	}

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats.UserStats{}, false, nil
	}
	if err != nil {
		return stats.UserStats{}, false, fmt.Errorf("read cache key %q: %w", key, err)
	}

	wrapped, err := decode(raw)
	if err != nil {
		return stats.UserStats{}, false, err
	}
	if wrapped.expired(c.now()) {
		return stats.UserStats{}, false, nil
	}
	return wrapped.Value, true, nil
}

// Set stores value under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value stats.UserStats) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}

	raw, err := encode(value, c.ttl, c.now())
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cache key %q: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("redis cache is not initialized")
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	if c == nil || c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

func (c *RedisCache) key(key string) string {
	return c.namespace + ":stats:" + key
}
