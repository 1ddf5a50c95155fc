// Package cache stores merged UserStats records between requests.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/config"
	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/redis/go-redis/v9"
)

// Store is a stats.Cache that holds resources until closed.
type Store interface {
	stats.Cache
	io.Closer
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// envelope is the serialized form shared by the Redis and bbolt backends.
type envelope struct {
	Value     stats.UserStats `json:"value"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

func (e envelope) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func encode(value stats.UserStats, ttl time.Duration, now time.Time) ([]byte, error) {
	wrapped := envelope{Value: value}
	if ttl > 0 {
		wrapped.ExpiresAt = now.Add(ttl).UTC()
	}
	raw, err := json.Marshal(wrapped)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (envelope, error) {
	var wrapped envelope
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return envelope{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return wrapped, nil
}

// Open builds the backend selected by cfg.Backend. The "none" backend
// returns a nil Store, which disables caching.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		cache, err := NewMemoryCache(cfg.Size, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return cache, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisCache(client, RedisConfig{TTL: cfg.TTL}), nil
	case "bolt":
		cache, err := NewBoltCache(cfg.BoltPath, cfg.BoltBucket, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return cache, nil
	}
	return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
}
