package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/stats"
	lru "github.com/hashicorp/golang-lru"
)

// MemoryCache is a size-bounded in-process LRU with per-entry expiry.
type MemoryCache struct {
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	created time.Time
	value   stats.UserStats
}

// NewMemoryCache creates a cache holding at most size records. A zero ttl
// keeps records until they are evicted.
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be greater than 0")
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &MemoryCache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Get returns the record under key unless it has expired.
func (c *MemoryCache) Get(_ context.Context, key string) (stats.UserStats, bool, error) {
	raw, ok := c.entries.Get(key)
	if !ok {
		return stats.UserStats{}, false, nil
	}
	entry := raw.(memoryEntry)
	if c.ttl > 0 && !entry.created.Add(c.ttl).After(c.now()) {
		c.entries.Remove(key)
		return stats.UserStats{}, false, nil
	}
	return entry.value.Clone(), true, nil
}

// Set stores a copy of value under key.
func (c *MemoryCache) Set(_ context.Context, key string, value stats.UserStats) error {
	c.entries.Add(key, memoryEntry{created: c.now(), value: value.Clone()})
	return nil
}

// Len reports the number of held records, expired ones included.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Ping always succeeds.
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// Close drops every record.
func (c *MemoryCache) Close() error {
	c.entries.Purge()
	return nil
}
