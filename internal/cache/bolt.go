package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/stats"
	"go.etcd.io/bbolt"
)

// BoltCache persists records in a local bbolt file so that repeated CLI runs
// can reuse them.
type BoltCache struct {
	db         *bbolt.DB
	bucketName []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewBoltCache opens (or creates) the database at path.
func NewBoltCache(path, bucket string, ttl time.Duration) (*BoltCache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if strings.TrimSpace(bucket) == "" {
		bucket = "user_stats"
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating database bucket: %w", err)
	}

	return &BoltCache{
		db:         db,
		bucketName: []byte(bucket),
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// Get returns the record under key. Expired records are deleted on read.
func (c *BoltCache) Get(_ context.Context, key string) (stats.UserStats, bool, error) {
	var raw []byte
	if err := c.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(c.bucketName).Get([]byte(key)); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	}); err != nil {
		return stats.UserStats{}, false, fmt.Errorf("reading from db: %w", err)
	}
	if raw == nil {
		return stats.UserStats{}, false, nil
	}

	wrapped, err := decode(raw)
	if err != nil {
		return stats.UserStats{}, false, err
	}
	if wrapped.expired(c.now()) {
		if err := c.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(c.bucketName).Delete([]byte(key))
		}); err != nil {
			return stats.UserStats{}, false, fmt.Errorf("deleting expired entry: %w", err)
		}
		return stats.UserStats{}, false, nil
	}
	return wrapped.Value, true, nil
}

// Set stores value under key.
func (c *BoltCache) Set(_ context.Context, key string, value stats.UserStats) error {
	raw, err := encode(value, c.ttl, c.now())
	if err != nil {
		return err
	}
	if err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(c.bucketName).Put([]byte(key), raw)
	}); err != nil {
		return fmt.Errorf("writing to db: %w", err)
	}
	return nil
}

// Ping fails once the database has been closed.
func (c *BoltCache) Ping(context.Context) error {
	return c.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(c.bucketName) == nil {
			return fmt.Errorf("bucket %q is missing", c.bucketName)
		}
		return nil
	})
}

// Close closes the database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
