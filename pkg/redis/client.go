// Package redis wraps go-redis/v9 for the query cache: binary values with a
// TTL and prefix invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/summarysearch/summarysearch/pkg/config"
)

// scanBatch bounds both the SCAN page size and the keys per UNLINK.
const scanBatch = 100

type Client struct {
	rdb *redis.Client
}

// NewClient connects and fails fast if the server does not answer a PING
// within five seconds.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the stored bytes. A missing or expired key is reported as
// found == false with a nil error.
func (c *Client) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	value, err = c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key. ttl 0 means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern unlinks every key matching the glob pattern and returns how
// many were removed. Keys are unlinked one scan page at a time.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Unlink(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("unlinking %d keys for %s: %w", len(keys), pattern, err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
