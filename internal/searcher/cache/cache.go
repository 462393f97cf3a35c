package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/summarysearch/summarysearch/internal/searcher/executor"
	"github.com/summarysearch/summarysearch/pkg/config"
	"github.com/summarysearch/summarysearch/pkg/logger"
	pkgredis "github.com/summarysearch/summarysearch/pkg/redis"
)

const keyPrefix = "search:"

// encMode writes cached results with Core Deterministic Encoding so equal
// results produce identical payloads.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
}

// QueryCache stores ranked results in Redis. Keys include the snapshot
// version, so entries written for an older fit are never served after a
// refit even before Invalidate runs.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: logger.WithComponent("query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, plan *executor.Plan, limit int) (*executor.SearchResult, bool) {
	key := c.buildKey(plan, limit)
	data, found, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := cbor.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	// the raw query may differ from the one that populated the entry
	result.Query = plan.RawQuery
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *executor.Plan, limit int, result *executor.SearchResult) {
	key := c.buildKey(plan, limit)
	data, err := encMode.Marshal(result)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or runs computeFn once per key across
// concurrent callers. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *executor.Plan,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, plan, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(plan, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(context.WithoutCancel(ctx), plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(plan *executor.Plan, limit int) string {
	raw := fmt.Sprintf("v=%d|%s|limit=%d",
		plan.Snapshot.Version, strings.Join(plan.Terms, " "), limit)
	hash := blake3.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
