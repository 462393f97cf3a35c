package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summarysearch/summarysearch/internal/engine"
	"github.com/summarysearch/summarysearch/internal/ranker"
	"github.com/summarysearch/summarysearch/internal/searcher/executor"
	"github.com/summarysearch/summarysearch/pkg/config"
	pkgredis "github.com/summarysearch/summarysearch/pkg/redis"
)

func newTestCache(t *testing.T) *QueryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Addr: mr.Addr(), PoolSize: 4, CacheTTL: time.Minute}
	client, err := pkgredis.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client, cfg)
}

func planAt(version uint64, query string, terms ...string) *executor.Plan {
	return &executor.Plan{RawQuery: query, Terms: terms, Snapshot: &engine.Snapshot{Version: version}}
}

func resultFor(plan *executor.Plan) *executor.SearchResult {
	return &executor.SearchResult{
		Query:   plan.RawQuery,
		Terms:   plan.Terms,
		Version: plan.Snapshot.Version,
		Results: []ranker.ScoredDoc{{DocID: "a", Score: 0.5}},
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	plan := planAt(1, "Cats", "cat")

	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return resultFor(plan), nil
	}

	res, hit, err := c.GetOrCompute(ctx, plan, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "a", res.Results[0].DocID)

	// same terms, different raw text
	res, hit, err = c.GetOrCompute(ctx, planAt(1, "cat", "cat"), 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cat", res.Query)
	assert.Equal(t, int32(1), calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKeyIncludesVersionAndLimit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	plan := planAt(1, "cat", "cat")
	c.Set(ctx, plan, 10, resultFor(plan))

	_, ok := c.Get(ctx, planAt(2, "cat", "cat"), 10)
	assert.False(t, ok, "a refit must not serve results from the previous snapshot")

	_, ok = c.Get(ctx, planAt(1, "cat", "cat"), 5)
	assert.False(t, ok)

	_, ok = c.Get(ctx, planAt(1, "cat", "cat"), 10)
	assert.True(t, ok)
}

func TestGetOrComputeError(t *testing.T) {
	c := newTestCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), planAt(1, "x", "x"), 10, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGetOrComputeCoalesces(t *testing.T) {
	c := newTestCache(t)
	plan := planAt(3, "dog", "dog")
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), plan, 10, func() (*executor.SearchResult, error) {
				calls.Add(1)
				<-release
				return resultFor(plan), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestGetOrComputeStoresAfterCallerCancels(t *testing.T) {
	c := newTestCache(t)
	plan := planAt(4, "bird", "bird")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, hit, err := c.GetOrCompute(ctx, plan, 10, func() (*executor.SearchResult, error) {
		return resultFor(plan), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	require.NotNil(t, res)

	cached, ok := c.Get(context.Background(), plan, 10)
	require.True(t, ok)
	assert.Equal(t, "a", cached.Results[0].DocID)
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	plan := planAt(1, "cat", "cat")
	c.Set(ctx, plan, 10, resultFor(plan))

	require.NoError(t, c.Invalidate(ctx))
	_, ok := c.Get(ctx, plan, 10)
	assert.False(t, ok)
}

func TestGetTreatsCorruptEntryAsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{Addr: mr.Addr(), PoolSize: 4, CacheTTL: time.Minute}
	client, err := pkgredis.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	c := New(client, cfg)

	plan := planAt(1, "cat", "cat")
	require.NoError(t, mr.Set(c.buildKey(plan, 10), "\xff\xff not cbor"))

	_, ok := c.Get(context.Background(), plan, 10)
	assert.False(t, ok)
	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}
