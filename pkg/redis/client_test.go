package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summarysearch/summarysearch/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetSet(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	payload := []byte{0xa1, 0x00, 0xff}
	require.NoError(t, c.Set(ctx, "k", payload, time.Minute))
	got, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, got)

	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFlushByPatternSpansScanPages(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	for i := 0; i < scanBatch*2+5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("search:%d", i), []byte("x"), 0))
	}
	require.NoError(t, c.Set(ctx, "other", []byte("c"), 0))

	deleted, err := c.FlushByPattern(ctx, "search:*")
	require.NoError(t, err)
	assert.Equal(t, int64(scanBatch*2+5), deleted)
	assert.True(t, mr.Exists("other"))
	assert.False(t, mr.Exists("search:1"))

	deleted, err = c.FlushByPattern(ctx, "search:*")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewClient(config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
