package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Seq  uint64  `json:"seq"`
	EWMA float64 `json:"ewma"`
}

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *time.Time) {
	t.Helper()
	opts = append([]MemoryOption{WithMemoryCleanup(0)}, opts...)
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }
	return mc, &now
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "latest", snapshot{Seq: 7, EWMA: 41.5}, 0))

	var got snapshot
	require.NoError(t, mc.Get(ctx, "latest", &got))
	require.Equal(t, snapshot{Seq: 7, EWMA: 41.5}, got)

	require.NoError(t, mc.Set(ctx, "raw", "plain", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "raw", &s))
	require.Equal(t, "plain", s)
}

func TestMemoryCacheMissAndDelete(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	var got snapshot
	require.ErrorIs(t, mc.Get(ctx, "nope", &got), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "k", snapshot{}, 0))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mc.Delete(ctx, "k"))
	require.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc, now := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Second))
	*now = now.Add(500 * time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "k", &v))

	*now = now.Add(time.Second)
	require.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc, now := newTestCache(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	*now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	*now = now.Add(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v)) // a is now the most recent
	*now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	require.Equal(t, 2, mc.Len())
	require.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.Equal(t, 1, v)
}

func TestKey(t *testing.T) {
	require.Equal(t, "batch:42", Key("batch", "42"))
}
