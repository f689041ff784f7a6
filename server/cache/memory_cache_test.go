package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, maxSize int, ttl time.Duration) (*MemoryCache, *time.Time) {
	t.Helper()
	c := NewMemoryCache(maxSize, ttl, nil)
	t.Cleanup(func() { _ = c.Close() })

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10, time.Minute)

	require.NoError(t, c.Set(ctx, "cam-1", 42))

	v, err := c.Get(ctx, "cam-1")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, 10, time.Minute)

	require.NoError(t, c.Set(ctx, "k", "v"))
	ttl, err := c.GetTTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	*now = now.Add(2 * time.Minute)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, 10, 0)

	require.NoError(t, c.Set(ctx, "k", "v"))
	*now = now.Add(24 * time.Hour)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, 2, 0)

	require.NoError(t, c.Set(ctx, "a", 1))
	*now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "b", 2))
	*now = now.Add(time.Second)

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	*now = now.Add(time.Second)

	require.NoError(t, c.Set(ctx, "c", 3))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Items)
	assert.EqualValues(t, 1, stats.Evictions)
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1, 0)

	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "a", 2))

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
