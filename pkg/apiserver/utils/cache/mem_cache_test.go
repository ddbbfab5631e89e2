package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemCache_BasicStoreLoad(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache(false, time.Minute)

	require.NoError(t, c.Store(ctx, "k", "v"))
	require.True(t, c.Exists(ctx, "k"))
	got, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got)

	// first write wins
	require.NoError(t, c.Store(ctx, "k", "other"))
	got, _, _ = c.Load(ctx, "k")
	require.Equal(t, "v", got)
}

func TestMemCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache(false, time.Minute).(*MemCache)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Store(ctx, "k", "v"))
	now = now.Add(2 * time.Minute)
	_, ok, err := c.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, c.Exists(ctx, "k"))

	require.NoError(t, c.Store(ctx, "k", "fresh"))
	got, ok, _ := c.Load(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "fresh", got)
}

func TestMemCache_Prune(t *testing.T) {
	ctx := context.Background()
	c := NewMemCache(false, time.Second).(*MemCache)
	now := time.Now()
	c.now = func() time.Time { return now }
	for i := 0; i < pruneEvery-1; i++ {
		require.NoError(t, c.Store(ctx, strconv.Itoa(i), "v"))
	}
	require.Equal(t, pruneEvery-1, c.Len())
	now = now.Add(time.Hour)
	require.NoError(t, c.Store(ctx, "last", "v"))
	require.Equal(t, 1, c.Len())
}

func TestMemCache_Disabled(t *testing.T) {
	ctx := context.Background()
	c := New(CacheTypeNone, nil, 0, "")
	require.True(t, c.IsCacheDisabled())
	require.NoError(t, c.Store(ctx, "k", "v"))
	require.False(t, c.Exists(ctx, "k"))
}
