package dashboard

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyFollowsVersion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	filter := Filter{Keyword: " Plank ", From: day("2024-03-01")}
	key, err := cache.Key(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, "dashboard:overview:v1:plank:2024-03-01:-", key)

	require.NoError(t, cache.Put(ctx, key, Overview{SearchMessage: "cached"}))
	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cached", got.SearchMessage)

	require.NoError(t, cache.Bump(ctx))
	next, err := cache.Key(ctx, filter)
	require.NoError(t, err)
	require.NotEqual(t, key, next)
	_, ok, err = cache.Get(ctx, next)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNilCacheIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.Key(ctx, Filter{})
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, key, Overview{}))
	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Bump(ctx))
}
