package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meridianpay/risk-engine/internal/infrastructure/config"
)

func redisClientFor(t *testing.T, addr string) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

func setupTestRedis(t *testing.T) (*redisCache, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		Addr:         mr.Addr(),
		Password:     "",
		DB:           0,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	logger := zaptest.NewLogger(t)

	cache, err := NewRedisCache(cfg, logger)
	require.NoError(t, err)

	rc := cache.(*redisCache)

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return rc, mr, cleanup
}

func TestNewRedisCache(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		cache, _, cleanup := setupTestRedis(t)
		defer cleanup()

		assert.NotNil(t, cache)
		assert.NotNil(t, cache.client)
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewRedisCache(&config.RedisConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRedisCache(nil, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		cfg := &config.RedisConfig{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
		}
		_, err := NewRedisCache(cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestRedisCache_GetSet(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "k1", "v1", 0))
		val, err := cache.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "v1", val)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := cache.Get(ctx, "missing")
		assert.ErrorAs(t, err, &ErrCacheKeyNotFound{})
	})

	t.Run("ttl expiry", func(t *testing.T) {
		_, mr, cleanup := setupTestRedis(t)
		defer cleanup()
		// separate instance so FastForward does not affect sibling subtests
		c := NewRedisCacheFromClient(redisClientFor(t, mr.Addr()), zaptest.NewLogger(t))

		require.NoError(t, c.Set(ctx, "short", "v", 100*time.Millisecond))
		mr.FastForward(200 * time.Millisecond)

		_, err := c.Get(ctx, "short")
		assert.ErrorAs(t, err, &ErrCacheKeyNotFound{})
	})
}

func TestRedisCache_Exists(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	exists, err := cache.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, cache.Set(ctx, "yep", "v", 0))
	exists, err = cache.Exists(ctx, "yep")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisCache_SetNX(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	ok, err := cache.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := cache.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "a", val)
}

func TestRedisCache_JSON(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	in := payload{Name: "velocity", Score: 60}
	require.NoError(t, cache.SetJSON(ctx, "p1", in, 0))

	var out payload
	require.NoError(t, cache.GetJSON(ctx, "p1", &out))
	assert.Equal(t, in, out)

	require.NoError(t, cache.Set(ctx, "bad", "{not-json", 0))
	assert.Error(t, cache.GetJSON(ctx, "bad", &out))
}

func TestRedisCache_Delete(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "gone", "v", 0))
	require.NoError(t, cache.Delete(ctx, "gone"))

	_, err := cache.Get(ctx, "gone")
	assert.ErrorAs(t, err, &ErrCacheKeyNotFound{})
}
