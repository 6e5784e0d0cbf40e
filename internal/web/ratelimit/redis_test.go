package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, config Config) (*Redis, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	limiter, err := NewRedis(client, config)
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close() })

	clock := newFakeClock()
	limiter.now = clock.Now
	return limiter, mr, clock
}

func TestNewRedisInvalidConfig(t *testing.T) {
	_, err := NewRedis(nil, Config{Limit: 1, Window: time.Second})
	assert.Error(t, err)

	_, err = NewRedis(&redis.Client{}, Config{Limit: 0, Window: time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRedisAllow(t *testing.T) {
	limiter, _, clock := setupTestRedis(t, Config{Limit: 2, Window: time.Minute})
	ctx := context.Background()
	start := clock.Now()

	d, err := limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, start.Add(time.Minute).UnixMilli(), d.ResetAt.UnixMilli())

	clock.Advance(10 * time.Second)
	d, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	// the first request leaves the window
	clock.Advance(50 * time.Second)
	d, err = limiter.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestRedisKeysAreIndependent(t *testing.T) {
	limiter, mr, _ := setupTestRedis(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	d, _ := limiter.Allow(ctx, "alice")
	assert.True(t, d.Allowed)
	d, _ = limiter.Allow(ctx, "bob")
	assert.True(t, d.Allowed)

	assert.True(t, mr.Exists("querykit:ratelimit:alice"))
	assert.True(t, mr.Exists("querykit:ratelimit:bob"))
}

func TestRedisReset(t *testing.T) {
	limiter, _, _ := setupTestRedis(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	limiter.Allow(ctx, "alice")
	d, _ := limiter.Allow(ctx, "alice")
	require.False(t, d.Allowed)

	require.NoError(t, limiter.Reset(ctx, "alice"))
	d, _ = limiter.Allow(ctx, "alice")
	assert.True(t, d.Allowed)
}

func TestRedisUnavailable(t *testing.T) {
	limiter, mr, _ := setupTestRedis(t, Config{Limit: 1, Window: time.Minute})
	mr.Close()

	_, err := limiter.Allow(context.Background(), "alice")
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := DialRedis(context.Background(), RedisConfig{
		Addr:   mr.Addr(),
		Config: Config{Limit: 10, Window: time.Second},
	})
	require.NoError(t, err)
	assert.NoError(t, limiter.Close())

	mr.Close()
	_, err = DialRedis(context.Background(), RedisConfig{
		Addr:   mr.Addr(),
		Config: Config{Limit: 10, Window: time.Second},
	})
	assert.Error(t, err)
}
