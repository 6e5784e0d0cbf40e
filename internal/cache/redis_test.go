package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedis(client, DefaultConfig())
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := DialRedis(context.Background(), RedisConfig{Addr: mr.Addr(), Config: DefaultConfig()})
	require.NoError(t, err)
	defer r.Close()
}

func TestDialRedisConnectionError(t *testing.T) {
	_, err := DialRedis(context.Background(), RedisConfig{Addr: "localhost:99999"})
	assert.Error(t, err)
}

func TestRedisSetAndGet(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("7"), 0))
	value, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), value)

	assert.True(t, mr.Exists("querykit:count:k"))
	assert.Equal(t, 30*time.Second, mr.TTL("querykit:count:k"))

	_, err = r.Get(ctx, "missing")
	assert.True(t, IsMiss(err))
}

func TestRedisExpiry(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("7"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := r.Get(ctx, "k")
	assert.True(t, IsMiss(err))
}

func TestRedisClearKeepsForeignKeys(t *testing.T) {
	r, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("session:1", "x"))
	require.NoError(t, r.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, r.Delete(ctx, "a"))
	assert.False(t, mr.Exists("querykit:count:a"))

	require.NoError(t, r.Clear(ctx))
	assert.False(t, mr.Exists("querykit:count:b"))
	assert.True(t, mr.Exists("session:1"))
}
