package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow counts the requests of the last window in a sorted set scored by
// milliseconds. ARGV: now, cutoff, window, limit, member. It returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < tonumber(ARGV[4]) then
	redis.call('ZADD', key, ARGV[1], ARGV[5])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, ARGV[3])

local first = tonumber(ARGV[1])
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest == 2 then
	first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// Redis is a sliding window limiter shared by every querykit instance using the same server
type Redis struct {
	client *redis.Client
	config Config
	prefix string
	now    func() time.Time
}

// RedisConfig configures the redis limiter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Config   Config
}

// DialRedis connects to redis and verifies the connection with PING
func DialRedis(ctx context.Context, rc RedisConfig) (*Redis, error) {
	if err := rc.Config.validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
	}
	return NewRedis(client, rc.Config)
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, config Config) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Redis{client: client, config: config, prefix: "querykit:ratelimit:", now: time.Now}, nil
}

// Allow implements Limiter
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	window := r.config.Window.Milliseconds()

	nowMs := now.UnixMilli()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(nowMs-window, 10),
		strconv.FormatInt(window, 10),
		strconv.Itoa(r.config.Limit),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result %v", res)
	}

	resetAt := time.UnixMilli(res[2] + window)
	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     r.config.Limit,
		Remaining: max(r.config.Limit-int(res[1]), 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = max(resetAt.Sub(now), 0)
	}
	return d, nil
}

// Reset forgets every request counted for key
func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close closes the client
func (r *Redis) Close() error {
	return r.client.Close()
}
