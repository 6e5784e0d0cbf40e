// Package ratelimit throttles query requests per caller, in process or shared through redis.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidConfig is returned for a non-positive limit or window
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Limiter decides whether the caller identified by key may run one more request
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// Decision is the state of one key after a request was counted
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the key is back to its full allowance
	ResetAt time.Time
	// RetryAfter is how long a rejected caller should wait; zero when allowed
	RetryAfter time.Duration
}

// Config is shared by both limiters: Limit requests per Window
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) validate() error {
	if c.Limit <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
