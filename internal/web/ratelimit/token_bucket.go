package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is an in-memory limiter. Each key holds up to Limit tokens and regains
// Limit tokens per Window, continuously.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  Config
	perSec  float64
	now     func() time.Time
	cancel  context.CancelFunc
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates the limiter and starts a sweeper that drops idle keys. Call Close to stop it.
func NewTokenBucket(config Config) (*TokenBucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		config:  config,
		perSec:  float64(config.Limit) / config.Window.Seconds(),
		now:     time.Now,
		cancel:  cancel,
	}
	go tb.sweep(ctx, 2*config.Window)
	return tb, nil
}

// Allow implements Limiter
func (tb *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.config.Limit), last: now}
		tb.buckets[key] = b
	}
	tb.refill(b, now)

	d := Decision{Limit: tb.config.Limit}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else {
		d.RetryAfter = tb.duration(1 - b.tokens)
	}
	d.Remaining = int(math.Floor(b.tokens))
	d.ResetAt = now.Add(tb.duration(float64(tb.config.Limit) - b.tokens))
	return d, nil
}

func (tb *TokenBucket) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(float64(tb.config.Limit), b.tokens+elapsed*tb.perSec)
	b.last = now
}

// duration is the time needed to regain n tokens, rounded up to a millisecond
func (tb *TokenBucket) duration(n float64) time.Duration {
	d := time.Duration(n / tb.perSec * float64(time.Second))
	return d.Round(time.Millisecond)
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Close stops the sweeper
func (tb *TokenBucket) Close() error {
	tb.cancel()
	return nil
}

func (tb *TokenBucket) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tb.removeIdle(tb.now())
		}
	}
}

// removeIdle drops keys that have been idle long enough to be full again
func (tb *TokenBucket) removeIdle(now time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for key, b := range tb.buckets {
		if now.Sub(b.last) >= tb.config.Window {
			delete(tb.buckets, key)
		}
	}
}
