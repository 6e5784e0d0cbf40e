// Package cache stores row counts of compiled queries so offset pagination does not
// run COUNT(*) for every page of the same result set.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value backend with per-key TTL
type Store interface {
	// Get retrieves a value; missing keys return ErrMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl uses the store default; a negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Clear removes every value owned by the store
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Config holds the settings shared by all backends
type Config struct {
	// TTL is the default time-to-live of an entry
	TTL time.Duration
	// Prefix namespaces every key
	Prefix string
}

// DefaultConfig returns a 30 second TTL under the "querykit:count:" prefix
func DefaultConfig() Config {
	return Config{
		TTL:    30 * time.Second,
		Prefix: "querykit:count:",
	}
}

// IsMiss reports whether err is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
