package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

// Counts caches query row counts in a Store. It implements query.CountCache.
// Backend failures are logged and treated as misses.
type Counts struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCounts creates a count cache. A zero ttl uses the store default.
func NewCounts(store Store, ttl time.Duration, logger *zap.Logger) *Counts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counts{store: store, ttl: ttl, logger: logger}
}

// Key derives the cache key of a count statement from its SQL and arguments
func Key(stmt query.Statement) string {
	hash := sha256.Sum256([]byte(stmt.String()))
	return hex.EncodeToString(hash[:16])
}

// Lookup implements query.CountCache
func (c *Counts) Lookup(ctx context.Context, stmt query.Statement) (int64, bool) {
	key := Key(stmt)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !IsMiss(err) {
			c.logger.Warn("count cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		c.logger.Warn("discarding corrupt count cache entry", zap.String("key", key), zap.Error(err))
		_ = c.store.Delete(ctx, key)
		return 0, false
	}
	return n, true
}

// Store implements query.CountCache
func (c *Counts) Store(ctx context.Context, stmt query.Statement, count int64) {
	key := Key(stmt)
	if err := c.store.Set(ctx, key, []byte(strconv.FormatInt(count, 10)), c.ttl); err != nil {
		c.logger.Warn("count cache store failed", zap.String("key", key), zap.Error(err))
	}
}
