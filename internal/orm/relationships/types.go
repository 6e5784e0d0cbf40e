// Package relationships eager-loads the include tree of a compiled query with one
// batched IN query per association and level, preventing N+1 queries.
package relationships

import (
	"github.com/conduit-lang/querykit/internal/orm/query"
)

// DefaultMaxDepth bounds how deep an include tree is loaded
const DefaultMaxDepth = 10

// Loader handles batched relationship loading
type Loader struct {
	db       query.Querier
	dialect  query.Dialect
	maxDepth int
}

// NewLoader creates a new relationship loader
func NewLoader(db query.Querier, dialect query.Dialect) *Loader {
	return &Loader{
		db:       db,
		dialect:  dialect,
		maxDepth: DefaultMaxDepth,
	}
}

// WithMaxDepth returns a copy of the loader with a different depth bound
func (l *Loader) WithMaxDepth(depth int) *Loader {
	clone := *l
	if depth > 0 {
		clone.maxDepth = depth
	}
	return &clone
}

// LoadContext tracks the depth of one load. Include trees are plain maps and may
// reference themselves, so the depth bound is what stops a cyclic tree.
type LoadContext struct {
	depth    int
	maxDepth int
	queries  int
}

// NewLoadContext creates a new load context with the given max depth
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{maxDepth: maxDepth}
}

// IncrementDepth increments the depth counter
func (lc *LoadContext) IncrementDepth() error {
	lc.depth++
	if lc.depth > lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// DecrementDepth decrements the depth counter
func (lc *LoadContext) DecrementDepth() {
	lc.depth--
}

// Queries returns the number of queries issued so far
func (lc *LoadContext) Queries() int {
	return lc.queries
}
