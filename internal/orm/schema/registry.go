package schema

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry manages all resource schemas in the application.
//
// Schemas are registered during startup and the registry is then sealed. Sealing resolves
// association targets and freezes every schema; from then on the registry is read-only
// and lookups take no locks, so it can be shared by concurrent requests.
type Registry struct {
	schemas map[string]*Schema
	mu      sync.Mutex
	sealed  atomic.Bool
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
	}
}

// Register registers a new resource schema
func (r *Registry) Register(s *Schema) error {
	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register %s", ErrSealed, s.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Name]; exists {
		return fmt.Errorf("%w: resource %s is already registered", ErrDuplicateName, s.Name)
	}
	if s.Table == "" || s.PrimaryKey == "" {
		return fmt.Errorf("%w: resource %s needs a table and a primary key", ErrInvalidDefinition, s.Name)
	}

	r.schemas[s.Name] = s
	return nil
}

// Seal resolves association targets, validates every schema and freezes the registry.
// Forward references and cycles between resources are allowed.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return nil
	}

	// Validate everything before resolving so a failed Seal leaves no partial state
	names := r.sortedNames()
	for _, name := range names {
		s := r.schemas[name]
		if err := validatePagination(s); err != nil {
			return err
		}
		if _, err := s.PrimaryKeyAttribute(); err != nil {
			return err
		}
		for _, assoc := range s.Associations() {
			if _, ok := r.schemas[assoc.Target]; !ok {
				return fmt.Errorf("%w: %s.%s targets %s", ErrUnknownResource, s.Name, assoc.Name, assoc.Target)
			}
		}
	}

	for _, name := range names {
		s := r.schemas[name]
		for _, assoc := range s.Associations() {
			target := r.schemas[assoc.Target]
			if assoc.ForeignKey == "" {
				assoc.ForeignKey = defaultForeignKey(s, assoc, target)
			}
			assoc.target = target
		}
	}

	for _, s := range r.schemas {
		s.sealed = true
	}
	r.sealed.Store(true)
	return nil
}

// Sealed returns true once Seal succeeded
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Get retrieves a resource schema by name
func (r *Registry) Get(name string) (*Schema, bool) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	s, exists := r.schemas[name]
	return s, exists
}

// Lookup retrieves a sealed resource schema by name
func (r *Registry) Lookup(name string) (*Schema, error) {
	if !r.sealed.Load() {
		return nil, ErrNotSealed
	}
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return s, nil
}

// List returns all resource names, sorted
func (r *Registry) List() []string {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return r.sortedNames()
}

// Count returns the number of registered schemas
func (r *Registry) Count() int {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return len(r.schemas)
}

// Exists checks if a resource schema exists
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Cycles returns the association cycles between resources. Cycles are legal; the
// include resolver and the relationship loader guard against them.
func (r *Registry) Cycles() [][]string {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return NewRelationshipGraph(r.schemas).DetectCycles()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validatePagination(s *Schema) error {
	p := s.Pagination
	if p.DefaultSize < 1 || p.MaxSize < 1 {
		return fmt.Errorf("%w: %s page sizes must be positive", ErrInvalidDefinition, s.Name)
	}
	if p.DefaultSize > p.MaxSize {
		return fmt.Errorf("%w: %s default page size %d exceeds max %d", ErrInvalidDefinition, s.Name, p.DefaultSize, p.MaxSize)
	}
	return nil
}

// defaultForeignKey follows the naming convention: belongs_to keeps the key on the
// owner ("author" -> "author_id"), has_one/has_many keep it on the target ("Invoice" -> "invoice_id").
func defaultForeignKey(owner *Schema, assoc *Association, _ *Schema) string {
	if assoc.Kind == BelongsTo {
		return toSnakeCase(assoc.Name) + "_id"
	}
	return toSnakeCase(owner.Name) + "_id"
}
