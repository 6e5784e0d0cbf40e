package schema

// RequestContext carries what a conditional capability may look at.
// It is built by the caller per request and never stored on a schema.
type RequestContext struct {
	Principal string
	Roles     []string
	Values    map[string]interface{}
}

// HasRole reports whether the context carries the given role
func (rc RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Value returns a free-form context value
func (rc RequestContext) Value(key string) (interface{}, bool) {
	if rc.Values == nil {
		return nil, false
	}
	v, ok := rc.Values[key]
	return v, ok
}

// ContextPredicate decides a capability for one request
type ContextPredicate func(rc RequestContext) bool

type filterMode int

const (
	filterNever filterMode = iota
	filterAlways
	filterIf
)

// Filterability is the filter capability of an attribute.
// The zero value never allows filtering.
type Filterability struct {
	mode      filterMode
	predicate ContextPredicate
}

var (
	// FilterAlways allows filtering for every request
	FilterAlways = Filterability{mode: filterAlways}
	// FilterNever rejects filtering for every request
	FilterNever = Filterability{mode: filterNever}
)

// FilterIf allows filtering when the predicate holds for the request context
func FilterIf(p ContextPredicate) Filterability {
	if p == nil {
		return FilterNever
	}
	return Filterability{mode: filterIf, predicate: p}
}

// FilterFor converts a plain flag into a capability
func FilterFor(enabled bool) Filterability {
	if enabled {
		return FilterAlways
	}
	return FilterNever
}

// Allows evaluates the capability against a request context
func (f Filterability) Allows(rc RequestContext) bool {
	switch f.mode {
	case filterAlways:
		return true
	case filterIf:
		return f.predicate(rc)
	default:
		return false
	}
}

// Conditional returns true when the capability depends on the request
func (f Filterability) Conditional() bool {
	return f.mode == filterIf
}

// String describes the capability for introspection output
func (f Filterability) String() string {
	switch f.mode {
	case filterAlways:
		return "always"
	case filterIf:
		return "conditional"
	default:
		return "never"
	}
}
