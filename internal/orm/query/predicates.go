// Package query compiles nested, client-supplied JSON queries (filter, sort, page, include)
// against resource schemas into a validated query description, and executes that
// description against a SQL database.
package query

import (
	"sort"
	"strings"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// Operator represents a comparison operator of a compiled predicate
type Operator int

const (
	OpEqual Operator = iota
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpLike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpLike:
		return "LIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// Expr is a compiled boolean condition
type Expr interface {
	isExpr()
}

// Predicate is a single column comparison, the leaf of a condition tree.
// Path is the association path from the root resource; empty for root columns.
type Predicate struct {
	Path     []string
	Column   string
	Kind     schema.ValueKind
	Operator Operator
	Value    interface{} // []interface{} for IN, []interface{}{lo, hi} for BETWEEN
}

// And is a conjunction
type And struct {
	Children []Expr
}

// Or is a disjunction
type Or struct {
	Children []Expr
}

// Not is a negation
type Not struct {
	Child Expr
}

func (*Predicate) isExpr() {}
func (*And) isExpr()       {}
func (*Or) isExpr()        {}
func (*Not) isExpr()       {}

// AndOf combines conditions with AND. Nil children are dropped; a single child is
// returned as is and no children yield nil.
func AndOf(children ...Expr) Expr {
	kept := compact(children)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &And{Children: kept}
}

// OrOf combines conditions with OR, with the same rules as AndOf
func OrOf(children ...Expr) Expr {
	kept := compact(children)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Or{Children: kept}
}

// NotOf negates a condition; nil stays nil
func NotOf(child Expr) Expr {
	if child == nil {
		return nil
	}
	return &Not{Child: child}
}

func compact(children []Expr) []Expr {
	kept := make([]Expr, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return kept
}

// JoinSpec is the nested set of associations that must be joined to evaluate a
// condition or an ordering: association name -> nested joins.
type JoinSpec map[string]JoinSpec

// Merge returns the deep union of the two specs. Neither input is modified.
func (j JoinSpec) Merge(other JoinSpec) JoinSpec {
	out := make(JoinSpec, len(j)+len(other))
	for name, nested := range j {
		out[name] = nested.Merge(nil)
	}
	for name, nested := range other {
		if existing, ok := out[name]; ok {
			out[name] = existing.Merge(nested)
		} else {
			out[name] = nested.Merge(nil)
		}
	}
	return out
}

// Empty returns true when no join is required
func (j JoinSpec) Empty() bool {
	return len(j) == 0
}

// Names returns the direct association names, sorted
func (j JoinSpec) Names() []string {
	names := make([]string, 0, len(j))
	for name := range j {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Paths returns every association path in the join spec, depth first and sorted
func (j JoinSpec) Paths() [][]string {
	var paths [][]string
	var walk func(spec JoinSpec, prefix []string)
	walk = func(spec JoinSpec, prefix []string) {
		for _, name := range spec.Names() {
			path := append(append([]string{}, prefix...), name)
			paths = append(paths, path)
			walk(spec[name], path)
		}
	}
	walk(j, nil)
	return paths
}

// String renders the join spec as "customer,items(product)"
func (j JoinSpec) String() string {
	parts := make([]string, 0, len(j))
	for _, name := range j.Names() {
		if nested := j[name]; !nested.Empty() {
			parts = append(parts, name+"("+nested.String()+")")
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}

// nest wraps a spec under an association name
func nest(name string, inner JoinSpec) JoinSpec {
	if inner == nil {
		inner = JoinSpec{}
	}
	return JoinSpec{name: inner}
}
