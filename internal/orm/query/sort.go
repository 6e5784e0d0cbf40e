package query

import (
	"strings"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// Direction represents sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order is one compiled sort key. Path is the association path from the root resource.
type Order struct {
	Path      []string
	Column    string
	Direction Direction
}

// CompileSort compiles a sort spec against s into ordered sort keys and the joins they
// need. spec is an object, an array of objects merged left to right, or the JSON:API
// string form "-created_at,customer.name".
func (c *Compiler) CompileSort(s *schema.Schema, spec interface{}, issues *Collector) ([]Order, JoinSpec) {
	sc := &sortCompiler{Compiler: c, issues: issues}
	return sc.spec(s, spec, Path{"sort"})
}

type sortCompiler struct {
	*Compiler
	issues *Collector
}

func (sc *sortCompiler) spec(s *schema.Schema, spec interface{}, path Path) ([]Order, JoinSpec) {
	if spec == nil {
		return nil, JoinSpec{}
	}
	if str, ok := spec.(string); ok {
		spec = parseSortString(str)
	}

	if list, ok := asSlice(spec); ok {
		var orders []Order
		joins := JoinSpec{}
		for i, element := range list {
			elementPath := path.Append(i)
			if str, ok := element.(string); ok {
				nested, nestedJoins := sc.spec(s, str, elementPath)
				orders = append(orders, nested...)
				joins = joins.Merge(nestedJoins)
				continue
			}
			m, ok := asMap(element)
			if !ok {
				sc.issues.Addf(CodeInvalidType, elementPath, map[string]interface{}{"got": describe(element)},
					"sort element must be an object, got %s", describe(element))
				continue
			}
			nested, nestedJoins := sc.object(s, m, elementPath, nil, []string{s.Name})
			orders = append(orders, nested...)
			joins = joins.Merge(nestedJoins)
		}
		return orders, joins
	}

	m, ok := asMap(spec)
	if !ok {
		sc.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(spec)},
			"sort must be an object, an array or a string, got %s", describe(spec))
		return nil, JoinSpec{}
	}
	return sc.object(s, m, path, nil, []string{s.Name})
}

// object compiles one sort object, keeping the caller's key order
func (sc *sortCompiler) object(s *schema.Schema, m *Map, path Path, assocPath, trail []string) ([]Order, JoinSpec) {
	var orders []Order
	joins := JoinSpec{}

	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		keyPath := path.Append(key)

		if attr, ok := s.Attribute(key); ok {
			if !attr.Sortable {
				sc.issues.Addf(CodeFieldNotSortable, keyPath, map[string]interface{}{"resource": s.Name},
					"%s is not sortable on %s", key, s.Name)
				continue
			}
			dir, ok := value.(string)
			if !ok || (Direction(dir) != Asc && Direction(dir) != Desc) {
				sc.issues.Addf(CodeInvalidDirection, keyPath, map[string]interface{}{"allowed": []string{"asc", "desc"}},
					"sort direction for %s must be asc or desc", key)
				continue
			}
			orders = append(orders, Order{Path: extend(assocPath), Column: attr.ColumnName(), Direction: Direction(dir)})
			continue
		}

		assoc, ok := s.Association(key)
		if !ok || !assoc.Sortable || assoc.TargetSchema() == nil {
			sc.issues.Addf(CodeFieldNotSortable, keyPath, map[string]interface{}{"resource": s.Name},
				"%s is not sortable on %s", key, s.Name)
			continue
		}
		target := assoc.TargetSchema()
		if len(assocPath) >= sc.opts.MaxDepth {
			sc.issues.Addf(CodeMaxDepthExceeded, keyPath,
				map[string]interface{}{"max_depth": sc.opts.MaxDepth, "trail": extend(trail, target.Name)},
				"sort nests deeper than %d associations", sc.opts.MaxDepth)
			continue
		}
		nestedMap, ok := asMap(value)
		if !ok {
			sc.issues.Addf(CodeInvalidType, keyPath, map[string]interface{}{"got": describe(value)},
				"association %s expects a nested sort object, got %s", key, describe(value))
			continue
		}

		nested, nestedJoins := sc.object(target, nestedMap, keyPath, extend(assocPath, key), extend(trail, target.Name))
		if len(nested) == 0 {
			continue
		}
		orders = append(orders, nested...)
		joins = joins.Merge(nest(key, nestedJoins))
	}
	return orders, joins
}

// parseSortString turns "-created_at,customer.name" into one sort object per key, in order
func parseSortString(s string) []interface{} {
	var out []interface{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := string(Asc)
		switch {
		case strings.HasPrefix(part, "-"):
			dir = string(Desc)
			part = part[1:]
		case strings.HasPrefix(part, "+"):
			part = part[1:]
		}

		segments := strings.Split(part, ".")
		var node interface{} = dir
		for i := len(segments) - 1; i >= 0; i-- {
			node = MapOf(segments[i], node)
		}
		out = append(out, node)
	}
	return out
}
