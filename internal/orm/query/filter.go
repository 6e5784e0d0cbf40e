package query

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

var comparisons = map[FilterOp]Operator{
	FilterEq:  OpEqual,
	FilterGt:  OpGreaterThan,
	FilterGte: OpGreaterThanOrEqual,
	FilterLt:  OpLessThan,
	FilterLte: OpLessThanOrEqual,
}

// CompileFilter compiles a filter tree (an object or an array of objects) against s.
// It returns the condition, nil when nothing survived validation, and the joins the
// condition needs. Problems are added to issues; compilation never stops early.
func (c *Compiler) CompileFilter(s *schema.Schema, filter interface{}, rc schema.RequestContext, issues *Collector) (Expr, JoinSpec) {
	fc := &filterCompiler{Compiler: c, rc: rc, issues: issues}
	return fc.node(s, filter, Path{"filter"}, nil, []string{s.Name})
}

// filterCompiler holds the per-call state of one filter compilation
type filterCompiler struct {
	*Compiler
	rc     schema.RequestContext
	issues *Collector
}

func (fc *filterCompiler) node(s *schema.Schema, node interface{}, path Path, assocPath, trail []string) (Expr, JoinSpec) {
	if node == nil {
		return nil, JoinSpec{}
	}

	// An array is an implicit OR of its elements
	if list, ok := asSlice(node); ok {
		return fc.list(s, list, path, assocPath, trail, OrOf)
	}

	m, ok := asMap(node)
	if !ok {
		fc.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(node)},
			"filter must be an object or an array, got %s", describe(node))
		return nil, JoinSpec{}
	}

	exprs := make([]Expr, 0, m.Len())
	joins := JoinSpec{}
	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		keyPath := path.Append(key)

		var expr Expr
		var nested JoinSpec
		switch key {
		case "_and":
			expr, nested = fc.logical(s, value, keyPath, assocPath, trail, AndOf)
		case "_or":
			expr, nested = fc.logical(s, value, keyPath, assocPath, trail, OrOf)
		case "_not":
			expr, nested = fc.not(s, value, keyPath, assocPath, trail)
		default:
			expr, nested = fc.field(s, key, value, keyPath, assocPath, trail)
		}
		exprs = append(exprs, expr)
		joins = joins.Merge(nested)
	}
	return AndOf(exprs...), joins
}

func (fc *filterCompiler) list(s *schema.Schema, list []interface{}, path Path, assocPath, trail []string, combine func(...Expr) Expr) (Expr, JoinSpec) {
	exprs := make([]Expr, 0, len(list))
	joins := JoinSpec{}
	for i, element := range list {
		elementPath := path.Append(i)
		if _, ok := asMap(element); !ok {
			fc.issues.Addf(CodeInvalidType, elementPath, map[string]interface{}{"got": describe(element)},
				"filter element must be an object, got %s", describe(element))
			continue
		}
		expr, nested := fc.node(s, element, elementPath, assocPath, trail)
		exprs = append(exprs, expr)
		joins = joins.Merge(nested)
	}
	return combine(exprs...), joins
}

// logical compiles the operand of _and / _or. A single object is accepted as a one
// element array.
func (fc *filterCompiler) logical(s *schema.Schema, value interface{}, path Path, assocPath, trail []string, combine func(...Expr) Expr) (Expr, JoinSpec) {
	if list, ok := asSlice(value); ok {
		return fc.list(s, list, path, assocPath, trail, combine)
	}
	if _, ok := asMap(value); ok {
		return fc.node(s, value, path, assocPath, trail)
	}
	fc.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(value)},
		"%s expects an array of filters, got %s", path[len(path)-1], describe(value))
	return nil, JoinSpec{}
}

func (fc *filterCompiler) not(s *schema.Schema, value interface{}, path Path, assocPath, trail []string) (Expr, JoinSpec) {
	_, isMap := asMap(value)
	_, isList := asSlice(value)
	if !isMap && !isList {
		fc.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(value)},
			"_not expects an object or an array, got %s", describe(value))
		return nil, JoinSpec{}
	}
	expr, joins := fc.node(s, value, path, assocPath, trail)
	return NotOf(expr), joins
}

// field resolves a regular key against the schema: an attribute becomes a leaf, an
// association recurses into its target.
func (fc *filterCompiler) field(s *schema.Schema, key string, value interface{}, path Path, assocPath, trail []string) (Expr, JoinSpec) {
	if attr, ok := s.Attribute(key); ok {
		if !attr.Filterable.Allows(fc.rc) {
			fc.issues.Addf(CodeFieldNotFilterable, path, map[string]interface{}{"resource": s.Name},
				"%s is not filterable on %s", key, s.Name)
			return nil, JoinSpec{}
		}
		return fc.leaf(attr, value, path, assocPath), JoinSpec{}
	}

	assoc, ok := s.Association(key)
	if !ok {
		fc.issues.Addf(CodeFieldNotFilterable, path, map[string]interface{}{"resource": s.Name},
			"%s is not a field of %s", key, s.Name)
		return nil, JoinSpec{}
	}
	target := assoc.TargetSchema()
	if !assoc.Filterable || target == nil {
		fc.issues.Addf(CodeFieldNotFilterable, path, map[string]interface{}{"resource": s.Name},
			"%s is not filterable on %s", key, s.Name)
		return nil, JoinSpec{}
	}
	if len(assocPath) >= fc.opts.MaxDepth {
		fc.issues.Addf(CodeMaxDepthExceeded, path,
			map[string]interface{}{"max_depth": fc.opts.MaxDepth, "trail": extend(trail, target.Name)},
			"filter nests deeper than %d associations", fc.opts.MaxDepth)
		return nil, JoinSpec{}
	}

	_, isMap := asMap(value)
	_, isList := asSlice(value)
	if !isMap && !isList {
		fc.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(value)},
			"association %s expects a nested filter, got %s", key, describe(value))
		return nil, JoinSpec{}
	}

	expr, nested := fc.node(target, value, path, extend(assocPath, key), extend(trail, target.Name))
	if expr == nil {
		return nil, JoinSpec{}
	}
	return expr, nest(key, nested)
}

// leaf compiles the value of an attribute key. Scalars are shorthand for eq, arrays
// for in and null for {null: true}; several operators are ANDed in sorted order.
func (fc *filterCompiler) leaf(attr *schema.Attribute, value interface{}, path Path, assocPath []string) Expr {
	allowed, ok := AllowedOperators(attr.Kind)
	if !ok {
		fc.issues.Addf(CodeUnsupportedColumnType, path, map[string]interface{}{"kind": attr.Kind.String()},
			"%s has an unsupported column type", attr.Name)
		return nil
	}

	var ops *Map
	shorthand := true
	switch {
	case value == nil:
		ops = MapOf(string(FilterNull), true)
	case isScalar(value):
		ops = MapOf(string(FilterEq), value)
	default:
		if list, isList := asSlice(value); isList {
			ops = MapOf(string(FilterIn), list)
		} else if m, isMap := asMap(value); isMap {
			ops = m
			shorthand = false
		} else {
			fc.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(value)},
				"%s expects a value or an operator object, got %s", attr.Name, describe(value))
			return nil
		}
	}

	keys := ops.Keys()
	sort.Strings(keys)

	exprs := make([]Expr, 0, len(keys))
	for _, key := range keys {
		opPath := path
		if !shorthand {
			opPath = path.Append(key)
		}
		op := fc.canonicalOperator(key)
		if !Allows(attr.Kind, op) {
			fc.issues.Addf(CodeInvalidOperator, opPath,
				map[string]interface{}{"operator": key, "kind": attr.Kind.String(), "allowed": operatorNames(allowed)},
				"%s is not a valid operator for %s attribute %s", key, attr.Kind, attr.Name)
			continue
		}
		raw, _ := ops.Get(key)
		exprs = append(exprs, fc.operator(attr, op, raw, opPath, assocPath))
	}
	return AndOf(exprs...)
}

func (fc *filterCompiler) operator(attr *schema.Attribute, op FilterOp, raw interface{}, path Path, assocPath []string) Expr {
	pred := func(o Operator, v interface{}) Expr {
		return &Predicate{
			Path:     extend(assocPath),
			Column:   attr.ColumnName(),
			Kind:     attr.Kind,
			Operator: o,
			Value:    v,
		}
	}

	switch op {
	case FilterEq, FilterGt, FilterGte, FilterLt, FilterLte:
		if raw == nil {
			if op == FilterEq && Allows(attr.Kind, FilterNull) {
				return fc.null(attr, true, path, pred)
			}
			fc.issues.Addf(CodeInvalidValue, path, nil, "%s requires a value", op)
			return nil
		}
		v, ok := fc.literal(attr, raw, path)
		if !ok {
			return nil
		}
		return pred(comparisons[op], v)

	case FilterIn:
		list, ok := asSlice(raw)
		if !ok {
			if !isScalar(raw) {
				fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"got": describe(raw)},
					"in expects an array, got %s", describe(raw))
				return nil
			}
			list = []interface{}{raw}
		}
		values := make([]interface{}, 0, len(list))
		failed := false
		for i, item := range list {
			v, ok := fc.literal(attr, item, path.Append(i))
			if !ok {
				failed = true
				continue
			}
			values = append(values, v)
		}
		if failed {
			return nil
		}
		return pred(OpIn, values)

	case FilterBetween:
		bounds, ok := asMap(raw)
		if !ok {
			fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"got": describe(raw)},
				"between expects an object with from and to, got %s", describe(raw))
			return nil
		}
		from, hasFrom := bounds.Get("from")
		to, hasTo := bounds.Get("to")
		if !hasFrom || !hasTo || from == nil || to == nil {
			fc.issues.Add(CodeInvalidValue, path, "between requires both from and to", nil)
			return nil
		}
		lo, okLo := fc.bound(attr, from, path.Append("from"), false)
		hi, okHi := fc.bound(attr, to, path.Append("to"), true)
		if !okLo || !okHi {
			return nil
		}
		return pred(OpBetween, []interface{}{lo, hi})

	case FilterContains, FilterStartsWith, FilterEndsWith:
		s, err := parseString(raw)
		if err != nil {
			fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"got": describe(raw)},
				"%s expects a string: %v", op, err)
			return nil
		}
		pattern := escapeLike(s)
		switch op {
		case FilterContains:
			pattern = "%" + pattern + "%"
		case FilterStartsWith:
			pattern = pattern + "%"
		case FilterEndsWith:
			pattern = "%" + pattern
		}
		return pred(OpLike, pattern)

	case FilterNull:
		isNull, err := parseNullFlag(raw)
		if err != nil {
			fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"got": describe(raw)},
				"null expects true or false: %v", err)
			return nil
		}
		return fc.null(attr, isNull, path, pred)
	}

	return nil
}

// null builds IS NULL / IS NOT NULL. IS NULL on a non-nullable attribute is reported;
// the condition is kept unless StrictNull is set.
func (fc *filterCompiler) null(attr *schema.Attribute, isNull bool, path Path, pred func(Operator, interface{}) Expr) Expr {
	if !isNull {
		return pred(OpIsNotNull, nil)
	}
	if !attr.Nullable {
		fc.issues.Addf(CodeNullNotAllowed, path, map[string]interface{}{"strict": fc.opts.StrictNull},
			"%s is not nullable", attr.Name)
		if fc.opts.StrictNull {
			return nil
		}
	}
	return pred(OpIsNull, nil)
}

// literal parses one scalar operand and checks enum membership
func (fc *filterCompiler) literal(attr *schema.Attribute, raw interface{}, path Path) (interface{}, bool) {
	if !isScalar(raw) {
		fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"got": describe(raw)},
			"%v for %s", errNotScalar, attr.Name)
		return nil, false
	}
	v, err := parseOperand(attr.Kind, raw)
	if err != nil {
		fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"kind": attr.Kind.String()},
			"invalid %s value for %s: %v", attr.Kind, attr.Name, err)
		return nil, false
	}
	if attr.IsEnum() {
		if !attr.HasEnumValue(fmt.Sprint(v)) {
			fc.issues.Addf(CodeInvalidEnumValue, path, map[string]interface{}{"allowed": attr.EnumValues},
				"%v is not one of the values of %s", v, attr.Name)
			return nil, false
		}
	}
	return v, true
}

// bound parses a between bound; date-only bounds on temporal attributes widen to the
// start (lower) or end (upper) of the day
func (fc *filterCompiler) bound(attr *schema.Attribute, raw interface{}, path Path, upper bool) (interface{}, bool) {
	if !attr.Kind.IsTemporal() {
		return fc.literal(attr, raw, path)
	}
	t, dateOnly, err := parseTemporal(raw)
	if err != nil {
		fc.issues.Addf(CodeInvalidValue, path, map[string]interface{}{"kind": attr.Kind.String()},
			"invalid %s value for %s: %v", attr.Kind, attr.Name, err)
		return nil, false
	}
	if attr.Kind == schema.KindDate || dateOnly {
		if upper {
			return endOfDay(t), true
		}
		return startOfDay(t), true
	}
	return t, true
}

// extend returns a copy of base with the elements appended
func extend(base []string, elems ...string) []string {
	out := make([]string, 0, len(base)+len(elems))
	out = append(out, base...)
	return append(out, elems...)
}

// describe names the JSON type of a value for issue details
func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case *Map, Map, map[string]interface{}:
		return "object"
	default:
		if isScalar(v) {
			return "number"
		}
		if _, ok := asSlice(v); ok {
			return "array"
		}
		if _, ok := asMap(v); ok {
			return "object"
		}
		return fmt.Sprintf("%T", v)
	}
}
