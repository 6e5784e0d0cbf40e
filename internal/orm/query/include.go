package query

import (
	"sort"
	"strings"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// IncludeTree is the nested set of associations to eager-load:
// association name -> nested associations.
type IncludeTree map[string]IncludeTree

// Merge returns the deep union of the two trees. Neither input is modified.
func (t IncludeTree) Merge(other IncludeTree) IncludeTree {
	out := make(IncludeTree, len(t)+len(other))
	for name, nested := range t {
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

// Names returns the direct association names, sorted
func (t IncludeTree) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the tree in the dotted include syntax, e.g. "customer,items,items.product"
func (t IncludeTree) String() string {
	var parts []string
	var walk func(tree IncludeTree, prefix string)
	walk = func(tree IncludeTree, prefix string) {
		for _, name := range tree.Names() {
			parts = append(parts, prefix+name)
			walk(tree[name], prefix+name+".")
		}
	}
	walk(t, "")
	return strings.Join(parts, ",")
}

// fromJoins converts a JoinSpec into an include tree
func fromJoins(j JoinSpec) IncludeTree {
	out := make(IncludeTree, len(j))
	for name, nested := range j {
		out[name] = fromJoins(nested)
	}
	return out
}

// ResolveIncludes builds the eager-load tree of a request. Sources are merged in order:
// always-included associations, associations reached by the filter and the sort, then
// the explicit include parameter, where false removes anything not always included.
func (c *Compiler) ResolveIncludes(s *schema.Schema, filter, sortSpec, include interface{}, issues *Collector) IncludeTree {
	tree := c.alwaysIncluded(s, []string{s.Name})
	tree = tree.Merge(fromJoins(c.filterAssociations(s, filter, 0)))
	tree = tree.Merge(fromJoins(c.sortAssociations(s, sortSpec)))

	ir := &includeResolver{Compiler: c, issues: issues}
	return ir.apply(s, tree, include, Path{"include"}, 0)
}

// alwaysIncluded folds in every always-included association recursively. An association
// whose target is already on the path is included without expanding it again.
func (c *Compiler) alwaysIncluded(s *schema.Schema, path []string) IncludeTree {
	tree := IncludeTree{}
	for _, assoc := range s.Associations() {
		target := assoc.TargetSchema()
		if !assoc.AlwaysIncluded || target == nil {
			continue
		}
		if contains(path, target.Name) {
			tree[assoc.Name] = IncludeTree{}
			continue
		}
		tree[assoc.Name] = c.alwaysIncluded(target, extend(path, target.Name))
	}
	return tree
}

// filterAssociations collects the associations reached inside a filter, walking the
// logical operators without building conditions
func (c *Compiler) filterAssociations(s *schema.Schema, node interface{}, depth int) JoinSpec {
	out := JoinSpec{}
	if node == nil || depth > c.opts.MaxDepth {
		return out
	}
	if list, ok := asSlice(node); ok {
		for _, element := range list {
			out = out.Merge(c.filterAssociations(s, element, depth))
		}
		return out
	}
	m, ok := asMap(node)
	if !ok {
		return out
	}
	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		switch key {
		case "_and", "_or", "_not":
			out = out.Merge(c.filterAssociations(s, value, depth))
			continue
		}
		assoc, ok := s.Association(key)
		if !ok || !assoc.Filterable || assoc.TargetSchema() == nil || depth >= c.opts.MaxDepth {
			continue
		}
		out = out.Merge(nest(key, c.filterAssociations(assoc.TargetSchema(), value, depth+1)))
	}
	return out
}

// sortAssociations collects the associations reached by a sort spec
func (c *Compiler) sortAssociations(s *schema.Schema, spec interface{}) JoinSpec {
	_, joins := c.CompileSort(s, spec, NewCollector())
	return joins
}

// includeResolver applies the explicit include parameter
type includeResolver struct {
	*Compiler
	issues *Collector
}

func (ir *includeResolver) apply(s *schema.Schema, tree IncludeTree, include interface{}, path Path, depth int) IncludeTree {
	if include == nil {
		return tree
	}
	if str, ok := include.(string); ok {
		include = parseIncludeString(str)
	}

	if list, ok := asSlice(include); ok {
		for i, element := range list {
			tree = ir.apply(s, tree, element, path.Append(i), depth)
		}
		return tree
	}

	m, ok := asMap(include)
	if !ok {
		ir.issues.Addf(CodeInvalidType, path, map[string]interface{}{"got": describe(include)},
			"include must be an object, an array or a string, got %s", describe(include))
		return tree
	}

	out := tree.Merge(nil)
	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		keyPath := path.Append(key)

		assoc, ok := s.Association(key)
		if !ok || !assoc.Serializable || assoc.TargetSchema() == nil {
			ir.issues.Addf(CodeInvalidInclude, keyPath, map[string]interface{}{"resource": s.Name},
				"%s is not an includable association of %s", key, s.Name)
			continue
		}

		if nested, isMap := asMap(value); isMap {
			if depth+1 >= ir.opts.MaxDepth {
				ir.issues.Addf(CodeMaxDepthExceeded, keyPath, map[string]interface{}{"max_depth": ir.opts.MaxDepth},
					"include nests deeper than %d associations", ir.opts.MaxDepth)
				continue
			}
			existing := out[key]
			if existing == nil {
				existing = IncludeTree{}
			}
			out[key] = ir.apply(assoc.TargetSchema(), existing, nested, keyPath, depth+1)
			continue
		}

		flag, err := parseBoolean(value)
		if err != nil {
			ir.issues.Addf(CodeInvalidType, keyPath, map[string]interface{}{"got": describe(value)},
				"include value for %s must be true, false or an object", key)
			continue
		}
		switch {
		case flag:
			if _, exists := out[key]; !exists {
				out[key] = IncludeTree{}
			}
		case !assoc.AlwaysIncluded:
			delete(out, key)
		}
	}
	return out
}

// parseIncludeString turns "author,items.product" into a nested include object
func parseIncludeString(s string) *Map {
	root := NewMap()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		current := root
		segments := strings.Split(part, ".")
		for i, segment := range segments {
			if i == len(segments)-1 {
				if _, exists := current.Get(segment); !exists {
					current.Set(segment, true)
				}
				break
			}
			next, _ := current.Get(segment)
			child, ok := next.(*Map)
			if !ok {
				child = NewMap()
				current.Set(segment, child)
			}
			current = child
		}
	}
	return root
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
