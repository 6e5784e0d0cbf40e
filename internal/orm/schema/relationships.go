package schema

import (
	"sort"
	"strings"
)

// RelationshipGraph represents the association graph between resources
type RelationshipGraph struct {
	nodes []string
	edges map[string][]string // resource -> association targets
}

// NewRelationshipGraph creates a new relationship graph
func NewRelationshipGraph(schemas map[string]*Schema) *RelationshipGraph {
	graph := &RelationshipGraph{
		edges: make(map[string][]string),
	}

	for name, s := range schemas {
		graph.nodes = append(graph.nodes, name)
		seen := make(map[string]bool)
		for _, assoc := range s.Associations() {
			if seen[assoc.Target] {
				continue
			}
			seen[assoc.Target] = true
			graph.edges[name] = append(graph.edges[name], assoc.Target)
		}
		sort.Strings(graph.edges[name])
	}
	sort.Strings(graph.nodes)

	return graph
}

// DetectCycles returns every elementary cycle found by a depth-first walk, each rotated
// so that it starts at its smallest resource name. Self references are cycles of length one.
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	found := make(map[string]bool)
	onPath := make(map[string]int)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		onPath[node] = len(path)
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if start, ok := onPath[neighbor]; ok {
				cycle := canonicalCycle(path[start:])
				key := strings.Join(cycle, ">")
				if !found[key] {
					found[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			dfs(neighbor, path)
		}

		delete(onPath, node)
	}

	for _, node := range g.nodes {
		dfs(node, nil)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], ">") < strings.Join(cycles[j], ">")
	})
	return cycles
}

// GetDependencies returns all direct association targets of a resource
func (g *RelationshipGraph) GetDependencies(resource string) []string {
	deps, exists := g.edges[resource]
	if !exists {
		return []string{}
	}
	return deps
}

func canonicalCycle(path []string) []string {
	min := 0
	for i := range path {
		if path[i] < path[min] {
			min = i
		}
	}
	cycle := make([]string, 0, len(path))
	cycle = append(cycle, path[min:]...)
	cycle = append(cycle, path[:min]...)
	return cycle
}

// FormatCycle renders a cycle as "A -> B -> A"
func FormatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(append(append([]string{}, cycle...), cycle[0]), " -> ")
}
