// File: internal/stack/graph.go
// Brief: Dependency graph: topological planning and transitive closure.

package stack

import (
	"sort"
	"strings"
)

// Graph holds validated dependency edges between stacks plus the
// precomputed deterministic apply order. Edges mean "dependency before
// dependent": every name in a stack's Needs must reach applied before
// that stack may start.
type Graph struct {
	nodes      []*ResolvedStack
	byName     map[string]*ResolvedStack
	deps       map[string][]string
	dependents map[string][]string
	order      []string
}

// BuildGraph validates dependency references, rejects cycles, and
// computes the apply order. Ties are broken by declaration order so
// repeated runs plan identically.
func BuildGraph(stacks []*ResolvedStack) (*Graph, error) {
	g := &Graph{
		byName:     map[string]*ResolvedStack{},
		deps:       map[string][]string{},
		dependents: map[string][]string{},
	}
	g.nodes = append(g.nodes, stacks...)
	sort.SliceStable(g.nodes, func(i, j int) bool {
		return g.nodes[i].DeclIndex < g.nodes[j].DeclIndex
	})
	for _, n := range g.nodes {
		g.byName[n.Name] = n
	}
	for _, n := range g.nodes {
		for _, depName := range n.Needs {
			dep, ok := g.byName[depName]
			if !ok {
				return nil, configErrorf("stack %q needs missing dependency %q", n.Name, depName)
			}
			if dep.Name == n.Name {
				return nil, configErrorf("stack %q depends on itself", n.Name)
			}
			g.deps[n.Name] = append(g.deps[n.Name], dep.Name)
			g.dependents[dep.Name] = append(g.dependents[dep.Name], n.Name)
		}
	}
	// Dependencies visit in declaration order, same as the node sweep.
	for name := range g.deps {
		g.sortByDecl(g.deps[name])
	}
	for name := range g.dependents {
		g.sortByDecl(g.dependents[name])
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func (g *Graph) sortByDecl(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return g.byName[names[i]].DeclIndex < g.byName[names[j]].DeclIndex
	})
}

// topoSort is a DFS postorder walk: each stack is emitted after all of
// its dependencies. Cycle detection is recursion-stack membership; on a
// cycle the participating stack names are reported in path order.
func (g *Graph) topoSort() ([]string, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // on recursion stack
		black = 2 // done
	)
	state := map[string]int{}
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case black:
			return nil
		case gray:
			// Trim the path to the cycle itself.
			idx := 0
			for i := range path {
				if path[i] == name {
					idx = i
					break
				}
			}
			cycle := append(append([]string(nil), path[idx:]...), name)
			return configErrorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
		}
		state[name] = gray
		path = append(path, name)
		for _, dep := range g.deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = black
		order = append(order, name)
		return nil
	}

	for _, n := range g.nodes {
		if err := visit(n.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ApplyOrder returns stack names in a valid apply sequence: every
// dependency precedes its dependents.
func (g *Graph) ApplyOrder() []string {
	return append([]string(nil), g.order...)
}

// DestroyOrder is the exact reverse of ApplyOrder.
func (g *Graph) DestroyOrder() []string {
	out := make([]string, 0, len(g.order))
	for i := len(g.order) - 1; i >= 0; i-- {
		out = append(out, g.order[i])
	}
	return out
}

// Stack returns the resolved declaration for name, or nil.
func (g *Graph) Stack(name string) *ResolvedStack {
	return g.byName[name]
}

// Stacks returns all nodes in declaration order.
func (g *Graph) Stacks() []*ResolvedStack {
	return append([]*ResolvedStack(nil), g.nodes...)
}

// DepsOf returns the names of all transitive dependencies of name.
func (g *Graph) DepsOf(name string) []string {
	return g.walk(name, g.deps)
}

// DependentsOf returns the names of all stacks that transitively depend
// on name. A failure of name blocks exactly this set.
func (g *Graph) DependentsOf(name string) []string {
	return g.walk(name, g.dependents)
}

// DirectDependentsOf returns only the stacks that declare name in Needs.
func (g *Graph) DirectDependentsOf(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

func (g *Graph) walk(name string, edges map[string][]string) []string {
	var out []string
	seen := map[string]struct{}{}
	var rec func(string)
	rec = func(cur string) {
		for _, next := range edges[cur] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			out = append(out, next)
			rec(next)
		}
	}
	rec(name)
	sort.Strings(out)
	return out
}

// Edges returns all (dependent, dependency) pairs, sorted.
func (g *Graph) Edges() [][2]string {
	var edges [][2]string
	for from, deps := range g.deps {
		for _, to := range deps {
			edges = append(edges, [2]string{from, to})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}
