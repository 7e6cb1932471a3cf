// Package depgraph maintains the session-scoped dependency adjacency:
// forward edges (file to its dependencies) and their exact transpose
// (file to its dependents). Both maps are derived together from the same
// input and never patched independently.
package depgraph

import "sort"

// Graph is an immutable adjacency over normalized absolute file paths.
// Dangling edges are legal: a dependency may appear as an edge target
// without being a node that contributed edges of its own.
type Graph struct {
	forward map[string]map[string]bool
	reverse map[string]map[string]bool
}

// Build constructs a graph from a file-to-dependencies map. Pure, no I/O.
// Every key becomes a node; every dependency becomes a node too, so the
// reverse map is always the exact transpose of the forward map.
func Build(deps map[string][]string) *Graph {
	g := &Graph{
		forward: make(map[string]map[string]bool, len(deps)),
		reverse: make(map[string]map[string]bool, len(deps)),
	}
	for file, targets := range deps {
		g.ensure(file)
		for _, dep := range targets {
			g.ensure(dep)
			g.forward[file][dep] = true
			g.reverse[dep][file] = true
		}
	}
	return g
}

func (g *Graph) ensure(node string) {
	if g.forward[node] == nil {
		g.forward[node] = make(map[string]bool)
	}
	if g.reverse[node] == nil {
		g.reverse[node] = make(map[string]bool)
	}
}

// NodeCount returns the number of distinct files in the graph.
func (g *Graph) NodeCount() int { return len(g.forward) }

// EdgeCount returns the number of forward edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, targets := range g.forward {
		n += len(targets)
	}
	return n
}

// HasNode reports whether file participates in the graph.
func (g *Graph) HasNode(file string) bool {
	_, ok := g.forward[file]
	return ok
}

// Dependencies returns the direct forward targets of file, sorted.
func (g *Graph) Dependencies(file string) []string {
	return sortedKeys(g.forward[file])
}

// Dependents returns the direct reverse targets of file, sorted.
func (g *Graph) Dependents(file string) []string {
	return sortedKeys(g.reverse[file])
}

// Nodes returns every file in the graph, sorted.
func (g *Graph) Nodes() []string {
	return sortedKeys(g.forward)
}

// AffectedBy computes the transitive reverse closure of changed, inclusive
// of the changed files themselves. Files absent from the graph are still
// included in the result; they simply contribute no dependents. Cycles are
// tolerated: each file appears at most once and traversal always
// terminates.
func (g *Graph) AffectedBy(changed []string) []string {
	seen := make(map[string]bool, len(changed))
	stack := make([]string, 0, len(changed))
	for _, file := range changed {
		if !seen[file] {
			seen[file] = true
			stack = append(stack, file)
		}
	}
	for len(stack) > 0 {
		file := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dependent := range g.reverse[file] {
			if !seen[dependent] {
				seen[dependent] = true
				stack = append(stack, dependent)
			}
		}
	}
	return sortedKeys(seen)
}

// TopoOrder returns every node in dependency-first order: a file's
// dependencies appear before the file itself. Cycles do not admit such an
// order, so members of a cycle are emitted together in lexical path order,
// and each detected cycle is returned once (members sorted) so the caller
// can record a diagnostic. Output is deterministic for a given graph.
func (g *Graph) TopoOrder() (order []string, cycles [][]string) {
	components := stronglyConnectedComponents(g.Nodes(), g.forward)

	order = make([]string, 0, len(g.forward))
	for _, component := range components {
		order = append(order, component...)
		if len(component) > 1 {
			cycles = append(cycles, component)
			continue
		}
		// Self-import is a one-node cycle.
		if node := component[0]; g.forward[node][node] {
			cycles = append(cycles, component)
		}
	}
	return order, cycles
}

// stronglyConnectedComponents runs Tarjan's algorithm over the adjacency.
// Components come out with successors first, which for dependency edges
// means dependencies before dependents. Members of each component are
// sorted.
func stronglyConnectedComponents(nodes []string, adjacency map[string]map[string]bool) [][]string {
	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indexByNode := make(map[string]int, len(nodes))
	lowLink := make(map[string]int, len(nodes))
	components := make([][]string, 0)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indexByNode[v] = index
		lowLink[v] = index
		index++

		stack = append(stack, v)
		onStack[v] = true

		for _, w := range sortedKeys(adjacency[v]) {
			if _, seen := indexByNode[w]; !seen {
				strongConnect(w)
				if lowLink[w] < lowLink[v] {
					lowLink[v] = lowLink[w]
				}
			} else if onStack[w] && indexByNode[w] < lowLink[v] {
				lowLink[v] = indexByNode[w]
			}
		}

		if lowLink[v] != indexByNode[v] {
			return
		}

		component := make([]string, 0)
		for {
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[last] = false
			component = append(component, last)
			if last == v {
				break
			}
		}
		sort.Strings(component)
		components = append(components, component)
	}

	for _, node := range nodes {
		if _, seen := indexByNode[node]; !seen {
			strongConnect(node)
		}
	}

	return components
}

func sortedKeys[V any](set map[string]V) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
