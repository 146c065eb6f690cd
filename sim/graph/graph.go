package graph

import (
	"fmt"
	"maps"
	"slices"
)

// Graph is a dependency DAG of network and CPU nodes stored as an arena: nodes
// live in a slice in insertion order and edges are index lists, so no node
// holds a pointer to another. Insertion order is the tie-breaker for every
// ordering decision, which keeps traversals and simulations reproducible.
//
// The zero value is not usable - use New to create a Graph.
// Graph is not safe for concurrent mutation; concurrent simulations should
// each work on their own Clone.
type Graph struct {
	nodes      []*Node
	index      map[string]int
	deps       [][]int // deps[i] = nodes that node i waits on, insertion order
	dependents [][]int // dependents[i] = nodes waiting on node i, insertion order
	marks      map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		marks: make(map[string][]string),
	}
}

// AddNode appends a node to the graph. Returns ErrInvalidNodeID for an empty
// ID, ErrDuplicateNodeID when the ID is already taken, and ErrMissingPayload
// when the payload does not match the node kind.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.index[n.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNodeID, n.ID)
	}
	if !n.valid() {
		return fmt.Errorf("%w: %q (%s)", ErrMissingPayload, n.ID, n.Kind)
	}
	node := n
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, &node)
	g.deps = append(g.deps, nil)
	g.dependents = append(g.dependents, nil)
	return nil
}

// AddNetworkNode is a convenience wrapper around AddNode for network nodes.
func (g *Graph) AddNetworkNode(id string, record *NetworkRecord) error {
	return g.AddNode(Node{ID: id, Kind: KindNetwork, Network: record})
}

// AddCPUNode is a convenience wrapper around AddNode for CPU nodes.
func (g *Graph) AddCPUNode(id string, task *CPUTask) error {
	return g.AddNode(Node{ID: id, Kind: KindCPU, CPU: task})
}

// AddDependency records that dependentID cannot start before dependencyID
// completes. An unknown dependent yields ErrUnknownNode and an unknown
// dependency a *MissingDependencyError. Before inserting,
// the dependency's own dependencies are walked backwards; if dependentID is
// reachable the edge would close a cycle and a *CyclicGraphError is returned
// with the graph left unchanged. Re-adding an existing edge is a no-op.
func (g *Graph) AddDependency(dependentID, dependencyID string) error {
	from, ok := g.index[dependentID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, dependentID)
	}
	to, ok := g.index[dependencyID]
	if !ok {
		return &MissingDependencyError{NodeID: dependentID, DependencyID: dependencyID}
	}
	if slices.Contains(g.deps[from], to) {
		return nil
	}
	if path := g.backwardPath(to, from); path != nil {
		cycle := []string{dependentID}
		for _, i := range path {
			cycle = append(cycle, g.nodes[i].ID)
		}
		return &CyclicGraphError{Path: cycle}
	}
	g.deps[from] = append(g.deps[from], to)
	g.dependents[to] = append(g.dependents[to], from)
	return nil
}

// backwardPath searches from start through dependency edges for target and
// returns the chain start, ..., target, or nil when target is unreachable.
func (g *Graph) backwardPath(start, target int) []int {
	parent := map[int]int{start: -1}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			var path []int
			for i := cur; i != -1; i = parent[i] {
				path = append(path, i)
			}
			slices.Reverse(path)
			return path
		}
		for _, dep := range g.deps[cur] {
			if _, seen := parent[dep]; !seen {
				parent[dep] = cur
				queue = append(queue, dep)
			}
		}
	}
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Position returns the insertion position of the node, or -1 when absent.
func (g *Graph) Position(id string) int {
	i, ok := g.index[id]
	if !ok {
		return -1
	}
	return i
}

// Nodes returns all nodes in insertion order. The slice is a copy; the nodes
// are shared with the graph and must not be modified.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// Dependencies returns the IDs of the nodes id waits on, in insertion order.
func (g *Graph) Dependencies(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.ids(g.deps[i])
}

// Dependents returns the IDs of the nodes waiting on id, in insertion order.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.ids(g.dependents[i])
}

// DependencyIndices returns the positions of the nodes the node at position i
// waits on. The returned slice must not be modified.
func (g *Graph) DependencyIndices(i int) []int { return g.deps[i] }

// DependentIndices returns the positions of the nodes waiting on the node at
// position i. The returned slice must not be modified.
func (g *Graph) DependentIndices(i int) []int { return g.dependents[i] }

// NodeAt returns the node at insertion position i.
func (g *Graph) NodeAt(i int) *Node { return g.nodes[i] }

func (g *Graph) ids(indices []int) []string {
	out := make([]string, len(indices))
	for k, i := range indices {
		out[k] = g.nodes[i].ID
	}
	return out
}

// Roots returns the nodes with no dependencies, in insertion order.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for i, n := range g.nodes {
		if len(g.deps[i]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// NextFunc selects the nodes to continue a traversal with.
type NextFunc func(g *Graph, n *Node) []*Node

// NextDependents continues a traversal along dependent edges (the default).
func NextDependents(g *Graph, n *Node) []*Node {
	return g.lookupAll(g.dependents[g.index[n.ID]])
}

// NextDependencies continues a traversal along dependency edges.
func NextDependencies(g *Graph, n *Node) []*Node {
	return g.lookupAll(g.deps[g.index[n.ID]])
}

func (g *Graph) lookupAll(indices []int) []*Node {
	out := make([]*Node, len(indices))
	for k, i := range indices {
		out[k] = g.nodes[i]
	}
	return out
}

// Traverse visits every node reachable from startID exactly once in
// breadth-first order, expanding neighbours in the order next returns them.
// A nil next follows dependents. Traversal stops early when visit returns
// false. Returns ErrUnknownNode when startID is not in the graph.
func (g *Graph) Traverse(startID string, visit func(n *Node) bool, next NextFunc) error {
	start, ok := g.index[startID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, startID)
	}
	if next == nil {
		next = NextDependents
	}
	seen := map[string]bool{startID: true}
	queue := []*Node{g.nodes[start]}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !visit(n) {
			return nil
		}
		for _, m := range next(g, n) {
			if !seen[m.ID] {
				seen[m.ID] = true
				queue = append(queue, m)
			}
		}
	}
	return nil
}

// AllNodes returns every node reachable from startID through dependents and
// dependencies, in traversal order.
func (g *Graph) AllNodes(startID string) ([]*Node, error) {
	var out []*Node
	both := func(g *Graph, n *Node) []*Node {
		return append(NextDependents(g, n), NextDependencies(g, n)...)
	}
	err := g.Traverse(startID, func(n *Node) bool {
		out = append(out, n)
		return true
	}, both)
	return out, err
}

// TopologicalOrder returns node positions such that every node comes after all
// of its dependencies. Among nodes that are ready at the same time, the one
// inserted first comes first. Returns a *CyclicGraphError if no such order
// exists.
func (g *Graph) TopologicalOrder() ([]int, error) {
	pending := make([]int, len(g.nodes))
	var ready []int
	for i := range g.nodes {
		pending[i] = len(g.deps[i])
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, d := range g.dependents[cur] {
			pending[d]--
			if pending[d] == 0 {
				pos, _ := slices.BinarySearch(ready, d)
				ready = slices.Insert(ready, pos, d)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, &CyclicGraphError{Path: g.findCycle()}
	}
	return order, nil
}

// Validate checks that every edge endpoint exists and that the graph is
// acyclic. Graphs built only through AddDependency always validate; the check
// guards graphs whose edges were assembled elsewhere before simulation starts.
func (g *Graph) Validate() error {
	for i := range g.nodes {
		for _, d := range g.deps[i] {
			if d < 0 || d >= len(g.nodes) {
				return &MissingDependencyError{NodeID: g.nodes[i].ID, DependencyID: fmt.Sprintf("#%d", d)}
			}
		}
	}
	_, err := g.TopologicalOrder()
	return err
}

// findCycle returns one dependency cycle using white/gray/black DFS over
// dependency edges, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	var stack []int
	var cycle []string

	var dfs func(i int) bool
	dfs = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, d := range g.deps[i] {
			switch color[d] {
			case white:
				if dfs(d) {
					return true
				}
			case gray:
				start := slices.Index(stack, d)
				for _, s := range stack[start:] {
					cycle = append(cycle, g.nodes[s].ID)
				}
				cycle = append(cycle, g.nodes[d].ID)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}
	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			return cycle
		}
	}
	return nil
}

// Mark associates a named event (for example "first-contentful-paint") with
// one or more nodes. Marks accumulate; duplicate IDs are ignored.
func (g *Graph) Mark(name string, ids ...string) error {
	for _, id := range ids {
		if _, ok := g.index[id]; !ok {
			return fmt.Errorf("mark %q: %w: %q", name, ErrUnknownNode, id)
		}
		if !slices.Contains(g.marks[name], id) {
			g.marks[name] = append(g.marks[name], id)
		}
	}
	return nil
}

// Marked returns the node IDs associated with a named event.
func (g *Graph) Marked(name string) []string { return slices.Clone(g.marks[name]) }

// Marks returns a copy of every named event.
func (g *Graph) Marks() map[string][]string {
	out := make(map[string][]string, len(g.marks))
	for name, ids := range g.marks {
		out[name] = slices.Clone(ids)
	}
	return out
}

// Clone returns a deep copy of the graph structure, payloads and marks.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:      make([]*Node, len(g.nodes)),
		index:      maps.Clone(g.index),
		deps:       make([][]int, len(g.deps)),
		dependents: make([][]int, len(g.dependents)),
		marks:      g.Marks(),
	}
	for i, n := range g.nodes {
		node := n.clone()
		c.nodes[i] = &node
		c.deps[i] = slices.Clone(g.deps[i])
		c.dependents[i] = slices.Clone(g.dependents[i])
	}
	return c
}
