package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpu(d float64) *CPUTask { return &CPUTask{Name: "RunTask", Duration: d} }

func net(url string, size int64) *NetworkRecord {
	return &NetworkRecord{URL: url, TransferSize: size, Protocol: ProtocolHTTP1}
}

func chain(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		require.NoError(t, g.AddCPUNode(id, cpu(10)))
	}
	for i := 1; i < len(ids); i++ {
		require.NoError(t, g.AddDependency(ids[i], ids[i-1]))
	}
	return g
}

func TestAddNode_RejectsInvalidNodes(t *testing.T) {
	g := New()
	require.NoError(t, g.AddCPUNode("a", cpu(1)))

	tests := []struct {
		name string
		node Node
		want error
	}{
		{"empty id", Node{Kind: KindCPU, CPU: cpu(1)}, ErrInvalidNodeID},
		{"duplicate", Node{ID: "a", Kind: KindCPU, CPU: cpu(1)}, ErrDuplicateNodeID},
		{"network without record", Node{ID: "b", Kind: KindNetwork}, ErrMissingPayload},
		{"cpu with record", Node{ID: "c", Kind: KindCPU, CPU: cpu(1), Network: net("https://a.test/", 1)}, ErrMissingPayload},
		{"unknown kind", Node{ID: "d", Kind: "gpu"}, ErrMissingPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, g.AddNode(tt.node), tt.want)
		})
	}
	assert.Equal(t, 1, g.Len())
}

func TestAddDependency_TwoNodeCycle_Rejected(t *testing.T) {
	// GIVEN A depends on B
	g := New()
	require.NoError(t, g.AddCPUNode("A", cpu(1)))
	require.NoError(t, g.AddCPUNode("B", cpu(1)))
	require.NoError(t, g.AddDependency("A", "B"))

	// WHEN B is made to depend on A
	err := g.AddDependency("B", "A")

	// THEN a CyclicGraphError is returned and the edge is not inserted
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicGraph))
	var cyc *CyclicGraphError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"B", "A", "B"}, cyc.Path)
	assert.Empty(t, g.Dependencies("B"))
	assert.NoError(t, g.Validate())
}

func TestAddDependency_LongCycle_ReportsPath(t *testing.T) {
	g := chain(t, "a", "b", "c", "d")

	err := g.AddDependency("a", "d")

	var cyc *CyclicGraphError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "d", "c", "b", "a"}, cyc.Path)
}

func TestAddDependency_SelfEdge_Rejected(t *testing.T) {
	g := chain(t, "a")
	assert.ErrorIs(t, g.AddDependency("a", "a"), ErrCyclicGraph)
}

func TestAddDependency_UnknownNodes(t *testing.T) {
	g := chain(t, "a")

	err := g.AddDependency("a", "ghost")
	assert.ErrorIs(t, err, ErrMissingDependency)
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "a", missing.NodeID)
	assert.Equal(t, "ghost", missing.DependencyID)

	assert.ErrorIs(t, g.AddDependency("ghost", "a"), ErrUnknownNode)
}

func TestAddDependency_DuplicateEdgeIgnored(t *testing.T) {
	g := chain(t, "a", "b")
	require.NoError(t, g.AddDependency("b", "a"))
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	assert.Equal(t, []string{"b"}, g.Dependents("a"))
}

func TestAddDependency_DiamondIsNotACycle(t *testing.T) {
	g := New()
	for _, id := range []string{"root", "left", "right", "join"} {
		require.NoError(t, g.AddCPUNode(id, cpu(1)))
	}
	require.NoError(t, g.AddDependency("left", "root"))
	require.NoError(t, g.AddDependency("right", "root"))
	require.NoError(t, g.AddDependency("join", "left"))
	require.NoError(t, g.AddDependency("join", "right"))
	assert.NoError(t, g.Validate())
	assert.Equal(t, []string{"left", "right"}, g.Dependencies("join"))
}

func TestTraverse_BreadthFirstInInsertionOrder(t *testing.T) {
	g := New()
	for _, id := range []string{"root", "b", "a", "c"} {
		require.NoError(t, g.AddCPUNode(id, cpu(1)))
	}
	require.NoError(t, g.AddDependency("b", "root"))
	require.NoError(t, g.AddDependency("a", "root"))
	require.NoError(t, g.AddDependency("c", "a"))
	require.NoError(t, g.AddDependency("c", "b"))

	var visited []string
	require.NoError(t, g.Traverse("root", func(n *Node) bool {
		visited = append(visited, n.ID)
		return true
	}, nil))

	assert.Equal(t, []string{"root", "b", "a", "c"}, visited)
}

func TestTraverse_StopsEarlyAndRejectsUnknownStart(t *testing.T) {
	g := chain(t, "a", "b", "c")

	var visited []string
	require.NoError(t, g.Traverse("a", func(n *Node) bool {
		visited = append(visited, n.ID)
		return n.ID != "b"
	}, nil))
	assert.Equal(t, []string{"a", "b"}, visited)

	assert.ErrorIs(t, g.Traverse("zzz", func(*Node) bool { return true }, nil), ErrUnknownNode)
}

func TestTraverse_Dependencies(t *testing.T) {
	g := chain(t, "a", "b", "c")
	var visited []string
	require.NoError(t, g.Traverse("c", func(n *Node) bool {
		visited = append(visited, n.ID)
		return true
	}, NextDependencies))
	assert.Equal(t, []string{"c", "b", "a"}, visited)
}

func TestAllNodes_ReachesWholeComponent(t *testing.T) {
	g := chain(t, "a", "b", "c")
	require.NoError(t, g.AddCPUNode("island", cpu(1)))

	nodes, err := g.AllNodes("b")
	require.NoError(t, err)
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestTopologicalOrder_TiesBrokenByInsertion(t *testing.T) {
	g := New()
	for _, id := range []string{"x", "y", "z", "w"} {
		require.NoError(t, g.AddCPUNode(id, cpu(1)))
	}
	require.NoError(t, g.AddDependency("x", "w"))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	// y, z, w are ready first; x becomes ready after w.
	assert.Equal(t, []int{1, 2, 3, 0}, order)
}

func TestValidate_DetectsCycleInjectedOutsideAddDependency(t *testing.T) {
	g := chain(t, "a", "b")
	// Simulate a builder that assembled edges by hand.
	g.deps[0] = append(g.deps[0], 1)
	g.dependents[1] = append(g.dependents[1], 0)

	err := g.Validate()
	var cyc *CyclicGraphError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, "a", cyc.Path[0])
	assert.Equal(t, cyc.Path[0], cyc.Path[len(cyc.Path)-1])
}

func TestValidate_DetectsDanglingEdge(t *testing.T) {
	g := chain(t, "a")
	g.deps[0] = append(g.deps[0], 7)
	assert.ErrorIs(t, g.Validate(), ErrMissingDependency)
}

func TestRoots(t *testing.T) {
	g := chain(t, "a", "b")
	require.NoError(t, g.AddCPUNode("c", cpu(1)))
	roots := g.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].ID)
	assert.Equal(t, "c", roots[1].ID)
}

func TestClone_IsIndependent(t *testing.T) {
	// GIVEN a graph with a network payload and a mark
	g := New()
	rec := net("https://a.test/app.js", 1000)
	rec.Timing = &Timing{StartTime: 5}
	require.NoError(t, g.AddNetworkNode("js", rec))
	require.NoError(t, g.AddCPUNode("eval", &CPUTask{Name: "EvaluateScript", Duration: 20, ChildEvents: []string{"Layout"}}))
	require.NoError(t, g.AddDependency("eval", "js"))
	require.NoError(t, g.Mark("first-contentful-paint", "eval"))

	// WHEN the clone is mutated
	c := g.Clone()
	require.NoError(t, c.AddCPUNode("extra", cpu(1)))
	require.NoError(t, c.AddDependency("extra", "eval"))
	require.NoError(t, c.Mark("first-contentful-paint", "extra"))
	n, _ := c.Node("js")
	n.Network.TransferSize = 1
	n.Network.Timing.StartTime = 99
	e, _ := c.Node("eval")
	e.CPU.ChildEvents[0] = "Paint"

	// THEN the original is untouched
	assert.Equal(t, 2, g.Len())
	assert.Empty(t, g.Dependents("eval"))
	assert.Equal(t, []string{"eval"}, g.Marked("first-contentful-paint"))
	orig, _ := g.Node("js")
	assert.Equal(t, int64(1000), orig.Network.TransferSize)
	assert.Equal(t, 5.0, orig.Network.Timing.StartTime)
	origEval, _ := g.Node("eval")
	assert.True(t, origEval.CPU.DidPerformLayout())
}

func TestMark_UnknownNode(t *testing.T) {
	g := chain(t, "a")
	assert.ErrorIs(t, g.Mark("largest-contentful-paint", "nope"), ErrUnknownNode)
	require.NoError(t, g.Mark("largest-contentful-paint", "a", "a"))
	assert.Equal(t, []string{"a"}, g.Marked("largest-contentful-paint"))
}
