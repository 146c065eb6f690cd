package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrMissingPayload is returned by [Graph.AddNode] when the node's payload
	// does not match its kind (a network node without a record, a CPU node
	// without a task).
	ErrMissingPayload = errors.New("node payload does not match kind")

	// ErrUnknownNode is returned by lookups and traversals given an ID that
	// is not part of the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrCyclicGraph matches every *CyclicGraphError via errors.Is.
	ErrCyclicGraph = errors.New("dependency graph contains a cycle")

	// ErrMissingDependency matches every *MissingDependencyError via errors.Is.
	ErrMissingDependency = errors.New("dependency references a node not in the graph")
)

// CyclicGraphError reports an edge that would close (or a graph that contains)
// a dependency cycle. Path lists the node IDs along the cycle, starting and
// ending with the same node.
type CyclicGraphError struct {
	Path []string
}

func (e *CyclicGraphError) Error() string {
	if len(e.Path) == 0 {
		return ErrCyclicGraph.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCyclicGraph, strings.Join(e.Path, " -> "))
}

// Is reports whether target is ErrCyclicGraph.
func (e *CyclicGraphError) Is(target error) bool { return target == ErrCyclicGraph }

// MissingDependencyError reports a dependency edge whose endpoint is not part
// of the graph.
type MissingDependencyError struct {
	NodeID       string // node declaring the dependency
	DependencyID string // referenced node that could not be found
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s: %q depends on unknown node %q", ErrMissingDependency, e.NodeID, e.DependencyID)
}

// Is reports whether target is ErrMissingDependency.
func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }
