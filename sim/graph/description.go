package graph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Description is the on-disk form of a dependency graph, as written by an
// external graph builder. JSON documents are accepted too, since they are
// valid YAML.
type Description struct {
	Nodes []NodeDescription   `yaml:"nodes"`
	Marks map[string][]string `yaml:"marks"`
}

// NodeDescription describes a single node and the IDs it depends on.
type NodeDescription struct {
	ID           string         `yaml:"id"`
	Type         NodeKind       `yaml:"type"`
	Request      *NetworkRecord `yaml:"request"`
	Task         *CPUTask       `yaml:"task"`
	Dependencies []string       `yaml:"dependencies"`
}

// LoadDescription reads a graph description file and builds the graph.
func LoadDescription(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph description: %w", err)
	}
	return ParseDescription(data)
}

// ParseDescription decodes a graph description with strict field checking
// (unknown keys are errors) and builds the graph. Nodes are added in document
// order, so document order is the simulation tie-breaker.
func ParseDescription(data []byte) (*Graph, error) {
	var desc Description
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&desc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing graph description: %w", err)
	}
	return desc.Build()
}

// Build constructs a Graph from the description. All nodes are added before
// any edge so dependencies may reference nodes declared later.
func (d *Description) Build() (*Graph, error) {
	g := New()
	for _, nd := range d.Nodes {
		n := Node{ID: nd.ID, Kind: nd.Type}
		switch nd.Type {
		case KindNetwork:
			n.Network = nd.Request
		case KindCPU:
			n.CPU = nd.Task
		default:
			return nil, fmt.Errorf("node %q: unknown type %q", nd.ID, nd.Type)
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, nd := range d.Nodes {
		for _, dep := range nd.Dependencies {
			if err := g.AddDependency(nd.ID, dep); err != nil {
				return nil, err
			}
		}
	}
	for name, ids := range d.Marks {
		if err := g.Mark(name, ids...); err != nil {
			return nil, err
		}
	}
	return g, nil
}
