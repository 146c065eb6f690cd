// Package testutil provides shared test infrastructure for the simulator:
// float assertions and graph builders used across the sim/ test packages.
package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/lantern-sim/lantern-sim/sim/graph"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t testing.TB, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// Builder assembles a graph in tests, failing the test on any error.
type Builder struct {
	t testing.TB
	g *graph.Graph
}

// NewGraph starts an empty graph.
func NewGraph(t testing.TB) *Builder {
	return &Builder{t: t, g: graph.New()}
}

// CPU adds a CPU node with the given unthrottled duration.
func (b *Builder) CPU(id string, duration float64, deps ...string) *Builder {
	return b.Task(id, &graph.CPUTask{Name: "RunTask", Duration: duration}, deps...)
}

// Layout adds a CPU node that performed layout.
func (b *Builder) Layout(id string, duration float64, deps ...string) *Builder {
	return b.Task(id, &graph.CPUTask{Name: "RunTask", Duration: duration, ChildEvents: []string{"Layout"}}, deps...)
}

// Task adds a CPU node with an explicit task.
func (b *Builder) Task(id string, task *graph.CPUTask, deps ...string) *Builder {
	b.t.Helper()
	if err := b.g.AddCPUNode(id, task); err != nil {
		b.t.Fatalf("adding %s: %v", id, err)
	}
	return b.depend(id, deps)
}

// Network adds an HTTP/1.1 network node.
func (b *Builder) Network(id, url string, transferSize int64, deps ...string) *Builder {
	return b.Request(id, &graph.NetworkRecord{URL: url, TransferSize: transferSize, Protocol: graph.ProtocolHTTP1}, deps...)
}

// Request adds a network node with an explicit record.
func (b *Builder) Request(id string, rec *graph.NetworkRecord, deps ...string) *Builder {
	b.t.Helper()
	if err := b.g.AddNetworkNode(id, rec); err != nil {
		b.t.Fatalf("adding %s: %v", id, err)
	}
	return b.depend(id, deps)
}

// Mark associates a named event with nodes.
func (b *Builder) Mark(name string, ids ...string) *Builder {
	b.t.Helper()
	if err := b.g.Mark(name, ids...); err != nil {
		b.t.Fatalf("marking %s: %v", name, err)
	}
	return b
}

// Graph returns the built graph.
func (b *Builder) Graph() *graph.Graph { return b.g }

func (b *Builder) depend(id string, deps []string) *Builder {
	b.t.Helper()
	for _, dep := range deps {
		if err := b.g.AddDependency(id, dep); err != nil {
			b.t.Fatalf("%s -> %s: %v", id, dep, err)
		}
	}
	return b
}

var randomOrigins = []struct {
	base     string
	protocol string
}{
	{"https://www.example.test", graph.ProtocolH2},
	{"https://cdn.example.test", graph.ProtocolHTTP1},
	{"http://ads.example.test", graph.ProtocolHTTP1},
	{"https://fonts.example.test", graph.ProtocolH2},
}

// RandomGraph builds a deterministic pseudo-random page graph of n nodes from
// seed: a network root followed by a mix of CPU tasks and requests to a few
// origins, each depending on up to three earlier nodes.
func RandomGraph(t testing.TB, seed uint64, n int) *graph.Graph {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := NewGraph(t)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("n%03d", i)
		var deps []string
		if i > 0 {
			for k := 1 + rng.IntN(3); k > 0; k-- {
				dep := fmt.Sprintf("n%03d", rng.IntN(i))
				if !slices.Contains(deps, dep) {
					deps = append(deps, dep)
				}
			}
		}
		if i > 0 && rng.Float64() < 0.4 {
			task := &graph.CPUTask{Name: "RunTask", Duration: 1 + rng.Float64()*80}
			if rng.Float64() < 0.2 {
				task.ChildEvents = []string{"Layout"}
			}
			b.Task(id, task, deps...)
			continue
		}
		o := randomOrigins[rng.IntN(len(randomOrigins))]
		rec := &graph.NetworkRecord{
			URL:              fmt.Sprintf("%s/r%d", o.base, i),
			TransferSize:     int64(500 + rng.IntN(120000)),
			Protocol:         o.protocol,
			ConnectionReused: rng.Float64() < 0.5,
			FromDiskCache:    rng.Float64() < 0.05,
		}
		b.Request(id, rec, deps...)
	}
	return b.Graph()
}
