package sim

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/lantern-sim/lantern-sim/sim/graph"
	"github.com/lantern-sim/lantern-sim/sim/network"
)

// ConnectionTiming breaks down the time a network node spent before its first
// byte arrived. Setup phases are zero on a warm connection.
type ConnectionTiming struct {
	DNSResolutionTime  float64 `json:"dns_resolution_time"`
	ConnectionTime     float64 `json:"connection_time"`
	SSLTime            float64 `json:"ssl_time"`
	ServerResponseTime float64 `json:"server_response_time"`
	TimeToFirstByte    float64 `json:"time_to_first_byte"`
}

// NodeTiming is the simulated timeline of one node.
type NodeTiming struct {
	NodeID      string         `json:"node_id"`
	Kind        graph.NodeKind `json:"kind"`
	QueuedTime  float64        `json:"queued_time"`
	StartTime   float64        `json:"start_time"`
	EndTime     float64        `json:"end_time"`
	TimeElapsed float64        `json:"time_elapsed"`

	// Network nodes only.
	BytesDownloaded  float64           `json:"bytes_downloaded,omitempty"`
	ConnectionID     int               `json:"connection_id,omitempty"`
	ConnectionReused bool              `json:"connection_reused,omitempty"`
	ConnectionTiming *ConnectionTiming `json:"connection_timing,omitempty"`
}

// Result is the outcome of one simulation run. It must not be modified.
type Result struct {
	TimeInMs    float64             `json:"time_in_ms"`
	Mode        Mode                `json:"mode"`
	Nodes       []NodeTiming        `json:"nodes"` // graph insertion order
	Marks       map[string][]string `json:"marks,omitempty"`
	Connections network.PoolStats   `json:"connections"`

	index map[string]int
}

func newResult(mode Mode, nodes []NodeTiming, marks map[string][]string, stats network.PoolStats) *Result {
	r := &Result{
		Mode:        mode,
		Nodes:       nodes,
		Marks:       marks,
		Connections: stats,
		index:       make(map[string]int, len(nodes)),
	}
	for i, n := range nodes {
		r.index[n.NodeID] = i
		r.TimeInMs = max(r.TimeInMs, n.EndTime)
	}
	return r
}

// Timing returns the timeline of the node with the given ID.
func (r *Result) Timing(id string) (NodeTiming, bool) {
	i, ok := r.index[id]
	if !ok {
		return NodeTiming{}, false
	}
	return r.Nodes[i], true
}

// Marked returns the timelines of the nodes associated with a named event, in
// mark order. Unknown IDs are skipped.
func (r *Result) Marked(name string) []NodeTiming {
	var out []NodeTiming
	for _, id := range r.Marks[name] {
		if t, ok := r.Timing(id); ok {
			out = append(out, t)
		}
	}
	return out
}

// Distribution captures statistical summary of a metric.
type Distribution struct {
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// NewDistribution computes a Distribution from raw values. Percentiles are
// empirical: the smallest value with at least p of the samples at or below it.
// Returns zero-value Distribution for empty input.
func NewDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return Distribution{
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// Summary holds per-kind distributions of node elapsed time.
type Summary struct {
	Network Distribution `json:"network"`
	CPU     Distribution `json:"cpu"`
}

// Summary returns the distribution of TimeElapsed for each node kind.
func (r *Result) Summary() Summary {
	var netTimes, cpuTimes []float64
	for _, n := range r.Nodes {
		switch n.Kind {
		case graph.KindNetwork:
			netTimes = append(netTimes, n.TimeElapsed)
		case graph.KindCPU:
			cpuTimes = append(cpuTimes, n.TimeElapsed)
		}
	}
	return Summary{
		Network: NewDistribution(netTimes),
		CPU:     NewDistribution(cpuTimes),
	}
}
