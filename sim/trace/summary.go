package trace

import "slices"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDispatches      int            `json:"total_dispatches"`
	CPUDispatches        int            `json:"cpu_dispatches"`
	NetworkDispatches    int            `json:"network_dispatches"`
	WarmCount            int            `json:"warm_connections"`
	ColdCount            int            `json:"cold_connections"`
	ConnectionlessCount  int            `json:"connectionless"`
	MeanQueueDelay       float64        `json:"mean_queue_delay_ms"`
	MaxQueueDelay        float64        `json:"max_queue_delay_ms"`
	UniqueOrigins        int            `json:"unique_origins"`
	OriginDistribution   map[string]int `json:"origin_distribution"` // origin → network dispatches
	MaxConcurrentNetwork int            `json:"max_concurrent_network"`
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		OriginDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDispatches = len(st.Dispatches)
	totalDelay := 0.0
	for _, d := range st.Dispatches {
		totalDelay += d.QueuedFor
		if d.QueuedFor > summary.MaxQueueDelay {
			summary.MaxQueueDelay = d.QueuedFor
		}
		if d.Kind == KindCPU {
			summary.CPUDispatches++
			continue
		}
		summary.NetworkDispatches++
		switch d.Reason {
		case ReasonWarmConnection:
			summary.WarmCount++
		case ReasonColdConnection:
			summary.ColdCount++
		case ReasonConnectionless:
			summary.ConnectionlessCount++
		}
		if d.Origin != "" {
			summary.OriginDistribution[d.Origin]++
		}
	}
	if summary.TotalDispatches > 0 {
		summary.MeanQueueDelay = totalDelay / float64(summary.TotalDispatches)
	}
	summary.UniqueOrigins = len(summary.OriginDistribution)
	summary.MaxConcurrentNetwork = maxConcurrentNetwork(st)

	return summary
}

// maxConcurrentNetwork sweeps dispatches and completions in clock order.
// Completions at an instant are applied before dispatches at the same instant,
// matching the simulator, which frees resources before starting queued nodes.
func maxConcurrentNetwork(st *SimulationTrace) int {
	type edge struct {
		clock float64
		delta int
	}
	var edges []edge
	for _, c := range st.Completions {
		if c.Kind == KindNetwork {
			edges = append(edges, edge{c.Clock, -1})
		}
	}
	for _, d := range st.Dispatches {
		if d.Kind == KindNetwork {
			edges = append(edges, edge{d.Clock, +1})
		}
	}
	slices.SortStableFunc(edges, func(a, b edge) int {
		if a.clock != b.clock {
			if a.clock < b.clock {
				return -1
			}
			return 1
		}
		return a.delta - b.delta
	})

	current, peak := 0, 0
	for _, e := range edges {
		current += e.delta
		peak = max(peak, current)
	}
	return peak
}
