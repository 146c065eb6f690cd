// Package trace provides decision-trace recording for simulation runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// Dispatch reasons recorded on a DispatchRecord.
const (
	ReasonCPULaneFree    = "cpu-lane-free"
	ReasonConnectionless = "connectionless"
	ReasonWarmConnection = "warm-connection"
	ReasonColdConnection = "cold-connection"
)

// Node kinds as recorded in the trace.
const (
	KindNetwork = "network"
	KindCPU     = "cpu"
)

// DispatchRecord captures a node moving from Queued to InProgress.
type DispatchRecord struct {
	NodeID       string
	Clock        float64 // simulated ms
	Kind         string
	Origin       string // empty for CPU nodes
	ConnectionID int    // 0 when no connection is used
	Warm         bool   // the connection had completed its handshake
	Reason       string
	QueuedFor    float64 // ms spent Queued before dispatch
}

// CompletionRecord captures a node reaching Complete.
type CompletionRecord struct {
	NodeID  string
	Clock   float64
	Kind    string
	Elapsed float64 // EndTime - StartTime
}
