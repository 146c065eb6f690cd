// Package sim provides the core discrete-event page-load simulation engine.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - options.go: throttling and connection parameters, defaults and validation
//   - simulator.go: node lifecycle (NotReady → Queued → InProgress → Complete) and the event loop
//   - event.go: deterministic ordering of the next event of each in-progress node
//   - result.go: per-node timelines and the run summary
//
// # Architecture
//
// The sim package owns scheduling; supporting models live in sub-packages:
//   - sim/graph/: the dependency DAG of network and CPU nodes, cycle rejection, cloning
//   - sim/network/: connection pool, TCP slow start, DNS cache, per-origin latency analysis
//   - sim/estimate/: metric extraction and the optimistic/pessimistic estimator
//   - sim/trace/: decision trace recording
//   - sim/telemetry/: Prometheus counters for simulation runs
//   - sim/render/: DOT and SVG export of graphs and timelines
//
// # Determinism
//
// A simulation is a pure function of (graph, options). Every ordering decision
// is made over slices in graph insertion order, never over map iteration, and
// no wall-clock time or randomness is consulted. All mutable state (pool, DNS
// cache, node timings) is created per Simulate call, so the same graph can be
// simulated repeatedly, or concurrently on clones.
package sim
