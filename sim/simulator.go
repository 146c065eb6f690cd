// sim/simulator.go
package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/lantern-sim/lantern-sim/sim/graph"
	"github.com/lantern-sim/lantern-sim/sim/network"
	"github.com/lantern-sim/lantern-sim/sim/trace"
)

const (
	// timeEpsilon absorbs floating-point residue when phases that should end at
	// the same instant are advanced by the same delta.
	timeEpsilon = 1e-9
	// byteEpsilon is the leftover below which a transfer counts as finished.
	byteEpsilon = 1e-6
)

// Simulator computes page-load timelines for dependency graphs. A Simulator
// holds only validated options; every Simulate call builds fresh pool, DNS and
// timing state, so a Simulator may be reused. It is not safe for concurrent
// use while Trace is set.
type Simulator struct {
	opts Options
	// Trace, when enabled, receives every dispatch and completion of
	// subsequent runs.
	Trace *trace.SimulationTrace
}

// New validates opts and returns a Simulator.
func New(opts Options) (*Simulator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{opts: opts.Clone()}, nil
}

// Options returns a copy of the simulator's options.
func (s *Simulator) Options() Options { return s.opts.Clone() }

// Simulate is shorthand for New(opts) followed by Simulate(g).
func Simulate(g *graph.Graph, opts Options) (*Result, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	return s.Simulate(g)
}

// Simulate runs the graph to completion. The graph is validated first and is
// never modified, so the same graph may be simulated repeatedly.
func (s *Simulator) Simulate(g *graph.Graph) (*Result, error) {
	if g == nil {
		return nil, errors.New("simulating nil graph")
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("validating graph: %w", err)
	}
	r := newRun(s.opts, g, s.Trace)
	return r.execute()
}

type nodeStatus int

const (
	statusNotReady nodeStatus = iota
	statusQueued
	statusInProgress
	statusComplete
)

type phase int

const (
	phaseFixed        phase = iota // CPU work or a connectionless fetch
	phaseConnecting                // DNS, TCP and TLS on a cold connection
	phaseWaiting                   // server response time
	phaseTransferring              // body download
)

// nodeState is the per-run mutable state of one node.
type nodeState struct {
	pos         int
	node        *graph.Node
	status      nodeStatus
	pendingDeps int
	timing      NodeTiming

	phase     phase
	remaining float64 // ms left in a timed phase

	conn           *network.Connection
	origin         string
	rtt            float64
	serverResponse float64
	bytesRemaining float64
	cwnd           float64 // segments
	maxCwnd        float64
	roundElapsed   float64 // ms into the current slow-start round
}

func (st *nodeState) growing() bool {
	return st.rtt > 0 && st.cwnd < st.maxCwnd
}

// rate returns the download rate in bytes/sec given the equal share of
// throughput, limited by the congestion window.
func (st *nodeState) rate(share float64) float64 {
	return math.Min(share, network.WindowRate(st.cwnd, st.rtt))
}

// nextEvent returns how long until something changes for the node.
func (st *nodeState) nextEvent(share float64) (float64, eventKind) {
	switch st.phase {
	case phaseConnecting, phaseWaiting:
		return st.remaining, eventPhaseEnd
	case phaseTransferring:
		dt := st.bytesRemaining / st.rate(share) * 1000
		if st.growing() {
			if round := st.rtt - st.roundElapsed; round < dt {
				return round, eventRoundTrip
			}
		}
		return dt, eventComplete
	}
	return st.remaining, eventComplete
}

// run is the mutable state of one Simulate call.
type run struct {
	opts   Options
	g      *graph.Graph
	trace  *trace.SimulationTrace
	pool   *network.Pool
	dns    *network.DNSCache
	events []event

	states     []*nodeState
	queued     []*nodeState // ordered by start hint, then position
	inProgress []*nodeState // ordered by position

	clock           float64
	cpuBusy         bool
	networkInFlight int
	completed       int
}

func newRun(opts Options, g *graph.Graph, tr *trace.SimulationTrace) *run {
	r := &run{
		opts:  opts,
		g:     g,
		trace: tr,
		pool: network.NewPool(network.PoolConfig{
			MaxConnectionsPerOrigin: opts.MaxConnectionsPerOrigin,
			InitialCongestionWindow: opts.InitialCongestionWindow,
		}),
		dns:    network.NewDNSCache(opts.DNSResolutionMultiplier),
		events: make([]event, 0, g.Len()),
		states: make([]*nodeState, g.Len()),
	}
	for i := range r.states {
		n := g.NodeAt(i)
		r.states[i] = &nodeState{
			pos:         i,
			node:        n,
			pendingDeps: len(g.DependencyIndices(i)),
			timing:      NodeTiming{NodeID: n.ID, Kind: n.Kind},
		}
	}
	return r
}

func (r *run) execute() (*Result, error) {
	for _, st := range r.states {
		if st.pendingDeps == 0 {
			r.enqueue(st)
		}
	}

	for r.completed < len(r.states) {
		r.dispatch()
		if len(r.inProgress) == 0 {
			return nil, fmt.Errorf("%w at %.3fms: %d of %d nodes complete, %d queued",
				ErrSimulationStalled, r.clock, r.completed, len(r.states), len(r.queued))
		}
		ev := r.nextEvent()
		logrus.Debugf("[%10.3fms] next event: %s of %s in %.3fms", r.clock, ev.kind, r.states[ev.pos].node.ID, ev.delta)
		r.advance(ev.delta)
		r.finish()
	}

	nodes := make([]NodeTiming, len(r.states))
	for i, st := range r.states {
		nodes[i] = st.timing
	}
	result := newResult(r.opts.Mode, nodes, r.g.Marks(), r.pool.Stats())
	logrus.Infof("[%10.3fms] Simulation ended (%s, %d nodes, %d connections)",
		result.TimeInMs, r.opts.Mode, len(nodes), result.Connections.Opened)
	return result, nil
}

// enqueue moves a node to Queued at the current clock.
func (r *run) enqueue(st *nodeState) {
	st.status = statusQueued
	st.timing.QueuedTime = r.clock
	i, _ := slices.BinarySearchFunc(r.queued, st, compareQueued)
	r.queued = slices.Insert(r.queued, i, st)
}

func compareQueued(a, b *nodeState) int {
	ha, hb := a.node.StartHint(), b.node.StartHint()
	switch {
	case ha < hb:
		return -1
	case ha > hb:
		return 1
	}
	return a.pos - b.pos
}

// dispatch starts every queued node the current resources allow, in queue order.
func (r *run) dispatch() {
	waiting := r.queued[:0:0]
	for _, st := range r.queued {
		if !r.start(st) {
			waiting = append(waiting, st)
		}
	}
	r.queued = waiting
}

// start moves a queued node to InProgress if its resource is free.
func (r *run) start(st *nodeState) bool {
	var reason string
	switch st.node.Kind {
	case graph.KindCPU:
		if r.cpuBusy {
			return false
		}
		r.cpuBusy = true
		st.phase = phaseFixed
		st.remaining = r.cpuCost(st.node.CPU)
		reason = trace.ReasonCPULaneFree

	case graph.KindNetwork:
		if r.networkInFlight >= r.opts.MaximumConcurrentRequests {
			return false
		}
		rec := st.node.Network
		if rec.IsConnectionless() {
			st.phase = phaseFixed
			st.remaining = connectionlessCost(rec)
			reason = trace.ReasonConnectionless
		} else {
			conn := r.pool.Acquire(network.Request{
				Origin:      rec.OriginOf(),
				Secure:      rec.IsSecure(),
				Multiplexed: rec.IsMultiplexed(),
				RequireCold: r.opts.Mode == ModePessimistic && !rec.ConnectionReused && !rec.IsMultiplexed(),
			})
			if conn == nil {
				return false
			}
			r.connect(st, conn)
			reason = trace.ReasonColdConnection
			if st.timing.ConnectionReused {
				reason = trace.ReasonWarmConnection
			}
		}
		r.networkInFlight++
	}

	st.status = statusInProgress
	st.timing.StartTime = r.clock
	i, _ := slices.BinarySearchFunc(r.inProgress, st, func(a, b *nodeState) int { return a.pos - b.pos })
	r.inProgress = slices.Insert(r.inProgress, i, st)

	logrus.Debugf("[%10.3fms] dispatch %s (%s)", r.clock, st.node, reason)
	if r.trace.Enabled() {
		rec := trace.DispatchRecord{
			NodeID:    st.node.ID,
			Clock:     r.clock,
			Kind:      string(st.node.Kind),
			Reason:    reason,
			QueuedFor: r.clock - st.timing.QueuedTime,
		}
		if st.conn != nil {
			rec.Origin = st.origin
			rec.ConnectionID = st.conn.ID
			rec.Warm = st.timing.ConnectionReused
		} else if st.node.Network != nil {
			rec.Origin = st.node.Network.OriginOf()
		}
		r.trace.RecordDispatch(rec)
	}
	return true
}

// connect prepares a connectionful network node on the acquired connection.
func (r *run) connect(st *nodeState, conn *network.Connection) {
	rec := st.node.Network
	st.conn = conn
	st.origin = rec.OriginOf()
	st.rtt = r.rttFor(st.origin)
	st.serverResponse = r.serverResponseFor(st.origin)

	ct := &ConnectionTiming{ServerResponseTime: st.serverResponse}
	if conn.IsWarm() {
		st.timing.ConnectionReused = true
		st.phase = phaseWaiting
		st.remaining = st.serverResponse
	} else {
		ct.DNSResolutionTime = r.dns.TimeUntilResolution(rec.Hostname(), r.clock, st.rtt, true)
		ct.ConnectionTime = st.rtt
		if conn.Secure {
			ct.SSLTime = st.rtt
		}
		st.phase = phaseConnecting
		st.remaining = ct.DNSResolutionTime + ct.ConnectionTime + ct.SSLTime
	}
	ct.TimeToFirstByte = ct.DNSResolutionTime + ct.ConnectionTime + ct.SSLTime + ct.ServerResponseTime

	st.timing.ConnectionID = conn.ID
	st.timing.ConnectionTiming = ct
	st.bytesRemaining = float64(max(rec.TransferSize, 0))
	st.maxCwnd = network.MaxCongestionWindow(r.opts.Throughput, st.rtt)
	st.cwnd = math.Min(conn.CongestionWindow(), st.maxCwnd)
}

func (r *run) rttFor(origin string) float64 {
	rtt := r.opts.RTT
	if r.opts.Mode == ModePessimistic {
		rtt += r.opts.AdditionalRTTByOrigin[origin]
	}
	return rtt
}

func (r *run) serverResponseFor(origin string) float64 {
	if v, ok := r.opts.ServerResponseTimeByOrigin[origin]; ok {
		return v
	}
	return r.opts.ServerResponseTime
}

func (r *run) cpuCost(task *graph.CPUTask) float64 {
	multiplier := r.opts.CPUSlowdownMultiplier
	if task.DidPerformLayout() {
		multiplier *= r.opts.LayoutTaskMultiplier
	}
	cost := math.Max(task.Duration, 0) * multiplier
	if limit := r.opts.MaximumCPUTaskDuration; limit > 0 {
		cost = math.Min(cost, limit)
	}
	return cost
}

// connectionlessCost is the fixed cost of a cache hit or non-network URL:
// 8ms + 20ms/MB from disk cache, 2ms + 10ms/MB otherwise.
func connectionlessCost(rec *graph.NetworkRecord) float64 {
	mb := float64(max(rec.DecodedSize(), 0)) / 1024 / 1024
	if rec.FromDiskCache {
		return 8 + 20*mb
	}
	return 2 + 10*mb
}

// transferShare returns the throughput each transferring node receives.
func (r *run) transferShare() float64 {
	transferring := 0
	for _, st := range r.inProgress {
		if st.phase == phaseTransferring {
			transferring++
		}
	}
	if transferring == 0 {
		return r.opts.Throughput
	}
	return r.opts.Throughput / float64(transferring)
}

// nextEvent returns the earliest upcoming event across in-progress nodes.
// Every in-progress node's event is recomputed each step since any dispatch
// or completion changes the transfer share.
func (r *run) nextEvent() event {
	r.events = r.events[:0]
	share := r.transferShare()
	for _, st := range r.inProgress {
		dt, kind := st.nextEvent(share)
		r.events = append(r.events, event{at: r.clock + dt, delta: dt, pos: st.pos, kind: kind})
	}
	ev, _ := earliest(r.events)
	return ev
}

// advance progresses every in-progress node by dt milliseconds.
func (r *run) advance(dt float64) {
	share := r.transferShare()
	for _, st := range r.inProgress {
		if st.phase != phaseTransferring {
			st.remaining -= dt
			continue
		}
		bytes := math.Min(st.rate(share)*dt/1000, st.bytesRemaining)
		st.bytesRemaining -= bytes
		st.timing.BytesDownloaded += bytes
		if st.growing() {
			st.roundElapsed += dt
			if st.roundElapsed >= st.rtt-timeEpsilon {
				st.cwnd = math.Min(st.cwnd*2, st.maxCwnd)
				st.roundElapsed = 0
			}
		}
	}
	r.clock += dt
}

// finish moves nodes through phases that ended at the current clock and
// completes the ones that are done, in node order.
func (r *run) finish() {
	var done []*nodeState
	for _, st := range r.inProgress {
		if r.settle(st) {
			done = append(done, st)
		}
	}
	for _, st := range done {
		r.complete(st)
	}
}

// settle applies phase transitions due at the current clock and reports
// whether the node is finished.
func (r *run) settle(st *nodeState) bool {
	for {
		switch st.phase {
		case phaseFixed:
			return st.remaining <= timeEpsilon
		case phaseConnecting:
			if st.remaining > timeEpsilon {
				return false
			}
			st.conn.MarkWarm()
			st.phase = phaseWaiting
			st.remaining = st.serverResponse
		case phaseWaiting:
			if st.remaining > timeEpsilon {
				return false
			}
			st.phase = phaseTransferring
			st.roundElapsed = 0
		case phaseTransferring:
			return st.bytesRemaining <= byteEpsilon
		}
	}
}

// complete records a node's end, frees its resource and queues any dependents
// that became ready.
func (r *run) complete(st *nodeState) {
	st.status = statusComplete
	st.timing.EndTime = r.clock
	st.timing.TimeElapsed = st.timing.EndTime - st.timing.StartTime
	r.inProgress = slices.DeleteFunc(r.inProgress, func(o *nodeState) bool { return o == st })

	switch st.node.Kind {
	case graph.KindCPU:
		r.cpuBusy = false
	case graph.KindNetwork:
		r.networkInFlight--
		if st.conn != nil {
			st.timing.BytesDownloaded = float64(max(st.node.Network.TransferSize, 0))
			st.conn.RetainCongestionWindow(st.cwnd)
			r.pool.Release(st.conn)
		}
	}
	r.completed++

	logrus.Debugf("[%10.3fms] complete %s after %.3fms", r.clock, st.node.ID, st.timing.TimeElapsed)
	if r.trace.Enabled() {
		r.trace.RecordCompletion(trace.CompletionRecord{
			NodeID:  st.node.ID,
			Clock:   r.clock,
			Kind:    string(st.node.Kind),
			Elapsed: st.timing.TimeElapsed,
		})
	}

	for _, d := range r.g.DependentIndices(st.pos) {
		dep := r.states[d]
		dep.pendingDeps--
		if dep.pendingDeps == 0 {
			r.enqueue(dep)
		}
	}
}
