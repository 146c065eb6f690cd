package sim

// eventKind identifies what happens to a node at an event.
type eventKind int

const (
	eventComplete   eventKind = iota // the node finishes
	eventPhaseEnd                    // connection setup or server wait ends
	eventRoundTrip                   // a slow-start round ends and the window doubles
)

func (k eventKind) String() string {
	switch k {
	case eventComplete:
		return "complete"
	case eventPhaseEnd:
		return "phase-end"
	case eventRoundTrip:
		return "round-trip"
	}
	return "unknown"
}

// event is the next thing that happens to one in-progress node.
type event struct {
	at    float64 // absolute simulated time, ms
	delta float64 // at - clock when computed
	pos   int     // node insertion position
	kind  eventKind
}

// before orders events by time, then kind (completions first), then node
// position.
func (e event) before(o event) bool {
	if e.at != o.at {
		return e.at < o.at
	}
	if e.kind != o.kind {
		return e.kind < o.kind
	}
	return e.pos < o.pos
}

// earliest returns the first event under before. ok is false for an empty
// slice.
func earliest(events []event) (next event, ok bool) {
	for i, e := range events {
		if i == 0 || e.before(next) {
			next = e
		}
	}
	return next, len(events) > 0
}
