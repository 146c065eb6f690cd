package estimate

import (
	"fmt"

	"github.com/lantern-sim/lantern-sim/sim"
	"github.com/lantern-sim/lantern-sim/sim/graph"
)

// Mark names the extractors look up in a result.
const (
	MarkFirstContentfulPaint   = "first-contentful-paint"
	MarkLargestContentfulPaint = "largest-contentful-paint"
)

const (
	// LongTaskThreshold is the main-thread task duration above which a task
	// blocks input, in milliseconds.
	LongTaskThreshold = 50.0

	// minimumPotentialFID is the floor reported by MaxPotentialFID.
	minimumPotentialFID = 16.0
)

// Metric names a page-load metric derived from a simulation result.
type Metric string

const (
	FirstContentfulPaint   Metric = "first-contentful-paint"
	LargestContentfulPaint Metric = "largest-contentful-paint"
	Interactive            Metric = "interactive"
	TotalBlockingTime      Metric = "total-blocking-time"
	MaxPotentialFID        Metric = "max-potential-fid"
	TotalTime              Metric = "total-time"
)

// AllMetrics lists every metric in report order.
var AllMetrics = []Metric{
	FirstContentfulPaint,
	LargestContentfulPaint,
	Interactive,
	TotalBlockingTime,
	MaxPotentialFID,
	TotalTime,
}

// EndTime returns the latest end time among the nodes marked with name.
func EndTime(res *sim.Result, mark string) (float64, error) {
	marked := res.Marked(mark)
	if len(marked) == 0 {
		return 0, &MetricNotApplicableError{Metric: mark, Reason: "no simulated node carries the mark"}
	}
	end := 0.0
	for _, n := range marked {
		end = max(end, n.EndTime)
	}
	return end, nil
}

// NodeEndTime returns the simulated end time of a single node.
func NodeEndTime(res *sim.Result, id string) (float64, error) {
	t, ok := res.Timing(id)
	if !ok {
		return 0, &MetricNotApplicableError{Metric: id, Reason: "node was not simulated"}
	}
	return t.EndTime, nil
}

// LastLongTaskEnd returns the end time of the latest CPU task that ran longer
// than thresholdMs, or 0 when there is none.
func LastLongTaskEnd(res *sim.Result, thresholdMs float64) float64 {
	end := 0.0
	for _, n := range res.Nodes {
		if n.Kind == graph.KindCPU && n.TimeElapsed > thresholdMs {
			end = max(end, n.EndTime)
		}
	}
	return end
}

// Compute extracts metric m from a single simulation result.
func Compute(m Metric, res *sim.Result) (float64, error) {
	switch m {
	case FirstContentfulPaint:
		return EndTime(res, MarkFirstContentfulPaint)
	case LargestContentfulPaint:
		return largestContentfulPaint(res)
	case Interactive:
		return interactive(res)
	case TotalBlockingTime:
		return totalBlockingTime(res)
	case MaxPotentialFID:
		return maxPotentialFID(res)
	case TotalTime:
		return res.TimeInMs, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", m)
	}
}

// LCP can never precede FCP.
func largestContentfulPaint(res *sim.Result) (float64, error) {
	lcp, err := EndTime(res, MarkLargestContentfulPaint)
	if err != nil {
		return 0, err
	}
	if fcp, err := EndTime(res, MarkFirstContentfulPaint); err == nil {
		lcp = max(lcp, fcp)
	}
	return lcp, nil
}

func interactive(res *sim.Result) (float64, error) {
	fcp, err := EndTime(res, MarkFirstContentfulPaint)
	if err != nil {
		return 0, err
	}
	return max(LastLongTaskEnd(res, LongTaskThreshold), fcp), nil
}

// totalBlockingTime sums the portion of every task beyond its first
// LongTaskThreshold ms that falls inside [FCP, TTI].
func totalBlockingTime(res *sim.Result) (float64, error) {
	fcp, err := EndTime(res, MarkFirstContentfulPaint)
	if err != nil {
		return 0, err
	}
	tti, err := interactive(res)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, n := range res.Nodes {
		if n.Kind != graph.KindCPU {
			continue
		}
		blocking := min(n.EndTime, tti) - max(n.StartTime+LongTaskThreshold, fcp)
		if blocking > 0 {
			total += blocking
		}
	}
	return total, nil
}

func maxPotentialFID(res *sim.Result) (float64, error) {
	fcp, err := EndTime(res, MarkFirstContentfulPaint)
	if err != nil {
		return 0, err
	}
	longest := minimumPotentialFID
	for _, n := range res.Nodes {
		if n.Kind == graph.KindCPU && n.EndTime > fcp {
			longest = max(longest, n.TimeElapsed)
		}
	}
	return longest, nil
}
