package estimate

import (
	"errors"
	"fmt"
)

// ErrMetricNotApplicable matches every *MetricNotApplicableError via errors.Is.
var ErrMetricNotApplicable = errors.New("metric not applicable")

// MetricNotApplicableError reports a metric that cannot be extracted from a
// result, typically because the graph carries no mark for the event it needs.
type MetricNotApplicableError struct {
	Metric string
	Reason string
}

func (e *MetricNotApplicableError) Error() string {
	return fmt.Sprintf("metric %s not applicable: %s", e.Metric, e.Reason)
}

// Is reports whether target is ErrMetricNotApplicable.
func (e *MetricNotApplicableError) Is(target error) bool {
	return target == ErrMetricNotApplicable
}
