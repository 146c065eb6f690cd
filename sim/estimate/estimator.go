// Package estimate turns simulation results into page-load metrics. An
// Estimator runs the same graph through an optimistic and a pessimistic pass
// and blends the two per metric.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lantern-sim/lantern-sim/sim"
	"github.com/lantern-sim/lantern-sim/sim/graph"
	"github.com/lantern-sim/lantern-sim/sim/trace"
)

// Coefficients blend the two passes into one estimate:
// Intercept + Optimistic*optimistic + Pessimistic*pessimistic.
type Coefficients struct {
	Intercept   float64 `yaml:"intercept" json:"intercept"`
	Optimistic  float64 `yaml:"optimistic" json:"optimistic"`
	Pessimistic float64 `yaml:"pessimistic" json:"pessimistic"`
}

// Apply blends an optimistic and a pessimistic value.
func (c Coefficients) Apply(optimistic, pessimistic float64) float64 {
	return c.Intercept + c.Optimistic*optimistic + c.Pessimistic*pessimistic
}

// DefaultCoefficients returns the blend used when an Estimator has none
// configured for a metric.
func DefaultCoefficients() map[Metric]Coefficients {
	even := Coefficients{Optimistic: 0.5, Pessimistic: 0.5}
	return map[Metric]Coefficients{
		FirstContentfulPaint:   even,
		LargestContentfulPaint: even,
		Interactive:            {Optimistic: 0.45, Pessimistic: 0.55},
		TotalBlockingTime:      even,
		MaxPotentialFID:        even,
		TotalTime:              even,
	}
}

// Estimator simulates a graph under both modes.
type Estimator struct {
	Options sim.Options
	// Coefficients overrides DefaultCoefficients per metric.
	Coefficients map[Metric]Coefficients
	// Trace enables decision tracing for both passes.
	Trace trace.TraceConfig
}

// Estimate holds the results of both passes.
type Estimate struct {
	Optimistic  *sim.Result
	Pessimistic *sim.Result

	// Populated only when tracing is enabled.
	OptimisticTrace  *trace.SimulationTrace
	PessimisticTrace *trace.SimulationTrace

	coefficients map[Metric]Coefficients
}

// Value is one metric across both passes plus the blended estimate.
type Value struct {
	Optimistic  float64 `json:"optimistic"`
	Pessimistic float64 `json:"pessimistic"`
	Estimate    float64 `json:"estimate"`
}

// Estimate runs the optimistic and pessimistic passes concurrently, each on
// its own clone of g. ctx only gates starting a pass; a running simulation is
// not interrupted.
func (e *Estimator) Estimate(ctx context.Context, g *graph.Graph) (*Estimate, error) {
	if g == nil {
		return nil, errors.New("estimating nil graph")
	}

	coefficients := DefaultCoefficients()
	maps.Copy(coefficients, e.Coefficients)
	out := &Estimate{coefficients: coefficients}

	passes := []struct {
		mode   sim.Mode
		result **sim.Result
		trace  **trace.SimulationTrace
	}{
		{sim.ModeOptimistic, &out.Optimistic, &out.OptimisticTrace},
		{sim.ModePessimistic, &out.Pessimistic, &out.PessimisticTrace},
	}

	sims := make([]*sim.Simulator, len(passes))
	for i, p := range passes {
		s, err := sim.New(e.Options.WithMode(p.mode))
		if err != nil {
			return nil, err
		}
		if e.Trace.Level == trace.TraceLevelDecisions {
			s.Trace = trace.NewSimulationTrace(e.Trace)
			*p.trace = s.Trace
		}
		sims[i] = s
	}

	grp, ctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		s, clone := sims[i], g.Clone()
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := s.Simulate(clone)
			if err != nil {
				return fmt.Errorf("%s pass: %w", p.mode, err)
			}
			*p.result = res
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	logrus.Debugf("[estimate] optimistic %.2fms, pessimistic %.2fms",
		out.Optimistic.TimeInMs, out.Pessimistic.TimeInMs)
	return out, nil
}

// Metric extracts m from both passes and blends them.
func (est *Estimate) Metric(m Metric) (Value, error) {
	optimistic, err := Compute(m, est.Optimistic)
	if err != nil {
		return Value{}, err
	}
	pessimistic, err := Compute(m, est.Pessimistic)
	if err != nil {
		return Value{}, err
	}
	c, ok := est.coefficients[m]
	if !ok {
		c = DefaultCoefficients()[m]
	}
	return Value{
		Optimistic:  optimistic,
		Pessimistic: pessimistic,
		Estimate:    c.Apply(optimistic, pessimistic),
	}, nil
}

// Metrics extracts every applicable metric. Metrics the graph carries no
// marks for are omitted; any other error is returned.
func (est *Estimate) Metrics() (map[Metric]Value, error) {
	out := make(map[Metric]Value, len(AllMetrics))
	for _, m := range AllMetrics {
		v, err := est.Metric(m)
		if errors.Is(err, ErrMetricNotApplicable) {
			logrus.Debugf("[estimate] skipping %s: %v", m, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out[m] = v
	}
	return out, nil
}
