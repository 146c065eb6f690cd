package estimate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lantern-sim/lantern-sim/sim"
	"github.com/lantern-sim/lantern-sim/sim/graph"
	"github.com/lantern-sim/lantern-sim/sim/internal/testutil"
	"github.com/lantern-sim/lantern-sim/sim/trace"
)

func unthrottled() sim.Options {
	opts := sim.DefaultOptions()
	opts.CPUSlowdownMultiplier = 1
	return opts
}

// mainThread lays out four sequential tasks: a 0-10, b 10-110, c 110-140, d 140-220.
func mainThread(t *testing.T) *graph.Graph {
	return testutil.NewGraph(t).
		CPU("a", 10).
		CPU("b", 100, "a").
		CPU("c", 30, "b").
		CPU("d", 80, "c").
		Mark(MarkFirstContentfulPaint, "a").
		Mark(MarkLargestContentfulPaint, "c").
		Graph()
}

func simulate(t *testing.T, g *graph.Graph, opts sim.Options) *sim.Result {
	t.Helper()
	res, err := sim.Simulate(g, opts)
	require.NoError(t, err)
	return res
}

func TestCompute_MainThreadMetrics(t *testing.T) {
	res := simulate(t, mainThread(t), unthrottled())

	tests := []struct {
		metric Metric
		want   float64
	}{
		{FirstContentfulPaint, 10},
		{LargestContentfulPaint, 140},
		{Interactive, 220},
		// b blocks 60-110, d blocks 190-220.
		{TotalBlockingTime, 80},
		{MaxPotentialFID, 100},
		{TotalTime, 220},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			got, err := Compute(tt.metric, res)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCompute_LCPNeverPrecedesFCP(t *testing.T) {
	g := testutil.NewGraph(t).
		CPU("paint", 20).
		CPU("hero", 30, "paint").
		Mark(MarkFirstContentfulPaint, "hero").
		Mark(MarkLargestContentfulPaint, "paint").
		Graph()
	res := simulate(t, g, unthrottled())

	lcp, err := Compute(LargestContentfulPaint, res)

	require.NoError(t, err)
	assert.InDelta(t, 50.0, lcp, 1e-9)
}

func TestCompute_BlockingTimeClippedToFCP(t *testing.T) {
	// GIVEN a single 200ms task that finishes before the marked paint
	g := testutil.NewGraph(t).
		CPU("boot", 200).
		CPU("paint", 5, "boot").
		Mark(MarkFirstContentfulPaint, "paint").
		Graph()
	res := simulate(t, g, unthrottled())

	// WHEN blocking metrics are computed
	tbt, err := Compute(TotalBlockingTime, res)
	require.NoError(t, err)
	fid, err := Compute(MaxPotentialFID, res)
	require.NoError(t, err)
	tti, err := Compute(Interactive, res)
	require.NoError(t, err)

	// THEN nothing before FCP counts and FID falls back to its floor
	assert.Equal(t, 0.0, tbt)
	assert.Equal(t, 16.0, fid)
	assert.InDelta(t, 205.0, tti, 1e-9)
}

func TestCompute_NotApplicableWithoutMarks(t *testing.T) {
	res := simulate(t, testutil.NewGraph(t).CPU("a", 60).Graph(), unthrottled())

	for _, m := range []Metric{FirstContentfulPaint, LargestContentfulPaint, Interactive, TotalBlockingTime, MaxPotentialFID} {
		_, err := Compute(m, res)
		assert.ErrorIs(t, err, ErrMetricNotApplicable, "metric %s", m)
		var notApplicable *MetricNotApplicableError
		assert.ErrorAs(t, err, &notApplicable)
	}

	total, err := Compute(TotalTime, res)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, total, 1e-9)

	_, err = Compute("speed-index", res)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMetricNotApplicable)
}

func TestExtractors(t *testing.T) {
	res := simulate(t, mainThread(t), unthrottled())

	end, err := NodeEndTime(res, "c")
	require.NoError(t, err)
	assert.InDelta(t, 140.0, end, 1e-9)

	_, err = NodeEndTime(res, "missing")
	assert.ErrorIs(t, err, ErrMetricNotApplicable)

	assert.InDelta(t, 220.0, LastLongTaskEnd(res, 50), 1e-9)
	assert.InDelta(t, 110.0, LastLongTaskEnd(res, 80), 1e-9)
	assert.Equal(t, 0.0, LastLongTaskEnd(res, 500))
}

func TestEstimator_BlendsPasses(t *testing.T) {
	// GIVEN an origin with an extra round-trip penalty
	opts := sim.DefaultOptions()
	opts.AdditionalRTTByOrigin = map[string]float64{"http://slow.test": 100}
	g := testutil.NewGraph(t).
		Network("doc", "http://slow.test/", 2000).
		CPU("parse", 10, "doc").
		Mark(MarkFirstContentfulPaint, "parse").
		Graph()
	est := &Estimator{Options: opts}

	// WHEN both passes run
	got, err := est.Estimate(context.Background(), g)
	require.NoError(t, err)

	// THEN the pessimistic pass is slower and the blend sits between them
	v, err := got.Metric(FirstContentfulPaint)
	require.NoError(t, err)
	assert.Greater(t, v.Pessimistic, v.Optimistic)
	assert.InDelta(t, (v.Optimistic+v.Pessimistic)/2, v.Estimate, 1e-9)
	assert.Equal(t, sim.ModeOptimistic, got.Optimistic.Mode)
	assert.Equal(t, sim.ModePessimistic, got.Pessimistic.Mode)
	assert.Nil(t, got.OptimisticTrace)
	assert.Nil(t, got.PessimisticTrace)
}

func TestEstimator_CoefficientOverride(t *testing.T) {
	est := &Estimator{
		Options:      unthrottled(),
		Coefficients: map[Metric]Coefficients{TotalTime: {Intercept: 10, Optimistic: 1}},
	}

	got, err := est.Estimate(context.Background(), mainThread(t))
	require.NoError(t, err)

	total, err := got.Metric(TotalTime)
	require.NoError(t, err)
	assert.InDelta(t, 230.0, total.Estimate, 1e-9)

	// Metrics without an override keep the default blend.
	tti, err := got.Metric(Interactive)
	require.NoError(t, err)
	assert.InDelta(t, 220.0, tti.Estimate, 1e-9)
}

func TestEstimate_MetricsSkipsNotApplicable(t *testing.T) {
	g := testutil.NewGraph(t).CPU("a", 60).Graph()
	got, err := (&Estimator{Options: unthrottled()}).Estimate(context.Background(), g)
	require.NoError(t, err)

	metrics, err := got.Metrics()

	require.NoError(t, err)
	assert.Len(t, metrics, 1)
	assert.InDelta(t, 60.0, metrics[TotalTime].Estimate, 1e-9)
}

func TestEstimator_DeterministicAcrossRuns(t *testing.T) {
	g := testutil.RandomGraph(t, 7, 60)
	est := &Estimator{Options: sim.DefaultOptions()}

	first, err := est.Estimate(context.Background(), g)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := est.Estimate(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, first.Optimistic.Nodes, again.Optimistic.Nodes)
		assert.Equal(t, first.Pessimistic.Nodes, again.Pessimistic.Nodes)
	}
}

func TestEstimator_Trace(t *testing.T) {
	est := &Estimator{Options: unthrottled(), Trace: trace.TraceConfig{Level: trace.TraceLevelDecisions}}

	got, err := est.Estimate(context.Background(), mainThread(t))

	require.NoError(t, err)
	require.NotNil(t, got.OptimisticTrace)
	require.NotNil(t, got.PessimisticTrace)
	assert.Len(t, got.OptimisticTrace.Dispatches, 4)
	assert.Len(t, got.PessimisticTrace.Completions, 4)
}

func TestEstimator_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Estimator{Options: unthrottled()}).Estimate(ctx, mainThread(t))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = (&Estimator{Options: sim.Options{}}).Estimate(context.Background(), mainThread(t))
	assert.ErrorIs(t, err, sim.ErrInvalidOptions)

	_, err = (&Estimator{Options: unthrottled()}).Estimate(context.Background(), nil)
	assert.Error(t, err)
}
