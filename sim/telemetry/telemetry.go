// Package telemetry exports Prometheus metrics about simulation runs. Metrics
// live on a private registry so several collectors can coexist in one process
// (tests, batch runs) and be written out as a node-exporter textfile.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lantern-sim/lantern-sim/sim"
)

// Collector accumulates counters over every observed result.
type Collector struct {
	registry *prometheus.Registry

	// SimulationsTotal counts completed runs per mode.
	SimulationsTotal *prometheus.CounterVec
	// NodesTotal counts simulated nodes per kind.
	NodesTotal *prometheus.CounterVec
	// SimulatedTime observes the simulated page-load time per mode.
	SimulatedTime *prometheus.HistogramVec
	// ConnectionsTotal counts pool outcomes: opened, reused, discarded.
	ConnectionsTotal *prometheus.CounterVec
}

// NewCollector registers the lantern metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		SimulationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lantern_simulations_total",
				Help: "Total number of completed simulation runs",
			},
			[]string{"mode"},
		),
		NodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lantern_simulated_nodes_total",
				Help: "Total number of simulated graph nodes",
			},
			[]string{"kind"},
		),
		SimulatedTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lantern_simulated_time_ms",
				Help:    "Simulated page-load time in milliseconds",
				Buckets: prometheus.ExponentialBuckets(100, 2, 10),
			},
			[]string{"mode"},
		),
		ConnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lantern_connections_total",
				Help: "Total number of connection pool outcomes",
			},
			[]string{"state"},
		),
	}
}

// Registry exposes the collector's registry, e.g. for promhttp.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Observe records one simulation result. A nil result is ignored.
func (c *Collector) Observe(res *sim.Result) {
	if res == nil {
		return
	}
	mode := string(res.Mode)
	c.SimulationsTotal.WithLabelValues(mode).Inc()
	c.SimulatedTime.WithLabelValues(mode).Observe(res.TimeInMs)
	for _, n := range res.Nodes {
		c.NodesTotal.WithLabelValues(string(n.Kind)).Inc()
	}
	c.ConnectionsTotal.WithLabelValues("opened").Add(float64(res.Connections.Opened))
	c.ConnectionsTotal.WithLabelValues("reused").Add(float64(res.Connections.Reused))
	c.ConnectionsTotal.WithLabelValues("discarded").Add(float64(res.Connections.Discarded))
}

// WriteTextfile writes every metric to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
