package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lantern-sim/lantern-sim/sim"
	"github.com/lantern-sim/lantern-sim/sim/estimate"
	"github.com/lantern-sim/lantern-sim/sim/graph"
	"github.com/lantern-sim/lantern-sim/sim/network"
	"github.com/lantern-sim/lantern-sim/sim/telemetry"
	"github.com/lantern-sim/lantern-sim/sim/trace"
)

// runConfig holds the inputs of one `run` invocation.
type runConfig struct {
	GraphPath       string
	Preset          string
	OptionsPath     string // overrides Preset when set
	Analyze         bool
	TraceLevel      string
	MetricsTextfile string
}

// Report is the JSON document printed by `run`.
type Report struct {
	RunID       string                             `json:"run_id"`
	Graph       string                             `json:"graph"`
	Preset      string                             `json:"preset,omitempty"`
	Options     sim.Options                        `json:"options"`
	Metrics     map[estimate.Metric]estimate.Value `json:"metrics"`
	TimeInMs    float64                            `json:"time_in_ms"` // pessimistic pass
	Connections network.PoolStats                  `json:"connections"`
	Summary     sim.Summary                        `json:"summary"`
	Nodes       []sim.NodeTiming                   `json:"nodes"`
	Trace       *trace.TraceSummary                `json:"trace,omitempty"`
}

var runFlags runConfig

// runCmd simulates a graph under both modes and prints the estimate report
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a page-load graph and print metric estimates",
	Run: func(cmd *cobra.Command, args []string) {
		startTime := time.Now()
		if err := runSimulation(cmd.Context(), runFlags, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// resolveOptions picks the options file or the preset, then folds in the
// latency analysis of the graph's recorded timings when requested.
func resolveOptions(cfg runConfig, g *graph.Graph) (sim.Options, error) {
	var (
		opts     sim.Options
		observed bool
		err      error
	)
	if cfg.OptionsPath != "" {
		opts, err = sim.LoadOptions(cfg.OptionsPath)
	} else {
		var p Preset
		p, opts, err = lookupPreset(cfg.Preset)
		observed = p.ObservedLatency
	}
	if err != nil {
		return sim.Options{}, err
	}
	if !cfg.Analyze && !observed {
		return opts, nil
	}

	analysis := network.AnalyzeRecords(networkRecords(g))
	logrus.Infof("Analyzed %d origins, base RTT %.2fms", len(analysis.Origins), analysis.BaseRTT)
	if observed && analysis.BaseRTT > 0 {
		opts.RTT = analysis.BaseRTT
	}
	opts = opts.WithAnalysis(analysis)
	return opts, opts.Validate()
}

func networkRecords(g *graph.Graph) []*graph.NetworkRecord {
	var records []*graph.NetworkRecord
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindNetwork {
			records = append(records, n.Network)
		}
	}
	return records
}

func runSimulation(ctx context.Context, cfg runConfig, w io.Writer) error {
	if cfg.GraphPath == "" {
		return fmt.Errorf("--graph is required")
	}
	if !trace.IsValidTraceLevel(cfg.TraceLevel) {
		return fmt.Errorf("invalid trace level %q", cfg.TraceLevel)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	g, err := graph.LoadDescription(cfg.GraphPath)
	if err != nil {
		return err
	}
	opts, err := resolveOptions(cfg, g)
	if err != nil {
		return err
	}
	logrus.Infof("Simulating %d nodes with rtt=%.1fms throughput=%.0fB/s cpu=%gx",
		g.Len(), opts.RTT, opts.Throughput, opts.CPUSlowdownMultiplier)

	est := &estimate.Estimator{
		Options: opts,
		Trace:   trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)},
	}
	result, err := est.Estimate(ctx, g)
	if err != nil {
		return err
	}
	metrics, err := result.Metrics()
	if err != nil {
		return err
	}

	report := Report{
		RunID:       uuid.NewString(),
		Graph:       cfg.GraphPath,
		Options:     opts,
		Metrics:     metrics,
		TimeInMs:    result.Pessimistic.TimeInMs,
		Connections: result.Pessimistic.Connections,
		Summary:     result.Pessimistic.Summary(),
		Nodes:       result.Pessimistic.Nodes,
	}
	if cfg.OptionsPath == "" {
		report.Preset = cfg.Preset
	}
	if result.PessimisticTrace != nil {
		report.Trace = trace.Summarize(result.PessimisticTrace)
	}

	if cfg.MetricsTextfile != "" {
		collector := telemetry.NewCollector()
		collector.Observe(result.Optimistic)
		collector.Observe(result.Pessimistic)
		if err := collector.WriteTextfile(cfg.MetricsTextfile); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	runCmd.Flags().StringVar(&runFlags.GraphPath, "graph", "", "Graph description file (YAML or JSON)")
	runCmd.Flags().StringVar(&runFlags.Preset, "preset", "mobile-slow-4g", "Throttling preset (see `lantern-sim presets`)")
	runCmd.Flags().StringVar(&runFlags.OptionsPath, "options", "", "Options file (YAML, or TOML with a .toml extension)")
	runCmd.Flags().BoolVar(&runFlags.Analyze, "analyze", false, "Derive per-origin RTT and server response time from recorded timings")
	runCmd.Flags().StringVar(&runFlags.TraceLevel, "trace", string(trace.TraceLevelNone), "Trace level (none, decisions)")
	runCmd.Flags().StringVar(&runFlags.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file")
	_ = runCmd.MarkFlagRequired("graph")
	runCmd.MarkFlagsMutuallyExclusive("preset", "options")

	rootCmd.AddCommand(runCmd)
}
