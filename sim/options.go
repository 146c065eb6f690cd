package sim

import (
	"bytes"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lantern-sim/lantern-sim/sim/network"
)

// Mode selects the assumptions of a simulation pass.
type Mode string

const (
	// ModeOptimistic reuses any warm connection and ignores per-origin RTT penalties.
	ModeOptimistic Mode = "optimistic"
	// ModePessimistic applies per-origin RTT penalties and honours observed
	// fresh connections for HTTP/1.1 requests.
	ModePessimistic Mode = "pessimistic"
)

// Options configures a simulation. Times are milliseconds and throughput is
// bytes per second. Start from DefaultOptions; the zero value is invalid.
type Options struct {
	RTT                        float64            `yaml:"rtt" toml:"rtt" json:"rtt"`
	Throughput                 float64            `yaml:"throughput" toml:"throughput" json:"throughput"`
	MaximumConcurrentRequests  int                `yaml:"maximum_concurrent_requests" toml:"maximum_concurrent_requests" json:"maximum_concurrent_requests"`
	CPUSlowdownMultiplier      float64            `yaml:"cpu_slowdown_multiplier" toml:"cpu_slowdown_multiplier" json:"cpu_slowdown_multiplier"`
	LayoutTaskMultiplier       float64            `yaml:"layout_task_multiplier" toml:"layout_task_multiplier" json:"layout_task_multiplier"`
	ServerResponseTime         float64            `yaml:"server_response_time" toml:"server_response_time" json:"server_response_time"`
	AdditionalRTTByOrigin      map[string]float64 `yaml:"additional_rtt_by_origin" toml:"additional_rtt_by_origin" json:"additional_rtt_by_origin,omitempty"`
	ServerResponseTimeByOrigin map[string]float64 `yaml:"server_response_time_by_origin" toml:"server_response_time_by_origin" json:"server_response_time_by_origin,omitempty"`
	MaxConnectionsPerOrigin    int                `yaml:"max_connections_per_origin" toml:"max_connections_per_origin" json:"max_connections_per_origin"`
	InitialCongestionWindow    float64            `yaml:"initial_congestion_window" toml:"initial_congestion_window" json:"initial_congestion_window"`
	DNSResolutionMultiplier    float64            `yaml:"dns_resolution_multiplier" toml:"dns_resolution_multiplier" json:"dns_resolution_multiplier"`
	MaximumCPUTaskDuration     float64            `yaml:"maximum_cpu_task_duration" toml:"maximum_cpu_task_duration" json:"maximum_cpu_task_duration"`

	Mode Mode `yaml:"-" toml:"-" json:"mode"`
}

// DefaultOptions returns the simulated mobile slow 4G profile: 150ms RTT,
// 1.6Mbps (with the 0.9 packet-loss factor applied) and a 4x CPU slowdown.
func DefaultOptions() Options {
	return Options{
		RTT:                       150,
		Throughput:                1.6 * 1024 * 1024 / 8 * 0.9,
		MaximumConcurrentRequests: 10,
		CPUSlowdownMultiplier:     4,
		LayoutTaskMultiplier:      0.5,
		ServerResponseTime:        30,
		MaxConnectionsPerOrigin:   network.DefaultMaxConnectionsPerOrigin,
		InitialCongestionWindow:   network.DefaultInitialCongestionWindow,
		DNSResolutionMultiplier:   0,
		MaximumCPUTaskDuration:    0,
		Mode:                      ModeOptimistic,
	}
}

// WithMode returns a copy of o running in the given mode.
func (o Options) WithMode(m Mode) Options {
	c := o.Clone()
	c.Mode = m
	return c
}

// Clone returns a copy of o that shares no maps with it.
func (o Options) Clone() Options {
	c := o
	c.AdditionalRTTByOrigin = maps.Clone(o.AdditionalRTTByOrigin)
	c.ServerResponseTimeByOrigin = maps.Clone(o.ServerResponseTimeByOrigin)
	return c
}

// WithAnalysis returns a copy of o whose per-origin maps are filled in from
// observed records. Origins already configured keep their values.
func (o Options) WithAnalysis(a network.Analysis) Options {
	c := o.Clone()
	if c.AdditionalRTTByOrigin == nil {
		c.AdditionalRTTByOrigin = make(map[string]float64)
	}
	if c.ServerResponseTimeByOrigin == nil {
		c.ServerResponseTimeByOrigin = make(map[string]float64)
	}
	for origin, v := range a.AdditionalRTTByOrigin() {
		if _, set := c.AdditionalRTTByOrigin[origin]; !set {
			c.AdditionalRTTByOrigin[origin] = v
		}
	}
	for origin, v := range a.ServerResponseTimeByOrigin() {
		if _, set := c.ServerResponseTimeByOrigin[origin]; !set {
			c.ServerResponseTimeByOrigin[origin] = v
		}
	}
	return c
}

// Validate checks that every option is in its valid domain.
func (o Options) Validate() error {
	invalid := func(field string, value any, reason string) error {
		return &InvalidOptionsError{Field: field, Value: value, Reason: reason}
	}
	if !nonNegativeFinite(o.RTT) {
		return invalid("rtt", o.RTT, "must be non-negative and finite")
	}
	if math.IsNaN(o.Throughput) || o.Throughput <= 0 || math.IsInf(o.Throughput, 0) {
		return invalid("throughput", o.Throughput, "must be positive and finite")
	}
	if o.MaximumConcurrentRequests < 1 {
		return invalid("maximum_concurrent_requests", o.MaximumConcurrentRequests, "must be at least 1")
	}
	if math.IsNaN(o.CPUSlowdownMultiplier) || o.CPUSlowdownMultiplier <= 0 {
		return invalid("cpu_slowdown_multiplier", o.CPUSlowdownMultiplier, "must be positive")
	}
	if math.IsNaN(o.LayoutTaskMultiplier) || o.LayoutTaskMultiplier <= 0 {
		return invalid("layout_task_multiplier", o.LayoutTaskMultiplier, "must be positive")
	}
	if !nonNegativeFinite(o.ServerResponseTime) {
		return invalid("server_response_time", o.ServerResponseTime, "must be non-negative and finite")
	}
	if err := validateByOrigin("additional_rtt_by_origin", o.AdditionalRTTByOrigin); err != nil {
		return err
	}
	if err := validateByOrigin("server_response_time_by_origin", o.ServerResponseTimeByOrigin); err != nil {
		return err
	}
	if o.MaxConnectionsPerOrigin < 1 {
		return invalid("max_connections_per_origin", o.MaxConnectionsPerOrigin, "must be at least 1")
	}
	if math.IsNaN(o.InitialCongestionWindow) || o.InitialCongestionWindow < 1 {
		return invalid("initial_congestion_window", o.InitialCongestionWindow, "must be at least 1 segment")
	}
	if math.IsNaN(o.DNSResolutionMultiplier) || o.DNSResolutionMultiplier < 0 {
		return invalid("dns_resolution_multiplier", o.DNSResolutionMultiplier, "must be non-negative")
	}
	// 0 disables the cap.
	if math.IsNaN(o.MaximumCPUTaskDuration) || o.MaximumCPUTaskDuration < 0 {
		return invalid("maximum_cpu_task_duration", o.MaximumCPUTaskDuration, "must be non-negative")
	}
	if o.Mode != ModeOptimistic && o.Mode != ModePessimistic {
		return invalid("mode", o.Mode, fmt.Sprintf("must be %q or %q", ModeOptimistic, ModePessimistic))
	}
	return nil
}

func validateByOrigin(field string, m map[string]float64) error {
	for _, origin := range sortedKeys(m) {
		if v := m[origin]; !nonNegativeFinite(v) {
			return &InvalidOptionsError{Field: field + "[" + origin + "]", Value: v, Reason: "must be non-negative and finite"}
		}
	}
	return nil
}

// LoadOptions reads options from a YAML or, for a .toml extension, TOML file.
// Values in the file override DefaultOptions; unknown keys are rejected and
// the result is validated.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading options: %w", err)
	}
	return ParseOptions(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// ParseOptions decodes YAML (or TOML when isTOML is set) on top of
// DefaultOptions and validates the result.
func ParseOptions(data []byte, isTOML bool) (Options, error) {
	opts := DefaultOptions()
	if isTOML {
		md, err := toml.Decode(string(data), &opts)
		if err != nil {
			return Options{}, fmt.Errorf("parsing options: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Options{}, fmt.Errorf("parsing options: unknown keys %v", undecoded)
		}
	} else if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&opts); err != nil {
			return Options{}, fmt.Errorf("parsing options: %w", err)
		}
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func nonNegativeFinite(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
