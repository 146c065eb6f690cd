package cmd

import (
	"bytes"
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lantern-sim/lantern-sim/sim"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is a named throttling profile from presets.yaml.
type Preset struct {
	Description string `yaml:"description"`
	// ObservedLatency derives per-origin RTT and server response time from the
	// graph's recorded timings, and uses the fastest origin's RTT as the base.
	ObservedLatency bool      `yaml:"observed_latency"`
	Options         yaml.Node `yaml:"options"`
}

// presetFile represents the full presets.yaml structure.
type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

func loadPresets() (map[string]Preset, error) {
	var file presetFile
	decoder := yaml.NewDecoder(bytes.NewReader(presetsYAML))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	return file.Presets, nil
}

// lookupPreset returns the named preset and its options decoded on top of
// sim.DefaultOptions.
func lookupPreset(name string) (Preset, sim.Options, error) {
	presets, err := loadPresets()
	if err != nil {
		return Preset{}, sim.Options{}, err
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, sim.Options{}, fmt.Errorf("unknown preset %q (available: %v)", name, slices.Sorted(maps.Keys(presets)))
	}
	// Re-encode the node so the options go through the strict, validating parser.
	data, err := yaml.Marshal(&p.Options)
	if err != nil {
		return Preset{}, sim.Options{}, fmt.Errorf("preset %s: %w", name, err)
	}
	opts, err := sim.ParseOptions(data, false)
	if err != nil {
		return Preset{}, sim.Options{}, fmt.Errorf("preset %s: %w", name, err)
	}
	return p, opts, nil
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in throttling presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		presets, err := loadPresets()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range slices.Sorted(maps.Keys(presets)) {
			_, opts, err := lookupPreset(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-18s rtt=%gms throughput=%gB/s cpu=%gx\n    %s\n",
				name, opts.RTT, opts.Throughput, opts.CPUSlowdownMultiplier, presets[name].Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
