package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lantern-sim/lantern-sim/sim"
)

func TestPresets_AllValid(t *testing.T) {
	presets, err := loadPresets()
	require.NoError(t, err)
	for _, name := range []string{"mobile-slow-4g", "mobile-regular-3g", "desktop-dense-4g", "provided"} {
		t.Run(name, func(t *testing.T) {
			require.Contains(t, presets, name)
			p, opts, err := lookupPreset(name)
			require.NoError(t, err)
			assert.NoError(t, opts.Validate())
			assert.NotEmpty(t, p.Description)
			assert.Equal(t, name == "provided", p.ObservedLatency)
		})
	}
}

func TestPresets_SlowMobileMatchesDefaults(t *testing.T) {
	_, opts, err := lookupPreset("mobile-slow-4g")
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultOptions(), opts)
}

func TestPresets_Desktop(t *testing.T) {
	_, opts, err := lookupPreset("desktop-dense-4g")
	require.NoError(t, err)
	assert.Equal(t, 40.0, opts.RTT)
	assert.Equal(t, 1179648.0, opts.Throughput)
	assert.Equal(t, 1.0, opts.CPUSlowdownMultiplier)
	// Keys the preset leaves out keep their defaults.
	assert.Equal(t, sim.DefaultOptions().MaximumConcurrentRequests, opts.MaximumConcurrentRequests)
}

func TestPresets_Unknown(t *testing.T) {
	_, _, err := lookupPreset("dial-up")
	assert.ErrorContains(t, err, "unknown preset")
}

func TestPresetsCommand_ListsEveryPreset(t *testing.T) {
	var out bytes.Buffer
	presetsCmd.SetOut(&out)
	defer presetsCmd.SetOut(nil)

	require.NoError(t, presetsCmd.RunE(presetsCmd, nil))

	for _, name := range []string{"mobile-slow-4g", "mobile-regular-3g", "desktop-dense-4g", "provided"} {
		assert.Contains(t, out.String(), name)
	}
}
