package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderGraph_DOT(t *testing.T) {
	var out bytes.Buffer

	err := renderGraph(context.Background(), renderConfig{GraphPath: writeGraph(t), Format: "dot", OutPath: "-"}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), `"document" -> "parse";`)
	assert.Contains(t, out.String(), `"parse" -> "hero";`)
}

func TestRenderGraph_SimulatedToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.dot")
	cfg := renderConfig{GraphPath: writeGraph(t), Format: "dot", Simulate: true, Preset: "desktop-dense-4g", OutPath: path}

	require.NoError(t, renderGraph(context.Background(), cfg, &bytes.Buffer{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, `\d+\.\d-\d+\.\dms`, string(data))
}

func TestRenderGraph_Errors(t *testing.T) {
	graphPath := writeGraph(t)
	tests := []struct {
		name string
		cfg  renderConfig
	}{
		{"unknown format", renderConfig{GraphPath: graphPath, Format: "png"}},
		{"unknown preset", renderConfig{GraphPath: graphPath, Format: "dot", Simulate: true, Preset: "dial-up"}},
		{"missing graph", renderConfig{GraphPath: filepath.Join(t.TempDir(), "none.yaml"), Format: "dot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, renderGraph(context.Background(), tt.cfg, &bytes.Buffer{}))
		})
	}
}
