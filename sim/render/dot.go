// Package render exports dependency graphs, optionally annotated with a
// simulated timeline, as Graphviz DOT and SVG.
package render

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/lantern-sim/lantern-sim/sim"
	"github.com/lantern-sim/lantern-sim/sim/graph"
)

var fillColors = map[graph.NodeKind]string{
	graph.KindNetwork: "lightblue",
	graph.KindCPU:     "lightyellow",
}

// ToDOT converts g to Graphviz DOT. Edges point from dependency to dependent.
// When res is non-nil each node label carries its simulated start and end
// time. Marked nodes are drawn bold.
func ToDOT(g *graph.Graph, res *sim.Result) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	marked := markedNodes(g)
	for _, n := range g.Nodes() {
		attrs := []string{
			fmt.Sprintf("label=%q", fmtLabel(n, res)),
			fmt.Sprintf("fillcolor=%s", fillColors[n.Kind]),
		}
		if names := marked[n.ID]; len(names) > 0 {
			attrs = append(attrs, "penwidth=3", fmt.Sprintf("tooltip=%q", strings.Join(names, ", ")))
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, n := range g.Nodes() {
		for _, dep := range g.Dependencies(n.ID) {
			fmt.Fprintf(&buf, "  %q -> %q;\n", dep, n.ID)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n *graph.Node, res *sim.Result) string {
	parts := []string{n.ID}
	switch n.Kind {
	case graph.KindNetwork:
		parts = append(parts, n.Network.URL, fmt.Sprintf("%d B", n.Network.TransferSize))
	case graph.KindCPU:
		parts = append(parts, fmt.Sprintf("%s %.1fms", n.CPU.Name, n.CPU.Duration))
	}
	if res != nil {
		if t, ok := res.Timing(n.ID); ok {
			parts = append(parts, fmt.Sprintf("%.1f-%.1fms", t.StartTime, t.EndTime))
		}
	}
	return strings.Join(parts, "\n")
}

// markedNodes maps node IDs to the sorted names of the marks they carry.
func markedNodes(g *graph.Graph) map[string][]string {
	marks := g.Marks()
	out := make(map[string][]string)
	for _, name := range slices.Sorted(maps.Keys(marks)) {
		for _, id := range marks[name] {
			out[id] = append(out[id], name)
		}
	}
	return out
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
