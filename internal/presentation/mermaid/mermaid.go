// Package mermaid renders graph definitions as Mermaid flowcharts.
package mermaid

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowgraph/agentgraph/internal/core/graph"
)

// Overlay marks execution progress on the rendered graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// Generate produces a Mermaid flowchart for g. Start and End render as
// circles, tool nodes as subroutines and conditional edges carry their
// router outcome as a label.
func Generate(g *graph.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	sb.WriteString(fmt.Sprintf("    %s((\"START\"))\n", sanitizeID(graph.Start)))
	for _, id := range nodeIDs(g) {
		node := g.Nodes[id]
		opener, closer := "[", "]"
		switch node.Type {
		case graph.NodeTypeTool:
			opener, closer = "[[", "]]"
		case graph.NodeTypeAgent:
			opener, closer = "([", "])"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeID(id), opener, escapeLabel(id), closer))
	}
	sb.WriteString(fmt.Sprintf("    %s((\"END\"))\n", sanitizeID(graph.End)))

	for _, e := range g.Edges {
		arrow := "-->"
		if e.IsConditional() {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(e.Condition))
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeID(e.Source), arrow, sanitizeID(e.Target)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safe := sanitizeID(id)
			if safe != "" && !seen[safe] {
				seen[safe] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safe))
			}
		}
		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func nodeIDs(g *graph.Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sanitizeID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
