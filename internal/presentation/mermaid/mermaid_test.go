package mermaid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/agentgraph/internal/core/graph"
)

func TestGenerate(t *testing.T) {
	g := &graph.Graph{ID: "loop", Name: "loop"}
	require.NoError(t, g.AddNode(&graph.Node{ID: "agent", Name: "agent", Type: graph.NodeTypeAgent}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "call-tool", Name: "call-tool", Type: graph.NodeTypeTool}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: graph.Start, Target: "agent"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "agent", Target: "call-tool", Type: graph.EdgeTypeConditional, Condition: "continue"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "agent", Target: graph.End, Type: graph.EdgeTypeConditional, Condition: "end"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "call-tool", Target: "agent"}))

	out := Generate(g, nil)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `__start__(("START"))`)
	assert.Contains(t, out, `__end__(("END"))`)
	assert.Contains(t, out, `agent(["agent"])`)
	assert.Contains(t, out, `call_tool[["call-tool"]]`)
	assert.Contains(t, out, "__start__ --> agent")
	assert.Contains(t, out, `agent -- "continue" --> call_tool`)
	assert.Contains(t, out, `agent -- "end" --> __end__`)
	assert.Contains(t, out, "call_tool --> agent")
	assert.NotContains(t, out, "classDef")
}

func TestGenerate_Overlay(t *testing.T) {
	g := &graph.Graph{ID: "echo", Name: "echo"}
	require.NoError(t, g.AddNode(&graph.Node{ID: "node", Name: "node", Type: graph.NodeTypeFunction}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: graph.Start, Target: "node"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "node", Target: graph.End}))

	out := Generate(g, &Overlay{VisitedNodes: []string{"node", "node"}, CurrentNode: graph.End})
	assert.Contains(t, out, `node["node"]`)
	assert.Equal(t, 1, strings.Count(out, "class node visited;"))
	assert.Contains(t, out, "class __end__ current;")
}
