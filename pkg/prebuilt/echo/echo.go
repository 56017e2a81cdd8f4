// Package echo is the smallest useful agent graph: a single node that hands
// its state back unchanged.
//
//	START -> node -> END
//
// The configuration carries the model provider a future agent would call.
// Nothing reads it yet, but it is validated whenever it is supplied so the
// contract holds once something does.
//
// Extension point: an agent/tool loop slots in by adding an "agent" node that
// calls the model and an "action" node that runs tools, then routing from
// "agent" with AddConditionalEdges on the outcomes "continue" (to "action")
// and "end" (to End), with an edge from "action" back to "agent". The engine
// already supports that shape; no model client is wired here.
package echo

import (
	"context"
	"fmt"

	"github.com/flowgraph/agentgraph/pkg/agentgraph"
	"github.com/flowgraph/agentgraph/pkg/prebuilt"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

// Name is the registry name and default graph ID.
const Name = "agent"

// NodeName is the ID of the only node.
const NodeName = "node"

// Model providers accepted in GraphConfig.
const (
	ModelAnthropic = "anthropic"
	ModelOpenAI    = "openai"
)

// OverallState is the state threaded through the graph.
type OverallState struct {
	Messages string `json:"messages"`
}

// GraphConfig is the run configuration.
type GraphConfig struct {
	ModelName string `json:"model_name" validate:"required,oneof=anthropic openai"`
}

// Graph is the compiled echo graph.
type Graph = agentgraph.CompiledGraph[OverallState, GraphConfig]

// NewGraphConfig returns a validated configuration.
func NewGraphConfig(modelName string) (GraphConfig, error) {
	cfg := GraphConfig{ModelName: modelName}
	if err := validation.ValidateStruct(cfg); err != nil {
		return GraphConfig{}, err
	}
	return cfg, nil
}

// Configurable returns cfg as an invocation's configurable map.
func (c GraphConfig) Configurable() map[string]any {
	return map[string]any{"model_name": c.ModelName}
}

// Node returns the state unchanged.
func Node(_ context.Context, state OverallState) (map[string]any, error) {
	return map[string]any{"messages": state.Messages}, nil
}

// New compiles the graph. Build it once and share it; it is safe for
// concurrent use.
func New(opts ...agentgraph.CompileOption) (*Graph, error) {
	g := agentgraph.NewStateGraph[OverallState, GraphConfig](
		agentgraph.WithDescription("Single node that echoes its input"),
	)
	g.AddNode(NodeName, Node).
		AddEdge(agentgraph.Start, NodeName).
		AddEdge(NodeName, agentgraph.End)

	opts = append([]agentgraph.CompileOption{agentgraph.WithGraphID(Name)}, opts...)
	compiled, err := g.Compile(opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", Name, err)
	}
	return compiled, nil
}

// Builder registers the graph with a prebuilt registry.
func Builder() prebuilt.Builder {
	return prebuilt.NewBuildFunc(Name, func(ctx context.Context, opts ...agentgraph.CompileOption) (agentgraph.Runnable, error) {
		g, err := New(opts...)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
}
