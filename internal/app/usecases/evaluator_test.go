package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/graph"
)

func branchingGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := &graph.Graph{ID: "branching", Name: "branching"}
	for _, id := range []string{"agent", "tools"} {
		require.NoError(t, g.AddNode(&graph.Node{ID: id, Name: id, Type: graph.NodeTypeFunction}))
	}
	require.NoError(t, g.AddEdge(&graph.Edge{Source: graph.Start, Target: "agent"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "agent", Target: "tools", Type: graph.EdgeTypeConditional, Condition: "continue"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "agent", Target: graph.End, Type: graph.EdgeTypeConditional, Condition: "end"}))
	require.NoError(t, g.AddEdge(&graph.Edge{Source: "tools", Target: "agent"}))
	return g
}

func TestDefaultEdgeEvaluator_Next(t *testing.T) {
	ctx := context.Background()
	g := branchingGraph(t)
	evaluator := NewDefaultEdgeEvaluator()

	t.Run("default edge", func(t *testing.T) {
		next, err := evaluator.Next(ctx, g, "tools", nil)
		require.NoError(t, err)
		assert.Equal(t, "agent", next)
	})

	t.Run("no outgoing edges ends the run", func(t *testing.T) {
		next, err := evaluator.Next(ctx, g, "missing", nil)
		require.NoError(t, err)
		assert.Equal(t, graph.End, next)
	})

	t.Run("conditional without router", func(t *testing.T) {
		_, err := evaluator.Next(ctx, g, "agent", nil)
		assert.Error(t, err)
	})

	evaluator.RegisterRouter("agent", func(ctx context.Context, state map[string]interface{}) (string, error) {
		if state["pending_tool"] == true {
			return "continue", nil
		}
		if state["route"] != nil {
			return state["route"].(string), nil
		}
		return "end", nil
	})

	t.Run("router picks branch", func(t *testing.T) {
		next, err := evaluator.Next(ctx, g, "agent", map[string]interface{}{"pending_tool": true})
		require.NoError(t, err)
		assert.Equal(t, "tools", next)

		next, err = evaluator.Next(ctx, g, "agent", map[string]interface{}{})
		require.NoError(t, err)
		assert.Equal(t, graph.End, next)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		_, err := evaluator.Next(ctx, g, "agent", map[string]interface{}{"route": "elsewhere"})
		assert.ErrorIs(t, err, dto.ErrUnknownBranch)
	})
}

func TestDefaultEdgeEvaluator_Evaluate(t *testing.T) {
	evaluator := NewDefaultEdgeEvaluator()
	assert.True(t, evaluator.Evaluate(&graph.Edge{Source: "a", Target: "b", Type: graph.EdgeTypeDefault}, "anything"))
	cond := &graph.Edge{Source: "a", Target: "b", Type: graph.EdgeTypeConditional, Condition: "yes"}
	assert.True(t, evaluator.Evaluate(cond, "yes"))
	assert.False(t, evaluator.Evaluate(cond, "no"))
}
