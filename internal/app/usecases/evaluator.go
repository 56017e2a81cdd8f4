package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/graph"
)

// DefaultEdgeEvaluator implements the EdgeEvaluator interface
// PRINCIPLES:
// - SRP: Only responsible for choosing the next node
// - OCP: Branching logic lives in registered routers
type DefaultEdgeEvaluator struct {
	mu      sync.RWMutex
	routers map[string]Router
}

// NewDefaultEdgeEvaluator creates a new edge evaluator
func NewDefaultEdgeEvaluator() *DefaultEdgeEvaluator {
	return &DefaultEdgeEvaluator{routers: make(map[string]Router)}
}

// RegisterRouter binds the router deciding between source's conditional edges
func (e *DefaultEdgeEvaluator) RegisterRouter(source string, router Router) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routers[source] = router
}

// Evaluate returns true if edge is taken for the given router outcome.
// Default edges are always taken.
func (e *DefaultEdgeEvaluator) Evaluate(edge *graph.Edge, outcome string) bool {
	if !edge.IsConditional() {
		return true
	}
	return edge.Condition == outcome
}

// Next returns the target of current's outgoing edge. A node without
// outgoing edges finishes the run.
func (e *DefaultEdgeEvaluator) Next(ctx context.Context, g *graph.Graph, current string, state map[string]interface{}) (string, error) {
	edges := g.OutgoingEdges(current)
	if len(edges) == 0 {
		return graph.End, nil
	}

	var outcome string
	if hasConditional(edges) {
		e.mu.RLock()
		router, ok := e.routers[current]
		e.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("no router registered for %s", current)
		}
		var err error
		outcome, err = router(ctx, state)
		if err != nil {
			return "", fmt.Errorf("router for %s failed: %w", current, err)
		}
	}

	for _, edge := range edges {
		if e.Evaluate(edge, outcome) {
			return edge.Target, nil
		}
	}
	return "", fmt.Errorf("%w: %s returned %q", dto.ErrUnknownBranch, current, outcome)
}

func hasConditional(edges []*graph.Edge) bool {
	for _, edge := range edges {
		if edge.IsConditional() {
			return true
		}
	}
	return false
}
