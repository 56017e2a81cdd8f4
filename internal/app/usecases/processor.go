package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/graph"
)

// DefaultNodeProcessor implements the NodeProcessor interface
// PRINCIPLES:
// - SRP: Handles only node dispatch
// - OCP: New behaviour is a new handler, not a new processor
// - LSP: Substitutable for any NodeProcessor implementation
type DefaultNodeProcessor struct {
	mu       sync.RWMutex
	handlers map[string]NodeHandler
}

// NewDefaultNodeProcessor creates a new node processor
func NewDefaultNodeProcessor() *DefaultNodeProcessor {
	return &DefaultNodeProcessor{handlers: make(map[string]NodeHandler)}
}

// RegisterHandler binds a handler to a node ID, replacing any previous one
func (p *DefaultNodeProcessor) RegisterHandler(nodeID string, handler NodeHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[nodeID] = handler
}

// Process runs the node's handler on a copy of state
func (p *DefaultNodeProcessor) Process(ctx context.Context, node *graph.Node, state map[string]interface{}) (map[string]interface{}, error) {
	p.mu.RLock()
	handler, exists := p.handlers[node.ID]
	p.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", dto.ErrNoHandler, node.ID)
	}

	input := make(map[string]interface{}, len(state))
	for k, v := range state {
		input[k] = v
	}
	return handler(ctx, input)
}

// CanProcess returns true if a handler is registered for the node
func (p *DefaultNodeProcessor) CanProcess(node *graph.Node) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.handlers[node.ID]
	return exists
}
