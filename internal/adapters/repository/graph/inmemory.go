// Package graphrepo keeps compiled graph definitions where the executor can
// look them up by ID.
package graphrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowgraph/agentgraph/internal/core/graph"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

// InMemoryGraphRepository maps graph IDs to definitions. Stored graphs are
// shared, not copied; callers must treat them as read-only once saved.
type InMemoryGraphRepository struct {
	mu   sync.RWMutex
	byID map[string]*graph.Graph
}

func NewInMemoryGraphRepository() *InMemoryGraphRepository {
	return &InMemoryGraphRepository{byID: map[string]*graph.Graph{}}
}

// Save stores g under g.ID after structural validation. A later Save with
// the same ID wins.
func (r *InMemoryGraphRepository) Save(_ context.Context, g *graph.Graph) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("save graph: %w", graph.ErrInvalidGraphName)
	}
	if err := validation.ValidateCoreGraph(g); err != nil {
		return fmt.Errorf("save graph %s: %w", g.ID, err)
	}
	r.mu.Lock()
	r.byID[g.ID] = g
	r.mu.Unlock()
	return nil
}

func (r *InMemoryGraphRepository) Get(_ context.Context, id string) (*graph.Graph, error) {
	r.mu.RLock()
	g := r.byID[id]
	r.mu.RUnlock()
	if g == nil {
		return nil, fmt.Errorf("%w: %s", graph.ErrGraphNotFound, id)
	}
	return g, nil
}

// List returns the stored graphs sorted by ID.
func (r *InMemoryGraphRepository) List(_ context.Context) ([]*graph.Graph, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*graph.Graph, len(ids))
	for i, id := range ids {
		out[i] = r.byID[id]
	}
	r.mu.RUnlock()
	return out, nil
}
