package agentgraph

import (
	"context"
	"fmt"

	cgraph "github.com/flowgraph/agentgraph/internal/core/graph"
)

// Start and End are the virtual nodes every graph begins and finishes at.
const (
	Start = cgraph.Start
	End   = cgraph.End
)

// NodeFunc computes a state update. The returned map holds only the channels
// the node writes.
type NodeFunc[S any] func(ctx context.Context, state S) (map[string]any, error)

// RouterFunc picks the outcome key of a node's conditional edges.
type RouterFunc[S any] func(ctx context.Context, state S) (string, error)

type edgeSpec struct {
	source, target, condition string
}

// StateGraph declares nodes and edges over state S and configuration C.
// Mutating methods return the graph for chaining; the first error sticks and
// is reported by Compile.
type StateGraph[S, C any] struct {
	description string
	nodes       map[string]NodeFunc[S]
	order       []string
	routers     map[string]RouterFunc[S]
	edges       []edgeSpec
	err         error
}

// GraphOption configures a StateGraph.
type GraphOption func(*graphOptions)

type graphOptions struct {
	description string
}

// WithDescription attaches a human readable description to the graph.
func WithDescription(desc string) GraphOption {
	return func(o *graphOptions) { o.description = desc }
}

// NewStateGraph creates an empty graph
func NewStateGraph[S, C any](opts ...GraphOption) *StateGraph[S, C] {
	var o graphOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &StateGraph[S, C]{
		description: o.description,
		nodes:       make(map[string]NodeFunc[S]),
		routers:     make(map[string]RouterFunc[S]),
	}
}

// AddNode registers fn under name.
func (g *StateGraph[S, C]) AddNode(name string, fn NodeFunc[S]) *StateGraph[S, C] {
	if g.err != nil {
		return g
	}
	switch {
	case fn == nil:
		g.err = fmt.Errorf("node %s: %w", name, ErrNilFunc)
	case name == "":
		g.err = cgraph.ErrInvalidNodeID
	case cgraph.IsReserved(name):
		g.err = fmt.Errorf("%w: %s", cgraph.ErrReservedNodeID, name)
	default:
		if _, exists := g.nodes[name]; exists {
			g.err = fmt.Errorf("%w: %s", cgraph.ErrDuplicateNode, name)
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge adds an unconditional edge. from may be Start and to may be End.
// Endpoints are resolved at Compile, so edges may be declared before nodes.
func (g *StateGraph[S, C]) AddEdge(from, to string) *StateGraph[S, C] {
	if g.err == nil {
		g.edges = append(g.edges, edgeSpec{source: from, target: to})
	}
	return g
}

// AddConditionalEdges routes from source through router. paths maps each
// router outcome to its target node.
func (g *StateGraph[S, C]) AddConditionalEdges(source string, router RouterFunc[S], paths map[string]string) *StateGraph[S, C] {
	if g.err != nil {
		return g
	}
	if router == nil {
		g.err = fmt.Errorf("router %s: %w", source, ErrNilFunc)
		return g
	}
	if _, exists := g.routers[source]; exists {
		g.err = fmt.Errorf("%w: %s", ErrDuplicateRouter, source)
		return g
	}
	if len(paths) == 0 {
		g.err = fmt.Errorf("%w: %s", cgraph.ErrMissingCondition, source)
		return g
	}
	g.routers[source] = router
	for _, outcome := range sortedKeys(paths) {
		g.edges = append(g.edges, edgeSpec{source: source, target: paths[outcome], condition: outcome})
	}
	return g
}

// SetEntryPoint is shorthand for AddEdge(Start, name).
func (g *StateGraph[S, C]) SetEntryPoint(name string) *StateGraph[S, C] {
	return g.AddEdge(Start, name)
}

// SetFinishPoint is shorthand for AddEdge(name, End).
func (g *StateGraph[S, C]) SetFinishPoint(name string) *StateGraph[S, C] {
	return g.AddEdge(name, End)
}

// Err returns the first builder error, if any.
func (g *StateGraph[S, C]) Err() error { return g.err }

// definition assembles the core graph from the declarations.
func (g *StateGraph[S, C]) definition(id string) (*cgraph.Graph, error) {
	def := &cgraph.Graph{
		ID:     id,
		Name:   id,
		Config: cgraph.GraphConfig{Description: g.description},
	}
	for _, name := range g.order {
		if err := def.AddNode(&cgraph.Node{ID: name, Name: name, Type: cgraph.NodeTypeFunction}); err != nil {
			return nil, fmt.Errorf("node %s: %w", name, err)
		}
	}
	for i, e := range g.edges {
		edge := &cgraph.Edge{
			ID:     fmt.Sprintf("e%d", i),
			Source: e.source,
			Target: e.target,
			Type:   cgraph.EdgeTypeDefault,
		}
		if e.condition != "" {
			edge.Type = cgraph.EdgeTypeConditional
			edge.Condition = e.condition
		}
		if err := def.AddEdge(edge); err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.source, e.target, err)
		}
	}
	return def, nil
}
