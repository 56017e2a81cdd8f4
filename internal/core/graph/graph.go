// Package graph provides the core graph domain entities
// following Clean Architecture principles with zero external dependencies.
package graph

import (
	"time"
)

// Virtual nodes marking where a traversal begins and ends. They never appear
// in Graph.Nodes.
const (
	Start = "__start__"
	End   = "__end__"
)

// Graph represents the core graph entity
// PRINCIPLES:
// - KISS: Simple struct, no complex hierarchies
// - SRP: Only responsible for graph structure, not execution
type Graph struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Nodes      map[string]*Node `json:"nodes"`
	Edges      []*Edge          `json:"edges"`
	EntryPoint string           `json:"entry_point"`
	Config     GraphConfig      `json:"config"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// GraphConfig holds graph configuration
type GraphConfig struct {
	RecursionLimit int                    `json:"recursion_limit,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Validate ensures graph integrity
func (g *Graph) Validate() error {
	if g.Name == "" {
		return ErrInvalidGraphName
	}
	if g.EntryPoint == "" {
		return ErrNoEntryPoint
	}
	if _, exists := g.Nodes[g.EntryPoint]; !exists {
		return ErrInvalidEntryPoint
	}
	return nil
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) error {
	if node == nil {
		return ErrNilNode
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}
	if _, exists := g.Nodes[node.ID]; exists {
		return ErrDuplicateNode
	}
	g.Nodes[node.ID] = node
	g.UpdatedAt = time.Now()
	return nil
}

// AddEdge adds an edge to the graph. An edge leaving Start also fixes the
// entry point; only one such edge is allowed.
func (g *Graph) AddEdge(edge *Edge) error {
	if edge == nil {
		return ErrNilEdge
	}
	if err := edge.Validate(); err != nil {
		return err
	}
	if !g.HasNode(edge.Source) && edge.Source != Start {
		return ErrSourceNodeNotFound
	}
	if !g.HasNode(edge.Target) && edge.Target != End {
		return ErrTargetNodeNotFound
	}
	for _, e := range g.Edges {
		if e.Source == edge.Source && e.Target == edge.Target && e.Type == edge.Type && e.Condition == edge.Condition {
			return ErrDuplicateEdge
		}
	}
	if edge.Source == Start {
		if g.EntryPoint != "" && g.EntryPoint != edge.Target {
			return ErrFanOutUnsupported
		}
		g.EntryPoint = edge.Target
	}
	g.Edges = append(g.Edges, edge)
	g.UpdatedAt = time.Now()
	return nil
}

// HasNode reports whether id names a registered (non-virtual) node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// OutgoingEdges returns the edges leaving source in insertion order.
func (g *Graph) OutgoingEdges(source string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}
