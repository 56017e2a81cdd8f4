// Package graph provides edge definitions
package graph

// EdgeType represents the type of edge
type EdgeType string

const (
	// EdgeTypeDefault is always traversed after its source completes
	EdgeTypeDefault EdgeType = "default"
	// EdgeTypeConditional is traversed when the source's router returns Condition
	EdgeTypeConditional EdgeType = "conditional"
)

// Edge represents a connection between nodes
// PRINCIPLES:
// - KISS: Simple edge representation
// - SRP: Only responsible for edge data
type Edge struct {
	ID        string   `json:"id"`
	Source    string   `json:"source"` // Source node ID or Start
	Target    string   `json:"target"` // Target node ID or End
	Type      EdgeType `json:"type"`
	Condition string   `json:"condition,omitempty"` // Router outcome selecting this edge
}

// Validate ensures edge integrity
func (e *Edge) Validate() error {
	if e.Source == "" {
		return ErrInvalidSource
	}
	if e.Target == "" {
		return ErrInvalidTarget
	}
	if e.Source == End {
		return ErrEdgeFromEnd
	}
	if e.Target == Start {
		return ErrEdgeToStart
	}
	if e.Type == "" {
		e.Type = EdgeTypeDefault
	}
	if e.Type == EdgeTypeConditional && e.Condition == "" {
		return ErrMissingCondition
	}
	if e.Type == EdgeTypeDefault && e.Source == e.Target {
		return ErrSelfLoop
	}
	return nil
}

// IsConditional checks if edge is conditional
func (e *Edge) IsConditional() bool {
	return e.Type == EdgeTypeConditional
}
