// Package graph provides node definitions
package graph

import "time"

// NodeType represents the type of node
type NodeType string

const (
	// NodeTypeFunction represents a plain state-transforming function
	NodeTypeFunction NodeType = "function"
	// NodeTypeAgent represents a model-calling node
	NodeTypeAgent NodeType = "agent"
	// NodeTypeTool represents a tool-executing node
	NodeTypeTool NodeType = "tool"
)

// Node represents a vertex in the graph. The behaviour bound to a node lives
// in the executor; the entity only carries its identity.
type Node struct {
	ID        string                 `json:"id"`
	Type      NodeType               `json:"type"`
	Name      string                 `json:"name"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Validate ensures node integrity
// PRINCIPLES:
// - SRP: Single responsibility - validation only
// - KISS: Simple validation, <10 lines
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if IsReserved(n.ID) {
		return ErrReservedNodeID
	}
	if n.Name == "" {
		return ErrInvalidNodeName
	}
	switch n.Type {
	case NodeTypeFunction, NodeTypeAgent, NodeTypeTool:
		return nil
	}
	return ErrInvalidNodeType
}

// IsReserved reports whether id is one of the virtual start/end markers.
func IsReserved(id string) bool {
	return id == Start || id == End
}
