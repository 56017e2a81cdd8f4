// Package checkpoint holds the snapshot type written after every step of a
// threaded run, and the Saver contract the storage adapters implement.
package checkpoint

import (
	"time"
)

// Checkpoint is the full channel state of a thread after one step.
type Checkpoint struct {
	ID        string                 `json:"id"`
	GraphID   string                 `json:"graph_id"`
	ThreadID  string                 `json:"thread_id"`
	State     map[string]interface{} `json:"state"`
	Metadata  Metadata               `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
}

// Metadata contains additional information about a checkpoint
type Metadata struct {
	Step   int                    `json:"step"`
	Source Source                 `json:"source"`
	RunID  string                 `json:"run_id,omitempty"`
	NodeID string                 `json:"node_id,omitempty"`
	Writes map[string]interface{} `json:"writes,omitempty"`
	Tags   []string               `json:"tags,omitempty"`
}

// Source records what produced a checkpoint.
type Source string

const (
	// SourceInput is written when a run's input is applied to thread state
	SourceInput Source = "input"
	// SourceLoop is written after a node finishes
	SourceLoop Source = "loop"
	// SourceUpdate is written by an out-of-band state update
	SourceUpdate Source = "update"
)

// CurrentVersion is stamped on checkpoints that do not carry a version.
const CurrentVersion = "1.0"

// Validate checks the required keys and stamps CurrentVersion when the
// version is empty.
func (c *Checkpoint) Validate() error {
	if c.ID == "" {
		return ErrInvalidCheckpointID
	}
	if c.GraphID == "" {
		return ErrInvalidGraphID
	}
	if c.ThreadID == "" {
		return ErrInvalidThreadID
	}
	if c.Metadata.Step < 0 {
		return ErrInvalidStep
	}
	if c.State == nil {
		return ErrNilState
	}
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	return nil
}
