package checkpoint

import (
	"context"
	"time"
)

// Saver stores checkpoints. Implementations must be safe for concurrent use
// and must return ErrCheckpointNotFound (possibly wrapped) from Load and
// Delete for unknown IDs.
type Saver interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, id string) (*Checkpoint, error)
	// List returns matches newest first: highest step, then latest
	// timestamp. Steps grow strictly within a thread, so wall-clock jumps do
	// not reorder a thread's history. Offset and Limit are applied last.
	List(ctx context.Context, filter Filter) ([]*Checkpoint, error)
	Delete(ctx context.Context, id string) error
}

// Filter selects checkpoints for Saver.List. Empty fields match anything.
// Since is inclusive, Before exclusive.
type Filter struct {
	GraphID  string     `json:"graph_id,omitempty"`
	ThreadID string     `json:"thread_id,omitempty"`
	RunID    string     `json:"run_id,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
}

// Validate rejects negative paging and inverted time ranges.
func (f *Filter) Validate() error {
	switch {
	case f.Limit < 0:
		return ErrInvalidLimit
	case f.Offset < 0:
		return ErrInvalidOffset
	case f.Since != nil && f.Before != nil && f.Since.After(*f.Before):
		return ErrInvalidTimeRange
	}
	return nil
}

// Matches reports whether a checkpoint with the given keys passes the
// filter. Paging is not considered.
func (f *Filter) Matches(graphID, threadID, runID string, ts time.Time) bool {
	if f.GraphID != "" && f.GraphID != graphID {
		return false
	}
	if f.ThreadID != "" && f.ThreadID != threadID {
		return false
	}
	if f.RunID != "" && f.RunID != runID {
		return false
	}
	if f.Since != nil && ts.Before(*f.Since) {
		return false
	}
	return f.Before == nil || ts.Before(*f.Before)
}
