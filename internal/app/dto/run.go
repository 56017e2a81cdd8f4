package dto

import "time"

// MultitaskStrategy decides what happens when a run is created on a thread
// that already has an active run.
type MultitaskStrategy string

const (
	// StrategyReject refuses the new run
	StrategyReject MultitaskStrategy = "reject"
	// StrategyInterrupt cancels active runs and keeps their progress
	StrategyInterrupt MultitaskStrategy = "interrupt"
	// StrategyRollback cancels active runs and erases them with their checkpoints
	StrategyRollback MultitaskStrategy = "rollback"
	// StrategyEnqueue runs the new run after the active ones finish
	StrategyEnqueue MultitaskStrategy = "enqueue"
)

// ParseStrategy maps a name to a strategy; empty selects enqueue.
func ParseStrategy(s string) (MultitaskStrategy, error) {
	switch MultitaskStrategy(s) {
	case "":
		return StrategyEnqueue, nil
	case StrategyReject, StrategyInterrupt, StrategyRollback, StrategyEnqueue:
		return MultitaskStrategy(s), nil
	}
	return "", ErrUnknownStrategy
}

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusSuccess     RunStatus = "success"
	RunStatusError       RunStatus = "error"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Active reports whether the run has not finished yet.
func (s RunStatus) Active() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Thread groups runs that share checkpointed state.
type Thread struct {
	ThreadID  string                 `json:"thread_id"`
	GraphID   string                 `json:"graph_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ThreadState is the latest checkpointed state of a thread.
type ThreadState struct {
	ThreadID     string                 `json:"thread_id"`
	Values       map[string]interface{} `json:"values"`
	CheckpointID string                 `json:"checkpoint_id,omitempty"`
	Step         int                    `json:"step"`
	CreatedAt    time.Time              `json:"created_at"`
}

// RunRequest describes a run to start on a thread.
type RunRequest struct {
	Input          map[string]interface{} `json:"input"`
	Configurable   map[string]interface{} `json:"configurable,omitempty"`
	Strategy       MultitaskStrategy      `json:"multitask_strategy,omitempty"`
	RecursionLimit int                    `json:"recursion_limit,omitempty"`
}

// Run is one execution of a graph on a thread.
type Run struct {
	RunID     string                 `json:"run_id"`
	ThreadID  string                 `json:"thread_id"`
	GraphID   string                 `json:"graph_id"`
	Status    RunStatus              `json:"status"`
	Strategy  MultitaskStrategy      `json:"multitask_strategy"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}
