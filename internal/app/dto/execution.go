package dto

import (
	"fmt"
	"time"

	"github.com/flowgraph/agentgraph/internal/core/graph"
)

// Execution defaults applied by ExecutionRequest.Validate.
const (
	DefaultRecursionLimit  = 25
	DefaultTimeout         = 5 * time.Minute
	DefaultCheckpointEvery = 1
)

// ExecutionRequest represents a request to execute a graph. ThreadID is
// optional; without it nothing is checkpointed and no prior state is loaded.
type ExecutionRequest struct {
	GraphID  string                 `json:"graph_id"`
	ThreadID string                 `json:"thread_id,omitempty"`
	RunID    string                 `json:"run_id,omitempty"`
	Input    map[string]interface{} `json:"input"`
	Config   ExecutionConfig        `json:"config"`
}

// ExecutionConfig tunes one run. Zero values take the package defaults.
// The final step of a run is always checkpointed, whatever CheckpointEvery
// says.
type ExecutionConfig struct {
	RecursionLimit  int           `json:"recursion_limit,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty"`
	CheckpointEvery int           `json:"checkpoint_every,omitempty"`
	// ValidateGraph re-checks the stored definition before running;
	// ValidateCycles additionally rejects cyclic graphs.
	ValidateGraph  bool `json:"validate_graph,omitempty"`
	ValidateCycles bool `json:"validate_cycles,omitempty"`
	// Configurable is decoded into the graph's configuration type.
	Configurable map[string]interface{} `json:"configurable,omitempty"`
}

// ExecutionResponse is returned for finished, failed and stopped runs alike;
// Output holds the last state reached.
type ExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	GraphID     string                 `json:"graph_id"`
	ThreadID    string                 `json:"thread_id,omitempty"`
	RunID       string                 `json:"run_id,omitempty"`
	Status      ExecutionStatus        `json:"status"`
	Output      map[string]interface{} `json:"output"`
	Steps       []StepResult           `json:"steps"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     time.Time              `json:"end_time"`
	Duration    time.Duration          `json:"duration"`
	Error       string                 `json:"error,omitempty"`
}

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
)

// StepResult records one node execution. CheckpointID is empty when the
// step was not checkpointed.
type StepResult struct {
	StepNumber   int                    `json:"step_number"`
	NodeID       string                 `json:"node_id"`
	NodeType     graph.NodeType         `json:"node_type"`
	Input        map[string]interface{} `json:"input"`
	Output       map[string]interface{} `json:"output"`
	Next         string                 `json:"next"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      time.Time              `json:"end_time"`
	Duration     time.Duration          `json:"duration"`
	Status       StepStatus             `json:"status"`
	Error        string                 `json:"error,omitempty"`
	CheckpointID string                 `json:"checkpoint_id,omitempty"`
}

type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ExecutionContext is the executor's mutable view of a run in progress.
type ExecutionContext struct {
	ExecutionID string
	GraphID     string
	ThreadID    string
	RunID       string
	CurrentStep int
	CurrentNode string
	State       map[string]interface{}
	Config      ExecutionConfig
	StartTime   time.Time
}

// Validate rejects negative limits and fills in defaults.
func (req *ExecutionRequest) Validate() error {
	if req.GraphID == "" {
		return ErrMissingGraphID
	}
	cfg := &req.Config
	switch {
	case cfg.RecursionLimit < 0:
		return fmt.Errorf("%w: recursion_limit %d", ErrInvalidConfig, cfg.RecursionLimit)
	case cfg.CheckpointEvery < 0:
		return fmt.Errorf("%w: checkpoint_every %d", ErrInvalidConfig, cfg.CheckpointEvery)
	case cfg.Timeout < 0:
		return fmt.Errorf("%w: timeout %s", ErrInvalidConfig, cfg.Timeout)
	}
	if cfg.RecursionLimit == 0 {
		cfg.RecursionLimit = DefaultRecursionLimit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}
	return nil
}
