package usecases

import (
	"context"
	"time"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/internal/core/graph"
)

// NodeHandler computes a state update from the current state. The returned
// map holds only the channels the node writes.
type NodeHandler func(ctx context.Context, state map[string]interface{}) (map[string]interface{}, error)

// Router picks the outcome key of a conditional edge from the current state.
type Router func(ctx context.Context, state map[string]interface{}) (string, error)

// GraphRepository defines the interface for graph storage and retrieval
// PRINCIPLES:
// - SRP: Only responsible for graph persistence
// - DIP: Used for dependency injection
type GraphRepository interface {
	Save(ctx context.Context, g *graph.Graph) error
	Get(ctx context.Context, id string) (*graph.Graph, error)
	List(ctx context.Context) ([]*graph.Graph, error)
}

// Executor runs a single execution request to completion.
type Executor interface {
	Execute(ctx context.Context, req *dto.ExecutionRequest) (*dto.ExecutionResponse, error)
}

// GraphExecutor defines the interface for executing graphs
// PRINCIPLES:
// - SRP: Single responsibility for graph execution orchestration
// - OCP: Open for extension with different execution strategies
// - DIP: Depends on abstractions, not concretions
type GraphExecutor interface {
	Executor

	// Stop cancels a running execution
	Stop(ctx context.Context, executionID string) error

	// GetStatus returns the current status of an execution
	GetStatus(ctx context.Context, executionID string) (*dto.ExecutionResponse, error)
}

// NodeProcessor defines the interface for processing individual nodes
type NodeProcessor interface {
	// Process executes a single node and returns its state update
	Process(ctx context.Context, node *graph.Node, state map[string]interface{}) (map[string]interface{}, error)

	// CanProcess returns true if a handler is bound to the node
	CanProcess(node *graph.Node) bool
}

// EdgeEvaluator defines the interface for choosing the next node
type EdgeEvaluator interface {
	// Next returns the node that follows current, or graph.End
	Next(ctx context.Context, g *graph.Graph, current string, state map[string]interface{}) (string, error)
}

// StateManager tracks the state of in-flight executions
type StateManager interface {
	// SaveState records a snapshot of the execution
	SaveState(ctx context.Context, executionCtx *dto.ExecutionContext) error

	// LoadState returns the last recorded snapshot
	LoadState(ctx context.Context, executionID string) (*dto.ExecutionContext, error)

	// CleanupState removes execution state after completion
	CleanupState(ctx context.Context, executionID string) error
}

// CheckpointManager defines the interface for checkpoint operations during execution
type CheckpointManager interface {
	// CreateCheckpoint persists the current execution state
	CreateCheckpoint(ctx context.Context, executionCtx *dto.ExecutionContext, source checkpoint.Source, writes map[string]interface{}) (string, error)

	// LoadCheckpoint loads a checkpoint by ID
	LoadCheckpoint(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error)

	// LatestCheckpoint returns the newest checkpoint of a thread
	LatestCheckpoint(ctx context.Context, graphID, threadID string) (*checkpoint.Checkpoint, error)

	// ListCheckpoints returns checkpoints for a thread, newest first
	ListCheckpoints(ctx context.Context, graphID, threadID string) ([]*checkpoint.Checkpoint, error)

	// DeleteRunCheckpoints removes every checkpoint written by a run
	DeleteRunCheckpoints(ctx context.Context, graphID, threadID, runID string) (int, error)
}

// UnlockFunc releases a lock obtained from a ThreadLocker.
type UnlockFunc func(ctx context.Context) error

// ThreadLocker serializes runs on a thread across processes.
type ThreadLocker interface {
	// Lock blocks until the key is held or ctx is done. The lock expires
	// after ttl if never released.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
