package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/channel"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	cgraph "github.com/flowgraph/agentgraph/internal/core/graph"
	"github.com/flowgraph/agentgraph/internal/infrastructure/logging"
	"github.com/flowgraph/agentgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

// DefaultGraphExecutor implements the GraphExecutor interface
// PRINCIPLES:
// - KISS: One node at a time, from the entry point to End
// - SRP: Focuses only on graph execution orchestration
// - DIP: Node behaviour, branching and persistence are injected
type DefaultGraphExecutor struct {
	nodeProcessor     NodeProcessor
	edgeEvaluator     EdgeEvaluator
	stateManager      StateManager
	checkpointManager CheckpointManager
	graphRepository   GraphRepository
	schema            *channel.Schema
	stateCheck        StateCheck
	logger            *slog.Logger
	metrics           *metrics.Recorder

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// ExecutorOption configures a DefaultGraphExecutor.
type ExecutorOption func(*DefaultGraphExecutor)

// WithSchema sets the state channels updates are merged through. Without a
// schema every update overwrites.
func WithSchema(schema *channel.Schema) ExecutorOption {
	return func(e *DefaultGraphExecutor) { e.schema = schema }
}

// StateCheck inspects the state a run starts from, after the thread's
// checkpoint and the input have been merged.
type StateCheck func(state map[string]interface{}) error

// WithStateCheck rejects runs whose starting state fails check. The run
// fails with dto.ErrInvalidInput before any checkpoint is written.
func WithStateCheck(check StateCheck) ExecutorOption {
	return func(e *DefaultGraphExecutor) { e.stateCheck = check }
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *DefaultGraphExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorMetrics sets the metrics recorder.
func WithExecutorMetrics(rec *metrics.Recorder) ExecutorOption {
	return func(e *DefaultGraphExecutor) { e.metrics = rec }
}

// NewDefaultGraphExecutor creates a new graph executor with dependencies.
// checkpointManager may be nil, in which case threads keep no state.
func NewDefaultGraphExecutor(
	nodeProcessor NodeProcessor,
	edgeEvaluator EdgeEvaluator,
	stateManager StateManager,
	checkpointManager CheckpointManager,
	graphRepository GraphRepository,
	opts ...ExecutorOption,
) *DefaultGraphExecutor {
	e := &DefaultGraphExecutor{
		nodeProcessor:     nodeProcessor,
		edgeEvaluator:     edgeEvaluator,
		stateManager:      stateManager,
		checkpointManager: checkpointManager,
		graphRepository:   graphRepository,
		logger:            logging.NewNop(),
		cancels:           make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a graph with the given request. The response is returned
// even when execution fails so callers can inspect completed steps.
func (e *DefaultGraphExecutor) Execute(ctx context.Context, req *dto.ExecutionRequest) (*dto.ExecutionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	graphDef, err := e.graphRepository.Get(ctx, req.GraphID)
	if err != nil {
		return nil, err
	}
	if req.Config.ValidateGraph {
		var opts []validation.GraphValidationOptions
		if req.Config.ValidateCycles {
			opts = append(opts, validation.GraphValidationOptions{CheckCycles: true})
		}
		if verr := validation.ValidateCoreGraph(graphDef, opts...); verr != nil {
			return nil, fmt.Errorf("graph validation failed: %w", verr)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Config.Timeout)
	defer cancel()

	execCtx := &dto.ExecutionContext{
		ExecutionID: uuid.NewString(),
		GraphID:     req.GraphID,
		ThreadID:    req.ThreadID,
		RunID:       req.RunID,
		Config:      req.Config,
		StartTime:   time.Now(),
	}

	e.mu.Lock()
	e.cancels[execCtx.ExecutionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, execCtx.ExecutionID)
		e.mu.Unlock()
		if err := e.stateManager.CleanupState(context.WithoutCancel(ctx), execCtx.ExecutionID); err != nil {
			e.logger.Debug("execution snapshot not released", "execution", execCtx.ExecutionID, "error", err)
		}
	}()

	response := &dto.ExecutionResponse{
		ExecutionID: execCtx.ExecutionID,
		GraphID:     req.GraphID,
		ThreadID:    req.ThreadID,
		RunID:       req.RunID,
		Status:      dto.ExecutionStatusRunning,
		StartTime:   execCtx.StartTime,
		Steps:       make([]dto.StepResult, 0),
	}

	logger := e.logger.With("graph", req.GraphID, "thread", req.ThreadID, "run", req.RunID, "execution", execCtx.ExecutionID)
	logger.Debug("execution started")

	err = e.prepareState(runCtx, execCtx, req.Input)
	if err == nil {
		err = e.executeGraph(runCtx, execCtx, graphDef, response, logger)
	}

	response.EndTime = time.Now()
	response.Duration = response.EndTime.Sub(response.StartTime)
	response.Output = execCtx.State

	switch {
	case err == nil:
		response.Status = dto.ExecutionStatusCompleted
		logger.Info("execution completed", "steps", len(response.Steps), "duration", response.Duration)
	case errors.Is(err, dto.ErrExecutionCancelled):
		response.Status = dto.ExecutionStatusStopped
		response.Error = err.Error()
		logger.Info("execution stopped", "steps", len(response.Steps), "error", err)
	default:
		response.Status = dto.ExecutionStatusFailed
		response.Error = err.Error()
		logger.Error("execution failed", "steps", len(response.Steps), "error", err)
	}
	e.metrics.Invocation(req.GraphID, string(response.Status))

	return response, err
}

// Stop cancels a running execution
func (e *DefaultGraphExecutor) Stop(ctx context.Context, executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, exists := e.cancels[executionID]
	if !exists {
		return fmt.Errorf("%w: %s", dto.ErrExecutionNotFound, executionID)
	}
	cancel()
	return nil
}

// GetStatus returns the current status of an execution
func (e *DefaultGraphExecutor) GetStatus(ctx context.Context, executionID string) (*dto.ExecutionResponse, error) {
	execCtx, err := e.stateManager.LoadState(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", dto.ErrExecutionNotFound, executionID)
	}

	return &dto.ExecutionResponse{
		ExecutionID: executionID,
		GraphID:     execCtx.GraphID,
		ThreadID:    execCtx.ThreadID,
		RunID:       execCtx.RunID,
		Status:      dto.ExecutionStatusRunning,
		Output:      execCtx.State,
		StartTime:   execCtx.StartTime,
	}, nil
}

// prepareState seeds the execution from the thread's latest checkpoint and
// merges the input through the schema.
func (e *DefaultGraphExecutor) prepareState(ctx context.Context, execCtx *dto.ExecutionContext, input map[string]interface{}) error {
	state := map[string]interface{}{}
	if e.persistent(execCtx) {
		latest, err := e.checkpointManager.LatestCheckpoint(ctx, execCtx.GraphID, execCtx.ThreadID)
		switch {
		case err == nil:
			for k, v := range latest.State {
				state[k] = v
			}
			execCtx.CurrentStep = latest.Metadata.Step + 1
		case errors.Is(err, checkpoint.ErrCheckpointNotFound):
		default:
			return fmt.Errorf("failed to load thread state: %w", err)
		}
	}

	merged, err := e.schema.Apply(state, input)
	if err != nil {
		return fmt.Errorf("%w: %w", dto.ErrInvalidInput, err)
	}
	if e.stateCheck != nil {
		if err := e.stateCheck(merged); err != nil {
			return fmt.Errorf("%w: %w", dto.ErrInvalidInput, err)
		}
	}
	execCtx.State = merged

	if e.persistent(execCtx) {
		if _, err := e.checkpointManager.CreateCheckpoint(ctx, execCtx, checkpoint.SourceInput, input); err != nil {
			return err
		}
		e.metrics.CheckpointWritten(execCtx.GraphID)
	}
	e.snapshot(ctx, execCtx)
	return nil
}

// executeGraph walks the graph from its entry point until End.
func (e *DefaultGraphExecutor) executeGraph(
	ctx context.Context,
	execCtx *dto.ExecutionContext,
	graphDef *cgraph.Graph,
	response *dto.ExecutionResponse,
	logger *slog.Logger,
) error {
	current := graphDef.EntryPoint
	limit := execCtx.Config.RecursionLimit

	for executed := 0; current != cgraph.End; executed++ {
		if err := ctx.Err(); err != nil {
			return interruption(ctx)
		}
		if executed >= limit {
			return fmt.Errorf("%w: limit %d at node %s", dto.ErrRecursionLimit, limit, current)
		}

		node, ok := graphDef.Nodes[current]
		if !ok {
			return fmt.Errorf("%w: %s", cgraph.ErrNodeNotFound, current)
		}

		rec, next, err := e.runStep(ctx, execCtx, graphDef, node, executed+1)
		if rec != nil {
			response.Steps = append(response.Steps, *rec)
		}
		if err != nil {
			if ctx.Err() != nil {
				return interruption(ctx)
			}
			return err
		}
		logger.Debug("node finished", "node", node.ID, "next", next, "step", execCtx.CurrentStep)
		current = next
	}
	return nil
}

// runStep executes a single node, merges its update, checkpoints and picks
// the next node.
func (e *DefaultGraphExecutor) runStep(
	ctx context.Context,
	execCtx *dto.ExecutionContext,
	graphDef *cgraph.Graph,
	node *cgraph.Node,
	executed int,
) (*dto.StepResult, string, error) {
	execCtx.CurrentNode = node.ID
	before := execCtx.State

	stepStart := time.Now()
	update, err := e.nodeProcessor.Process(ctx, node, before)
	e.metrics.NodeExecuted(graphDef.ID, node.ID, time.Since(stepStart), err)

	rec := &dto.StepResult{
		StepNumber: executed,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Input:      before,
		Output:     update,
		StartTime:  stepStart,
	}
	fail := func(err error) (*dto.StepResult, string, error) {
		rec.EndTime = time.Now()
		rec.Duration = rec.EndTime.Sub(stepStart)
		rec.Status = dto.StepStatusFailed
		rec.Error = err.Error()
		return rec, "", err
	}
	if err != nil {
		return fail(fmt.Errorf("node %s execution failed: %w", node.ID, err))
	}

	merged, err := e.schema.Apply(before, update)
	if err != nil {
		return fail(fmt.Errorf("node %s produced an invalid update: %w", node.ID, err))
	}
	execCtx.State = merged
	execCtx.CurrentStep++

	next, err := e.edgeEvaluator.Next(ctx, graphDef, node.ID, merged)
	if err != nil {
		return fail(err)
	}
	rec.Next = next

	if e.persistent(execCtx) && (executed%execCtx.Config.CheckpointEvery == 0 || next == cgraph.End) {
		id, err := e.checkpointManager.CreateCheckpoint(ctx, execCtx, checkpoint.SourceLoop, map[string]interface{}{node.ID: update})
		if err != nil {
			return fail(err)
		}
		e.metrics.CheckpointWritten(execCtx.GraphID)
		rec.CheckpointID = id
	}

	e.snapshot(ctx, execCtx)

	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(stepStart)
	rec.Status = dto.StepStatusCompleted
	return rec, next, nil
}

// snapshot records execCtx for GetStatus. A lost snapshot only affects
// status queries, so the run carries on.
func (e *DefaultGraphExecutor) snapshot(ctx context.Context, execCtx *dto.ExecutionContext) {
	if err := e.stateManager.SaveState(ctx, execCtx); err != nil {
		e.logger.Debug("execution snapshot not saved", "execution", execCtx.ExecutionID, "error", err)
	}
}

func (e *DefaultGraphExecutor) persistent(execCtx *dto.ExecutionContext) bool {
	return e.checkpointManager != nil && execCtx.ThreadID != ""
}

// interruption classifies why ctx ended.
func interruption(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", dto.ErrExecutionTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %w", dto.ErrExecutionCancelled, ctx.Err())
}
