package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
)

// listPage bounds each List call made while scanning a thread.
const listPage = 100

// CheckpointService implements the CheckpointManager interface
// PRINCIPLES:
// - SRP: Manages checkpoint operations for graph execution
// - DIP: Depends on checkpoint.Saver abstraction
// - OCP: Extensible for different checkpoint strategies
type CheckpointService struct {
	saver checkpoint.Saver
}

// NewCheckpointService creates a new checkpoint service
func NewCheckpointService(saver checkpoint.Saver) *CheckpointService {
	return &CheckpointService{
		saver: saver,
	}
}

// Saver returns the underlying saver
func (s *CheckpointService) Saver() checkpoint.Saver { return s.saver }

// CreateCheckpoint persists the execution's current state
func (s *CheckpointService) CreateCheckpoint(ctx context.Context, executionCtx *dto.ExecutionContext, source checkpoint.Source, writes map[string]interface{}) (string, error) {
	state := make(map[string]interface{}, len(executionCtx.State))
	for k, v := range executionCtx.State {
		state[k] = v
	}

	cp := &checkpoint.Checkpoint{
		ID:       uuid.NewString(),
		GraphID:  executionCtx.GraphID,
		ThreadID: executionCtx.ThreadID,
		State:    state,
		Metadata: checkpoint.Metadata{
			Step:   executionCtx.CurrentStep,
			Source: source,
			RunID:  executionCtx.RunID,
			NodeID: executionCtx.CurrentNode,
			Writes: writes,
		},
		Timestamp: time.Now().UTC(),
		Version:   checkpoint.CurrentVersion,
	}

	if err := s.saver.Save(ctx, cp); err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return cp.ID, nil
}

// LoadCheckpoint loads a checkpoint by ID
func (s *CheckpointService) LoadCheckpoint(ctx context.Context, checkpointID string) (*checkpoint.Checkpoint, error) {
	cp, err := s.saver.Load(ctx, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// LatestCheckpoint returns the newest checkpoint of a thread, or
// checkpoint.ErrCheckpointNotFound when the thread has none.
func (s *CheckpointService) LatestCheckpoint(ctx context.Context, graphID, threadID string) (*checkpoint.Checkpoint, error) {
	list, err := s.saver.List(ctx, checkpoint.Filter{GraphID: graphID, ThreadID: threadID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(list) == 0 {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return list[0], nil
}

// ListCheckpoints returns every checkpoint of a thread, newest first
func (s *CheckpointService) ListCheckpoints(ctx context.Context, graphID, threadID string) ([]*checkpoint.Checkpoint, error) {
	return s.collect(ctx, checkpoint.Filter{GraphID: graphID, ThreadID: threadID})
}

// DeleteRunCheckpoints removes the checkpoints written by runID and reports
// how many were deleted.
func (s *CheckpointService) DeleteRunCheckpoints(ctx context.Context, graphID, threadID, runID string) (int, error) {
	if runID == "" {
		return 0, errors.New("run ID is required")
	}
	list, err := s.collect(ctx, checkpoint.Filter{GraphID: graphID, ThreadID: threadID, RunID: runID})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, cp := range list {
		if err := s.saver.Delete(ctx, cp.ID); err != nil && !errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return deleted, fmt.Errorf("failed to delete checkpoint %s: %w", cp.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// collect pages through List until the filter is exhausted.
func (s *CheckpointService) collect(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint
	filter.Limit = listPage
	for {
		page, err := s.saver.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}
		out = append(out, page...)
		if len(page) < listPage {
			return out, nil
		}
		filter.Offset += listPage
	}
}
