package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowgraph/agentgraph/internal/app/dto"
)

// StateService keeps the latest snapshot of every in-flight execution so
// GetStatus and Stop can find it. Snapshots are copied on the way in and
// out; a node mutating its state map never reaches the stored copy.
type StateService struct {
	mu        sync.RWMutex
	snapshots map[string]*dto.ExecutionContext
}

// NewStateService creates an empty service
func NewStateService() *StateService {
	return &StateService{snapshots: make(map[string]*dto.ExecutionContext)}
}

// SaveState records execCtx as the execution's latest snapshot
func (s *StateService) SaveState(_ context.Context, execCtx *dto.ExecutionContext) error {
	cp := copyContext(execCtx)
	s.mu.Lock()
	s.snapshots[execCtx.ExecutionID] = cp
	s.mu.Unlock()
	return nil
}

// LoadState returns the latest snapshot or dto.ErrExecutionNotFound
func (s *StateService) LoadState(_ context.Context, executionID string) (*dto.ExecutionContext, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[executionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", dto.ErrExecutionNotFound, executionID)
	}
	return copyContext(snap), nil
}

// CleanupState forgets a finished execution
func (s *StateService) CleanupState(_ context.Context, executionID string) error {
	s.mu.Lock()
	delete(s.snapshots, executionID)
	s.mu.Unlock()
	return nil
}

// Len is the number of executions currently tracked.
func (s *StateService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// ExecutionIDs lists the tracked executions of a thread, sorted. An empty
// threadID lists all of them.
func (s *StateService) ExecutionIDs(threadID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id, snap := range s.snapshots {
		if threadID == "" || snap.ThreadID == threadID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func copyContext(in *dto.ExecutionContext) *dto.ExecutionContext {
	out := *in
	out.State = make(map[string]interface{}, len(in.State))
	for k, v := range in.State {
		out.State[k] = v
	}
	return &out
}
