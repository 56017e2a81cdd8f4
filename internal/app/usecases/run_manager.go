package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/internal/infrastructure/logging"
	"github.com/flowgraph/agentgraph/internal/infrastructure/metrics"
)

// DefaultLockTTL bounds how long a crashed process can hold a thread.
const DefaultLockTTL = 10 * time.Minute

// cancelReason records why a run's context was cancelled.
type cancelReason int

const (
	reasonNone cancelReason = iota
	reasonCancel
	reasonInterrupt
	reasonRollback
)

// runEntry is the manager's bookkeeping for one run. Fields other than
// done, prev and cancel are guarded by RunManager.mu.
type runEntry struct {
	run    dto.Run
	req    dto.RunRequest
	reason cancelReason
	cancel context.CancelFunc
	prev   <-chan struct{}
	done   chan struct{}
}

type threadEntry struct {
	thread dto.Thread
	runs   []string
	last   *runEntry
}

// RunManager owns the threads and runs of one graph. Runs on a thread never
// overlap: each waits for its predecessor and then takes the thread lock, so
// a run's checkpoints always build on the previous run's final state.
// PRINCIPLES:
// - SRP: Run lifecycle only; execution is delegated to an Executor
// - DIP: Locking and persistence are injected
type RunManager struct {
	graphID     string
	executor    Executor
	checkpoints CheckpointManager
	locker      ThreadLocker
	check       RunCheck
	lockTTL     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Recorder

	mu      sync.Mutex
	threads map[string]*threadEntry
	runs    map[string]*runEntry
}

// RunManagerOption configures a RunManager.
type RunManagerOption func(*RunManager)

// WithLocker sets the thread locker. Without one, runs are only ordered
// within this process.
func WithLocker(locker ThreadLocker) RunManagerOption {
	return func(m *RunManager) { m.locker = locker }
}

// RunCheck vets a run's input and configuration before CreateRun queues it.
type RunCheck func(input, configurable map[string]interface{}) error

// WithRunCheck rejects bad runs up front, before any strategy has
// superseded the thread's active runs.
func WithRunCheck(check RunCheck) RunManagerOption {
	return func(m *RunManager) { m.check = check }
}

// WithLockTTL sets the expiry of thread locks.
func WithLockTTL(ttl time.Duration) RunManagerOption {
	return func(m *RunManager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithRunLogger sets the manager logger.
func WithRunLogger(logger *slog.Logger) RunManagerOption {
	return func(m *RunManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRunMetrics sets the metrics recorder.
func WithRunMetrics(rec *metrics.Recorder) RunManagerOption {
	return func(m *RunManager) { m.metrics = rec }
}

// NewRunManager creates a manager for graphID. checkpoints backs ThreadState
// and rollback and must share the saver the executor writes to.
func NewRunManager(graphID string, executor Executor, checkpoints CheckpointManager, opts ...RunManagerOption) *RunManager {
	m := &RunManager{
		graphID:     graphID,
		executor:    executor,
		checkpoints: checkpoints,
		lockTTL:     DefaultLockTTL,
		logger:      logging.NewNop(),
		threads:     make(map[string]*threadEntry),
		runs:        make(map[string]*runEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GraphID returns the graph this manager runs
func (m *RunManager) GraphID() string { return m.graphID }

// CreateThread registers a new, empty thread
func (m *RunManager) CreateThread(ctx context.Context, metadata map[string]interface{}) (*dto.Thread, error) {
	t := &threadEntry{thread: dto.Thread{
		ThreadID:  uuid.NewString(),
		GraphID:   m.graphID,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}}

	m.mu.Lock()
	m.threads[t.thread.ThreadID] = t
	m.mu.Unlock()

	m.logger.Debug("thread created", "graph", m.graphID, "thread", t.thread.ThreadID)
	out := t.thread
	return &out, nil
}

// GetThread returns a thread by ID
func (m *RunManager) GetThread(ctx context.Context, threadID string) (*dto.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dto.ErrThreadNotFound, threadID)
	}
	out := t.thread
	return &out, nil
}

// ThreadState returns the values of the thread's latest checkpoint. A thread
// without checkpoints has empty values.
func (m *RunManager) ThreadState(ctx context.Context, threadID string) (*dto.ThreadState, error) {
	if _, err := m.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	state := &dto.ThreadState{ThreadID: threadID, Values: map[string]interface{}{}}
	if m.checkpoints == nil {
		return state, nil
	}

	latest, err := m.checkpoints.LatestCheckpoint(ctx, m.graphID, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return state, nil
		}
		return nil, err
	}
	state.Values = latest.State
	state.CheckpointID = latest.ID
	state.Step = latest.Metadata.Step
	state.CreatedAt = latest.Timestamp
	return state, nil
}

// CreateRun starts a run on a thread. When the thread already has pending or
// running runs the strategy decides what happens:
//   - reject returns dto.ErrThreadBusy and creates nothing
//   - interrupt cancels them; their checkpoints stay
//   - rollback cancels them, deletes their checkpoints and forgets them
//   - enqueue (the default) starts the new run after they finish
//
// Input and configuration are checked first, so a run that could never
// start is refused without touching the thread. The run executes in the
// background; use JoinRun to wait for it.
func (m *RunManager) CreateRun(ctx context.Context, threadID string, req dto.RunRequest) (*dto.Run, error) {
	strategy, err := dto.ParseStrategy(string(req.Strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, req.Strategy)
	}
	req.Strategy = strategy
	if req.RecursionLimit < 0 {
		return nil, fmt.Errorf("%w: recursion_limit %d", dto.ErrInvalidConfig, req.RecursionLimit)
	}
	if m.check != nil {
		if err := m.check(req.Input, req.Configurable); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	t, ok := m.threads[threadID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", dto.ErrThreadNotFound, threadID)
	}

	active := m.activeLocked(t)
	if len(active) > 0 {
		switch strategy {
		case dto.StrategyReject:
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", dto.ErrThreadBusy, threadID)
		case dto.StrategyInterrupt:
			for _, e := range active {
				e.reason = reasonInterrupt
				e.cancel()
			}
		case dto.StrategyRollback:
			for _, e := range active {
				e.reason = reasonRollback
				e.cancel()
				m.forgetLocked(t, e.run.RunID)
			}
		}
	}

	now := time.Now().UTC()
	runCtx, cancel := context.WithCancel(context.Background())
	e := &runEntry{
		run: dto.Run{
			RunID:     uuid.NewString(),
			ThreadID:  threadID,
			GraphID:   m.graphID,
			Status:    dto.RunStatusPending,
			Strategy:  strategy,
			Input:     req.Input,
			CreatedAt: now,
			UpdatedAt: now,
		},
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if t.last != nil {
		e.prev = t.last.done
	}
	t.last = e
	t.runs = append(t.runs, e.run.RunID)
	m.runs[e.run.RunID] = e
	out := e.run
	m.mu.Unlock()

	m.metrics.RunStarted()
	m.logger.Info("run created", "graph", m.graphID, "thread", threadID, "run", out.RunID,
		"strategy", strategy, "superseded", len(active))

	go m.execute(runCtx, e)
	return &out, nil
}

// GetRun returns a snapshot of a run
func (m *RunManager) GetRun(ctx context.Context, threadID, runID string) (*dto.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookupLocked(threadID, runID)
	if err != nil {
		return nil, err
	}
	out := e.run
	return &out, nil
}

// ListRuns returns the thread's runs, newest first
func (m *RunManager) ListRuns(ctx context.Context, threadID string) ([]*dto.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dto.ErrThreadNotFound, threadID)
	}
	out := make([]*dto.Run, 0, len(t.runs))
	for i := len(t.runs) - 1; i >= 0; i-- {
		if e, ok := m.runs[t.runs[i]]; ok {
			r := e.run
			out = append(out, &r)
		}
	}
	return out, nil
}

// JoinRun blocks until the run finishes or ctx is done and returns its
// final snapshot.
func (m *RunManager) JoinRun(ctx context.Context, threadID, runID string) (*dto.Run, error) {
	m.mu.Lock()
	e, err := m.lookupLocked(threadID, runID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := e.run
	return &out, nil
}

// CancelRun cancels a pending or running run. It returns immediately; the
// run reaches the interrupted status once its current node returns.
func (m *RunManager) CancelRun(ctx context.Context, threadID, runID string) (*dto.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookupLocked(threadID, runID)
	if err != nil {
		return nil, err
	}
	if e.run.Status.Active() {
		if e.reason == reasonNone {
			e.reason = reasonCancel
		}
		e.cancel()
	}
	out := e.run
	return &out, nil
}

// Shutdown cancels every active run and waits for them to stop or for ctx.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	var waiting []*runEntry
	for _, t := range m.threads {
		for _, e := range m.activeLocked(t) {
			if e.reason == reasonNone {
				e.reason = reasonCancel
			}
			e.cancel()
			waiting = append(waiting, e)
		}
	}
	m.mu.Unlock()

	for _, e := range waiting {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// execute waits for the previous run, takes the thread lock, runs the graph
// and records the outcome.
func (m *RunManager) execute(ctx context.Context, e *runEntry) {
	defer close(e.done)
	defer e.cancel()

	// Order is kept even for a cancelled run so its successor cannot overtake
	// a predecessor that is still running.
	if e.prev != nil {
		<-e.prev
	}

	var resp *dto.ExecutionResponse
	err := ctx.Err()
	if err == nil {
		unlock := UnlockFunc(func(context.Context) error { return nil })
		if m.locker != nil {
			unlock, err = m.locker.Lock(ctx, m.graphID+":"+e.run.ThreadID, m.lockTTL)
		}
		if err == nil {
			m.setStatus(e, dto.RunStatusRunning)
			resp, err = m.executor.Execute(ctx, &dto.ExecutionRequest{
				GraphID:  m.graphID,
				ThreadID: e.run.ThreadID,
				RunID:    e.run.RunID,
				Input:    e.req.Input,
				Config: dto.ExecutionConfig{
					RecursionLimit: e.req.RecursionLimit,
					Configurable:   e.req.Configurable,
				},
			})
			if uerr := unlock(context.Background()); uerr != nil {
				m.logger.Warn("thread unlock failed", "thread", e.run.ThreadID, "error", uerr)
			}
		}
	}

	m.mu.Lock()
	reason := e.reason
	m.mu.Unlock()

	if reason == reasonRollback && m.checkpoints != nil {
		n, derr := m.checkpoints.DeleteRunCheckpoints(context.Background(), m.graphID, e.run.ThreadID, e.run.RunID)
		if derr != nil {
			m.logger.Error("rollback failed", "thread", e.run.ThreadID, "run", e.run.RunID, "error", derr)
		} else {
			m.logger.Info("run rolled back", "thread", e.run.ThreadID, "run", e.run.RunID, "checkpoints", n)
		}
	}

	m.mu.Lock()
	now := time.Now().UTC()
	switch {
	case err == nil:
		e.run.Status = dto.RunStatusSuccess
		if resp != nil {
			e.run.Output = resp.Output
		}
	case reason != reasonNone:
		e.run.Status = dto.RunStatusInterrupted
		e.run.Error = err.Error()
	default:
		e.run.Status = dto.RunStatusError
		e.run.Error = err.Error()
	}
	e.run.UpdatedAt = now
	status := e.run.Status
	m.mu.Unlock()

	m.metrics.RunFinished(string(e.run.Strategy), string(status))
	m.logger.Info("run finished", "graph", m.graphID, "thread", e.run.ThreadID, "run", e.run.RunID, "status", status)
}

func (m *RunManager) setStatus(e *runEntry, status dto.RunStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.run.Status = status
	e.run.UpdatedAt = time.Now().UTC()
}

// activeLocked returns the thread's pending and running runs in creation order.
func (m *RunManager) activeLocked(t *threadEntry) []*runEntry {
	var out []*runEntry
	for _, id := range t.runs {
		if e, ok := m.runs[id]; ok && e.run.Status.Active() && e.reason == reasonNone {
			out = append(out, e)
		}
	}
	return out
}

// forgetLocked drops a run from the indexes. The entry stays reachable
// through its successor's prev channel until it finishes.
func (m *RunManager) forgetLocked(t *threadEntry, runID string) {
	delete(m.runs, runID)
	for i, id := range t.runs {
		if id == runID {
			t.runs = append(t.runs[:i], t.runs[i+1:]...)
			break
		}
	}
}

func (m *RunManager) lookupLocked(threadID, runID string) (*runEntry, error) {
	if _, ok := m.threads[threadID]; !ok {
		return nil, fmt.Errorf("%w: %s", dto.ErrThreadNotFound, threadID)
	}
	e, ok := m.runs[runID]
	if !ok || e.run.ThreadID != threadID {
		return nil, fmt.Errorf("%w: %s", dto.ErrRunNotFound, runID)
	}
	return e, nil
}

// ThreadIDs returns the IDs of all threads, sorted
func (m *RunManager) ThreadIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
