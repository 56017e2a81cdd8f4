package agentgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	graphrepo "github.com/flowgraph/agentgraph/internal/adapters/repository/graph"
	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/app/services"
	"github.com/flowgraph/agentgraph/internal/app/usecases"
	"github.com/flowgraph/agentgraph/internal/core/channel"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	cgraph "github.com/flowgraph/agentgraph/internal/core/graph"
	"github.com/flowgraph/agentgraph/internal/infrastructure/logging"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

// CompiledGraph is an executable, immutable graph. It is safe for
// concurrent use.
type CompiledGraph[S, C any] struct {
	id          string
	def         *cgraph.Graph
	schema      *channel.Schema
	executor    *usecases.DefaultGraphExecutor
	checkpoints *services.CheckpointService
	logger      *slog.Logger
}

// Compile validates the graph and binds it to an executor.
func (g *StateGraph[S, C]) Compile(opts ...CompileOption) (*CompiledGraph[S, C], error) {
	if g.err != nil {
		return nil, g.err
	}
	o := compileOptions{graphID: DefaultGraphID, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}

	def, err := g.definition(o.graphID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateCoreGraph(def); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	for source := range g.routers {
		if !def.HasNode(source) {
			return nil, fmt.Errorf("%w: %s", cgraph.ErrSourceNodeNotFound, source)
		}
	}

	schema, err := schemaFor[S]()
	if err != nil {
		return nil, err
	}

	processor := usecases.NewDefaultNodeProcessor()
	for name, fn := range g.nodes {
		processor.RegisterHandler(name, nodeHandler(fn))
	}
	evaluator := usecases.NewDefaultEdgeEvaluator()
	for source, router := range g.routers {
		evaluator.RegisterRouter(source, routerHandler(router))
	}

	repo := graphrepo.NewInMemoryGraphRepository()
	if err := repo.Save(context.Background(), def); err != nil {
		return nil, err
	}

	c := &CompiledGraph[S, C]{
		id:     o.graphID,
		def:    def,
		schema: schema,
		logger: o.logger,
	}
	var checkpoints usecases.CheckpointManager
	if o.checkpointer != nil {
		c.checkpoints = services.NewCheckpointService(o.checkpointer)
		checkpoints = c.checkpoints
	}
	execOpts := []usecases.ExecutorOption{
		usecases.WithSchema(schema),
		usecases.WithExecutorLogger(o.logger),
		usecases.WithExecutorMetrics(o.metrics),
	}
	if required := requiredChannels[S](); len(required) > 0 {
		execOpts = append(execOpts, usecases.WithStateCheck(checkStarting[S](required)))
	}
	c.executor = usecases.NewDefaultGraphExecutor(
		processor, evaluator, services.NewStateService(), checkpoints, repo, execOpts...,
	)

	o.logger.Debug("graph compiled", "graph", o.graphID, "nodes", len(def.Nodes), "edges", len(def.Edges))
	return c, nil
}

// ID returns the graph ID
func (c *CompiledGraph[S, C]) ID() string { return c.id }

// Definition returns the graph structure. Callers must not modify it.
func (c *CompiledGraph[S, C]) Definition() *cgraph.Graph { return c.def }

// Channels returns the state channel names in declaration order
func (c *CompiledGraph[S, C]) Channels() []string { return c.schema.Names() }

// Checkpoints returns the checkpoint manager, or nil without a checkpointer.
func (c *CompiledGraph[S, C]) Checkpoints() usecases.CheckpointManager {
	if c.checkpoints == nil {
		return nil
	}
	return c.checkpoints
}

// Invoke runs the graph on input and returns the final state.
func (c *CompiledGraph[S, C]) Invoke(ctx context.Context, input map[string]any, opts ...InvokeOption) (map[string]any, error) {
	var o invokeOptions
	for _, opt := range opts {
		opt(&o)
	}
	resp, err := c.Execute(ctx, &dto.ExecutionRequest{
		GraphID:  c.id,
		ThreadID: o.threadID,
		RunID:    o.runID,
		Input:    input,
		Config: dto.ExecutionConfig{
			RecursionLimit: o.recursionLimit,
			Timeout:        o.timeout,
			Configurable:   o.configurable,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// InvokeState is Invoke with typed input and output.
func (c *CompiledGraph[S, C]) InvokeState(ctx context.Context, state S, opts ...InvokeOption) (S, error) {
	var out S
	input, err := encodeState(state)
	if err != nil {
		return out, fmt.Errorf("%w: %w", dto.ErrInvalidInput, err)
	}
	result, err := c.Invoke(ctx, input, opts...)
	if err != nil {
		return out, err
	}
	if err := decodeState(result, &out); err != nil {
		return out, fmt.Errorf("decode final state: %w", err)
	}
	return out, nil
}

// Execute runs a full execution request and returns the detailed response.
// The request's graph ID is forced to this graph's ID.
func (c *CompiledGraph[S, C]) Execute(ctx context.Context, req *dto.ExecutionRequest) (*dto.ExecutionResponse, error) {
	if req == nil {
		return nil, dto.ErrInvalidInput
	}
	cfg, err := c.check(req.Input, req.Config.Configurable)
	if err != nil {
		return nil, err
	}

	r := *req
	r.GraphID = c.id
	return c.executor.Execute(withConfig(ctx, cfg), &r)
}

// Validate reports whether input and configurable would be accepted by
// Execute. Required state fields are not checked here: on a thread they may
// come from earlier runs.
func (c *CompiledGraph[S, C]) Validate(input, configurable map[string]any) error {
	_, err := c.check(input, configurable)
	return err
}

func (c *CompiledGraph[S, C]) check(input, configurable map[string]any) (C, error) {
	var cfg C
	var state S
	if err := decodeState(input, &state); err != nil {
		return cfg, fmt.Errorf("%w: %w", dto.ErrInvalidInput, err)
	}
	if len(configurable) > 0 {
		if err := validation.DecodeConfig(configurable, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", dto.ErrInvalidConfig, err)
		}
	}
	return cfg, nil
}

// GetState returns the latest checkpointed values of a thread. A thread
// without checkpoints has empty state.
func (c *CompiledGraph[S, C]) GetState(ctx context.Context, threadID string) (map[string]any, error) {
	if c.checkpoints == nil {
		return nil, ErrNoCheckpointer
	}
	latest, err := c.checkpoints.LatestCheckpoint(ctx, c.id, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return latest.State, nil
}

func nodeHandler[S any](fn NodeFunc[S]) usecases.NodeHandler {
	return func(ctx context.Context, state map[string]any) (map[string]any, error) {
		var s S
		if err := decodeState(state, &s); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		return fn(ctx, s)
	}
}

func routerHandler[S any](fn RouterFunc[S]) usecases.Router {
	return func(ctx context.Context, state map[string]any) (string, error) {
		var s S
		if err := decodeState(state, &s); err != nil {
			return "", fmt.Errorf("decode state: %w", err)
		}
		return fn(ctx, s)
	}
}
