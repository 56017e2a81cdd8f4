package agentgraph

import (
	"log/slog"
	"time"

	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/internal/infrastructure/metrics"
)

// DefaultGraphID names a compiled graph when WithGraphID is not given.
const DefaultGraphID = "agent"

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	graphID      string
	checkpointer checkpoint.Saver
	logger       *slog.Logger
	metrics      *metrics.Recorder
}

// WithGraphID sets the ID checkpoints and metrics are recorded under.
func WithGraphID(id string) CompileOption {
	return func(o *compileOptions) { o.graphID = id }
}

// WithCheckpointer persists thread state in saver. Without it, invocations
// on a thread start from empty state every time.
func WithCheckpointer(saver checkpoint.Saver) CompileOption {
	return func(o *compileOptions) { o.checkpointer = saver }
}

// WithLogger sets the logger used during execution.
func WithLogger(logger *slog.Logger) CompileOption {
	return func(o *compileOptions) { o.logger = logger }
}

// WithMetrics records executions on rec.
func WithMetrics(rec *metrics.Recorder) CompileOption {
	return func(o *compileOptions) { o.metrics = rec }
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	threadID       string
	runID          string
	configurable   map[string]any
	recursionLimit int
	timeout        time.Duration
}

// WithThread continues the given thread. Requires a checkpointer to carry
// state between invocations.
func WithThread(threadID string) InvokeOption {
	return func(o *invokeOptions) { o.threadID = threadID }
}

// WithRunID tags the invocation's checkpoints with runID.
func WithRunID(runID string) InvokeOption {
	return func(o *invokeOptions) { o.runID = runID }
}

// WithConfigurable passes run-scoped configuration, decoded into the
// graph's configuration type.
func WithConfigurable(cfg map[string]any) InvokeOption {
	return func(o *invokeOptions) { o.configurable = cfg }
}

// WithRecursionLimit caps the number of node executions.
func WithRecursionLimit(n int) InvokeOption {
	return func(o *invokeOptions) { o.recursionLimit = n }
}

// WithTimeout bounds the invocation.
func WithTimeout(d time.Duration) InvokeOption {
	return func(o *invokeOptions) { o.timeout = d }
}
