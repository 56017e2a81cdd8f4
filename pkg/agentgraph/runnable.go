package agentgraph

import (
	"context"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/app/usecases"
	cgraph "github.com/flowgraph/agentgraph/internal/core/graph"
)

// Runnable is the type-erased view of a CompiledGraph used by registries,
// servers and CLIs that handle graphs with different state types.
type Runnable interface {
	ID() string
	Definition() *cgraph.Graph
	Channels() []string
	Checkpoints() usecases.CheckpointManager
	Invoke(ctx context.Context, input map[string]any, opts ...InvokeOption) (map[string]any, error)
	Execute(ctx context.Context, req *dto.ExecutionRequest) (*dto.ExecutionResponse, error)
	Validate(input, configurable map[string]any) error
	GetState(ctx context.Context, threadID string) (map[string]any, error)
}

var _ Runnable = (*CompiledGraph[map[string]any, struct{}])(nil)

// NewRunManager creates a run manager executing r. Runs are vetted with
// r.Validate before they are queued. Thread state and rollback need r to be
// compiled with a checkpointer.
func NewRunManager(r Runnable, opts ...usecases.RunManagerOption) *usecases.RunManager {
	opts = append([]usecases.RunManagerOption{usecases.WithRunCheck(r.Validate)}, opts...)
	return usecases.NewRunManager(r.ID(), r, r.Checkpoints(), opts...)
}
