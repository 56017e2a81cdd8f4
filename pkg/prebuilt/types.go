package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/flowgraph/agentgraph/pkg/agentgraph"
)

// ErrUnknownPrebuilt is returned when a name has no registered builder.
var ErrUnknownPrebuilt = errors.New("unknown prebuilt")

// Builder compiles a named graph. Implementations must be pure and return a
// graph whose ID equals Name().
type Builder interface {
	Name() string
	Build(ctx context.Context, opts ...agentgraph.CompileOption) (agentgraph.Runnable, error)
}

// BuildFunc is a convenience adapter to implement Builder via functions.
type BuildFunc struct {
	NameStr string
	Fn      func(ctx context.Context, opts ...agentgraph.CompileOption) (agentgraph.Runnable, error)
}

func (b BuildFunc) Name() string { return b.NameStr }

// Build forces the graph ID to the builder name.
func (b BuildFunc) Build(ctx context.Context, opts ...agentgraph.CompileOption) (agentgraph.Runnable, error) {
	opts = append(opts, agentgraph.WithGraphID(b.NameStr))
	return b.Fn(ctx, opts...)
}

// NewBuildFunc creates a Builder from a function.
func NewBuildFunc(name string, fn func(ctx context.Context, opts ...agentgraph.CompileOption) (agentgraph.Runnable, error)) BuildFunc {
	return BuildFunc{NameStr: name, Fn: fn}
}

// Registry holds named prebuilts.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds or replaces a prebuilt builder.
func (r *Registry) Register(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[b.Name()] = b
}

// MustRegister panics on duplicate names; useful during startup wiring.
func (r *Registry) MustRegister(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[b.Name()]; exists {
		panic(fmt.Sprintf("prebuilt already registered: %s", b.Name()))
	}
	r.builders[b.Name()] = b
}

// Get retrieves a named prebuilt.
func (r *Registry) Get(name string) (Builder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	return b, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build compiles the named prebuilt.
func (r *Registry) Build(ctx context.Context, name string, opts ...agentgraph.CompileOption) (agentgraph.Runnable, error) {
	b, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrebuilt, name)
	}
	g, err := b.Build(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return g, nil
}

// BuildAll compiles every registered prebuilt with the same options.
func (r *Registry) BuildAll(ctx context.Context, opts ...agentgraph.CompileOption) ([]agentgraph.Runnable, error) {
	names := r.Names()
	out := make([]agentgraph.Runnable, 0, len(names))
	for _, name := range names {
		g, err := r.Build(ctx, name, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
