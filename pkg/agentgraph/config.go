package agentgraph

import "context"

type configKey struct{}

// ConfigFromContext returns the run configuration of the invocation ctx
// belongs to. ok is false outside of a node or router call.
func ConfigFromContext[C any](ctx context.Context) (cfg C, ok bool) {
	cfg, ok = ctx.Value(configKey{}).(C)
	return cfg, ok
}

func withConfig[C any](ctx context.Context, cfg C) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}
