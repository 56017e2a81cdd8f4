package agentgraph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/agentgraph/internal/adapters/repository/memory"
	"github.com/flowgraph/agentgraph/internal/app/dto"
	cgraph "github.com/flowgraph/agentgraph/internal/core/graph"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

type chatState struct {
	Messages string `json:"messages"`
}

type chatConfig struct {
	ModelName string `json:"model_name" validate:"required,oneof=anthropic openai"`
}

func echo(ctx context.Context, s chatState) (map[string]any, error) {
	return map[string]any{"messages": s.Messages}, nil
}

func compileEcho(t *testing.T, opts ...CompileOption) *CompiledGraph[chatState, chatConfig] {
	t.Helper()
	g := NewStateGraph[chatState, chatConfig]().
		AddNode("node", echo).
		AddEdge(Start, "node").
		AddEdge("node", End)
	compiled, err := g.Compile(opts...)
	require.NoError(t, err)
	return compiled
}

func TestCompiledGraph_Invoke(t *testing.T) {
	compiled := compileEcho(t)
	assert.Equal(t, DefaultGraphID, compiled.ID())
	assert.Equal(t, []string{"messages"}, compiled.Channels())

	for _, msg := range []string{"hello", "", "ünïcode ✓"} {
		out, err := compiled.Invoke(context.Background(), map[string]any{"messages": msg})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"messages": msg}, out)
	}

	typed, err := compiled.InvokeState(context.Background(), chatState{Messages: "typed"})
	require.NoError(t, err)
	assert.Equal(t, "typed", typed.Messages)
}

func TestCompiledGraph_InvalidInput(t *testing.T) {
	compiled := compileEcho(t)
	ctx := context.Background()

	_, err := compiled.Invoke(ctx, map[string]any{"unknown": "x"})
	assert.ErrorIs(t, err, dto.ErrInvalidInput)

	_, err = compiled.Invoke(ctx, map[string]any{"messages": 42})
	assert.ErrorIs(t, err, dto.ErrInvalidInput)

	_, err = compiled.Execute(ctx, nil)
	assert.ErrorIs(t, err, dto.ErrInvalidInput)

	for _, in := range []map[string]any{{}, nil} {
		_, err = compiled.Invoke(ctx, in)
		assert.ErrorIs(t, err, dto.ErrInvalidInput)
		assert.ErrorIs(t, err, ErrMissingChannel)
	}
}

func TestCompiledGraph_RequiredFields(t *testing.T) {
	ctx := context.Background()

	t.Run("thread state fills them", func(t *testing.T) {
		saver := memory.DefaultInMemorySaver()
		defer func() { _ = saver.Close() }()
		compiled := compileEcho(t, WithCheckpointer(saver))

		_, err := compiled.Invoke(ctx, map[string]any{}, WithThread("fresh"))
		require.ErrorIs(t, err, ErrMissingChannel)
		state, err := compiled.GetState(ctx, "fresh")
		require.NoError(t, err)
		assert.Empty(t, state, "a refused start writes no checkpoint")

		_, err = compiled.Invoke(ctx, map[string]any{"messages": "hi"}, WithThread("fresh"))
		require.NoError(t, err)
		out, err := compiled.Invoke(ctx, map[string]any{}, WithThread("fresh"))
		require.NoError(t, err)
		assert.Equal(t, "hi", out["messages"])
	})

	t.Run("omitempty fields are optional", func(t *testing.T) {
		out, err := compileLoop(t).Invoke(ctx, map[string]any{"messages": []string{"hi"}})
		require.NoError(t, err)
		assert.EqualValues(t, 3, out["count"])
	})

	t.Run("map state has no required fields", func(t *testing.T) {
		compiled, err := NewStateGraph[map[string]any, struct{}]().
			AddNode("a", func(ctx context.Context, s map[string]any) (map[string]any, error) {
				return map[string]any{"seen": true}, nil
			}).
			SetEntryPoint("a").SetFinishPoint("a").
			Compile()
		require.NoError(t, err)
		out, err := compiled.Invoke(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, true, out["seen"])
	})
}

func TestCompiledGraph_Validate(t *testing.T) {
	compiled := compileEcho(t)

	assert.NoError(t, compiled.Validate(map[string]any{"messages": "hi"}, map[string]any{"model_name": "openai"}))
	assert.NoError(t, compiled.Validate(map[string]any{}, nil), "required fields may come from the thread")
	assert.ErrorIs(t, compiled.Validate(map[string]any{"messages": 1}, nil), dto.ErrInvalidInput)
	assert.ErrorIs(t, compiled.Validate(nil, map[string]any{"model_name": "gpt"}), dto.ErrInvalidConfig)
}

func TestCompiledGraph_Configurable(t *testing.T) {
	g := NewStateGraph[chatState, chatConfig]().
		AddNode("node", func(ctx context.Context, s chatState) (map[string]any, error) {
			cfg, ok := ConfigFromContext[chatConfig](ctx)
			if !ok {
				return map[string]any{"messages": "no config"}, nil
			}
			return map[string]any{"messages": cfg.ModelName}, nil
		}).
		SetEntryPoint("node").
		SetFinishPoint("node")
	compiled, err := g.Compile()
	require.NoError(t, err)
	ctx := context.Background()

	in := map[string]any{"messages": ""}
	out, err := compiled.Invoke(ctx, in, WithConfigurable(map[string]any{"model_name": "openai"}))
	require.NoError(t, err)
	assert.Equal(t, "openai", out["messages"])

	out, err = compiled.Invoke(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "", out["messages"], "zero config when none is given")

	_, err = compiled.Invoke(ctx, in, WithConfigurable(map[string]any{"model_name": "gpt"}))
	assert.ErrorIs(t, err, dto.ErrInvalidConfig)
	assert.ErrorIs(t, err, validation.ErrInvalidConfig)

	_, err = compiled.Invoke(ctx, in, WithConfigurable(map[string]any{"temperature": 0.5}))
	assert.ErrorIs(t, err, validation.ErrInvalidConfig)

	_, ok := ConfigFromContext[chatConfig](ctx)
	assert.False(t, ok)
}

type loopState struct {
	Messages []string `json:"messages" reducer:"append"`
	Count    int      `json:"count,omitempty"`
}

func compileLoop(t *testing.T) *CompiledGraph[loopState, struct{}] {
	t.Helper()
	g := NewStateGraph[loopState, struct{}]().
		AddNode("agent", func(ctx context.Context, s loopState) (map[string]any, error) {
			return map[string]any{"messages": []string{"agent"}, "count": s.Count + 1}, nil
		}).
		AddNode("tools", func(ctx context.Context, s loopState) (map[string]any, error) {
			return map[string]any{"messages": []string{"tool"}}, nil
		}).
		SetEntryPoint("agent").
		AddConditionalEdges("agent", func(ctx context.Context, s loopState) (string, error) {
			if s.Count < 3 {
				return "continue", nil
			}
			return "end", nil
		}, map[string]string{"continue": "tools", "end": End}).
		AddEdge("tools", "agent")
	compiled, err := g.Compile(WithGraphID("loop"))
	require.NoError(t, err)
	return compiled
}

func TestCompiledGraph_ConditionalLoop(t *testing.T) {
	compiled := compileLoop(t)

	out, err := compiled.InvokeState(context.Background(), loopState{Messages: []string{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "agent", "tool", "agent", "tool", "agent"}, out.Messages)
	assert.Equal(t, 3, out.Count)

	_, err = compiled.Invoke(context.Background(), map[string]any{"messages": []string{}}, WithRecursionLimit(2))
	assert.ErrorIs(t, err, dto.ErrRecursionLimit)
}

func TestCompiledGraph_Threads(t *testing.T) {
	saver := memory.DefaultInMemorySaver()
	defer func() { _ = saver.Close() }()
	compiled := compileEcho(t, WithCheckpointer(saver), WithGraphID("echo"))
	ctx := context.Background()

	state, err := compiled.GetState(ctx, "thread-1")
	require.NoError(t, err)
	assert.Empty(t, state)

	_, err = compiled.Invoke(ctx, map[string]any{"messages": "first"}, WithThread("thread-1"), WithRunID("run-1"))
	require.NoError(t, err)
	_, err = compiled.Invoke(ctx, map[string]any{"messages": "second"}, WithThread("thread-1"), WithTimeout(time.Second))
	require.NoError(t, err)

	state, err = compiled.GetState(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "second", state["messages"])

	list, err := compiled.Checkpoints().ListCheckpoints(ctx, "echo", "thread-1")
	require.NoError(t, err)
	assert.Len(t, list, 4)

	_, err = compileEcho(t).GetState(ctx, "thread-1")
	assert.ErrorIs(t, err, ErrNoCheckpointer)
	assert.Nil(t, compileEcho(t).Checkpoints())
}

func TestStateGraph_CompileErrors(t *testing.T) {
	noop := func(ctx context.Context, s chatState) (map[string]any, error) { return nil, nil }

	tests := []struct {
		name  string
		build func() *StateGraph[chatState, struct{}]
		want  error
	}{
		{
			name: "duplicate node",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().AddNode("a", noop).AddNode("a", noop)
			},
			want: cgraph.ErrDuplicateNode,
		},
		{
			name: "reserved name",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().AddNode(End, noop)
			},
			want: cgraph.ErrReservedNodeID,
		},
		{
			name: "nil node",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().AddNode("a", nil)
			},
			want: ErrNilFunc,
		},
		{
			name: "no entry point",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().AddNode("a", noop).SetFinishPoint("a")
			},
			want: cgraph.ErrNoEntryPoint,
		},
		{
			name: "unknown edge target",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().AddNode("a", noop).SetEntryPoint("a").AddEdge("a", "b")
			},
			want: cgraph.ErrTargetNodeNotFound,
		},
		{
			name: "dead end",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().AddNode("a", noop).SetEntryPoint("a")
			},
			want: cgraph.ErrDeadEndNode,
		},
		{
			name: "fan out",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().
					AddNode("a", noop).AddNode("b", noop).AddNode("c", noop).
					SetEntryPoint("a").AddEdge("a", "b").AddEdge("a", "c").
					SetFinishPoint("b").SetFinishPoint("c")
			},
			want: cgraph.ErrFanOutUnsupported,
		},
		{
			name: "unreachable node",
			build: func() *StateGraph[chatState, struct{}] {
				return NewStateGraph[chatState, struct{}]().
					AddNode("a", noop).AddNode("b", noop).
					SetEntryPoint("a").SetFinishPoint("a").SetFinishPoint("b")
			},
			want: cgraph.ErrUnreachableNode,
		},
		{
			name: "duplicate router",
			build: func() *StateGraph[chatState, struct{}] {
				route := func(ctx context.Context, s chatState) (string, error) { return "x", nil }
				return NewStateGraph[chatState, struct{}]().AddNode("a", noop).
					AddConditionalEdges("a", route, map[string]string{"x": End}).
					AddConditionalEdges("a", route, map[string]string{"y": End})
			},
			want: ErrDuplicateRouter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStateGraph_UnknownReducer(t *testing.T) {
	type badState struct {
		Items []string `json:"items" reducer:"sum"`
	}
	_, err := NewStateGraph[badState, struct{}]().
		AddNode("a", func(ctx context.Context, s badState) (map[string]any, error) { return nil, nil }).
		SetEntryPoint("a").SetFinishPoint("a").
		Compile()
	assert.Error(t, err)
}

func TestNewRunManager(t *testing.T) {
	saver := memory.DefaultInMemorySaver()
	defer func() { _ = saver.Close() }()
	var r Runnable = compileEcho(t, WithCheckpointer(saver))

	manager := NewRunManager(r)
	ctx := context.Background()
	th, err := manager.CreateThread(ctx, nil)
	require.NoError(t, err)

	run, err := manager.CreateRun(ctx, th.ThreadID, dto.RunRequest{
		Input:        map[string]any{"messages": "hello"},
		Configurable: map[string]any{"model_name": "anthropic"},
	})
	require.NoError(t, err)

	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := manager.JoinRun(joinCtx, th.ThreadID, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusSuccess, done.Status)
	assert.Equal(t, "hello", done.Output["messages"])

	state, err := manager.ThreadState(ctx, th.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "hello", state.Values["messages"])
	_, err = manager.CreateRun(ctx, th.ThreadID, dto.RunRequest{
		Input:        map[string]any{"messages": "again"},
		Configurable: map[string]any{"model_name": "bad"},
	})
	assert.ErrorIs(t, err, dto.ErrInvalidConfig)
	runs, err := manager.ListRuns(ctx, th.ThreadID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
