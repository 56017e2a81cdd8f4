//go:build integration

// Package integration runs graphs end to end against every checkpoint saver.
package integration

import (
	"context"
	"crypto/rand"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/agentgraph/internal/adapters/lock"
	"github.com/flowgraph/agentgraph/internal/adapters/repository/memory"
	"github.com/flowgraph/agentgraph/internal/adapters/repository/postgres"
	"github.com/flowgraph/agentgraph/internal/adapters/repository/sqlite"
	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/app/usecases"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/pkg/agentgraph"
	"github.com/flowgraph/agentgraph/pkg/prebuilt/echo"
	"github.com/flowgraph/agentgraph/pkg/serialization"
)

// savers returns every saver available in this environment. PostgreSQL is
// included only when AGENTGRAPH_TEST_POSTGRES_URL is set.
func savers(t *testing.T) map[string]checkpoint.Saver {
	t.Helper()
	ctx := context.Background()
	out := map[string]checkpoint.Saver{}

	mem := memory.DefaultInMemorySaver()
	t.Cleanup(func() { _ = mem.Close() })
	out["memory"] = mem

	lite, err := sqlite.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	out["sqlite"] = lite

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	sealed, err := serialization.FromNames("json", "gzip", key)
	require.NoError(t, err)
	liteSealed, err := sqlite.Open(ctx, ":memory:", sealed)
	require.NoError(t, err)
	t.Cleanup(func() { _ = liteSealed.Close() })
	out["sqlite-json-gzip-aes"] = liteSealed

	if url := os.Getenv("AGENTGRAPH_TEST_POSTGRES_URL"); url != "" {
		pg, err := postgres.Connect(ctx, url, nil)
		require.NoError(t, err)
		t.Cleanup(pg.Close)
		out["postgres"] = pg
	}
	return out
}

func TestEchoThread_AcrossSavers(t *testing.T) {
	ctx := context.Background()
	for name, saver := range savers(t) {
		t.Run(name, func(t *testing.T) {
			g, err := echo.New(agentgraph.WithCheckpointer(saver))
			require.NoError(t, err)
			thread := "thread-" + name + "-" + time.Now().Format("150405.000000")

			out, err := g.Invoke(ctx, map[string]any{"messages": "hello"}, agentgraph.WithThread(thread))
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"messages": "hello"}, out)

			out, err = g.Invoke(ctx, map[string]any{"messages": "again"}, agentgraph.WithThread(thread))
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"messages": "again"}, out)

			state, err := g.GetState(ctx, thread)
			require.NoError(t, err)
			assert.Equal(t, "again", state["messages"])

			list, err := saver.List(ctx, checkpoint.Filter{GraphID: echo.Name, ThreadID: thread})
			require.NoError(t, err)
			require.Len(t, list, 4)
			assert.Equal(t, 3, list[0].Metadata.Step)
		})
	}
}

type holdState struct {
	Messages []string `json:"messages" reducer:"append"`
	Hold     bool     `json:"hold"`
}

// holdGraph appends "done" unless the state asks it to hold, in which case
// it signals started and waits for cancellation.
func holdGraph(t *testing.T, saver checkpoint.Saver, started chan<- struct{}) agentgraph.Runnable {
	t.Helper()
	g := agentgraph.NewStateGraph[holdState, struct{}]()
	g.AddNode("work", func(ctx context.Context, s holdState) (map[string]any, error) {
		if s.Hold {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return map[string]any{"messages": []string{"done"}}, nil
	}).
		AddEdge(agentgraph.Start, "work").
		AddEdge("work", agentgraph.End)
	compiled, err := g.Compile(agentgraph.WithGraphID("hold"), agentgraph.WithCheckpointer(saver))
	require.NoError(t, err)
	return compiled
}

func TestStrategies_AcrossSavers(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		strategy dto.MultitaskStrategy
		want     []interface{}
	}{
		{dto.StrategyInterrupt, []interface{}{"first", "second", "done"}},
		{dto.StrategyRollback, []interface{}{"second", "done"}},
	}

	for name, saver := range savers(t) {
		for _, tt := range tests {
			t.Run(name+"/"+string(tt.strategy), func(t *testing.T) {
				started := make(chan struct{}, 1)
				runs := agentgraph.NewRunManager(holdGraph(t, saver, started),
					usecases.WithLocker(lock.NewMemoryLocker()))
				t.Cleanup(func() { _ = runs.Shutdown(context.Background()) })

				thread, err := runs.CreateThread(ctx, nil)
				require.NoError(t, err)
				first, err := runs.CreateRun(ctx, thread.ThreadID, dto.RunRequest{
					Input: map[string]any{"messages": []string{"first"}, "hold": true},
				})
				require.NoError(t, err)
				<-started

				second, err := runs.CreateRun(ctx, thread.ThreadID, dto.RunRequest{
					Input:    map[string]any{"messages": []string{"second"}, "hold": false},
					Strategy: tt.strategy,
				})
				require.NoError(t, err)
				done, err := runs.JoinRun(ctx, thread.ThreadID, second.RunID)
				require.NoError(t, err)
				require.Equal(t, dto.RunStatusSuccess, done.Status, done.Error)

				state, err := runs.ThreadState(ctx, thread.ThreadID)
				require.NoError(t, err)
				assert.Equal(t, tt.want, toInterfaces(state.Values["messages"]))

				_, err = runs.GetRun(ctx, thread.ThreadID, first.RunID)
				if tt.strategy == dto.StrategyRollback {
					assert.ErrorIs(t, err, dto.ErrRunNotFound)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	}
}

func TestRunManager_RedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	saver := memory.DefaultInMemorySaver()
	t.Cleanup(func() { _ = saver.Close() })
	g, err := echo.New(agentgraph.WithCheckpointer(saver))
	require.NoError(t, err)

	runs := agentgraph.NewRunManager(g, usecases.WithLocker(lock.NewRedisLocker(client, "it:")))
	thread, err := runs.CreateThread(ctx, nil)
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := runs.CreateRun(ctx, thread.ThreadID, dto.RunRequest{Input: map[string]any{"messages": msg}})
		require.NoError(t, err)
	}
	list, err := runs.ListRuns(ctx, thread.ThreadID)
	require.NoError(t, err)
	for _, r := range list {
		done, err := runs.JoinRun(ctx, thread.ThreadID, r.RunID)
		require.NoError(t, err)
		assert.Equal(t, dto.RunStatusSuccess, done.Status)
	}

	state, err := runs.ThreadState(ctx, thread.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "three", state.Values["messages"])
	assert.Empty(t, mr.Keys(), "thread locks should be released")
}

// toInterfaces normalizes decoded lists, which come back as []string from
// memory state and []interface{} from serialized checkpoints.
func toInterfaces(v any) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return nil
}
