package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/pkg/serialization"
)

func TestPostgresCheckpointSaver(t *testing.T) {
	url := os.Getenv("AGENTGRAPH_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("Integration test requires PostgreSQL database (set AGENTGRAPH_TEST_POSTGRES_URL)")
	}

	ctx := context.Background()
	saver, err := Connect(ctx, url, serialization.DefaultSerializer())
	require.NoError(t, err)
	defer saver.Close()

	thread := uuid.NewString()
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{
			ID:        fmt.Sprintf("%s-%d", thread, i),
			GraphID:   "agent",
			ThreadID:  thread,
			State:     map[string]interface{}{"messages": fmt.Sprint(i)},
			Metadata:  checkpoint.Metadata{Step: i, RunID: fmt.Sprintf("run-%d", i%2)},
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	list, err := saver.List(ctx, checkpoint.Filter{ThreadID: thread})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, thread+"-2", list[0].ID)

	byRun, err := saver.List(ctx, checkpoint.Filter{ThreadID: thread, RunID: "run-0"})
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{
		ID:        thread + "-3",
		GraphID:   "agent",
		ThreadID:  thread,
		State:     map[string]interface{}{"messages": "3"},
		Metadata:  checkpoint.Metadata{Step: 3, RunID: "run-1"},
		Timestamp: base.Add(-time.Hour),
	}))
	list, err = saver.List(ctx, checkpoint.Filter{ThreadID: thread})
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, thread+"-3", list[0].ID, "step orders before a skewed timestamp")

	for _, cp := range list {
		require.NoError(t, saver.Delete(ctx, cp.ID))
	}
	_, err = saver.Load(ctx, list[0].ID)
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
}

func TestBuildListQuery(t *testing.T) {
	s := NewCheckpointSaver(nil, nil)
	since := time.Unix(100, 0)

	query, args := s.buildListQuery(checkpoint.Filter{
		GraphID:  "agent",
		ThreadID: "t1",
		RunID:    "r1",
		Since:    &since,
		Limit:    5,
		Offset:   10,
	})

	assert.Equal(t,
		"SELECT "+selectColumns+" FROM checkpoints WHERE 1=1 AND graph_id = $1 AND thread_id = $2 AND run_id = $3 AND timestamp >= $4 ORDER BY step DESC, timestamp DESC LIMIT $5 OFFSET $6",
		query)
	assert.Equal(t, []interface{}{"agent", "t1", "r1", since, 5, 10}, args)
}

func TestPostgresCheckpointSaver_Errors(t *testing.T) {
	ctx := context.Background()
	saver := &CheckpointSaver{
		pool:       nil,
		serializer: serialization.DefaultSerializer(),
		tableName:  "checkpoints",
	}

	err := saver.Save(ctx, nil)
	assert.Equal(t, checkpoint.ErrInvalidCheckpointID, err)

	_, err = saver.Load(ctx, "")
	assert.Equal(t, checkpoint.ErrInvalidCheckpointID, err)

	err = saver.Delete(ctx, "")
	assert.Equal(t, checkpoint.ErrInvalidCheckpointID, err)
}
