package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckpoint_Validate(t *testing.T) {
	valid := func() *Checkpoint {
		return &Checkpoint{
			ID:       "cp-1",
			GraphID:  "agent",
			ThreadID: "thread-1",
			State:    map[string]interface{}{"messages": "hello"},
		}
	}

	t.Run("valid checkpoint gets a version", func(t *testing.T) {
		cp := valid()
		assert.NoError(t, cp.Validate())
		assert.Equal(t, CurrentVersion, cp.Version)
	})

	tests := []struct {
		name    string
		mutate  func(*Checkpoint)
		wantErr error
	}{
		{name: "missing ID", mutate: func(c *Checkpoint) { c.ID = "" }, wantErr: ErrInvalidCheckpointID},
		{name: "missing graph", mutate: func(c *Checkpoint) { c.GraphID = "" }, wantErr: ErrInvalidGraphID},
		{name: "missing thread", mutate: func(c *Checkpoint) { c.ThreadID = "" }, wantErr: ErrInvalidThreadID},
		{name: "negative step", mutate: func(c *Checkpoint) { c.Metadata.Step = -1 }, wantErr: ErrInvalidStep},
		{name: "nil state", mutate: func(c *Checkpoint) { c.State = nil }, wantErr: ErrNilState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := valid()
			tt.mutate(cp)
			assert.ErrorIs(t, cp.Validate(), tt.wantErr)
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	assert.NoError(t, (&Filter{ThreadID: "t", RunID: "r", Limit: 5}).Validate())
	assert.ErrorIs(t, (&Filter{Limit: -1}).Validate(), ErrInvalidLimit)
	assert.ErrorIs(t, (&Filter{Offset: -1}).Validate(), ErrInvalidOffset)
	assert.ErrorIs(t, (&Filter{Since: &now, Before: &earlier}).Validate(), ErrInvalidTimeRange)
}

func TestFilter_Matches(t *testing.T) {
	now := time.Now()
	hourAgo := now.Add(-time.Hour)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter", filter: Filter{}, want: true},
		{name: "same keys", filter: Filter{GraphID: "agent", ThreadID: "t1", RunID: "r1"}, want: true},
		{name: "other graph", filter: Filter{GraphID: "other"}, want: false},
		{name: "other thread", filter: Filter{ThreadID: "t2"}, want: false},
		{name: "other run", filter: Filter{RunID: "r2"}, want: false},
		{name: "since is inclusive", filter: Filter{Since: &now}, want: true},
		{name: "before is exclusive", filter: Filter{Before: &now}, want: false},
		{name: "since earlier", filter: Filter{Since: &hourAgo}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches("agent", "t1", "r1", now))
		})
	}
}
