package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Apply(t *testing.T) {
	schema := NewSchema()
	require.NoError(t, schema.Add("messages", nil))
	appendReducer, err := NewReducer(ReducerTypeAppend)
	require.NoError(t, err)
	require.NoError(t, schema.Add("history", appendReducer))

	t.Run("replace channel overwrites", func(t *testing.T) {
		state := map[string]interface{}{"messages": "hello"}
		out, err := schema.Apply(state, map[string]interface{}{"messages": "world"})
		require.NoError(t, err)
		assert.Equal(t, "world", out["messages"])
		assert.Equal(t, "hello", state["messages"], "input state must not be mutated")
	})

	t.Run("append channel accumulates", func(t *testing.T) {
		state := map[string]interface{}{"history": []string{"a"}}
		out, err := schema.Apply(state, map[string]interface{}{"history": []string{"b", "c"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, out["history"])
	})

	t.Run("empty update keeps state", func(t *testing.T) {
		out, err := schema.Apply(map[string]interface{}{"messages": ""}, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"messages": ""}, out)
	})

	t.Run("undeclared channel", func(t *testing.T) {
		_, err := schema.Apply(nil, map[string]interface{}{"other": 1})
		assert.ErrorIs(t, err, ErrUnknownChannel)
	})

	t.Run("nil schema overwrites anything", func(t *testing.T) {
		var open *Schema
		out, err := open.Apply(map[string]interface{}{"a": 1}, map[string]interface{}{"a": 2, "b": 3})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"a": 2, "b": 3}, out)
	})
}

func TestSchema_Add(t *testing.T) {
	schema := NewSchema()
	require.NoError(t, schema.Add("messages", nil))
	assert.ErrorIs(t, schema.Add("messages", nil), ErrDuplicateChannel)
	assert.ErrorIs(t, schema.Add("", nil), ErrInvalidChannelName)
	assert.Equal(t, []string{"messages"}, schema.Names())

	r, ok := schema.Reducer("messages")
	require.True(t, ok)
	assert.Equal(t, ReducerTypeReplace, r.Type())
}

func TestAppendReducer(t *testing.T) {
	r := AppendReducer{}

	tests := []struct {
		name    string
		current interface{}
		update  interface{}
		want    interface{}
	}{
		{name: "nil current", current: nil, update: []string{"a"}, want: []string{"a"}},
		{name: "nil update", current: []string{"a"}, update: nil, want: []string{"a"}},
		{name: "same slice types", current: []int{1}, update: []int{2}, want: []int{1, 2}},
		{name: "mixed slice types", current: []interface{}{"a"}, update: []string{"b"}, want: []interface{}{"a", "b"}},
		{name: "element onto slice", current: []string{"a"}, update: "b", want: []string{"a", "b"}},
		{name: "scalar pair", current: "a", update: "b", want: []interface{}{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Reduce(tt.current, tt.update))
		})
	}
}

func TestMergeReducer(t *testing.T) {
	r := MergeReducer{}
	current := map[string]interface{}{"a": 1, "nested": map[string]interface{}{"x": 1}}
	update := map[string]interface{}{"b": 2, "nested": map[string]interface{}{"y": 2}}

	got := r.Reduce(current, update)
	assert.Equal(t, map[string]interface{}{
		"a":      1,
		"b":      2,
		"nested": map[string]interface{}{"x": 1, "y": 2},
	}, got)
	assert.Equal(t, "scalar", r.Reduce(current, "scalar"))
}

func TestNewReducer(t *testing.T) {
	for _, typ := range []ReducerType{"", ReducerTypeReplace, ReducerTypeAppend, ReducerTypeMerge} {
		_, err := NewReducer(typ)
		assert.NoError(t, err, typ)
	}
	_, err := NewReducer("max")
	assert.ErrorIs(t, err, ErrUnknownReducer)
}
