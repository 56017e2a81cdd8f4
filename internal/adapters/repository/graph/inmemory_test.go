package graphrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coregraph "github.com/flowgraph/agentgraph/internal/core/graph"
)

func linearGraph(id string) *coregraph.Graph {
	return &coregraph.Graph{
		ID:         id,
		Name:       "test-graph",
		EntryPoint: "n1",
		Nodes: map[string]*coregraph.Node{
			"n1": {ID: "n1", Name: "Node 1", Type: coregraph.NodeTypeFunction},
		},
		Edges: []*coregraph.Edge{
			{Source: coregraph.Start, Target: "n1"},
			{Source: "n1", Target: coregraph.End},
		},
	}
}

func TestInMemoryGraphRepository_Get_NotFound(t *testing.T) {
	repo := NewInMemoryGraphRepository()

	g, err := repo.Get(context.Background(), "does-not-exist")
	assert.Nil(t, g)
	assert.ErrorIs(t, err, coregraph.ErrGraphNotFound)
}

func TestInMemoryGraphRepository_SaveAndGet(t *testing.T) {
	repo := NewInMemoryGraphRepository()
	g := linearGraph("g1")

	require.NoError(t, repo.Save(context.Background(), g))

	loaded, err := repo.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Same(t, g, loaded)
}

func TestInMemoryGraphRepository_List(t *testing.T) {
	repo := NewInMemoryGraphRepository()
	require.NoError(t, repo.Save(context.Background(), linearGraph("b")))
	require.NoError(t, repo.Save(context.Background(), linearGraph("a")))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestInMemoryGraphRepository_SaveInvalid(t *testing.T) {
	repo := NewInMemoryGraphRepository()

	g := linearGraph("g-bad")
	g.Edges = append(g.Edges, &coregraph.Edge{Source: "n1", Target: "missing"})
	assert.ErrorIs(t, repo.Save(context.Background(), g), coregraph.ErrTargetNodeNotFound)

	noID := linearGraph("")
	assert.ErrorIs(t, repo.Save(context.Background(), noID), coregraph.ErrInvalidGraphName)
	assert.ErrorIs(t, repo.Save(context.Background(), nil), coregraph.ErrInvalidGraphName)
}
