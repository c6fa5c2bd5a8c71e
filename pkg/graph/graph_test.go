package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
)

const personSchema = `{"type":"object","properties":{"name":{"type":"string"}}}`

func newTestGraph(t *testing.T) (*Store, *entity.Store) {
	t.Helper()
	kvStore, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kvStore.Close() })

	reg := schema.NewRegistry(schema.NewKVStore(kvStore))
	require.NoError(t, reg.Register("acct_1", &types.SchemaDescription{
		Name: "people", JSONSchema: []byte(personSchema), KeyField: "name",
	}))
	entities := entity.NewStore(kvStore, reg, nil, entity.DefaultConfig())
	return NewStore(kvStore), entities
}

func mustInsertPerson(t *testing.T, entities *entity.Store, name string) uuid.UUID {
	t.Helper()
	id, err := entities.Insert("acct_1", "people", map[string]types.Value{"name": types.String(name)})
	require.NoError(t, err)
	return id
}

func TestInsertEdgeRequiresExistingEndpoints(t *testing.T) {
	g, entities := newTestGraph(t)
	alice := mustInsertPerson(t, entities, "Alice")

	err := g.InsertEdge("acct_1", &types.Edge{SrcID: alice, DstID: uuid.New(), EdgeType: "knows"}, entities, false)
	require.ErrorIs(t, err, remerr.ErrNotFound)
}

func TestTraverseBFS(t *testing.T) {
	g, entities := newTestGraph(t)
	alice := mustInsertPerson(t, entities, "Alice")
	bob := mustInsertPerson(t, entities, "Bob")
	charlie := mustInsertPerson(t, entities, "Charlie")

	require.NoError(t, g.InsertEdge("acct_1", &types.Edge{SrcID: alice, DstID: bob, EdgeType: "knows"}, entities, false))
	require.NoError(t, g.InsertEdge("acct_1", &types.Edge{SrcID: bob, DstID: charlie, EdgeType: "knows"}, entities, false))

	result, err := g.Traverse("acct_1", alice, TraverseOptions{Depth: 2, Direction: "out", EdgeType: "knows"}, entities)
	require.NoError(t, err)
	require.Len(t, result, 3)
	require.Equal(t, "Alice", result[0].Name)
	require.Equal(t, "Bob", result[1].Name)
	require.Equal(t, "Charlie", result[2].Name)
}

func TestTraverseDirectionIn(t *testing.T) {
	g, entities := newTestGraph(t)
	alice := mustInsertPerson(t, entities, "Alice")
	bob := mustInsertPerson(t, entities, "Bob")
	require.NoError(t, g.InsertEdge("acct_1", &types.Edge{SrcID: alice, DstID: bob, EdgeType: "knows"}, entities, false))

	result, err := g.Traverse("acct_1", bob, TraverseOptions{Depth: 1, Direction: "in"}, entities)
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, "Bob", result[0].Name)
	require.Equal(t, "Alice", result[1].Name)
}

func TestGetEdgesFiltersByType(t *testing.T) {
	g, entities := newTestGraph(t)
	alice := mustInsertPerson(t, entities, "Alice")
	bob := mustInsertPerson(t, entities, "Bob")
	require.NoError(t, g.InsertEdge("acct_1", &types.Edge{SrcID: alice, DstID: bob, EdgeType: "knows"}, entities, false))
	require.NoError(t, g.InsertEdge("acct_1", &types.Edge{SrcID: alice, DstID: bob, EdgeType: "manages"}, entities, false))

	edges, err := g.GetEdges("acct_1", alice, "out", "knows")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "knows", edges[0].EdgeType)
}

func TestDeleteEdgeRemovesBothDirections(t *testing.T) {
	g, entities := newTestGraph(t)
	alice := mustInsertPerson(t, entities, "Alice")
	bob := mustInsertPerson(t, entities, "Bob")
	require.NoError(t, g.InsertEdge("acct_1", &types.Edge{SrcID: alice, DstID: bob, EdgeType: "knows"}, entities, false))

	require.NoError(t, g.DeleteEdge("acct_1", alice, bob, "knows"))

	out, err := g.GetEdges("acct_1", alice, "out", "")
	require.NoError(t, err)
	require.Empty(t, out)
	in, err := g.GetEdges("acct_1", bob, "in", "")
	require.NoError(t, err)
	require.Empty(t, in)
}
