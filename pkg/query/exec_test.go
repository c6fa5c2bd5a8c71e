package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/graph"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
	"github.com/cuemby/rem/pkg/vector"
)

const tenant = "acct_1"

const docSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string"},
    "summary": {"type": "string"}
  }
}`

// stubEmbedder returns a fixed vector per input text, keyed by exact
// string match, so vector-search tests are deterministic without a real
// embedding model.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func newTestEngine(t *testing.T, embedder TextEmbedder) (*Engine, *entity.Store, *graph.Store) {
	t.Helper()
	kvStore, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kvStore.Close() })

	reg := schema.NewRegistry(schema.NewKVStore(kvStore))
	require.NoError(t, reg.Register(tenant, &types.SchemaDescription{
		Name:          "docs",
		JSONSchema:    []byte(docSchema),
		KeyField:      "summary",
		IndexedFields: []string{"category"},
		Metric:        types.MetricCosine,
	}))

	entities := entity.NewStore(kvStore, reg, nil, entity.DefaultConfig())
	idx := vector.NewIndex()
	vmgr := vector.NewManager(idx, kvStore, reg)
	entities.SetVectors(vmgr)

	graphs := graph.NewStore(kvStore)

	engine := NewEngine(entities, graphs, vmgr, reg, embedder)
	return engine, entities, graphs
}

func insertDoc(t *testing.T, entities *entity.Store, category, summary string, vec []float32) types.Entity {
	t.Helper()
	id, err := entities.Insert(tenant, "docs", map[string]types.Value{
		"category": types.String(category),
		"summary":  types.String(summary),
	})
	require.NoError(t, err)
	if vec != nil {
		require.NoError(t, entities.SetEmbedding(tenant, types.Task{
			EntityID: id, Field: "embedding", Embedding: vec,
		}))
	}
	ent, err := entities.Get(tenant, id)
	require.NoError(t, err)
	return *ent
}

func TestExecSelectScanAndFilter(t *testing.T) {
	engine, entities, _ := newTestEngine(t, nil)
	insertDoc(t, entities, "ops", "deploy guide", nil)
	insertDoc(t, entities, "tutorial", "python basics", nil)

	rows, err := engine.Query(context.Background(), tenant, `SELECT * FROM docs WHERE CONTAINS(summary, 'deploy')`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, ok := rows[0].Get("category")
	require.True(t, ok)
	s, _ := v.String()
	require.Equal(t, "ops", s)
}

func TestExecSelectIndexMode(t *testing.T) {
	engine, entities, _ := newTestEngine(t, nil)
	insertDoc(t, entities, "ops", "deploy guide", nil)
	insertDoc(t, entities, "ops", "rollback guide", nil)
	insertDoc(t, entities, "tutorial", "python basics", nil)

	rows, err := engine.Query(context.Background(), tenant, `SELECT * FROM docs WHERE category = 'ops' ORDER BY summary ASC`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestExecSelectKeyMode(t *testing.T) {
	engine, entities, _ := newTestEngine(t, nil)
	ent := insertDoc(t, entities, "ops", "deploy guide", nil)

	rows, err := engine.Query(context.Background(), tenant, `SELECT * FROM docs WHERE id = '`+ent.ID.String()+`'`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	idVal, _ := rows[0].Get("id")
	s, _ := idVal.String()
	require.Equal(t, ent.ID.String(), s)
}

func TestExecSelectNonexistentTypeReturnsEmpty(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	rows, err := engine.Query(context.Background(), tenant, `SELECT * FROM nothing`)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestExecVectorSearch(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"deploy something": {1, 0, 0},
	}}
	engine, entities, _ := newTestEngine(t, embedder)
	insertDoc(t, entities, "ops", "deploy guide", []float32{1, 0, 0})
	insertDoc(t, entities, "tutorial", "python basics", []float32{0, 1, 0})

	rows, err := engine.Query(context.Background(), tenant, `SELECT * FROM docs WHERE embedding.cosine('deploy something') LIMIT 1`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, ok := rows[0].Get("category")
	require.True(t, ok)
	s, _ := v.String()
	require.Equal(t, "ops", s)
	_, ok = rows[0].Get("_score")
	require.True(t, ok)
}

func TestExecSearchStatement(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"how do I roll back": {1, 0, 0},
	}}
	engine, entities, _ := newTestEngine(t, embedder)
	insertDoc(t, entities, "ops", "rollback guide", []float32{1, 0, 0})

	rows, err := engine.Query(context.Background(), tenant, `SEARCH 'how do I roll back' IN docs LIMIT 5`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestExecLookup(t *testing.T) {
	engine, entities, _ := newTestEngine(t, nil)
	insertDoc(t, entities, "ops", "deploy guide", nil)

	rows, err := engine.Query(context.Background(), tenant, `LOOKUP 'deploy guide'`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestExecTraverse(t *testing.T) {
	engine, entities, graphs := newTestEngine(t, nil)
	a := insertDoc(t, entities, "ops", "service a", nil)
	b := insertDoc(t, entities, "ops", "service b", nil)

	require.NoError(t, graphs.InsertEdge(tenant, &types.Edge{
		SrcID: a.ID, DstID: b.ID, EdgeType: "depends_on",
	}, entities, false))

	rows, err := engine.Query(context.Background(), tenant, `TRAVERSE FROM '`+a.ID.String()+`' DEPTH 1 DIRECTION out`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	first, _ := rows[0].Get("id")
	s, _ := first.String()
	require.Equal(t, a.ID.String(), s)
}
