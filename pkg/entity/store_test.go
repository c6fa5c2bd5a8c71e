package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
)

type fakeWorker struct {
	tasks []types.Task
}

func (f *fakeWorker) Enqueue(t types.Task) error {
	f.tasks = append(f.tasks, t)
	return nil
}

func newTestSetup(t *testing.T) (*Store, *schema.Registry, *fakeWorker) {
	t.Helper()
	kvStore, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kvStore.Close() })

	reg := schema.NewRegistry(schema.NewKVStore(kvStore))
	w := &fakeWorker{}
	st := NewStore(kvStore, reg, w, DefaultConfig())
	return st, reg, w
}

const resourceSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string"},
    "summary": {"type": "string"}
  }
}`

func registerResources(t *testing.T, reg *schema.Registry) {
	t.Helper()
	require.NoError(t, reg.Register("acct_1", &types.SchemaDescription{
		Name:             "resources",
		JSONSchema:       []byte(resourceSchema),
		KeyField:         "name",
		IndexedFields:    []string{"category"},
		EmbeddableFields: []types.EmbeddableField{{Property: "summary", Slot: "embedding"}},
		EmbeddingDim:     8,
	}))
}

func TestInsertGetRoundTrip(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	id, err := st.Insert("acct_1", "resources", map[string]types.Value{
		"name":     types.String("Python Guide"),
		"category": types.String("tutorial"),
	})
	require.NoError(t, err)

	e, err := st.Get("acct_1", id)
	require.NoError(t, err)
	require.Equal(t, "Python Guide", e.Name)
	require.False(t, e.Deleted())
}

func TestInsertValidationFailure(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	require.NoError(t, reg.Register("acct_1", &types.SchemaDescription{
		Name:       "resources",
		JSONSchema: []byte(`{"type":"object","required":["name"]}`),
	}))

	_, err := st.Insert("acct_1", "resources", map[string]types.Value{})
	require.ErrorIs(t, err, remerr.ErrValidationFailed)
}

func TestInsertEnqueuesEmbedding(t *testing.T) {
	st, reg, w := newTestSetup(t)
	registerResources(t, reg)

	_, err := st.Insert("acct_1", "resources", map[string]types.Value{
		"name":    types.String("Python Guide"),
		"summary": types.String("an intro to python"),
	})
	require.NoError(t, err)
	require.Len(t, w.tasks, 1)
	require.Equal(t, types.TaskGenerateEmbedding, w.tasks[0].Kind)
	require.Equal(t, "embedding", w.tasks[0].Field)
}

func TestUpdateRewritesIndex(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	id, err := st.Insert("acct_1", "resources", map[string]types.Value{
		"name": types.String("Python Guide"), "category": types.String("tutorial"),
	})
	require.NoError(t, err)

	err = st.Update("acct_1", id, map[string]types.Value{
		"name": types.String("Completely Different Topic"), "category": types.String("advanced"),
	})
	require.NoError(t, err)

	e, err := st.Get("acct_1", id)
	require.NoError(t, err)
	require.Equal(t, "Completely Different Topic", e.Name)

	found, err := st.LookupEntity("acct_1", "Python Guide")
	require.NoError(t, err)
	require.Empty(t, found)

	found, err = st.LookupEntity("acct_1", "Completely Different Topic")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestDeleteIsSoft(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	id, err := st.Insert("acct_1", "resources", map[string]types.Value{"name": types.String("X")})
	require.NoError(t, err)

	require.NoError(t, st.Delete("acct_1", id))

	_, err = st.Get("acct_1", id)
	require.True(t, errors.Is(err, remerr.ErrNotFound))

	e, err := st.Get("acct_1", id, WithIncludeDeleted(true))
	require.NoError(t, err)
	require.True(t, e.Deleted())
}

func TestLookupExactTier(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	_, err := st.Insert("acct_1", "resources", map[string]types.Value{"name": types.String("alice@company.com")})
	require.NoError(t, err)

	found, err := st.LookupEntity("acct_1", "alice@company.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "alice@company.com", found[0].Name)
}

func TestLookupPrefixTier(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	_, err := st.Insert("acct_1", "resources", map[string]types.Value{"name": types.String("alice@company.com")})
	require.NoError(t, err)

	found, err := st.LookupEntity("acct_1", "alice@comp")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestLookupFuzzyTier(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	_, err := st.Insert("acct_1", "resources", map[string]types.Value{"name": types.String("alice company com")})
	require.NoError(t, err)

	found, err := st.LookupEntity("acct_1", "alise compny")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "alice company com", found[0].Name)
}

func TestTenantIsolationAcrossEntities(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)
	require.NoError(t, reg.Register("acct_2", &types.SchemaDescription{
		Name: "resources", JSONSchema: []byte(resourceSchema), KeyField: "name",
	}))

	id, err := st.Insert("acct_1", "resources", map[string]types.Value{"name": types.String("Only in one")})
	require.NoError(t, err)

	_, err = st.Get("acct_2", id)
	require.ErrorIs(t, err, remerr.ErrNotFound)
}
