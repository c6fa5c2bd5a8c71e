package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRegistry(NewKVStore(store))
}

const resourceSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string"},
    "views": {"type": "integer", "minimum": 0}
  },
  "required": ["category"]
}`

func TestRegisterAndValidate(t *testing.T) {
	r := newTestRegistry(t)
	desc := &types.SchemaDescription{
		Name:       "resources",
		JSONSchema: []byte(resourceSchema),
		Category:   types.CategoryUser,
		KeyField:   "name",
	}
	require.NoError(t, r.Register("acct_1", desc))
	require.Equal(t, 1, desc.Version)

	err := r.Validate("acct_1", "resources", map[string]types.Value{
		"category": types.String("tutorial"),
		"views":    types.Int(10),
	})
	require.NoError(t, err)

	err = r.Validate("acct_1", "resources", map[string]types.Value{
		"views": types.Int(10),
	})
	require.ErrorIs(t, err, remerr.ErrValidationFailed)
}

func TestRegisterInvalidSchema(t *testing.T) {
	r := newTestRegistry(t)
	desc := &types.SchemaDescription{
		Name:       "broken",
		JSONSchema: []byte(`{"type": "not-a-type"}`),
	}
	err := r.Register("acct_1", desc)
	require.ErrorIs(t, err, remerr.ErrSchemaInvalid)
}

func TestReRegisterBumpsVersion(t *testing.T) {
	r := newTestRegistry(t)
	desc := &types.SchemaDescription{Name: "agents", JSONSchema: []byte(`{"type":"object"}`)}
	require.NoError(t, r.Register("acct_1", desc))
	require.Equal(t, 1, desc.Version)

	desc2 := &types.SchemaDescription{Name: "agents", JSONSchema: []byte(`{"type":"object"}`)}
	require.NoError(t, r.Register("acct_1", desc2))
	require.Equal(t, 2, desc2.Version)
}

func TestGetUnknownSchema(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get("acct_1", "nope")
	require.True(t, errors.Is(err, remerr.ErrSchemaNotFound))
}

func TestListByCategory(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("acct_1", &types.SchemaDescription{
		Name: "resources", JSONSchema: []byte(`{"type":"object"}`), Category: types.CategoryUser,
	}))
	require.NoError(t, r.Register("acct_1", &types.SchemaDescription{
		Name: "system_log", JSONSchema: []byte(`{"type":"object"}`), Category: types.CategorySystem,
	}))

	userSchemas, err := r.ListByCategory("acct_1", types.CategoryUser)
	require.NoError(t, err)
	require.Len(t, userSchemas, 1)
	require.Equal(t, "resources", userSchemas[0].Name)

	all, err := r.ListByCategory("acct_1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestTenantSchemasIsolated(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("acct_1", &types.SchemaDescription{
		Name: "resources", JSONSchema: []byte(`{"type":"object"}`),
	}))
	_, err := r.Get("acct_2", "resources")
	require.ErrorIs(t, err, remerr.ErrSchemaNotFound)
}
