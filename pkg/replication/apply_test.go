package replication

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
)

const testTenant = "acct_1"

func entityOp(t *testing.T, id uuid.UUID, seq uint64, modifiedAt time.Time, origin string) *Operation {
	t.Helper()
	e := &types.Entity{
		ID: id, TenantID: testTenant, Type: "docs",
		Properties: map[string]types.Value{"name": types.String("v")},
		CreatedAt:  modifiedAt, ModifiedAt: modifiedAt, OriginNodeID: origin,
	}
	data, err := codec.EncodeEntity(e)
	require.NoError(t, err)
	key := codec.EntityKey(testTenant, "docs", id)
	return &Operation{
		TenantID: testTenant, Seq: seq, Timestamp: modifiedAt.UnixNano(),
		Op: uint8(types.WALPut), Key: key, Value: data,
		Checksum: codec.ChecksumPayload(key, data),
	}
}

func TestApplierRejectsBadChecksum(t *testing.T) {
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	a := NewApplier(store, "local")
	op := entityOp(t, uuid.New(), 1, time.Now(), "peer-a")
	op.Checksum ^= 0xFF

	err = a.Apply(op)
	assert.ErrorIs(t, err, remerr.ErrChecksumFailed)
}

func TestApplierDetectsSequenceGap(t *testing.T) {
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	a := NewApplier(store, "local")
	id := uuid.New()
	require.NoError(t, a.Apply(entityOp(t, id, 1, time.Now(), "peer-a")))

	err = a.Apply(entityOp(t, id, 3, time.Now(), "peer-a"))
	assert.ErrorIs(t, err, remerr.ErrSequenceGap)
}

func TestApplierLastWriteWinsByModifiedAt(t *testing.T) {
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	a := NewApplier(store, "local")
	id := uuid.New()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	require.NoError(t, a.Apply(entityOp(t, id, 1, newer, "peer-a")))
	require.NoError(t, a.Apply(entityOp(t, id, 2, older, "peer-b")))

	raw, err := store.Get(testTenant, kv.BucketDefault, codec.EntityKey(testTenant, "docs", id))
	require.NoError(t, err)
	got, err := codec.DecodeEntity(raw)
	require.NoError(t, err)
	assert.Equal(t, "peer-a", got.OriginNodeID)
}

func TestApplierConflictTieBreakByOriginNodeID(t *testing.T) {
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	a := NewApplier(store, "local")
	id := uuid.New()
	same := time.Now()

	require.NoError(t, a.Apply(entityOp(t, id, 1, same, "peer-b")))
	require.NoError(t, a.Apply(entityOp(t, id, 2, same, "peer-a")))

	raw, err := store.Get(testTenant, kv.BucketDefault, codec.EntityKey(testTenant, "docs", id))
	require.NoError(t, err)
	got, err := codec.DecodeEntity(raw)
	require.NoError(t, err)
	assert.Equal(t, "peer-a", got.OriginNodeID)
}

func TestApplierDelete(t *testing.T) {
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	a := NewApplier(store, "local")
	id := uuid.New()
	require.NoError(t, a.Apply(entityOp(t, id, 1, time.Now(), "peer-a")))

	key := codec.EntityKey(testTenant, "docs", id)
	delOp := &Operation{
		TenantID: testTenant, Seq: 2, Op: uint8(types.WALDelete), Key: key,
		Checksum: codec.ChecksumPayload(key, nil),
	}
	require.NoError(t, a.Apply(delOp))

	_, err = store.Get(testTenant, kv.BucketDefault, key)
	assert.ErrorIs(t, err, remerr.ErrNotFound)
}

// TestApplierKeepsEntityReachableByID is the convergence check spec.md
// §4.8 requires: after catch-up on a peer that never itself ran the
// Insert that produced op, entity.Store.Get(id) — which resolves purely
// through the id->type index, not a raw BucketDefault read — must still
// find the record.
func TestApplierKeepsEntityReachableByID(t *testing.T) {
	store, err := kv.NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reg := schema.NewRegistry(schema.NewKVStore(store))
	require.NoError(t, reg.Register(testTenant, &types.SchemaDescription{
		Name:       "docs",
		JSONSchema: []byte(`{"type":"object"}`),
	}))
	entities := entity.NewStore(store, reg, nil, entity.DefaultConfig())

	a := NewApplier(store, "peer-b")
	id := uuid.New()
	require.NoError(t, a.Apply(entityOp(t, id, 1, time.Now(), "peer-a")))

	got, err := entities.Get(testTenant, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}
