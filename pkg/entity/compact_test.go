package entity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

type fakeEdgeRemover struct {
	removed []uuid.UUID
}

func (f *fakeEdgeRemover) DeleteEdgesForEntity(_ string, id uuid.UUID) error {
	f.removed = append(f.removed, id)
	return nil
}

// TestCompactPurgesOldTombstones is the round-trip R1 check: insert, delete,
// let the tombstone age past the cutoff, compact, and confirm the record,
// the byid index, the secondary index, and the fuzzy index are all gone —
// and that the edge store was asked to drop the id's edges too.
func TestCompactPurgesOldTombstones(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)
	edges := &fakeEdgeRemover{}
	st.SetEdges(edges)

	id, err := st.Insert("acct_1", "resources", map[string]types.Value{
		"name": types.String("Old Guide"), "category": types.String("tutorial"),
	})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-48 * time.Hour)
	st.now = func() time.Time { return old }
	require.NoError(t, st.Delete("acct_1", id))
	st.now = time.Now

	require.NoError(t, st.Compact("acct_1", time.Now().UTC().Add(-24*time.Hour)))

	_, err = st.Get("acct_1", id, WithIncludeDeleted(true))
	assert.ErrorIs(t, err, remerr.ErrNotFound)

	found, err := st.LookupEntity("acct_1", "Old Guide")
	require.NoError(t, err)
	assert.Empty(t, found)

	require.Len(t, edges.removed, 1)
	assert.Equal(t, id, edges.removed[0])
}

// TestCompactLeavesRecentTombstones confirms the cutoff is honored: a
// tombstone newer than cutoff survives compaction and is still visible with
// WithIncludeDeleted.
func TestCompactLeavesRecentTombstones(t *testing.T) {
	st, reg, _ := newTestSetup(t)
	registerResources(t, reg)

	id, err := st.Insert("acct_1", "resources", map[string]types.Value{"name": types.String("Fresh Guide")})
	require.NoError(t, err)
	require.NoError(t, st.Delete("acct_1", id))

	require.NoError(t, st.Compact("acct_1", time.Now().UTC().Add(-24*time.Hour)))

	e, err := st.Get("acct_1", id, WithIncludeDeleted(true))
	require.NoError(t, err)
	assert.True(t, e.Deleted())
}
