package vector

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

func TestUpsertAndSearchRoundTrip(t *testing.T) {
	idx := NewIndex()
	id1, id2 := uuid.New(), uuid.New()

	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id1, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id2, []float32{0, 1, 0}))

	results, err := idx.Search("acct_1", "docs", "embedding", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id1, results[0].ID)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	idx := NewIndex()
	id := uuid.New()
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id, []float32{1, 0, 0}))

	err := idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, uuid.New(), []float32{1, 0})
	require.ErrorIs(t, err, remerr.ErrValidationFailed)
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, uuid.New(), []float32{1, 0, 0}))

	_, err := idx.Search("acct_1", "docs", "embedding", []float32{1, 0}, 1)
	require.ErrorIs(t, err, remerr.ErrValidationFailed)
}

func TestRemove(t *testing.T) {
	idx := NewIndex()
	id := uuid.New()
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id, []float32{1, 0, 0}))
	require.Equal(t, 1, idx.Len("acct_1", "docs", "embedding"))

	idx.Remove("acct_1", "docs", "embedding", id)
	require.Equal(t, 0, idx.Len("acct_1", "docs", "embedding"))

	results, err := idx.Search("acct_1", "docs", "embedding", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	idx := NewIndex()
	id1, id2 := uuid.New(), uuid.New()
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id1, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id2, []float32{0, 1, 0}))

	var buf bytes.Buffer
	require.NoError(t, idx.Snapshot(&buf, "acct_1", "docs", "embedding"))

	restored := NewIndex()
	require.NoError(t, restored.Restore(&buf, "acct_1", "docs", "embedding", types.MetricCosine))

	require.Equal(t, 2, restored.Len("acct_1", "docs", "embedding"))
	results, err := restored.Search("acct_1", "docs", "embedding", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id1, results[0].ID)
}

func TestSnapshotUnknownGraph(t *testing.T) {
	idx := NewIndex()
	var buf bytes.Buffer
	err := idx.Snapshot(&buf, "acct_1", "missing", "embedding")
	require.ErrorIs(t, err, remerr.ErrNotFound)
}

func TestRestoreBadMagic(t *testing.T) {
	idx := NewIndex()
	err := idx.Restore(bytes.NewReader([]byte("not a valid snapshot header")), "acct_1", "docs", "embedding", types.MetricCosine)
	require.ErrorIs(t, err, remerr.ErrCorrupt)
}

func TestTenantTypeFieldIsolation(t *testing.T) {
	idx := NewIndex()
	id := uuid.New()
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricCosine, id, []float32{1, 0, 0}))

	require.Equal(t, 0, idx.Len("acct_2", "docs", "embedding"))
	require.Equal(t, 0, idx.Len("acct_1", "other", "embedding"))
	require.Equal(t, 0, idx.Len("acct_1", "docs", "other_field"))
	require.Equal(t, 1, idx.Len("acct_1", "docs", "embedding"))
}

func TestInnerProductMetric(t *testing.T) {
	idx := NewIndex()
	id1, id2 := uuid.New(), uuid.New()
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricInnerProduct, id1, []float32{3, 0, 0}))
	require.NoError(t, idx.Upsert("acct_1", "docs", "embedding", types.MetricInnerProduct, id2, []float32{1, 0, 0}))

	results, err := idx.Search("acct_1", "docs", "embedding", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, id1, results[0].ID)
}
