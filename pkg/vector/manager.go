package vector

import (
	"bytes"
	"errors"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
)

// Manager wires the in-memory Index to the schema registry (for the
// declared metric per field) and to pkg/kv (for the vector_meta snapshot
// persistence spec §6 assigns to the worker, not the index itself).
// pkg/worker's VectorIndexer and pkg/entity's VectorUpserter are both
// satisfied by *Manager.
type Manager struct {
	index   *Index
	kv      *kv.Store
	schemas *schema.Registry
}

func NewManager(index *Index, store *kv.Store, schemas *schema.Registry) *Manager {
	return &Manager{index: index, kv: store, schemas: schemas}
}

// Upsert resolves the schema's declared metric for typ and inserts vec
// into the (tenant, typ, field) graph.
func (m *Manager) Upsert(tenant, typ, field string, id uuid.UUID, vec []float32) error {
	metric, err := m.metricFor(tenant, typ)
	if err != nil {
		return err
	}
	return m.index.Upsert(tenant, typ, field, metric, id, vec)
}

func (m *Manager) Remove(tenant, typ, field string, id uuid.UUID) {
	m.index.Remove(tenant, typ, field, id)
}

func (m *Manager) Search(tenant, typ, field string, query []float32, k int) ([]Result, error) {
	return m.index.Search(tenant, typ, field, query, k)
}

func (m *Manager) metricFor(tenant, typ string) (types.VectorMetric, error) {
	desc, err := m.schemas.Get(tenant, typ)
	if err != nil {
		return types.MetricCosine, err
	}
	if desc.Metric == "" {
		return types.MetricCosine, nil
	}
	return desc.Metric, nil
}

// SaveSnapshot serializes the (tenant, typ, field) graph and writes it to
// the vector_meta column family, satisfying pkg/worker.VectorIndexer for
// the SaveIndex task (spec §4.6).
func (m *Manager) SaveSnapshot(tenant, typ, field string) error {
	var buf bytes.Buffer
	if err := m.index.Snapshot(&buf, tenant, typ, field); err != nil {
		if errors.Is(err, remerr.ErrNotFound) {
			return nil
		}
		return err
	}
	return m.kv.PutOne(tenant, kv.BucketVectorMeta, codec.VectorSnapshotKey(typ, field), buf.Bytes())
}

// LoadSnapshot reads a previously saved snapshot back into the in-memory
// graph, satisfying pkg/worker.VectorIndexer for the LoadIndex task. A
// missing snapshot (first run for this field) is not an error.
func (m *Manager) LoadSnapshot(tenant, typ, field string) error {
	data, err := m.kv.Get(tenant, kv.BucketVectorMeta, codec.VectorSnapshotKey(typ, field))
	if err != nil {
		if errors.Is(err, remerr.ErrNotFound) {
			return nil
		}
		return err
	}
	metric, err := m.metricFor(tenant, typ)
	if err != nil {
		return err
	}
	return m.index.Restore(bytes.NewReader(data), tenant, typ, field, metric)
}

// Len exposes the underlying index's vector count, for the metrics
// collector.
func (m *Manager) Len(tenant, typ, field string) int {
	return m.index.Len(tenant, typ, field)
}
