// Package vector implements rem's in-memory HNSW vector index: one graph
// per (tenant, type, field), upsert/remove/search, and the on-disk
// snapshot format used to persist and restore a graph across restarts.
package vector

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/metrics"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

// Result is one hit from Search: the entity id and its distance-derived
// similarity score (higher is closer).
type Result struct {
	ID    uuid.UUID
	Score float32
}

type graphKey struct {
	tenant, typ, field string
}

// graphEntry pairs a graph with the reader/writer lock spec.md §5
// prescribes: many concurrent searches, one exclusive upsert/snapshot.
type graphEntry struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	dim   int
	ids   []string // insertion-order side array, written into snapshots
}

// Index owns every (tenant, type, field) HNSW graph for the process.
type Index struct {
	mu     sync.RWMutex
	graphs map[graphKey]*graphEntry
}

func NewIndex() *Index {
	return &Index{graphs: make(map[graphKey]*graphEntry)}
}

func (idx *Index) entry(tenant, typ, field string, metric types.VectorMetric) *graphEntry {
	key := graphKey{tenant, typ, field}
	idx.mu.RLock()
	e, ok := idx.graphs[key]
	idx.mu.RUnlock()
	if ok {
		return e
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if e, ok := idx.graphs[key]; ok {
		return e
	}
	g := hnsw.NewGraph[string]()
	g.Distance = distanceFunc(metric)
	e = &graphEntry{graph: g}
	idx.graphs[key] = e
	return e
}

func distanceFunc(metric types.VectorMetric) hnsw.DistanceFunc {
	if metric == types.MetricInnerProduct {
		return innerProductDistance
	}
	return hnsw.CosineDistance
}

// innerProductDistance implements the inner-product metric coder/hnsw
// doesn't ship (it provides cosine and Euclidean only): distance is the
// negated dot product, so the nearest neighbor is the highest dot product.
func innerProductDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return -sum
}

// Upsert inserts or replaces the vector for id in the (tenant, type,
// field) graph.
func (idx *Index) Upsert(tenant, typ, field string, metric types.VectorMetric, id uuid.UUID, vec []float32) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.VectorUpsertDuration, tenant, typ)

	e := idx.entry(tenant, typ, field, metric)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = len(vec)
	} else if len(vec) != e.dim {
		return fmt.Errorf("%w: expected dimension %d, got %d", remerr.ErrValidationFailed, e.dim, len(vec))
	}
	e.graph.Delete(id.String())
	e.graph.Add(hnsw.Node[string]{Key: id.String(), Value: vec})
	e.ids = appendUnique(e.ids, id.String())
	metrics.VectorIndexSize.WithLabelValues(tenant, typ).Set(float64(e.graph.Len()))
	return nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Remove deletes id from the (tenant, type, field) graph, if present.
func (idx *Index) Remove(tenant, typ, field string, id uuid.UUID) {
	key := graphKey{tenant, typ, field}
	idx.mu.RLock()
	e, ok := idx.graphs[key]
	idx.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.Delete(id.String())
	for i, existing := range e.ids {
		if existing == id.String() {
			e.ids = append(e.ids[:i], e.ids[i+1:]...)
			break
		}
	}
	metrics.VectorIndexSize.WithLabelValues(tenant, typ).Set(float64(e.graph.Len()))
}

// Search returns the k nearest neighbors to query in the (tenant, type,
// field) graph.
func (idx *Index) Search(tenant, typ, field string, query []float32, k int) ([]Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.VectorSearchDuration, tenant, typ)

	key := graphKey{tenant, typ, field}
	idx.mu.RLock()
	e, ok := idx.graphs[key]
	idx.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dim != 0 && len(query) != e.dim {
		return nil, fmt.Errorf("%w: expected dimension %d, got %d", remerr.ErrValidationFailed, e.dim, len(query))
	}
	nodes := e.graph.Search(query, k)
	out := make([]Result, len(nodes))
	for i, n := range nodes {
		id, err := uuid.Parse(n.Key)
		if err != nil {
			log.WithTenant(tenant).Warn().Str("key", n.Key).Msg("vector index returned unparseable key")
			continue
		}
		out[i] = Result{ID: id, Score: scoreOf(e.graph.Distance, query, n.Value)}
	}
	return out, nil
}

func scoreOf(dist hnsw.DistanceFunc, a, b []float32) float32 {
	return -dist(a, b)
}

// Len returns how many vectors are stored in the (tenant, type, field)
// graph, used by the metrics collector.
func (idx *Index) Len(tenant, typ, field string) int {
	key := graphKey{tenant, typ, field}
	idx.mu.RLock()
	e, ok := idx.graphs[key]
	idx.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Len()
}
