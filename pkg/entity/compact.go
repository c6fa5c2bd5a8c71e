package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/types"
)

// EdgeRemover is the narrow slice of pkg/graph the entity store needs to
// purge a compacted entity's edges. pkg/graph already depends on
// pkg/entity (its EntityChecker), so the dependency runs only this
// direction, as an interface, to avoid a cycle.
type EdgeRemover interface {
	DeleteEdgesForEntity(tenant string, id uuid.UUID) error
}

// SetEdges attaches the edge store Compact purges alongside a tombstoned
// entity's own record and indexes. Separate from NewStore for the same
// reason as SetVectors: pkg/graph uses this store (as the EntityChecker
// passed to InsertEdge, and in Traverse), so wiring the inverse has to
// happen after both exist.
func (s *Store) SetEdges(e EdgeRemover) { s.edges = e }

// Compact implements worker.Compactor (spec §4.6 Compact, R1): it
// physically removes every tombstoned entity of every registered type in
// tenant whose ModifiedAt is before cutoff — the entity record, its
// id->type index entry, every secondary and fuzzy index entry referencing
// it, its edges, and any vectors it posted.
func (s *Store) Compact(tenant string, cutoff time.Time) error {
	for _, typ := range s.knownTypes(tenant) {
		desc, err := s.schemas.Get(tenant, typ)
		if err != nil {
			continue
		}
		var stale []*types.Entity
		err = s.kv.PrefixIter(tenant, kv.BucketDefault, codec.EntityTypePrefix(tenant, typ), func(_, value []byte) error {
			e, err := codec.DecodeEntity(value)
			if err != nil {
				return nil
			}
			if e.Deleted() && e.ModifiedAt.Before(cutoff) {
				stale = append(stale, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range stale {
			if err := s.purge(tenant, desc, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// purge removes one entity's record, id->type index entry, secondary and
// fuzzy index entries, edges, and vectors. The KV batch (record, indexes)
// commits atomically; edges and vectors live in separate stores this
// package cannot import, so they're cleaned up right after in the same
// call, best-effort for vectors (an in-memory index miss on Remove is not
// an error) and propagated for edges.
func (s *Store) purge(tenant string, desc *types.SchemaDescription, e *types.Entity) error {
	ops := []kv.Op{
		kv.Delete(kv.BucketDefault, codec.EntityKey(tenant, e.Type, e.ID)),
		kv.Delete(kv.BucketDefault, codec.EntityIDIndexKey(tenant, e.ID)),
	}
	ops = append(ops, removeIndexOps(tenant, desc, e)...)
	ops = append(ops, s.removeFuzzyOps(tenant, desc, e)...)
	if err := s.kv.Batch(tenant, ops); err != nil {
		return err
	}
	if s.edges != nil {
		if err := s.edges.DeleteEdgesForEntity(tenant, e.ID); err != nil {
			return err
		}
	}
	if s.vectors != nil {
		s.vectors.Remove(tenant, e.Type, "embedding", e.ID)
		s.vectors.Remove(tenant, e.Type, "embedding_alt", e.ID)
	}
	return nil
}
