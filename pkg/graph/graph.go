// Package graph implements rem's edge storage and breadth-first traversal
// (spec §3 "Edges", §4.7.1 TRAVERSE; there is no depth-first mode): a directed, typed relationship
// between two entities addressed by (tenant, src, dst, edge_type), stored
// independently of the entities themselves so no in-memory graph of
// entity structs is ever retained (spec §9 "Cyclic references").
package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

// EntityChecker is the narrow slice of pkg/entity the edge store needs to
// enforce "both endpoints must exist at insert time". Satisfied directly
// by *entity.Store.
type EntityChecker interface {
	Get(tenant string, id uuid.UUID, opts ...entity.GetOption) (*types.Entity, error)
}

// Store owns edge CRUD and traversal. One Store serves every tenant.
type Store struct {
	kv   *kv.Store
	now  func() time.Time
}

func NewStore(store *kv.Store) *Store {
	return &Store{kv: store, now: time.Now}
}

// InsertEdge validates both endpoints exist (unless skipExistenceCheck is
// set, for replication replay per spec §4.8 note 4: "peer is trusted to
// have validated at write time") and writes the edge record plus its
// reverse index in one atomic batch.
func (s *Store) InsertEdge(tenant string, edge *types.Edge, checker EntityChecker, skipExistenceCheck bool) error {
	if !skipExistenceCheck {
		if checker == nil {
			return fmt.Errorf("graph: no entity checker configured")
		}
		if _, err := checker.Get(tenant, edge.SrcID); err != nil {
			return fmt.Errorf("%w: edge source %s", remerr.ErrNotFound, edge.SrcID)
		}
		if _, err := checker.Get(tenant, edge.DstID); err != nil {
			return fmt.Errorf("%w: edge destination %s", remerr.ErrNotFound, edge.DstID)
		}
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = s.now().UTC()
	}
	edge.TenantID = tenant

	data, err := codec.EncodeEdge(edge)
	if err != nil {
		return err
	}
	key := codec.EdgeKey(tenant, edge.SrcID, edge.DstID, edge.EdgeType)
	ops := []kv.Op{
		kv.Put(kv.BucketEdges, key, data),
		kv.Put(kv.BucketEdges, codec.EdgeReverseKey(tenant, edge.SrcID, edge.DstID, edge.EdgeType), key),
	}
	if err := s.kv.Batch(tenant, ops); err != nil {
		return err
	}
	log.WithTenant(tenant).Debug().
		Str("src", edge.SrcID.String()).Str("dst", edge.DstID.String()).Str("edge_type", edge.EdgeType).
		Msg("edge inserted")
	return nil
}

// DeleteEdge removes the edge and its reverse index.
func (s *Store) DeleteEdge(tenant string, src, dst uuid.UUID, edgeType string) error {
	ops := []kv.Op{
		kv.Delete(kv.BucketEdges, codec.EdgeKey(tenant, src, dst, edgeType)),
		kv.Delete(kv.BucketEdges, codec.EdgeReverseKey(tenant, src, dst, edgeType)),
	}
	return s.kv.Batch(tenant, ops)
}

// DeleteEdgesForEntity removes every edge touching id, in both
// directions, satisfying entity.EdgeRemover for compaction (spec R1:
// compacting a tombstoned entity leaves no edge record referencing it).
func (s *Store) DeleteEdgesForEntity(tenant string, id uuid.UUID) error {
	edges, err := s.GetEdges(tenant, id, "both", "")
	if err != nil {
		return err
	}
	for _, e := range edges {
		if err := s.DeleteEdge(tenant, e.SrcID, e.DstID, e.EdgeType); err != nil {
			return err
		}
	}
	return nil
}

// GetEdges returns every edge touching id in the given direction,
// optionally filtered to one edge_type ("" means any type).
func (s *Store) GetEdges(tenant string, id uuid.UUID, direction, edgeType string) ([]*types.Edge, error) {
	var out []*types.Edge
	if direction == "out" || direction == "both" || direction == "" {
		edges, err := s.outgoing(tenant, id, edgeType)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	if direction == "in" || direction == "both" {
		edges, err := s.incoming(tenant, id, edgeType)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}

func (s *Store) outgoing(tenant string, src uuid.UUID, edgeType string) ([]*types.Edge, error) {
	var out []*types.Edge
	err := s.kv.PrefixIter(tenant, kv.BucketEdges, codec.EdgePrefix(tenant, src), func(key, value []byte) error {
		e, err := codec.DecodeEdge(value)
		if err != nil {
			return nil // skip the reverse-index entries, which share no prefix by construction but guard anyway
		}
		if edgeType != "" && e.EdgeType != edgeType {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (s *Store) incoming(tenant string, dst uuid.UUID, edgeType string) ([]*types.Edge, error) {
	var out []*types.Edge
	err := s.kv.PrefixIter(tenant, kv.BucketEdges, codec.EdgeReversePrefix(tenant, dst), func(_, forwardKey []byte) error {
		raw, err := s.kv.Get(tenant, kv.BucketEdges, forwardKey)
		if err != nil {
			return nil
		}
		e, err := codec.DecodeEdge(raw)
		if err != nil {
			return nil
		}
		if edgeType != "" && e.EdgeType != edgeType {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
