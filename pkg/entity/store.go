// Package entity implements the entity store: CRUD over schema-validated
// records, secondary-index maintenance, the key-fuzzy index, and WAL
// append for every mutation (spec §4.4).
package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/events"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/metrics"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
)

// Config holds the fuzzy-lookup tunables spec.md §9 calls out as values
// an implementation should expose rather than hard-code.
type Config struct {
	BM25K1      float64
	BM25B       float64
	PrefixLimit int
	FuzzyLimit  int
}

func DefaultConfig() Config {
	return Config{BM25K1: 1.2, BM25B: 0.75, PrefixLimit: 10, FuzzyLimit: 10}
}

// TaskEnqueuer is the narrow slice of pkg/worker the entity store needs:
// scheduling an embedding computation after a durable write commits.
// Declared here rather than importing pkg/worker; the worker's
// GenerateEmbedding task in turn writes back through this package's
// SetEmbedding (as pkg/worker's EntityUpdater).
type TaskEnqueuer interface {
	Enqueue(task types.Task) error
}

// VectorUpserter is the narrow slice of pkg/vector the entity store needs
// to make a freshly computed embedding searchable (spec §4.6
// GenerateEmbedding: "write vector to entity record; upsert into vector
// index").
type VectorUpserter interface {
	Upsert(tenant, typ, field string, id uuid.UUID, vec []float32) error
	Remove(tenant, typ, field string, id uuid.UUID)
}

// Store is the entity store. One Store serves every tenant; tenant
// isolation is enforced by pkg/kv underneath.
type Store struct {
	kv      *kv.Store
	schemas *schema.Registry
	worker  TaskEnqueuer
	vectors VectorUpserter
	edges   EdgeRemover
	broker  *events.Broker
	cfg     Config
	now     func() time.Time
}

func NewStore(store *kv.Store, schemas *schema.Registry, worker TaskEnqueuer, cfg Config) *Store {
	return &Store{kv: store, schemas: schemas, worker: worker, cfg: cfg, now: time.Now}
}

// SetVectors attaches the vector index the store upserts into after a
// worker-computed embedding lands. Separate from NewStore because
// pkg/vector.Manager is, in turn, constructed from this store's schema
// registry; wiring it as a late setter avoids a constructor cycle.
func (s *Store) SetVectors(v VectorUpserter) { s.vectors = v }

// SetWorker attaches the background worker embedding/save-index tasks are
// enqueued to. Like SetVectors, a late setter rather than a NewStore
// parameter: pkg/worker's Config in turn needs this store as its
// EntityUpdater, so one side of the cycle has to be wired after both
// exist.
func (s *Store) SetWorker(w TaskEnqueuer) { s.worker = w }

// SetEvents attaches the broker that wakes a blocked replication live-tail
// as soon as a WAL entry lands (spec §4.8), instead of making every peer
// poll the tail of the WAL bucket.
func (s *Store) SetEvents(b *events.Broker) { s.broker = b }

func (s *Store) publishWalAppended(tenant string, seq uint64) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:   events.EventWalAppended,
		Tenant: tenant,
		Metadata: map[string]string{
			"seq": itoa(int64(seq)),
		},
	})
}

// Insert validates properties against typ's schema, writes the entity
// record plus every secondary/fuzzy index entry and a WAL entry in one
// atomic batch, and (after commit) enqueues embedding generation for any
// embeddable text fields.
func (s *Store) Insert(tenant, typ string, properties map[string]types.Value) (uuid.UUID, error) {
	if err := codec.ValidateTenantID(tenant); err != nil {
		return uuid.Nil, err
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.EntityWriteDuration, tenant, typ)

	desc, err := s.schemas.Get(tenant, typ)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.schemas.Validate(tenant, typ, properties); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	now := s.now().UTC()
	e := &types.Entity{
		ID: id, TenantID: tenant, Type: typ,
		Properties: properties,
		CreatedAt:  now, ModifiedAt: now,
	}
	if desc.KeyField != "" {
		if v, ok := properties[desc.KeyField]; ok {
			if str, ok := v.String(); ok {
				e.Name = str
			}
		}
	}

	ops, seq, err := s.buildWriteOps(tenant, desc, e, nil)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.commit(tenant, ops); err != nil {
		return uuid.Nil, err
	}
	s.publishWalAppended(tenant, seq)

	metrics.EntityWritesTotal.WithLabelValues(tenant, typ, "insert").Inc()
	log.WithTenant(tenant).Debug().Str("schema_type", typ).Str("id", id.String()).Msg("entity inserted")
	s.enqueueEmbeddings(tenant, desc, e)
	return id, nil
}

// Update re-validates properties, replaces the entity's stored properties,
// and rewrites every index/fuzzy entry that changed.
func (s *Store) Update(tenant string, id uuid.UUID, properties map[string]types.Value) error {
	timer := metrics.NewTimer()
	old, err := s.Get(tenant, id, WithIncludeDeleted(true))
	if err != nil {
		return err
	}
	desc, err := s.schemas.Get(tenant, old.Type)
	if err != nil {
		return err
	}
	if err := s.schemas.Validate(tenant, old.Type, properties); err != nil {
		return err
	}

	updated := &types.Entity{
		ID: id, TenantID: tenant, Type: old.Type,
		Properties:   properties,
		Embedding:    old.Embedding,
		EmbeddingAlt: old.EmbeddingAlt,
		CreatedAt:    old.CreatedAt,
		ModifiedAt:   s.now().UTC(),
		DeletedAt:    old.DeletedAt,
		OriginNodeID: old.OriginNodeID,
	}
	if desc.KeyField != "" {
		if v, ok := properties[desc.KeyField]; ok {
			if str, ok := v.String(); ok {
				updated.Name = str
			}
		}
	}

	ops, seq, err := s.buildWriteOps(tenant, desc, updated, old)
	if err != nil {
		return err
	}
	if err := s.commit(tenant, ops); err != nil {
		return err
	}
	s.publishWalAppended(tenant, seq)
	timer.ObserveDurationVec(metrics.EntityWriteDuration, tenant, old.Type)

	metrics.EntityWritesTotal.WithLabelValues(tenant, old.Type, "update").Inc()
	s.enqueueEmbeddings(tenant, desc, updated)
	return nil
}

// SetEmbedding writes a worker-computed embedding back onto its owning
// entity (task.Field selects Embedding vs EmbeddingAlt) without touching
// Properties or any secondary index, then enqueues the SaveIndex task that
// persists the updated HNSW graph.
func (s *Store) SetEmbedding(tenant string, task types.Task) error {
	old, err := s.Get(tenant, task.EntityID, WithIncludeDeleted(true))
	if err != nil {
		return err
	}

	updated := *old
	updated.ModifiedAt = s.now().UTC()
	if task.Field == "embedding_alt" {
		updated.EmbeddingAlt = task.Embedding
	} else {
		updated.Embedding = task.Embedding
	}

	data, err := codec.EncodeEntity(&updated)
	if err != nil {
		return err
	}
	seq, err := s.kv.NextSeq(tenant)
	if err != nil {
		return err
	}
	key := codec.EntityKey(tenant, old.Type, task.EntityID)
	entry := &types.WALEntry{
		TenantID: tenant, Seq: seq, Timestamp: updated.ModifiedAt, Op: types.WALPut,
		Key: key, Value: data, Checksum: codec.ChecksumPayload(key, data),
	}
	ops := []kv.Op{
		kv.Put(kv.BucketDefault, key, data),
		kv.AppendWALOp(tenant, seq, codec.EncodeWALEntry(entry)),
	}
	if err := s.kv.Batch(tenant, ops); err != nil {
		return err
	}
	s.publishWalAppended(tenant, seq)
	if s.vectors != nil {
		if err := s.vectors.Upsert(tenant, old.Type, task.Field, task.EntityID, task.Embedding); err != nil {
			log.WithTenant(tenant).Warn().Err(err).Msg("failed to upsert embedding into vector index")
		}
	}
	if s.worker != nil {
		saveTask := types.Task{Kind: types.TaskSaveIndex, TenantID: tenant, Type: old.Type, Field: task.Field}
		if err := s.worker.Enqueue(saveTask); err != nil {
			log.WithTenant(tenant).Warn().Err(err).Msg("failed to enqueue save-index task")
		}
	}
	return nil
}

// Delete soft-deletes id: sets DeletedAt but leaves the record (and its
// indexes) in place so replication and fuzzy lookup can still observe the
// tombstone when asked to.
func (s *Store) Delete(tenant string, id uuid.UUID) error {
	old, err := s.Get(tenant, id, WithIncludeDeleted(true))
	if err != nil {
		return err
	}
	if old.Deleted() {
		return nil
	}
	desc, err := s.schemas.Get(tenant, old.Type)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	updated := *old
	updated.ModifiedAt = now
	updated.DeletedAt = &now

	data, err := codec.EncodeEntity(&updated)
	if err != nil {
		return err
	}
	seq, err := s.kv.NextSeq(tenant)
	if err != nil {
		return err
	}
	key := codec.EntityKey(tenant, old.Type, id)
	entry := &types.WALEntry{
		TenantID: tenant, Seq: seq, Timestamp: now, Op: types.WALPut,
		Key: key, Value: data, Checksum: codec.ChecksumPayload(key, data),
	}
	ops := []kv.Op{
		kv.Put(kv.BucketDefault, key, data),
		kv.AppendWALOp(tenant, seq, codec.EncodeWALEntry(entry)),
	}
	if err := s.kv.Batch(tenant, ops); err != nil {
		return err
	}
	s.publishWalAppended(tenant, seq)
	if s.vectors != nil {
		s.vectors.Remove(tenant, old.Type, "embedding", id)
		s.vectors.Remove(tenant, old.Type, "embedding_alt", id)
	}
	metrics.EntityWritesTotal.WithLabelValues(tenant, desc.Name, "delete").Inc()
	return nil
}

// GetOptions configures Get/LookupEntity visibility of soft-deleted rows.
type GetOptions struct {
	IncludeDeleted bool
}

type GetOption func(*GetOptions)

func WithIncludeDeleted(v bool) GetOption {
	return func(o *GetOptions) { o.IncludeDeleted = v }
}

// Get returns the entity stored under id in tenant.
func (s *Store) Get(tenant string, id uuid.UUID, opts ...GetOption) (*types.Entity, error) {
	if err := codec.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.EntityReadDuration, "get")

	var o GetOptions
	for _, fn := range opts {
		fn(&o)
	}
	e, err := s.getByAnyType(tenant, id)
	if err != nil {
		return nil, err
	}
	if e.Deleted() && !o.IncludeDeleted {
		return nil, fmt.Errorf("%w: entity %s", remerr.ErrNotFound, id)
	}
	return e, nil
}

// getByAnyType resolves id to its type via the id->type index and fetches
// the entity record directly, rather than scanning every type's keyspace.
func (s *Store) getByAnyType(tenant string, id uuid.UUID) (*types.Entity, error) {
	typBytes, err := s.kv.Get(tenant, kv.BucketDefault, codec.EntityIDIndexKey(tenant, id))
	if err != nil {
		return nil, fmt.Errorf("%w: entity %s", remerr.ErrNotFound, id)
	}
	data, err := s.kv.Get(tenant, kv.BucketDefault, codec.EntityKey(tenant, string(typBytes), id))
	if err != nil {
		return nil, fmt.Errorf("%w: entity %s", remerr.ErrNotFound, id)
	}
	return codec.DecodeEntity(data)
}

func (s *Store) commit(tenant string, ops []kv.Op) error {
	return s.kv.Batch(tenant, ops)
}

func (s *Store) enqueueEmbeddings(tenant string, desc *types.SchemaDescription, e *types.Entity) {
	if s.worker == nil {
		return
	}
	for _, ef := range desc.EmbeddableFields {
		v, ok := e.Properties[ef.Property]
		if !ok {
			continue
		}
		text, ok := v.String()
		if !ok || text == "" {
			continue
		}
		task := types.Task{
			Kind: types.TaskGenerateEmbedding, TenantID: tenant, Type: e.Type,
			Field: ef.Slot, EntityID: e.ID, Text: text,
		}
		if err := s.worker.Enqueue(task); err != nil {
			log.WithTenant(tenant).Warn().Err(err).Msg("failed to enqueue embedding task")
		}
	}
}

// sortCandidates applies the tie-break rule shared by every fuzzy-lookup
// tier: (score desc, created_at asc, uuid asc).
func sortCandidates(c []scoredEntity) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].score != c[j].score {
			return c[i].score > c[j].score
		}
		if !c[i].entity.CreatedAt.Equal(c[j].entity.CreatedAt) {
			return c[i].entity.CreatedAt.Before(c[j].entity.CreatedAt)
		}
		return c[i].entity.ID.String() < c[j].entity.ID.String()
	})
}

type scoredEntity struct {
	entity *types.Entity
	score  float64
}
