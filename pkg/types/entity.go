package types

import (
	"time"

	"github.com/google/uuid"
)

// Entity is the single storage primitive: documents, agents, sessions, and
// schemas themselves are all entities, addressed by (TenantID, Type, ID).
type Entity struct {
	ID           uuid.UUID
	TenantID     string
	Type         string
	Name         string
	Properties   map[string]Value
	Embedding    []float32
	EmbeddingAlt []float32
	CreatedAt    time.Time
	ModifiedAt   time.Time
	DeletedAt    *time.Time

	// OriginNodeID breaks last-write-wins ties between peers with an
	// identical ModifiedAt (spec §4.8 conflict resolution).
	OriginNodeID string
}

// Deleted reports whether the entity is a soft-delete tombstone.
func (e *Entity) Deleted() bool { return e.DeletedAt != nil }

// Edge is a directed, typed relationship between two entities, addressed
// by (TenantID, SrcID, DstID, EdgeType).
type Edge struct {
	TenantID  string
	SrcID     uuid.UUID
	DstID     uuid.UUID
	EdgeType  string
	Properties map[string]Value
	CreatedAt time.Time
}

// SchemaCategory classifies who may see/use a schema.
type SchemaCategory string

const (
	CategorySystem SchemaCategory = "system"
	CategoryUser   SchemaCategory = "user"
	CategoryPublic SchemaCategory = "public"
	CategoryAgents SchemaCategory = "agents"
)

// VectorMetric names the distance function a schema's embedding field is
// compared with.
type VectorMetric string

const (
	MetricCosine        VectorMetric = "cosine"
	MetricInnerProduct   VectorMetric = "inner_product"
)

// EmbeddableField maps one schema property carrying text to the entity
// embedding slot its vector is stored in. Property is a key of
// Entity.Properties; Slot is "embedding" or "embedding_alt" and must match
// one of Entity.Embedding/Entity.EmbeddingAlt.
type EmbeddableField struct {
	Property string
	Slot     string
}

// SchemaDescription is a schema: itself stored as an entity of type
// "schema", and cached in memory by the Schema Registry.
type SchemaDescription struct {
	Name            string
	JSONSchema      []byte // raw JSON-Schema document, may reference $defs
	Category        SchemaCategory
	Version         int
	EmbeddingDim    int
	EmbeddingAltDim int
	Metric          VectorMetric
	IndexedFields   []string
	KeyField        string
	EmbeddableFields []EmbeddableField // properties that enqueue GenerateEmbedding on write
	ToolRefs        []string
}

// WALOp names a write-ahead log operation kind.
type WALOp uint8

const (
	WALPut WALOp = iota
	WALDelete
)

// WALEntry is an append-only, per-tenant log record.
type WALEntry struct {
	TenantID  string
	Seq       uint64
	Timestamp time.Time
	Op        WALOp
	Key       []byte
	Value     []byte // nil for WALDelete
	Checksum  uint32
}

// TaskKind names a background worker task variant.
type TaskKind string

const (
	TaskGenerateEmbedding TaskKind = "generate_embedding"
	TaskSaveIndex         TaskKind = "save_index"
	TaskLoadIndex         TaskKind = "load_index"
	TaskFlushWal          TaskKind = "flush_wal"
	TaskCompact           TaskKind = "compact"
)

// Task is a unit of work dispatched to the background worker.
type Task struct {
	Kind      TaskKind
	TenantID  string
	Type      string // entity type, for embedding/index tasks
	Field     string // "embedding" or "embedding_alt"
	EntityID  uuid.UUID
	Text      string
	Embedding []float32 // filled in by the worker before calling SetEmbedding
	Before    time.Time // retention cutoff, for Compact
}
