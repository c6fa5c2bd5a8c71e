// Package replication implements the peer-to-peer, bidirectional,
// stream-based sync protocol of spec.md §4.8/§6: a single StreamSync RPC
// carrying a tagged union of request/response variants, catch-up from a
// watermark followed by a live tail.
package replication

import (
	"time"

	"github.com/cuemby/rem/pkg/types"
)

func unixNano(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// Operation carries one WAL entry over the wire, serialized exactly as it
// was appended locally (spec.md §4.8 "Apply is a KV-store PUT/DELETE using
// the key and value exactly as serialized").
type Operation struct {
	TenantID  string `json:"tenant_id"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"` // unix nanos
	Op        uint8  `json:"op"`        // types.WALPut or types.WALDelete
	Key       []byte `json:"key"`
	Value     []byte `json:"value,omitempty"`
	Checksum  uint32 `json:"checksum"`
}

func operationFromEntry(e *types.WALEntry) *Operation {
	return &Operation{
		TenantID: e.TenantID, Seq: e.Seq, Timestamp: e.Timestamp.UnixNano(),
		Op: uint8(e.Op), Key: e.Key, Value: e.Value, Checksum: e.Checksum,
	}
}

func (op *Operation) toEntry() *types.WALEntry {
	return &types.WALEntry{
		TenantID: op.TenantID, Seq: op.Seq, Timestamp: unixNano(op.Timestamp),
		Op: types.WALOp(op.Op), Key: op.Key, Value: op.Value, Checksum: op.Checksum,
	}
}

// RequestKind tags which variant of StreamSyncRequest is populated.
type RequestKind string

const (
	ReqSubscribe RequestKind = "subscribe"
	ReqAck       RequestKind = "ack"
	ReqPushOps   RequestKind = "push_ops"
)

// SubscribeRequest opens a sync session for tenant from watermark (spec.md
// §6 "stream_sync"). AuthToken gates tenant access; DeviceID identifies the
// peer for checkpoint persistence and conflict-resolution tie-breaks.
type SubscribeRequest struct {
	Tenant    string `json:"tenant"`
	DeviceID  string `json:"device_id"`
	Watermark uint64 `json:"watermark"`
	AuthToken string `json:"auth_token"`
}

// AckRequest confirms the client has durably checkpointed seq.
type AckRequest struct {
	Seq uint64 `json:"seq"`
}

// PushOpsRequest lets a client push its own writes upstream, for
// bidirectional sync between two peers that both accept writes.
type PushOpsRequest struct {
	Batch []Operation `json:"batch"`
}

// StreamSyncRequest is the request-stream message of the StreamSync RPC.
// Exactly one of Subscribe/Ack/PushOps is set, selected by Kind — Go has no
// wire-level oneof, so the tag is explicit rather than inferred from which
// pointer is non-nil.
type StreamSyncRequest struct {
	Kind      RequestKind       `json:"kind"`
	Subscribe *SubscribeRequest `json:"subscribe,omitempty"`
	Ack       *AckRequest       `json:"ack,omitempty"`
	PushOps   *PushOpsRequest   `json:"push_ops,omitempty"`
}

// ResponseKind tags which variant of StreamSyncResponse is populated.
type ResponseKind string

const (
	RespConnected       ResponseKind = "connected"
	RespHistoricalBatch ResponseKind = "historical_batch"
	RespOperation       ResponseKind = "operation"
	RespError           ResponseKind = "error"
)

// Connected answers Subscribe with the server's current WAL sequence for
// the tenant, so the client knows when catch-up has reached the tail.
type Connected struct {
	CurrentSeq uint64 `json:"current_seq"`
}

// HistoricalBatch streams up to 100 catch-up entries (spec.md §4.8) with
// the seq range they cover.
type HistoricalBatch struct {
	Ops        []Operation `json:"ops"`
	BatchStart uint64      `json:"batch_start"`
	BatchEnd   uint64      `json:"batch_end"`
}

// ErrorCode names the Error variant's machine-readable reason.
type ErrorCode string

const (
	ErrCodeChecksumFailed ErrorCode = "checksum_failed"
	ErrCodeSequenceGap    ErrorCode = "sequence_gap"
	ErrCodeUnauthorized   ErrorCode = "unauthorized"
)

// Error terminates the stream with a machine-readable reason (spec.md §4.8
// ChecksumFailed / gap detected).
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// StreamSyncResponse is the response-stream message of the StreamSync RPC.
type StreamSyncResponse struct {
	Kind            ResponseKind     `json:"kind"`
	Connected       *Connected       `json:"connected,omitempty"`
	HistoricalBatch *HistoricalBatch `json:"historical_batch,omitempty"`
	Operation       *Operation       `json:"operation,omitempty"`
	Error           *Error           `json:"error,omitempty"`
}
