package replication

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

// Applier applies validated remote operations directly to the local KV
// store, bypassing schema validation (spec.md §4.8: "peer is trusted to
// have validated at write time"), with last-write-wins conflict resolution
// on entity records it already holds.
type Applier struct {
	kv      *kv.Store
	nodeID  string
	mu      sync.Mutex
	lastSeq map[string]uint64
}

func NewApplier(store *kv.Store, nodeID string) *Applier {
	return &Applier{kv: store, nodeID: nodeID, lastSeq: make(map[string]uint64)}
}

// Apply validates op's checksum and sequence, then writes it. A checksum
// mismatch or a sequence gap fails the stream per spec.md §4.8 steps 1-3;
// the caller is expected to tear down the stream on error so a subsequent
// Subscribe with a lower watermark can re-synchronize.
func (a *Applier) Apply(op *Operation) error {
	if op.Checksum != codec.ChecksumPayload(op.Key, op.Value) {
		return fmt.Errorf("replication: tenant %s seq %d: %w", op.TenantID, op.Seq, remerr.ErrChecksumFailed)
	}

	a.mu.Lock()
	expected, seen := a.lastSeq[op.TenantID]
	a.mu.Unlock()
	if seen && op.Seq != expected+1 {
		return fmt.Errorf("replication: tenant %s: have %d, got %d: %w", op.TenantID, expected, op.Seq, remerr.ErrSequenceGap)
	}

	if err := a.apply(op); err != nil {
		return err
	}

	a.mu.Lock()
	a.lastSeq[op.TenantID] = op.Seq
	a.mu.Unlock()
	return nil
}

// ResetWatermark forgets the last-applied sequence tracked for tenant, used
// after a Connected{current_seq} handshake establishes a fresh baseline
// (e.g. the very first entry of a session isn't held to "seq == last+1").
func (a *Applier) ResetWatermark(tenant string, seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq == 0 {
		delete(a.lastSeq, tenant)
		return
	}
	a.lastSeq[tenant] = seq
}

// apply writes op's entity record and keeps the id->type index (codec.
// EntityIDIndexKey) in sync with it, so a replicated write is immediately
// reachable through entity.Store.Get(id) on the receiving peer (spec.md
// §4.8 convergence: "get(E.id) on B returns E" after catch-up) instead of
// only through a direct key read of BucketDefault.
func (a *Applier) apply(op *Operation) error {
	_, typ, id, err := codec.ParseEntityKey(op.Key)
	if err != nil {
		// Not an entity key (e.g. a schema or WAL-internal record) — apply
		// verbatim, there is no id->type index entry to maintain for it.
		if types.WALOp(op.Op) == types.WALDelete {
			return a.kv.Batch(op.TenantID, []kv.Op{kv.Delete(kv.BucketDefault, op.Key)})
		}
		return a.kv.Batch(op.TenantID, []kv.Op{kv.Put(kv.BucketDefault, op.Key, op.Value)})
	}

	idxKey := codec.EntityIDIndexKey(op.TenantID, id)
	if types.WALOp(op.Op) == types.WALDelete {
		return a.kv.Batch(op.TenantID, []kv.Op{
			kv.Delete(kv.BucketDefault, op.Key),
			kv.Delete(kv.BucketDefault, idxKey),
		})
	}

	winner, err := a.resolve(op)
	if err != nil {
		return err
	}
	if !winner {
		return nil
	}
	return a.kv.Batch(op.TenantID, []kv.Op{
		kv.Put(kv.BucketDefault, op.Key, op.Value),
		kv.Put(kv.BucketDefault, idxKey, []byte(typ)),
	})
}

// resolve reports whether op should overwrite whatever is currently stored
// at its key, by last-write-wins on (modified_at desc, originating-node-id
// asc) (spec.md §4.8).
func (a *Applier) resolve(op *Operation) (bool, error) {
	existing, err := a.kv.Get(op.TenantID, kv.BucketDefault, op.Key)
	if errors.Is(err, remerr.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	cur, err := codec.DecodeEntity(existing)
	if err != nil {
		return false, err
	}
	incoming, err := codec.DecodeEntity(op.Value)
	if err != nil {
		return false, err
	}
	if incoming.ModifiedAt.After(cur.ModifiedAt) {
		return true, nil
	}
	if incoming.ModifiedAt.Before(cur.ModifiedAt) {
		return false, nil
	}
	return incoming.OriginNodeID < cur.OriginNodeID, nil
}
