package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key builders implement the key schema of spec §4.2. ':' separates
// fields, and buildKey does not length-prefix them — so every field that
// flows into a key (tenant ids, type names, fuzzy-index tokens) must not
// itself contain ':'. ValidateTenantID enforces this for the one field
// callers don't otherwise control (a tenant id is caller-supplied and
// opaque); type names and tokens are a fixed, code-controlled vocabulary
// and are never arbitrary caller input.

func EntityKey(tenant, typ string, id uuid.UUID) []byte {
	return buildKey("entity", tenant, typ, id.String())
}

func SchemaKey(tenant, name string) []byte {
	return buildKey("entity", tenant, "schema", name)
}

// EntityTypePrefix returns the prefix matching every entity record of
// typ, for the query engine's Scan-mode prefix iteration (spec §4.7.2).
// The trailing ':' guards against typ itself being a string-prefix of
// another registered type name (e.g. "user" vs "users").
func EntityTypePrefix(tenant, typ string) []byte {
	return append(buildKey("entity", tenant, typ), ':')
}

// EntityIDIndexKey maps an entity id to its type, so Get(id) doesn't have
// to scan every type's keyspace to find which one holds id.
func EntityIDIndexKey(tenant string, id uuid.UUID) []byte {
	return buildKey("entity", tenant, "byid", id.String())
}

func EdgeKey(tenant string, src, dst uuid.UUID, edgeType string) []byte {
	return buildKey("edge", tenant, src.String(), dst.String(), edgeType)
}

// EdgePrefix returns the prefix matching every edge whose source is src,
// for BFS expansion in pkg/graph.
func EdgePrefix(tenant string, src uuid.UUID) []byte {
	return buildKey("edge", tenant, src.String())
}

// EdgeReverseKey indexes an edge by destination, so pkg/graph can expand
// "in"-direction traversal without a full prefix scan of the edges
// column family. It mirrors EdgeKey's fields in dst-first order and is
// written alongside it; the value is the edge's forward key, letting a
// reverse-index hit resolve straight to the edge record.
func EdgeReverseKey(tenant string, src, dst uuid.UUID, edgeType string) []byte {
	return buildKey("edgerev", tenant, dst.String(), src.String(), edgeType)
}

// EdgeReversePrefix returns the prefix matching every edge whose
// destination is dst.
func EdgeReversePrefix(tenant string, dst uuid.UUID) []byte {
	return buildKey("edgerev", tenant, dst.String())
}

func IndexKey(tenant, typ, field, value string, id uuid.UUID) []byte {
	return buildKey("idx", tenant, typ, field, value, id.String())
}

// IndexPrefix returns the prefix matching every index entry for a given
// (type, field, value) triple — every entity id sharing that value.
func IndexPrefix(tenant, typ, field, value string) []byte {
	return buildKey("idx", tenant, typ, field, value)
}

func KeyTermKey(tenant, typ, token string, id uuid.UUID) []byte {
	return buildKey("keyidx", tenant, typ, "term", token, id.String())
}

func KeyTermPrefix(tenant, typ, token string) []byte {
	return buildKey("keyidx", tenant, typ, "term", token)
}

func KeyDocFreqKey(tenant, typ, token string) []byte {
	return buildKey("keyidx", tenant, typ, "df", token)
}

// ExactKeyPrefix is both the exact-match key (when the caller's value is
// the whole valueLower) and the prefix-match scan prefix (when it is a
// prefix of valueLower) for the fuzzy key lookup's first two tiers (spec
// §4.4.1). The two tiers share one bucket because a byte-prefix scan over
// this key form finds exact matches as a degenerate case of prefix
// matches.
func ExactKeyPrefix(tenant, typ, valueLower string) []byte {
	return buildKey("keyidx", tenant, typ, "exact", valueLower)
}

func ExactKey(tenant, typ, valueLower string, id uuid.UUID) []byte {
	return buildKey("keyidx", tenant, typ, "exact", valueLower, id.String())
}

// KeyDocLenKey stores the token count of one entity's indexed key field,
// needed for the BM25 length-normalization term (spec §4.4.1, parameter b).
func KeyDocLenKey(tenant, typ string, id uuid.UUID) []byte {
	return buildKey("keyidx", tenant, typ, "doclen", id.String())
}

// KeyCorpusStatsKey stores the (doc count, total token length) pair BM25
// needs to compute average document length across a type's corpus.
func KeyCorpusStatsKey(tenant, typ string) []byte {
	return buildKey("keyidx", tenant, typ, "corpus_stats")
}

func WalSeqKey(tenant string) []byte {
	return buildKey("wal", tenant, "seq")
}

// WalEntryKey encodes seq big-endian so lexicographic byte order equals
// numeric order, letting prefix_iter walk the WAL in sequence order.
func WalEntryKey(tenant string, seq uint64) []byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return buildKey("wal", tenant, "entry", string(seqBytes[:]))
}

func WalEntryPrefix(tenant string) []byte {
	return buildKey("wal", tenant, "entry")
}

func PendingTaskKey(tenant, taskID string) []byte {
	return buildKey("wal", tenant, "pending_task", taskID)
}

func PendingTaskPrefix(tenant string) []byte {
	return buildKey("wal", tenant, "pending_task")
}

func PeerCheckpointKey(tenant, peerID string) []byte {
	return buildKey("wal", tenant, "peer", peerID, "checkpoint")
}

func VectorSnapshotKey(typ, field string) []byte {
	return buildKey("vector_meta", typ, field)
}

// ValidateTenantID rejects a tenant id that would corrupt key parsing: the
// ':' field delimiter (splitKey/splitKeyParts assume a fixed field count)
// and the empty string (which collapses distinct tenants' key prefixes).
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("codec: tenant id must not be empty")
	}
	if strings.ContainsRune(tenant, ':') {
		return fmt.Errorf("codec: tenant id %q must not contain ':'", tenant)
	}
	return nil
}

// buildKey joins fields with ':' as given, with no length prefix or
// escaping, so a ':' inside a field is indistinguishable from the
// delimiter (hence ValidateTenantID).
func buildKey(fields ...string) []byte {
	var out []byte
	for i, f := range fields {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, []byte(f)...)
	}
	return out
}

// ParseEntityKey extracts tenant/type/id from a key built by EntityKey.
// Used by replication's peer-apply path, which must route a raw WAL key
// without going through the Entity Store.
func ParseEntityKey(key []byte) (tenant, typ string, id uuid.UUID, err error) {
	parts := splitKey(string(key))
	if len(parts) != 4 || parts[0] != "entity" {
		return "", "", uuid.Nil, fmt.Errorf("codec: not an entity key: %q", key)
	}
	id, err = uuid.Parse(parts[3])
	if err != nil {
		return "", "", uuid.Nil, fmt.Errorf("codec: bad entity id in key %q: %w", key, err)
	}
	return parts[1], parts[2], id, nil
}

func splitKey(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
