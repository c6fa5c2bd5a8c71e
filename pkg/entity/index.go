package entity

import (
	"math"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/types"
)

// IndexLookup returns every entity id posted under (typ, field, value) in
// the secondary index, for the query engine's Index-mode candidate
// resolution (spec §4.7.2 mode 2). Unparseable suffixes are skipped rather
// than failing the whole lookup.
func (s *Store) IndexLookup(tenant, typ, field, value string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := s.kv.PrefixIter(tenant, kv.BucketIndexes, codec.IndexPrefix(tenant, typ, field, value), func(key, _ []byte) error {
		id, ok := lastKeySegment(key)
		if !ok {
			return nil
		}
		out = append(out, id)
		return nil
	})
	return out, err
}

func lastKeySegment(key []byte) (uuid.UUID, bool) {
	idx := -1
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(string(key[idx+1:]))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// buildWriteOps assembles the full atomic batch for an insert/update (spec
// §4.4 write algorithm steps 2-4): the entity record, secondary-index
// entries for desc.IndexedFields, fuzzy key-index updates, and the WAL
// entry. old is nil for an insert; when non-nil its stale index/fuzzy
// entries are removed before the new ones are written.
func (s *Store) buildWriteOps(tenant string, desc *types.SchemaDescription, e *types.Entity, old *types.Entity) ([]kv.Op, uint64, error) {
	var ops []kv.Op

	if old != nil {
		ops = append(ops, removeIndexOps(tenant, desc, old)...)
		ops = append(ops, s.removeFuzzyOps(tenant, desc, old)...)
	}

	data, err := codec.EncodeEntity(e)
	if err != nil {
		return nil, 0, err
	}
	key := codec.EntityKey(tenant, e.Type, e.ID)
	ops = append(ops, kv.Put(kv.BucketDefault, key, data))
	if old == nil {
		ops = append(ops, kv.Put(kv.BucketDefault, codec.EntityIDIndexKey(tenant, e.ID), []byte(e.Type)))
	}

	ops = append(ops, addIndexOps(tenant, desc, e)...)
	fuzzyOps, err := s.addFuzzyOps(tenant, desc, e, old == nil)
	if err != nil {
		return nil, 0, err
	}
	ops = append(ops, fuzzyOps...)

	seq, err := s.kv.NextSeq(tenant)
	if err != nil {
		return nil, 0, err
	}
	entry := &types.WALEntry{
		TenantID: tenant, Seq: seq, Timestamp: e.ModifiedAt, Op: types.WALPut,
		Key: key, Value: data, Checksum: codec.ChecksumPayload(key, data),
	}
	ops = append(ops, kv.AppendWALOp(tenant, seq, codec.EncodeWALEntry(entry)))
	return ops, seq, nil
}

func addIndexOps(tenant string, desc *types.SchemaDescription, e *types.Entity) []kv.Op {
	var ops []kv.Op
	for _, field := range desc.IndexedFields {
		v, ok := e.Properties[field]
		if !ok {
			continue
		}
		s, ok := indexableString(v)
		if !ok {
			continue
		}
		ops = append(ops, kv.Put(kv.BucketIndexes, codec.IndexKey(tenant, e.Type, field, s, e.ID), []byte{1}))
	}
	return ops
}

func removeIndexOps(tenant string, desc *types.SchemaDescription, old *types.Entity) []kv.Op {
	var ops []kv.Op
	for _, field := range desc.IndexedFields {
		v, ok := old.Properties[field]
		if !ok {
			continue
		}
		s, ok := indexableString(v)
		if !ok {
			continue
		}
		ops = append(ops, kv.Delete(kv.BucketIndexes, codec.IndexKey(tenant, old.Type, field, s, old.ID)))
	}
	return ops
}

// indexableString renders a Value as the string stored in a secondary
// index key. Only scalar kinds are indexable; lists/maps are skipped.
func indexableString(v types.Value) (string, bool) {
	switch v.Kind() {
	case types.KindString:
		return v.String()
	case types.KindInt:
		i, _ := v.Int()
		return itoa(i), true
	case types.KindBool:
		b, _ := v.Bool()
		if b {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// addFuzzyOps writes the exact/prefix key (the full lowercased key-field
// value) and the BM25 term postings (tokenized), updating the per-type
// corpus stats used to compute average document length. insert indicates
// whether to increment the corpus document count.
func (s *Store) addFuzzyOps(tenant string, desc *types.SchemaDescription, e *types.Entity, insert bool) ([]kv.Op, error) {
	if desc.KeyField == "" || e.Name == "" {
		return nil, nil
	}
	var ops []kv.Op
	valueLower := toLower(e.Name)
	ops = append(ops, kv.Put(kv.BucketIndexes, codec.ExactKey(tenant, e.Type, valueLower, e.ID), []byte{1}))

	tokens := codec.Tokenize(e.Name)
	tf := termFreq(tokens)
	for token, count := range tf {
		ops = append(ops, kv.Put(kv.BucketIndexes, codec.KeyTermKey(tenant, e.Type, token, e.ID), encodeCount(count)))

		df, err := s.readCount(tenant, codec.KeyDocFreqKey(tenant, e.Type, token))
		if err != nil {
			return nil, err
		}
		ops = append(ops, kv.Put(kv.BucketIndexes, codec.KeyDocFreqKey(tenant, e.Type, token), encodeCount(df+1)))
	}
	ops = append(ops, kv.Put(kv.BucketIndexes, codec.KeyDocLenKey(tenant, e.Type, e.ID), encodeCount(len(tokens))))

	docCount, totalLen, err := s.readCorpusStats(tenant, e.Type)
	if err != nil {
		return nil, err
	}
	totalLen += len(tokens)
	if insert {
		docCount++
	}
	ops = append(ops, kv.Put(kv.BucketIndexes, codec.KeyCorpusStatsKey(tenant, e.Type), encodeCorpusStats(docCount, totalLen)))
	return ops, nil
}

// removeFuzzyOps undoes addFuzzyOps for old, used before an update writes
// the new fuzzy entries so a renamed key field doesn't leave stale
// postings behind.
func (s *Store) removeFuzzyOps(tenant string, desc *types.SchemaDescription, old *types.Entity) []kv.Op {
	if desc.KeyField == "" || old.Name == "" {
		return nil
	}
	var ops []kv.Op
	valueLower := toLower(old.Name)
	ops = append(ops, kv.Delete(kv.BucketIndexes, codec.ExactKey(tenant, old.Type, valueLower, old.ID)))

	tokens := codec.Tokenize(old.Name)
	tf := termFreq(tokens)
	for token := range tf {
		ops = append(ops, kv.Delete(kv.BucketIndexes, codec.KeyTermKey(tenant, old.Type, token, old.ID)))
		df, err := s.readCount(tenant, codec.KeyDocFreqKey(tenant, old.Type, token))
		if err == nil && df > 0 {
			ops = append(ops, kv.Put(kv.BucketIndexes, codec.KeyDocFreqKey(tenant, old.Type, token), encodeCount(df-1)))
		}
	}
	ops = append(ops, kv.Delete(kv.BucketIndexes, codec.KeyDocLenKey(tenant, old.Type, old.ID)))

	docCount, totalLen, err := s.readCorpusStats(tenant, old.Type)
	if err == nil {
		totalLen -= len(tokens)
		if totalLen < 0 {
			totalLen = 0
		}
		if docCount > 0 {
			docCount--
		}
		ops = append(ops, kv.Put(kv.BucketIndexes, codec.KeyCorpusStatsKey(tenant, old.Type), encodeCorpusStats(docCount, totalLen)))
	}
	return ops
}

func termFreq(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func encodeCount(n int) []byte {
	return []byte(itoa(int64(n)))
}

func decodeCount(b []byte) int {
	n := 0
	neg := false
	for i, c := range b {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func encodeCorpusStats(docCount, totalLen int) []byte {
	return []byte(itoa(int64(docCount)) + ":" + itoa(int64(totalLen)))
}

func decodeCorpusStats(b []byte) (int, int) {
	for i, c := range b {
		if c == ':' {
			return decodeCount(b[:i]), decodeCount(b[i+1:])
		}
	}
	return 0, 0
}

func (s *Store) readCount(tenant string, key []byte) (int, error) {
	v, err := s.kv.Get(tenant, kv.BucketIndexes, key)
	if err != nil {
		return 0, nil
	}
	return decodeCount(v), nil
}

func (s *Store) readCorpusStats(tenant, typ string) (docCount, totalLen int, err error) {
	v, getErr := s.kv.Get(tenant, kv.BucketIndexes, codec.KeyCorpusStatsKey(tenant, typ))
	if getErr != nil {
		return 0, 0, nil
	}
	docCount, totalLen = decodeCorpusStats(v)
	return docCount, totalLen, nil
}

// bm25Score scores one candidate document against the tokenized query
// using the corpus-level stats accumulated by addFuzzyOps.
func bm25Score(k1, b float64, docCount, totalLen int, docLen int, tf map[string]int, df map[string]int) float64 {
	if docCount == 0 {
		return 0
	}
	avgdl := float64(totalLen) / float64(docCount)
	var score float64
	for token, f := range tf {
		d := df[token]
		if d == 0 {
			continue
		}
		idf := math.Log(1 + (float64(docCount-d)+0.5)/(float64(d)+0.5))
		num := float64(f) * (k1 + 1)
		den := float64(f) + k1*(1-b+b*float64(docLen)/avgdl)
		score += idf * (num / den)
	}
	return score
}
