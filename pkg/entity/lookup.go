package entity

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/metrics"
	"github.com/cuemby/rem/pkg/types"
)

// LookupEntity implements the three-tier fuzzy cascade of spec §4.4.1:
// exact match, then prefix match, then BM25 fuzzy match, across every
// type in tenant. Tier N runs only if tier N-1 found nothing.
func (s *Store) LookupEntity(tenant, query string, opts ...GetOption) ([]*types.Entity, error) {
	if err := codec.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	var o GetOptions
	for _, fn := range opts {
		fn(&o)
	}
	queryLower := toLower(query)

	exact, prefix, err := s.scanExactAndPrefix(tenant, queryLower)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		timer := metrics.NewTimer()
		defer timer.ObserveDurationVec(metrics.EntityReadDuration, "exact")
		return s.resolveCandidates(tenant, exact, o)
	}
	if len(prefix) > 0 {
		timer := metrics.NewTimer()
		defer timer.ObserveDurationVec(metrics.EntityReadDuration, "prefix")
		if len(prefix) > s.cfg.PrefixLimit {
			prefix = prefix[:s.cfg.PrefixLimit]
		}
		return s.resolveCandidates(tenant, prefix, o)
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.EntityReadDuration, "fuzzy")
	return s.fuzzyMatch(tenant, query, o)
}

type candidateID struct {
	typ string
	id  string
}

// scanExactAndPrefix walks every type's exact-key bucket for a prefix
// match on queryLower, splitting hits into exact (valueLower == query)
// and prefix-only, ordered by (created_at, uuid) within each bucket via
// resolveCandidates's later sort.
func (s *Store) scanExactAndPrefix(tenant, queryLower string) (exact, prefix []candidateID, err error) {
	basePrefix := []byte("keyidx:" + tenant + ":")
	err = s.kv.PrefixIter(tenant, kv.BucketIndexes, basePrefix, func(key, _ []byte) error {
		parts := splitKeyParts(key)
		// keyidx:{tenant}:{type}:exact:{valueLower}:{uuid}
		if len(parts) != 6 || parts[3] != "exact" {
			return nil
		}
		typ, valueLower, id := parts[2], parts[4], parts[5]
		if !bytes.HasPrefix([]byte(valueLower), []byte(queryLower)) {
			return nil
		}
		c := candidateID{typ: typ, id: id}
		if valueLower == queryLower {
			exact = append(exact, c)
		} else {
			prefix = append(prefix, c)
		}
		return nil
	})
	return exact, prefix, err
}

func splitKeyParts(key []byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			parts = append(parts, string(key[start:i]))
			start = i + 1
		}
	}
	parts = append(parts, string(key[start:]))
	return parts
}

// fuzzyMatch implements tier 3: tokenize query, gather postings for every
// token across every type, score each candidate with BM25, and return the
// top FuzzyLimit by (score desc, created_at asc, uuid asc).
func (s *Store) fuzzyMatch(tenant, query string, o GetOptions) ([]*types.Entity, error) {
	tokens := codec.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	type docKey struct{ typ, id string }
	tfByDoc := make(map[docKey]map[string]int)
	dfByTypeToken := make(map[string]map[string]int)

	for _, typ := range s.knownTypes(tenant) {
		vocab, err := s.typeVocabulary(tenant, typ)
		if err != nil {
			return nil, err
		}
		matched := map[string]bool{}
		for _, token := range tokens {
			for _, vocabToken := range nearestTokens(token, vocab) {
				matched[vocabToken] = true
			}
		}

		for vocabToken := range matched {
			df, err := s.readCount(tenant, codec.KeyDocFreqKey(tenant, typ, vocabToken))
			if err != nil {
				return nil, err
			}
			if dfByTypeToken[typ] == nil {
				dfByTypeToken[typ] = make(map[string]int)
			}
			dfByTypeToken[typ][vocabToken] = df

			err = s.kv.PrefixIter(tenant, kv.BucketIndexes, codec.KeyTermPrefix(tenant, typ, vocabToken), func(key, value []byte) error {
				parts := splitKeyParts(key)
				if len(parts) != 6 {
					return nil
				}
				id := parts[5]
				dk := docKey{typ: typ, id: id}
				if tfByDoc[dk] == nil {
					tfByDoc[dk] = make(map[string]int)
				}
				tfByDoc[dk][vocabToken] = decodeCount(value)
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	var scored []scoredEntity
	for dk, tf := range tfByDoc {
		docCount, totalLen, err := s.readCorpusStats(tenant, dk.typ)
		if err != nil {
			return nil, err
		}
		docLen, err := s.readCount(tenant, codec.KeyDocLenKey(tenant, dk.typ, mustParseUUID(dk.id)))
		if err != nil {
			return nil, err
		}
		score := bm25Score(s.cfg.BM25K1, s.cfg.BM25B, docCount, totalLen, docLen, tf, dfByTypeToken[dk.typ])
		if score <= 0 {
			continue
		}
		e, err := s.Get(tenant, mustParseUUID(dk.id), WithIncludeDeleted(o.IncludeDeleted))
		if err != nil {
			continue
		}
		scored = append(scored, scoredEntity{entity: e, score: score})
	}

	sortCandidates(scored)
	if len(scored) > s.cfg.FuzzyLimit {
		scored = scored[:s.cfg.FuzzyLimit]
	}
	out := make([]*types.Entity, len(scored))
	for i, sc := range scored {
		out[i] = sc.entity
	}
	return out, nil
}

// typeVocabulary lists every distinct token indexed for typ, read off the
// df bucket's key space.
func (s *Store) typeVocabulary(tenant, typ string) ([]string, error) {
	var vocab []string
	prefix := codec.KeyDocFreqKey(tenant, typ, "")
	err := s.kv.PrefixIter(tenant, kv.BucketIndexes, prefix, func(key, _ []byte) error {
		parts := splitKeyParts(key)
		if len(parts) != 5 {
			return nil
		}
		vocab = append(vocab, parts[4])
		return nil
	})
	return vocab, err
}

// nearestTokens returns every vocabulary token within edit distance of
// query, tolerating the kind of typos spec.md's fuzzy-tier example
// describes ("alise compny" finding "alice"/"company"). An exact match is
// always included; edit-distance tolerance scales with token length so
// short tokens aren't over-matched.
func nearestTokens(query string, vocab []string) []string {
	var out []string
	maxDist := 1 + len(query)/5
	for _, v := range vocab {
		if v == query || editDistance(query, v) <= maxDist {
			out = append(out, v)
		}
	}
	return out
}

// editDistance computes the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

// knownTypes lists every type that has registered a schema in tenant.
func (s *Store) knownTypes(tenant string) []string {
	descs, err := s.schemas.ListByCategory(tenant, "")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Name)
	}
	return out
}

func (s *Store) resolveCandidates(tenant string, cands []candidateID, o GetOptions) ([]*types.Entity, error) {
	var scored []scoredEntity
	for _, c := range cands {
		id := mustParseUUID(c.id)
		e, err := s.Get(tenant, id, WithIncludeDeleted(o.IncludeDeleted))
		if err != nil {
			continue
		}
		scored = append(scored, scoredEntity{entity: e, score: 0})
	}
	sortCandidates(scored)
	out := make([]*types.Entity, len(scored))
	for i, sc := range scored {
		out[i] = sc.entity
	}
	return out, nil
}

func mustParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
