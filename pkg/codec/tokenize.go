package codec

import "strings"

// Tokenize splits s into lowercased alphanumeric-run tokens, the
// tokenization rule the fuzzy key index uses for both indexing (pkg/entity)
// and querying (lookup_entity's fuzzy tier). "alice@company.com" yields
// ["alice", "company", "com"].
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
