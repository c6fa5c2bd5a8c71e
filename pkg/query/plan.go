package query

import "github.com/cuemby/rem/pkg/types"

// planMode names which of the three execution strategies spec §4.7.2
// chose for a statement.
type planMode string

const (
	planKey    planMode = "key"
	planIndex  planMode = "index"
	planScan   planMode = "scan"
	planVector planMode = "vector"
)

// containsOr reports whether expr has an OR anywhere in its tree. Key and
// index mode only apply to a pure conjunction of predicates (spec §4.7.2
// "if any WHERE conjunct..."); an OR anywhere forces scan mode, since a
// single posting-list intersection or point-get can't represent a
// disjunction.
func containsOr(expr Expr) bool {
	b, ok := expr.(*BinaryExpr)
	if !ok {
		return false
	}
	if b.Op == "OR" {
		return true
	}
	return containsOr(b.Left) || containsOr(b.Right)
}

// flattenAnd collects every leaf predicate in a pure AND-chain. Callers
// must have already checked !containsOr(expr).
func flattenAnd(expr Expr) []Expr {
	if expr == nil {
		return nil
	}
	if b, ok := expr.(*BinaryExpr); ok && b.Op == "AND" {
		return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
	}
	return []Expr{expr}
}

// keyCandidate is a conjunct identifying a row by id or by the schema's
// declared key field with equality, eligible for point-get (spec §4.7.2
// mode 1).
type keyCandidate struct {
	byID     bool
	idStr    string
	byKey    bool
	keyValue string
}

func findKeyCandidate(conjuncts []Expr, desc *types.SchemaDescription) *keyCandidate {
	for _, c := range conjuncts {
		cmp, ok := c.(*CompareExpr)
		if !ok || cmp.Op != "=" || cmp.Value.Kind != LiteralString {
			continue
		}
		if cmp.Field == "id" {
			return &keyCandidate{byID: true, idStr: cmp.Value.Str}
		}
		if desc.KeyField != "" && cmp.Field == desc.KeyField {
			return &keyCandidate{byKey: true, keyValue: cmp.Value.Str}
		}
	}
	return nil
}

// indexCandidate is a conjunct referencing an indexed field with equality
// or IN, eligible for posting-list intersection before a full entity
// fetch (spec §4.7.2 mode 2).
type indexCandidate struct {
	field  string
	values []string
}

func findIndexCandidate(conjuncts []Expr, desc *types.SchemaDescription) *indexCandidate {
	indexed := make(map[string]bool, len(desc.IndexedFields))
	for _, f := range desc.IndexedFields {
		indexed[f] = true
	}
	for _, c := range conjuncts {
		switch e := c.(type) {
		case *CompareExpr:
			if e.Op == "=" && indexed[e.Field] {
				return &indexCandidate{field: e.Field, values: []string{literalString(e.Value)}}
			}
		case *InExpr:
			if indexed[e.Field] {
				vals := make([]string, len(e.Values))
				for i, v := range e.Values {
					vals[i] = literalString(v)
				}
				return &indexCandidate{field: e.Field, values: vals}
			}
		}
	}
	return nil
}

func literalString(lit Literal) string {
	switch lit.Kind {
	case LiteralString:
		return lit.Str
	case LiteralBool:
		if lit.Bool {
			return "true"
		}
		return "false"
	default:
		return formatFloat(lit.Num)
	}
}
