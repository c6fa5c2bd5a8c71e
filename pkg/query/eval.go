package query

import (
	"strings"

	"github.com/cuemby/rem/pkg/types"
)

// evalCtx carries the per-row state a WHERE predicate evaluates against:
// the candidate entity plus, on the vector-search path, its similarity
// score (spec §4.7.1's synthetic _score column).
type evalCtx struct {
	entity *types.Entity
	score  float64
	hasScore bool
}

// fieldValue resolves field to a comparable value, covering both the
// fixed entity attributes (spec §3) and arbitrary Properties keys.
func fieldValue(e *types.Entity, field string) (types.Value, bool) {
	switch field {
	case "id":
		return types.String(e.ID.String()), true
	case "tenant_id":
		return types.String(e.TenantID), true
	case "type":
		return types.String(e.Type), true
	case "name":
		return types.String(e.Name), true
	case "created_at":
		return types.String(e.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00")), true
	case "modified_at":
		return types.String(e.ModifiedAt.Format("2006-01-02T15:04:05.999999999Z07:00")), true
	default:
		v, ok := e.Properties[field]
		return v, ok
	}
}

// evalExpr evaluates a WHERE predicate against ctx. A SimilarityExpr
// evaluates to true iff the candidate carries a score meeting no implicit
// threshold (the planner has already restricted candidates to the
// vector-search result set; SimilarityExpr inside a compound predicate
// just asserts membership in that set, since the scoring itself already
// happened in the plan stage).
func evalExpr(expr Expr, ctx *evalCtx) bool {
	switch e := expr.(type) {
	case *BinaryExpr:
		if e.Op == "AND" {
			return evalExpr(e.Left, ctx) && evalExpr(e.Right, ctx)
		}
		return evalExpr(e.Left, ctx) || evalExpr(e.Right, ctx)
	case *CompareExpr:
		return evalCompare(e, ctx)
	case *InExpr:
		return evalIn(e, ctx)
	case *ContainsExpr:
		return evalContains(e, ctx)
	case *SimilarityExpr:
		return ctx.hasScore
	default:
		return false
	}
}

func evalCompare(e *CompareExpr, ctx *evalCtx) bool {
	v, ok := fieldValue(ctx.entity, e.Field)
	if !ok {
		return false
	}
	cmp, ok := compareValueLiteral(v, e.Value)
	if !ok {
		return false
	}
	switch e.Op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	default:
		return false
	}
}

func evalIn(e *InExpr, ctx *evalCtx) bool {
	v, ok := fieldValue(ctx.entity, e.Field)
	if !ok {
		return false
	}
	for _, lit := range e.Values {
		if cmp, ok := compareValueLiteral(v, lit); ok && cmp == 0 {
			return true
		}
	}
	return false
}

func evalContains(e *ContainsExpr, ctx *evalCtx) bool {
	v, ok := fieldValue(ctx.entity, e.Field)
	if !ok {
		return false
	}
	s, ok := v.String()
	if !ok {
		return false
	}
	return strings.Contains(s, e.Substr)
}

// compareValueLiteral compares a stored Value against a WHERE literal,
// returning -1/0/1 the way a three-way comparator would, with a bool
// reporting whether the two operands were of a comparable kind.
func compareValueLiteral(v types.Value, lit Literal) (int, bool) {
	switch lit.Kind {
	case LiteralString:
		s, ok := v.String()
		if !ok {
			return 0, false
		}
		return strings.Compare(s, lit.Str), true
	case LiteralNumber:
		var n float64
		switch v.Kind() {
		case types.KindInt:
			i, _ := v.Int()
			n = float64(i)
		case types.KindFloat:
			n, _ = v.Float()
		default:
			return 0, false
		}
		switch {
		case n < lit.Num:
			return -1, true
		case n > lit.Num:
			return 1, true
		default:
			return 0, true
		}
	case LiteralBool:
		b, ok := v.Bool()
		if !ok {
			return 0, false
		}
		if b == lit.Bool {
			return 0, true
		}
		return 1, true
	default:
		return 0, false
	}
}
