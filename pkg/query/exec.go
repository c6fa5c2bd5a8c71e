package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/graph"
	"github.com/cuemby/rem/pkg/metrics"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/types"
	"github.com/cuemby/rem/pkg/vector"
)

// defaultLimit applies when a vector search (SEARCH, or a SELECT with an
// embedding.cosine predicate) omits LIMIT, since that path needs a bound to
// size its HNSW overfetch. Other statements without LIMIT are not bounded.
const defaultLimit = 50

// overfetchFactor is the multiplier spec §4.7.2 prescribes for the
// vector-search plan: fetch limit*overfetchFactor candidates from the HNSW
// index, then apply the remaining WHERE predicates, then truncate.
const overfetchFactor = 5

// TextEmbedder turns query text into a vector for the similarity operator.
// Declared narrowly here (rather than importing pkg/worker) so the query
// engine doesn't depend on the worker package just to share one method
// signature.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Field is one named value in a result Row.
type Field struct {
	Name  string
	Value types.Value
}

// Row is an ordered field list, spec §6's "rows as ordered maps from field
// name to value". Vector-search rows carry a trailing synthetic "_score"
// field.
type Row []Field

// Get returns the value of the named field, if present.
func (r Row) Get(name string) (types.Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return types.Value{}, false
}

// Engine executes parsed statements against the entity, graph, and vector
// stores, per spec §4.7.
type Engine struct {
	entities *entity.Store
	graphs   *graph.Store
	vectors  *vector.Manager
	schemas  *schema.Registry
	embedder TextEmbedder
}

func NewEngine(entities *entity.Store, graphs *graph.Store, vectors *vector.Manager, schemas *schema.Registry, embedder TextEmbedder) *Engine {
	return &Engine{entities: entities, graphs: graphs, vectors: vectors, schemas: schemas, embedder: embedder}
}

// Query parses and executes sql against tenant's data, returning its
// result rows in spec §4.7.3 order.
func (e *Engine) Query(ctx context.Context, tenant, sql string) ([]Row, error) {
	parseTimer := metrics.NewTimer()
	stmt, err := Parse(sql)
	parseTimer.ObserveDuration(metrics.QueryParseDuration)
	if err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case *SelectStmt:
		return e.execSelect(ctx, tenant, s)
	case *SearchStmt:
		return e.execSearch(ctx, tenant, s)
	case *TraverseStmt:
		return e.execTraverse(tenant, s)
	case *LookupStmt:
		return e.execLookup(tenant, s)
	default:
		return nil, fmt.Errorf("%w: unrecognized statement", remerr.ErrQueryUnsupported)
	}
}

func (e *Engine) execSelect(ctx context.Context, tenant string, stmt *SelectStmt) ([]Row, error) {
	if sim := findSimilarity(stmt.Where); sim != nil {
		return e.execVectorSearch(ctx, tenant, stmt.Type, sim, stmt.Where, stmt.Fields, stmt.HasLimit, stmt.Limit)
	}

	desc, err := e.schemas.Get(tenant, stmt.Type)
	if err != nil {
		if remerrIsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	mode := planScan
	var candidates []*types.Entity

	var conjuncts []Expr
	if stmt.Where != nil && !containsOr(stmt.Where) {
		conjuncts = flattenAnd(stmt.Where)
	}

	if kc := findKeyCandidate(conjuncts, desc); kc != nil {
		mode = planKey
		ent, err := e.resolveKeyCandidate(tenant, desc, kc)
		if err != nil {
			if remerrIsNotFound(err) {
				candidates = nil
			} else {
				return nil, err
			}
		} else if ent != nil {
			candidates = []*types.Entity{ent}
		}
	} else if ic := findIndexCandidate(conjuncts, desc); ic != nil {
		mode = planIndex
		candidates, err = e.resolveIndexCandidate(tenant, stmt.Type, ic)
		if err != nil {
			return nil, err
		}
	} else {
		candidates, err = e.entities.ScanType(tenant, stmt.Type, false)
		if err != nil {
			return nil, err
		}
	}
	metrics.QueryPlanMode.WithLabelValues(string(mode)).Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryExecDuration, string(mode))

	rows := make([]Row, 0, len(candidates))
	for _, ent := range candidates {
		if ent.Deleted() {
			continue
		}
		ec := &evalCtx{entity: ent}
		if stmt.Where != nil && !evalExpr(stmt.Where, ec) {
			continue
		}
		rows = append(rows, projectRow(ent, stmt.Fields, nil))
	}

	sortRows(rows, stmt.OrderBy, stmt.OrderDesc)
	return applyLimitOffset(rows, stmt.HasLimit, stmt.Limit, stmt.Offset), nil
}

func (e *Engine) resolveKeyCandidate(tenant string, desc *types.SchemaDescription, kc *keyCandidate) (*types.Entity, error) {
	if kc.byID {
		id, err := uuid.Parse(kc.idStr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id literal %q", remerr.ErrQuerySyntax, kc.idStr)
		}
		return e.entities.Get(tenant, id)
	}
	matches, err := e.entities.LookupEntity(tenant, kc.keyValue)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if m.Type == desc.Name && m.Name == kc.keyValue {
			return m, nil
		}
	}
	if len(matches) > 0 {
		return matches[0], nil
	}
	return nil, fmt.Errorf("%w: key value %q", remerr.ErrNotFound, kc.keyValue)
}

func (e *Engine) resolveIndexCandidate(tenant, typ string, ic *indexCandidate) ([]*types.Entity, error) {
	seen := make(map[uuid.UUID]bool)
	var out []*types.Entity
	for _, value := range ic.values {
		ids, err := e.entities.IndexLookup(tenant, typ, ic.field, value)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			ent, err := e.entities.Get(tenant, id, entity.WithIncludeDeleted(true))
			if err != nil {
				continue
			}
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (e *Engine) execSearch(ctx context.Context, tenant string, stmt *SearchStmt) ([]Row, error) {
	sim := &SimilarityExpr{Field: "embedding", Metric: "cosine", Text: stmt.Text}
	return e.execVectorSearch(ctx, tenant, stmt.Type, sim, stmt.Where, nil, stmt.HasLimit, stmt.Limit)
}

func (e *Engine) execVectorSearch(ctx context.Context, tenant, typ string, sim *SimilarityExpr, where Expr, fields []string, hasLimit bool, limit int) ([]Row, error) {
	metrics.QueryPlanMode.WithLabelValues(string(planVector)).Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryExecDuration, string(planVector))

	n := defaultLimit
	if hasLimit {
		n = limit
	}
	if n == 0 {
		return nil, nil
	}

	if e.embedder == nil {
		return nil, fmt.Errorf("%w: no text embedder configured for similarity search", remerr.ErrQueryUnsupported)
	}
	vec, err := e.embedder.Embed(ctx, sim.Text)
	if err != nil {
		return nil, fmt.Errorf("query: embedding search text: %w", err)
	}

	results, err := e.vectors.Search(tenant, typ, sim.Field, vec, n*overfetchFactor)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(results))
	for _, r := range results {
		ent, err := e.entities.Get(tenant, r.ID)
		if err != nil {
			continue
		}
		evc := &evalCtx{entity: ent, score: float64(r.Score), hasScore: true}
		if where != nil && !evalExpr(where, evc) {
			continue
		}
		rows = append(rows, projectRow(ent, fields, &r.Score))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		si, _ := rows[i].Get("_score")
		sj, _ := rows[j].Get("_score")
		fi, _ := si.Float()
		fj, _ := sj.Float()
		if fi != fj {
			return fi > fj
		}
		idI, _ := rows[i].Get("id")
		idJ, _ := rows[j].Get("id")
		si2, _ := idI.String()
		sj2, _ := idJ.String()
		return si2 < sj2
	})

	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (e *Engine) execTraverse(tenant string, stmt *TraverseStmt) ([]Row, error) {
	start, err := uuid.Parse(stmt.StartID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start id %q", remerr.ErrQuerySyntax, stmt.StartID)
	}
	depth := 1
	if stmt.HasDepth {
		depth = stmt.Depth
	}
	opts := graph.TraverseOptions{Depth: depth, Direction: stmt.Direction, EdgeType: stmt.EdgeType}

	metrics.QueryPlanMode.WithLabelValues("traverse").Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryExecDuration, "traverse")

	entities, err := e.graphs.Traverse(tenant, start, opts, e.entities)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(entities))
	for _, ent := range entities {
		rows = append(rows, projectRow(ent, nil, nil))
	}
	return rows, nil
}

func (e *Engine) execLookup(tenant string, stmt *LookupStmt) ([]Row, error) {
	metrics.QueryPlanMode.WithLabelValues("lookup").Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryExecDuration, "lookup")

	var rows []Row
	for _, value := range stmt.Values {
		matches, err := e.entities.LookupEntity(tenant, value)
		if err != nil {
			return nil, err
		}
		for _, ent := range matches {
			rows = append(rows, projectRow(ent, nil, nil))
		}
	}
	return rows, nil
}

// projectRow builds a Row from ent, restricted to fields if given (nil/empty
// means every fixed attribute plus every property), with an optional
// trailing _score field for vector-search results.
func projectRow(ent *types.Entity, fields []string, score *float32) Row {
	if len(fields) == 0 {
		row := Row{
			{Name: "id", Value: types.String(ent.ID.String())},
			{Name: "type", Value: types.String(ent.Type)},
			{Name: "name", Value: types.String(ent.Name)},
			{Name: "created_at", Value: types.String(ent.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"))},
			{Name: "modified_at", Value: types.String(ent.ModifiedAt.Format("2006-01-02T15:04:05.999999999Z07:00"))},
		}
		for k, v := range ent.Properties {
			row = append(row, Field{Name: k, Value: v})
		}
		if score != nil {
			row = append(row, Field{Name: "_score", Value: types.Float(float64(*score))})
		}
		return row
	}

	row := make(Row, 0, len(fields)+1)
	for _, f := range fields {
		v, ok := fieldValue(ent, f)
		if !ok {
			continue
		}
		row = append(row, Field{Name: f, Value: v})
	}
	if score != nil {
		row = append(row, Field{Name: "_score", Value: types.Float(float64(*score))})
	}
	return row
}

// sortRows applies ORDER BY, defaulting to ascending id order (spec
// §4.7.3) when the statement didn't specify one.
func sortRows(rows []Row, orderBy string, desc bool) {
	field := orderBy
	if field == "" {
		field = "id"
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, _ := rows[i].Get(field)
		vj, _ := rows[j].Get(field)
		less := compareRowValues(vi, vj)
		if desc {
			return less > 0
		}
		return less < 0
	})
}

func compareRowValues(a, b types.Value) int {
	if as, ok := a.String(); ok {
		bs, _ := b.String()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	af, aok := numericOf(a)
	bf, bok := numericOf(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func numericOf(v types.Value) (float64, bool) {
	switch v.Kind() {
	case types.KindInt:
		i, ok := v.Int()
		return float64(i), ok
	case types.KindFloat:
		return v.Float()
	default:
		return 0, false
	}
}

func applyLimitOffset(rows []Row, hasLimit bool, limit, offset int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if hasLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func remerrIsNotFound(err error) bool {
	return errors.Is(err, remerr.ErrSchemaNotFound) || errors.Is(err, remerr.ErrNotFound)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
