package plan

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hugr-lab/mongoport-go/schema"
)

// BindingRule redirects column references from one table index to another,
// shifting column indices by Offset. Produced when an aggregate is replaced
// by a pipeline scan bound under the aggregate's group index.
type BindingRule struct {
	From   int
	To     int
	Offset int
}

// Rewrite runs the pipeline rewriter over the plan and applies the
// accumulated binding rules in one post-pass walk. Any precondition
// violation cancels the rewrite for that node and recursion continues; a
// rewrite is never partial.
func Rewrite(root Node) Node {
	r := &rewriter{}
	root = r.rewrite(root)
	if len(r.rules) > 0 {
		applyRulesToNode(root, r.rules)
	}
	return root
}

type rewriter struct {
	rules []BindingRule
}

func (r *rewriter) rewrite(node Node) Node {
	if node == nil {
		return nil
	}

	if replaced, ok := r.rewriteTopN(node); ok {
		// The TopN collapsed into its child; keep rewriting at this spot.
		return r.rewrite(replaced)
	}
	if replaced, ok := r.rewriteAggregate(node); ok {
		return replaced
	}

	for _, child := range children(node) {
		*child = r.rewrite(*child)
	}
	return node
}

// scanBelow walks a chain of projections down to a scan, collecting the
// projections passed through. Any other operator aborts.
func scanBelow(node Node) (*ScanNode, []*Projection, bool) {
	var projections []*Projection
	for {
		switch n := node.(type) {
		case *Projection:
			projections = append(projections, n)
			node = n.Child
		case *ScanNode:
			return n, projections, true
		default:
			return nil, nil, false
		}
	}
}

// resolveToScan traces a column reference through the projection chain to a
// scan output column. The resolved index must agree with the expression's
// name; qualified names are trusted, bare names fall back to a name lookup.
func resolveToScan(e Expr, projections []*Projection, sc *ScanNode) (int, bool) {
	ref, ok := unwrapCast(e).(*ColumnRef)
	if !ok {
		return 0, false
	}
	binding := ref.Binding
	for _, proj := range projections {
		if binding.Table != proj.TableIndex {
			continue
		}
		if binding.Column < 0 || binding.Column >= len(proj.Exprs) {
			return 0, false
		}
		inner, ok := unwrapCast(proj.Exprs[binding.Column]).(*ColumnRef)
		if !ok {
			return 0, false
		}
		binding = inner.Binding
	}
	if binding.Table != sc.TableIndex {
		return 0, false
	}
	idx := binding.Column

	cols := sc.Bind.Schema.Columns
	if ref.Name == "" {
		return idx, idx >= 0 && idx < len(cols)
	}
	if idx >= 0 && idx < len(cols) && strings.EqualFold(cols[idx].Name, ref.Name) {
		return idx, true
	}
	if strings.Contains(ref.Name, ".") {
		return idx, idx >= 0 && idx < len(cols)
	}
	for i, c := range cols {
		if strings.EqualFold(c.Name, ref.Name) {
			return i, true
		}
	}
	return 0, false
}

// rewriteTopN turns TopN{_id ASC|DESC, limit k, offset 0} over a scan into
// a $sort/$limit pipeline on the scan, dropping the TopN node. The
// projection chain above the scan stays intact.
func (r *rewriter) rewriteTopN(node Node) (Node, bool) {
	topn, ok := node.(*TopN)
	if !ok {
		return nil, false
	}
	if topn.Offset != 0 || topn.Limit <= 0 || len(topn.Orders) != 1 || topn.Orders[0].Expr == nil {
		return nil, false
	}

	sc, projections, ok := scanBelow(topn.Child)
	if !ok || sc.Bind == nil {
		return nil, false
	}

	idx, ok := resolveToScan(topn.Orders[0].Expr, projections, sc)
	if !ok {
		return nil, false
	}
	cols := sc.Bind.Schema.Columns
	if idx >= len(cols) || !strings.EqualFold(cols[idx].Name, "_id") {
		return nil, false
	}

	match, err := sc.Bind.MatchFilter(sc.Filters)
	if err != nil {
		return nil, false
	}

	var stages []bson.D
	if len(match) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: match}})
	}
	dir := 1
	if topn.Orders[0].Desc {
		dir = -1
	}
	stages = append(stages,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: dir}}}},
		bson.D{{Key: "$limit", Value: topn.Limit}},
	)

	pipelineJSON, err := marshalStages(stages)
	if err != nil {
		return nil, false
	}

	sc.Bind = sc.Bind.CloneWithPipeline(pipelineJSON)
	sc.Filters = nil
	return topn.Child, true
}

// supportedAggregate classifies an aggregate call. childCol is the scan
// column the single argument resolves to; -1 for count_star.
func supportedAggregate(a *AggregateCall, projections []*Projection, sc *ScanNode) (kind string, childCol int, ok bool) {
	if a.Distinct || a.Filter != nil || a.HasOrderBy {
		return "", 0, false
	}
	name := strings.ToLower(a.Name)
	if name == "count_star" {
		return "count_star", -1, len(a.Args) == 0
	}
	switch name {
	case "count", "sum", "min", "max", "avg":
		if len(a.Args) != 1 {
			return "", 0, false
		}
		idx, ok := resolveToScan(a.Args[0], projections, sc)
		if !ok {
			return "", 0, false
		}
		return name, idx, true
	}
	return "", 0, false
}

// rewriteAggregate turns Aggregate{groups G, aggs A} over a scan into a
// $group pipeline scan bound under the aggregate's group index, recording a
// binding rule for references to the aggregate outputs. Ungrouped COUNT(*)
// becomes a bare $count stage.
func (r *rewriter) rewriteAggregate(node Node) (Node, bool) {
	aggr, ok := node.(*Aggregate)
	if !ok {
		return nil, false
	}
	if aggr.GroupingSets > 1 {
		return nil, false
	}

	sc, projections, ok := scanBelow(aggr.Child)
	if !ok || sc.Bind == nil {
		return nil, false
	}
	bind := sc.Bind

	// Group keys must be plain column refs with registered paths.
	type groupField struct {
		name string
		path string
		typ  schema.Type
	}
	groups := make([]groupField, 0, len(aggr.Groups))
	for _, g := range aggr.Groups {
		idx, ok := resolveToScan(g, projections, sc)
		if !ok || idx >= len(bind.Schema.Columns) {
			return nil, false
		}
		col := bind.Schema.Columns[idx]
		typ := col.Type
		if ref, isRef := unwrapCast(g).(*ColumnRef); isRef && ref.ReturnType.ID != schema.Invalid {
			typ = ref.ReturnType
		}
		groups = append(groups, groupField{name: col.Name, path: col.Path, typ: typ})
	}

	countStarOnly := false
	if len(groups) == 0 && len(aggr.Aggregates) == 1 {
		if kind, _, ok := supportedAggregate(aggr.Aggregates[0], projections, sc); ok && kind == "count_star" {
			countStarOnly = true
		}
	}

	outCols := make([]schema.Column, 0, len(groups)+len(aggr.Aggregates))
	for _, g := range groups {
		outCols = append(outCols, schema.Column{Name: g.name, Type: g.typ, Path: g.name})
	}

	var aggSpecs bson.D
	if countStarOnly {
		outCols = []schema.Column{{Name: "count", Type: schema.Type{ID: schema.BigInt}, Path: "count"}}
	} else {
		for i, a := range aggr.Aggregates {
			kind, childCol, ok := supportedAggregate(a, projections, sc)
			if !ok {
				return nil, false
			}
			field := fmt.Sprintf("__agg%d", i)

			var spec bson.D
			switch kind {
			case "count_star":
				spec = bson.D{{Key: "$sum", Value: 1}}
				outCols = append(outCols, schema.Column{Name: field, Type: schema.Type{ID: schema.BigInt}, Path: field})
			case "count":
				path := bind.Schema.Columns[childCol].Path
				cond := bson.D{{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$ne", Value: bson.A{"$" + path, nil}}},
					1,
					0,
				}}}
				spec = bson.D{{Key: "$sum", Value: cond}}
				outCols = append(outCols, schema.Column{Name: field, Type: schema.Type{ID: schema.BigInt}, Path: field})
			default:
				path := bind.Schema.Columns[childCol].Path
				spec = bson.D{{Key: "$" + kind, Value: "$" + path}}
				typ := a.ReturnType
				if typ.ID == schema.Invalid {
					typ = bind.Schema.Columns[childCol].Type
				}
				outCols = append(outCols, schema.Column{Name: field, Type: typ, Path: field})
			}
			aggSpecs = append(aggSpecs, bson.E{Key: field, Value: spec})
		}
	}

	match, err := bind.MatchFilter(sc.Filters)
	if err != nil {
		return nil, false
	}

	var stages []bson.D
	if len(match) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: match}})
	}

	if countStarOnly {
		stages = append(stages, bson.D{{Key: "$count", Value: "count"}})
	} else {
		groupSpec := bson.D{}
		if len(groups) == 0 {
			groupSpec = append(groupSpec, bson.E{Key: "_id", Value: nil})
		} else {
			idDoc := bson.D{}
			for _, g := range groups {
				idDoc = append(idDoc, bson.E{Key: g.name, Value: "$" + g.path})
			}
			groupSpec = append(groupSpec, bson.E{Key: "_id", Value: idDoc})
		}
		groupSpec = append(groupSpec, aggSpecs...)
		stages = append(stages, bson.D{{Key: "$group", Value: groupSpec}})

		projectSpec := bson.D{}
		for _, g := range groups {
			projectSpec = append(projectSpec, bson.E{Key: g.name, Value: "$_id." + g.name})
		}
		for _, e := range aggSpecs {
			projectSpec = append(projectSpec, bson.E{Key: e.Key, Value: 1})
		}
		projectSpec = append(projectSpec, bson.E{Key: "_id", Value: 0})
		stages = append(stages, bson.D{{Key: "$project", Value: projectSpec}})
	}

	pipelineJSON, err := marshalStages(stages)
	if err != nil {
		return nil, false
	}

	out := &schema.Schema{Columns: outCols}
	replacement := &ScanNode{
		TableIndex: aggr.GroupIndex,
		Bind:       bind.CloneForAggregate(pipelineJSON, out),
		ColumnIDs:  allIndices(len(outCols)),
	}

	offset := len(groups)
	if countStarOnly {
		offset = 0
	}
	r.rules = append(r.rules, BindingRule{From: aggr.AggregateIndex, To: aggr.GroupIndex, Offset: offset})

	return replacement, true
}

func allIndices(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// applyRulesToNode walks the whole plan once, redirecting every column
// reference the rules cover. Replacing a node with one bound under another
// table index leaves upstream references stale; this pass fixes them all.
func applyRulesToNode(node Node, rules []BindingRule) {
	if node == nil {
		return
	}
	visitExprs(node, func(e Expr) {
		visitColumnRefs(e, func(ref *ColumnRef) {
			for _, rule := range rules {
				if ref.Binding.Table == rule.From {
					ref.Binding.Table = rule.To
					ref.Binding.Column += rule.Offset
				}
			}
		})
	})
	for _, child := range children(node) {
		applyRulesToNode(*child, rules)
	}
}

// marshalStages renders pipeline stages as a JSON array text.
func marshalStages(stages []bson.D) (string, error) {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, stage := range stages {
		if i > 0 {
			sb.WriteByte(',')
		}
		data, err := bson.MarshalExtJSON(stage, false, false)
		if err != nil {
			return "", err
		}
		sb.Write(data)
	}
	sb.WriteByte(']')
	return sb.String(), nil
}
