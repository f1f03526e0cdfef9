package plan

import (
	"strings"
	"testing"

	"github.com/hugr-lab/mongoport-go/filter"
	"github.com/hugr-lab/mongoport-go/scan"
	"github.com/hugr-lab/mongoport-go/schema"
)

func testBind() *scan.BindState {
	return &scan.BindState{
		Database:   "shop",
		Collection: "orders",
		Schema: &schema.Schema{Columns: []schema.Column{
			{Name: "_id", Type: schema.Type{ID: schema.Varchar}, Path: "_id"},
			{Name: "status", Type: schema.Type{ID: schema.Varchar}, Path: "status"},
			{Name: "amount", Type: schema.Type{ID: schema.Double}, Path: "amount"},
		}},
	}
}

func scanNode(bind *scan.BindState) *ScanNode {
	return &ScanNode{TableIndex: 0, Bind: bind, ColumnIDs: []int{0, 1, 2}}
}

func idRef(table, column int) *ColumnRef {
	return &ColumnRef{Binding: ColumnBinding{Table: table, Column: column}, Name: "_id"}
}

func TestRewriteTopNByID(t *testing.T) {
	// SELECT * FROM orders ORDER BY _id LIMIT 10
	sc := scanNode(testBind())
	root := Node(&TopN{
		Limit:  10,
		Orders: []OrderBy{{Expr: idRef(0, 0)}},
		Child:  sc,
	})

	got := Rewrite(root)

	rewritten, ok := got.(*ScanNode)
	if !ok {
		t.Fatalf("root = %T, want *ScanNode (TopN dropped)", got)
	}
	want := `[{"$sort":{"_id":1}},{"$limit":10}]`
	if rewritten.Bind.PipelineJSON != want {
		t.Errorf("pipeline = %s, want %s", rewritten.Bind.PipelineJSON, want)
	}
}

func TestRewriteTopNDescending(t *testing.T) {
	sc := scanNode(testBind())
	root := Node(&TopN{
		Limit:  5,
		Orders: []OrderBy{{Expr: idRef(0, 0), Desc: true}},
		Child:  sc,
	})

	got := Rewrite(root)
	rewritten, ok := got.(*ScanNode)
	if !ok {
		t.Fatalf("root = %T, want *ScanNode", got)
	}
	if !strings.Contains(rewritten.Bind.PipelineJSON, `{"$sort":{"_id":-1}}`) {
		t.Errorf("pipeline = %s, want descending sort", rewritten.Bind.PipelineJSON)
	}
}

func TestRewriteTopNThroughProjection(t *testing.T) {
	sc := scanNode(testBind())
	proj := &Projection{
		TableIndex: 1,
		Exprs:      []Expr{idRef(0, 0), &ColumnRef{Binding: ColumnBinding{Table: 0, Column: 1}, Name: "status"}},
		Child:      sc,
	}
	root := Node(&TopN{
		Limit:  3,
		Orders: []OrderBy{{Expr: idRef(1, 0)}},
		Child:  proj,
	})

	got := Rewrite(root)

	// The projection chain stays; the TopN is gone.
	gotProj, ok := got.(*Projection)
	if !ok {
		t.Fatalf("root = %T, want *Projection", got)
	}
	child, ok := gotProj.Child.(*ScanNode)
	if !ok {
		t.Fatalf("projection child = %T, want *ScanNode", gotProj.Child)
	}
	if !strings.Contains(child.Bind.PipelineJSON, `"$limit":3`) {
		t.Errorf("pipeline = %s", child.Bind.PipelineJSON)
	}
}

func TestRewriteTopNPreconditions(t *testing.T) {
	tests := []struct {
		name string
		node func() *TopN
	}{
		{"offset nonzero", func() *TopN {
			return &TopN{Limit: 10, Offset: 5, Orders: []OrderBy{{Expr: idRef(0, 0)}}, Child: scanNode(testBind())}
		}},
		{"multiple orders", func() *TopN {
			return &TopN{Limit: 10, Orders: []OrderBy{{Expr: idRef(0, 0)}, {Expr: idRef(0, 1)}}, Child: scanNode(testBind())}
		}},
		{"sort key not _id", func() *TopN {
			return &TopN{Limit: 10, Orders: []OrderBy{{
				Expr: &ColumnRef{Binding: ColumnBinding{Table: 0, Column: 1}, Name: "status"},
			}}, Child: scanNode(testBind())}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rewrite(tt.node())
			topn, ok := got.(*TopN)
			if !ok {
				t.Fatalf("root = %T, want unchanged *TopN", got)
			}
			if sc, ok := topn.Child.(*ScanNode); ok && sc.Bind.PipelineJSON != "" {
				t.Errorf("scan gained a pipeline despite failed rewrite: %s", sc.Bind.PipelineJSON)
			}
		})
	}
}

func TestRewriteTopNIncludesExistingFilters(t *testing.T) {
	sc := scanNode(testBind())
	sc.Filters = map[int]filter.TableFilter{
		1: &filter.ConstantFilter{Op: filter.TypeCompareEqual, Value: filter.StringValue("A")},
	}
	root := Node(&TopN{Limit: 2, Orders: []OrderBy{{Expr: idRef(0, 0)}}, Child: sc})

	got := Rewrite(root).(*ScanNode)
	pipeline := got.Bind.PipelineJSON
	if !strings.Contains(pipeline, `"$match"`) || !strings.Contains(pipeline, `"status":"A"`) {
		t.Errorf("pipeline missing $match from existing filters: %s", pipeline)
	}
	if !strings.HasPrefix(pipeline, `[{"$match"`) {
		t.Errorf("$match is not the first stage: %s", pipeline)
	}
}

func TestRewriteAggregateCountStar(t *testing.T) {
	// SELECT COUNT(*) FROM orders
	sc := scanNode(testBind())
	aggr := &Aggregate{
		GroupIndex:     2,
		AggregateIndex: 3,
		Aggregates:     []*AggregateCall{{Name: "count_star"}},
		GroupingSets:   1,
		Child:          sc,
	}
	proj := &Projection{
		TableIndex: 4,
		Exprs:      []Expr{&ColumnRef{Binding: ColumnBinding{Table: 3, Column: 0}}},
		Child:      aggr,
	}

	got := Rewrite(proj).(*Projection)

	child, ok := got.Child.(*ScanNode)
	if !ok {
		t.Fatalf("aggregate not replaced: %T", got.Child)
	}
	if child.TableIndex != 2 {
		t.Errorf("table index = %d, want group index 2", child.TableIndex)
	}
	if child.Bind.PipelineJSON != `[{"$count":"count"}]` {
		t.Errorf("pipeline = %s, want bare $count", child.Bind.PipelineJSON)
	}
	cols := child.Bind.Schema.Columns
	if len(cols) != 1 || cols[0].Name != "count" || cols[0].Type.ID != schema.BigInt {
		t.Errorf("output schema = %v, want single BIGINT count", cols)
	}

	// Upstream reference to the aggregate output was redirected.
	ref := got.Exprs[0].(*ColumnRef)
	if ref.Binding.Table != 2 || ref.Binding.Column != 0 {
		t.Errorf("binding = %+v, want {2 0}", ref.Binding)
	}
}

func TestRewriteAggregateGrouped(t *testing.T) {
	// SELECT status, SUM(amount) FROM orders GROUP BY status
	sc := scanNode(testBind())
	aggr := &Aggregate{
		GroupIndex:     5,
		AggregateIndex: 6,
		Groups: []Expr{
			&ColumnRef{Binding: ColumnBinding{Table: 0, Column: 1}, Name: "status", ReturnType: schema.Type{ID: schema.Varchar}},
		},
		Aggregates: []*AggregateCall{{
			Name:       "sum",
			Args:       []Expr{&ColumnRef{Binding: ColumnBinding{Table: 0, Column: 2}, Name: "amount"}},
			ReturnType: schema.Type{ID: schema.Double},
		}},
		GroupingSets: 1,
		Child:        sc,
	}
	proj := &Projection{
		TableIndex: 7,
		Exprs: []Expr{
			&ColumnRef{Binding: ColumnBinding{Table: 5, Column: 0}},
			&ColumnRef{Binding: ColumnBinding{Table: 6, Column: 0}},
		},
		Child: aggr,
	}

	got := Rewrite(proj).(*Projection)
	child, ok := got.Child.(*ScanNode)
	if !ok {
		t.Fatalf("aggregate not replaced: %T", got.Child)
	}

	pipeline := child.Bind.PipelineJSON
	for _, want := range []string{
		`"$group":{"_id":{"status":"$status"},"__agg0":{"$sum":"$amount"}}`,
		`"$project":{"status":"$_id.status","__agg0":1,"_id":0}`,
	} {
		if !strings.Contains(pipeline, want) {
			t.Errorf("pipeline missing %s:\n%s", want, pipeline)
		}
	}

	cols := child.Bind.Schema.Columns
	if len(cols) != 2 || cols[0].Name != "status" || cols[1].Name != "__agg0" {
		t.Fatalf("output schema = %v", cols)
	}
	if cols[1].Type.ID != schema.Double {
		t.Errorf("__agg0 type = %v, want DOUBLE", cols[1].Type)
	}

	// Group reference unchanged, aggregate reference offset by group count.
	groupRef := got.Exprs[0].(*ColumnRef)
	if groupRef.Binding.Table != 5 || groupRef.Binding.Column != 0 {
		t.Errorf("group binding = %+v, want {5 0}", groupRef.Binding)
	}
	aggRef := got.Exprs[1].(*ColumnRef)
	if aggRef.Binding.Table != 5 || aggRef.Binding.Column != 1 {
		t.Errorf("aggregate binding = %+v, want {5 1}", aggRef.Binding)
	}
}

func TestRewriteAggregateCountColumn(t *testing.T) {
	sc := scanNode(testBind())
	aggr := &Aggregate{
		GroupIndex:     2,
		AggregateIndex: 3,
		Aggregates: []*AggregateCall{{
			Name: "count",
			Args: []Expr{&ColumnRef{Binding: ColumnBinding{Table: 0, Column: 2}, Name: "amount"}},
		}},
		GroupingSets: 1,
		Child:        sc,
	}

	got := Rewrite(Node(aggr))
	child, ok := got.(*ScanNode)
	if !ok {
		t.Fatalf("aggregate not replaced: %T", got)
	}
	pipeline := child.Bind.PipelineJSON
	// COUNT(col) counts non-null values.
	if !strings.Contains(pipeline, `"$cond":[{"$ne":["$amount",null]},1,0]`) {
		t.Errorf("pipeline missing null-aware count:\n%s", pipeline)
	}
}

func TestRewriteAggregatePreconditions(t *testing.T) {
	mk := func(agg *AggregateCall) *Aggregate {
		return &Aggregate{
			GroupIndex:     2,
			AggregateIndex: 3,
			Aggregates:     []*AggregateCall{agg},
			GroupingSets:   1,
			Child:          scanNode(testBind()),
		}
	}
	amount := func() Expr {
		return &ColumnRef{Binding: ColumnBinding{Table: 0, Column: 2}, Name: "amount"}
	}

	tests := []struct {
		name string
		node *Aggregate
	}{
		{"distinct", mk(&AggregateCall{Name: "sum", Args: []Expr{amount()}, Distinct: true})},
		{"filter clause", mk(&AggregateCall{Name: "sum", Args: []Expr{amount()}, Filter: &Constant{Value: true}})},
		{"order sensitive", mk(&AggregateCall{Name: "sum", Args: []Expr{amount()}, HasOrderBy: true})},
		{"unsupported function", mk(&AggregateCall{Name: "median", Args: []Expr{amount()}})},
		{"grouping sets", func() *Aggregate {
			a := mk(&AggregateCall{Name: "count_star"})
			a.GroupingSets = 2
			return a
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rewrite(Node(tt.node))
			if _, ok := got.(*Aggregate); !ok {
				t.Errorf("root = %T, want unchanged *Aggregate", got)
			}
		})
	}
}

func TestRewriteAggregateNonColumnGroupCancels(t *testing.T) {
	sc := scanNode(testBind())
	aggr := &Aggregate{
		GroupIndex:     2,
		AggregateIndex: 3,
		Groups:         []Expr{&Constant{Value: 1}},
		Aggregates:     []*AggregateCall{{Name: "count_star"}},
		GroupingSets:   1,
		Child:          sc,
	}
	got := Rewrite(Node(aggr))
	if _, ok := got.(*Aggregate); !ok {
		t.Errorf("root = %T, want unchanged *Aggregate (non-column group)", got)
	}
	if sc.Bind.PipelineJSON != "" {
		t.Error("failed rewrite mutated the scan bind state")
	}
}
