// Package plan holds the slice of the logical plan the pipeline rewriter
// works on, and the rewriter itself: a late optimizer pass that replaces
// {aggregate over scan} and {top-N by _id over scan} shapes with a single
// aggregation-pipeline scan, keeping the rest of the plan binding-consistent
// through rewrite rules.
package plan

import (
	"github.com/hugr-lab/mongoport-go/filter"
	"github.com/hugr-lab/mongoport-go/scan"
	"github.com/hugr-lab/mongoport-go/schema"
)

// ColumnBinding identifies a column by table and column index.
type ColumnBinding struct {
	Table  int
	Column int
}

// Expr is a plan expression node.
type Expr interface {
	exprMarker()
}

// ColumnRef references a column of another operator's output.
type ColumnRef struct {
	Binding    ColumnBinding
	Name       string
	ReturnType schema.Type
}

// Cast wraps an expression in a type cast.
type Cast struct {
	Input Expr
	To    schema.Type
}

// Constant is a literal.
type Constant struct {
	Value any
}

// AggregateCall is one aggregate expression of an Aggregate node.
type AggregateCall struct {
	Name       string // count_star, count, sum, min, max, avg, ...
	Args       []Expr
	Distinct   bool
	Filter     Expr
	HasOrderBy bool
	ReturnType schema.Type
}

func (*ColumnRef) exprMarker()     {}
func (*Cast) exprMarker()          {}
func (*Constant) exprMarker()      {}
func (*AggregateCall) exprMarker() {}

// Node is a logical plan operator.
type Node interface {
	nodeMarker()
}

// ScanNode is a collection scan with its bind state, pushed table filters,
// and the column ids it exposes.
type ScanNode struct {
	TableIndex int
	Bind       *scan.BindState
	Filters    map[int]filter.TableFilter
	ColumnIDs  []int
}

// Projection computes expressions over its child.
type Projection struct {
	TableIndex int
	Exprs      []Expr
	Child      Node
}

// TopN returns the first Limit rows of its child under Orders.
type TopN struct {
	Limit  int64
	Offset int64
	Orders []OrderBy
	Child  Node
}

// OrderBy is one sort key.
type OrderBy struct {
	Expr Expr
	Desc bool
}

// Aggregate groups its child and computes aggregates. GroupIndex and
// AggregateIndex are the table indices its group and aggregate outputs are
// bound under.
type Aggregate struct {
	GroupIndex     int
	AggregateIndex int
	Groups         []Expr
	Aggregates     []*AggregateCall
	GroupingSets   int
	Child          Node
}

// Limit caps its child's row count.
type Limit struct {
	Count int64
	Child Node
}

func (*ScanNode) nodeMarker()   {}
func (*Projection) nodeMarker() {}
func (*TopN) nodeMarker()       {}
func (*Aggregate) nodeMarker()  {}
func (*Limit) nodeMarker()      {}

// children returns addressable child slots so the rewriter can replace
// subtrees in place.
func children(n Node) []*Node {
	switch n := n.(type) {
	case *Projection:
		return []*Node{&n.Child}
	case *TopN:
		return []*Node{&n.Child}
	case *Aggregate:
		return []*Node{&n.Child}
	case *Limit:
		return []*Node{&n.Child}
	default:
		return nil
	}
}

// visitExprs calls fn for every expression hanging off the node itself
// (not its children).
func visitExprs(n Node, fn func(Expr)) {
	switch n := n.(type) {
	case *Projection:
		for _, e := range n.Exprs {
			fn(e)
		}
	case *TopN:
		for _, o := range n.Orders {
			fn(o.Expr)
		}
	case *Aggregate:
		for _, e := range n.Groups {
			fn(e)
		}
		for _, a := range n.Aggregates {
			for _, e := range a.Args {
				fn(e)
			}
			if a.Filter != nil {
				fn(a.Filter)
			}
		}
	}
}

// visitColumnRefs walks an expression tree visiting every column reference.
func visitColumnRefs(e Expr, fn func(*ColumnRef)) {
	switch e := e.(type) {
	case *ColumnRef:
		fn(e)
	case *Cast:
		visitColumnRefs(e.Input, fn)
	case *AggregateCall:
		for _, arg := range e.Args {
			visitColumnRefs(arg, fn)
		}
		if e.Filter != nil {
			visitColumnRefs(e.Filter, fn)
		}
	}
}

// unwrapCast strips Cast wrappers.
func unwrapCast(e Expr) Expr {
	for {
		c, ok := e.(*Cast)
		if !ok {
			return e
		}
		e = c.Input
	}
}
