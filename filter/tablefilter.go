package filter

// TableFilter is a per-column predicate as the engine pushes it into a
// scan. Unlike Expression trees, table filters are already bound to a
// single column; the column is supplied alongside when encoding.
type TableFilter interface {
	tableFilterMarker()
}

// ConstantFilter compares the column against a constant with one of the
// comparison operators.
type ConstantFilter struct {
	Op    ExpressionType
	Value Value
}

// InFilter tests membership in a constant set.
type InFilter struct {
	Values []Value
}

// IsNullFilter is IS NULL.
type IsNullFilter struct{}

// IsNotNullFilter is IS NOT NULL.
type IsNotNullFilter struct{}

// AndFilter is a conjunction of predicates on the same column.
type AndFilter struct {
	Children []TableFilter
}

// OrFilter is a disjunction of predicates on the same column.
type OrFilter struct {
	Children []TableFilter
}

// StructFilter targets a field of a STRUCT column; the encoder appends the
// child name to the document path.
type StructFilter struct {
	ChildName string
	Child     TableFilter
}

// OptionalFilter wraps a filter the engine considers advisory, typically an
// IN set produced by semi-join pushdown.
type OptionalFilter struct {
	Child TableFilter
}

// DynamicFilter holds a predicate whose constant is produced at runtime
// (e.g. by a top-N heap elsewhere in the plan). It is translated only once
// initialized; before that it is simply omitted.
type DynamicFilter struct {
	Initialized bool
	Child       TableFilter
}

func (*ConstantFilter) tableFilterMarker()  {}
func (*InFilter) tableFilterMarker()        {}
func (*IsNullFilter) tableFilterMarker()    {}
func (*IsNotNullFilter) tableFilterMarker() {}
func (*AndFilter) tableFilterMarker()       {}
func (*OrFilter) tableFilterMarker()        {}
func (*StructFilter) tableFilterMarker()    {}
func (*OptionalFilter) tableFilterMarker()  {}
func (*DynamicFilter) tableFilterMarker()   {}
