package filter

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hugr-lab/mongoport-go/schema"
)

// functionMapping maps engine scalar functions onto aggregation operators.
type functionMapping struct {
	names    []string
	operator string
	argCount int
	argTypes []LogicalTypeID // empty means any
}

var functionMappings = []functionMapping{
	{
		names:    []string{"length", "len", "char_length", "character_length"},
		operator: "$strLenCP",
		argCount: 1,
		argTypes: []LogicalTypeID{TypeIDVarchar},
	},
	{
		names:    []string{"substring", "substr"},
		operator: "$substrCP",
		argCount: 3,
	},
}

var functionMappingsByName = func() map[string]*functionMapping {
	m := make(map[string]*functionMapping)
	for i := range functionMappings {
		for _, name := range functionMappings[i].names {
			m[strings.ToLower(name)] = &functionMappings[i]
		}
	}
	return m
}()

// volatileFunctions never push down: re-evaluating them server-side would
// change results.
var volatileFunctions = map[string]struct{}{
	"random":            {},
	"uuid":              {},
	"gen_random_uuid":   {},
	"now":               {},
	"current_timestamp": {},
	"current_date":      {},
}

// PushdownComplex translates complex filter expressions (column-to-column
// comparisons, whitelisted function calls, cast-wrapped operands) into a
// single $expr fragment. Converted filters are removed from the returned
// slice; everything else stays with the engine.
//
// Plain column-op-constant comparisons are deliberately skipped: the table
// filter path produces native, index-friendly queries for those, and a
// $expr would defeat the index.
func PushdownComplex(filters []Expression, s *schema.Schema, tableIndex int) (remaining []Expression, expr bson.D) {
	var fragments []bson.D

	for _, f := range filters {
		if isSimpleColumnConstant(f) {
			remaining = append(remaining, f)
			continue
		}
		frag, ok := convertExpr(f, s, tableIndex)
		if !ok {
			remaining = append(remaining, f)
			continue
		}
		fragments = append(fragments, frag)
	}

	switch len(fragments) {
	case 0:
		return remaining, nil
	case 1:
		return remaining, fragments[0]
	default:
		terms := make(bson.A, len(fragments))
		for i, f := range fragments {
			terms[i] = f
		}
		return remaining, bson.D{{Key: "$and", Value: terms}}
	}
}

// convertExpr translates one expression, enforcing the safety gate first.
func convertExpr(e Expression, s *schema.Schema, tableIndex int) (bson.D, bool) {
	if !safeToPush(e) {
		return nil, false
	}

	// Every referenced column must belong to the scanned table.
	for _, b := range collectBindings(e) {
		if b.TableIndex != tableIndex {
			return nil, false
		}
	}

	switch e := e.(type) {
	case *ComparisonExpression:
		return convertComparison(e, s)
	case *FunctionExpression:
		var out bson.D
		if !convertFunction(e, s, &out) {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

// safeToPush rejects volatile expressions and expressions that can throw.
// Whitelisted functions with validated constant arguments are allowed even
// though the engine flags them throwable.
func safeToPush(e Expression) bool {
	switch e := e.(type) {
	case *ComparisonExpression:
		return safeToPush(e.Left) && safeToPush(e.Right)
	case *CastExpression:
		return safeToPush(e.Child)
	case *FunctionExpression:
		if _, volatile := volatileFunctions[strings.ToLower(e.Name)]; volatile {
			return false
		}
		m, ok := functionMappingsByName[strings.ToLower(e.Name)]
		if !ok || !validateFunction(e, m) {
			return false
		}
		for _, child := range e.Children {
			if !safeToPush(child) {
				return false
			}
		}
		return true
	case *ColumnRefExpression, *ConstantExpression:
		return true
	default:
		return false
	}
}

// isSimpleColumnConstant detects plain column-op-constant comparisons
// (casts stripped) that the find filter path handles natively.
func isSimpleColumnConstant(e Expression) bool {
	comp, ok := e.(*ComparisonExpression)
	if !ok {
		return false
	}
	left := unwrapCast(comp.Left)
	right := unwrapCast(comp.Right)
	_, leftIsColumn := left.(*ColumnRefExpression)
	_, rightIsConstant := right.(*ConstantExpression)
	return leftIsColumn && rightIsConstant
}

// unwrapCast strips CAST wrappers to reach the underlying expression.
func unwrapCast(e Expression) Expression {
	for {
		cast, ok := e.(*CastExpression)
		if !ok {
			return e
		}
		e = cast.Child
	}
}

func collectBindings(e Expression) []ColumnBinding {
	var out []ColumnBinding
	var walk func(Expression)
	walk = func(e Expression) {
		switch e := e.(type) {
		case *ColumnRefExpression:
			out = append(out, e.Binding)
		case *ComparisonExpression:
			walk(e.Left)
			walk(e.Right)
		case *ConjunctionExpression:
			for _, c := range e.Children {
				walk(c)
			}
		case *CastExpression:
			walk(e.Child)
		case *FunctionExpression:
			for _, c := range e.Children {
				walk(c)
			}
		case *OperatorExpression:
			for _, c := range e.Children {
				walk(c)
			}
		case *BetweenExpression:
			walk(e.Input)
			walk(e.Lower)
			walk(e.Upper)
		}
	}
	walk(e)
	return out
}

var comparisonOperators = map[ExpressionType]string{
	TypeCompareEqual:              "$eq",
	TypeCompareNotEqual:           "$ne",
	TypeCompareLessThan:           "$lt",
	TypeCompareLessThanOrEqual:    "$lte",
	TypeCompareGreaterThan:        "$gt",
	TypeCompareGreaterThanOrEqual: "$gte",
}

func convertComparison(comp *ComparisonExpression, s *schema.Schema) (bson.D, bool) {
	op, ok := comparisonOperators[comp.Type()]
	if !ok {
		return nil, false
	}

	left := unwrapCast(comp.Left)
	right := unwrapCast(comp.Right)

	// Plain column-op-constant belongs to the find filter path.
	if _, lc := left.(*ColumnRefExpression); lc {
		if _, rc := right.(*ConstantExpression); rc {
			return nil, false
		}
	}

	args := make(bson.A, 0, 2)

	leftType, ok := appendOperand(&args, left, s)
	if !ok {
		return nil, false
	}

	if c, isConst := right.(*ConstantExpression); isConst {
		// Re-cast the constant to the left side's return type so e.g. a
		// BIGINT-returning function compares against a BIGINT.
		args = append(args, exprConstant(recastConstant(c.Value, leftType)))
	} else if _, ok := appendOperand(&args, right, s); !ok {
		return nil, false
	}

	return bson.D{{Key: op, Value: args}}, true
}

// appendOperand appends a column path or function document to args and
// returns the operand's logical type.
func appendOperand(args *bson.A, e Expression, s *schema.Schema) (LogicalType, bool) {
	if col, ok := e.(*ColumnRefExpression); ok {
		path, ok := columnPath(col, s)
		if !ok {
			return LogicalType{}, false
		}
		*args = append(*args, "$"+path)
		return col.ReturnType, true
	}
	if fn, ok := e.(*FunctionExpression); ok {
		var doc bson.D
		if !convertFunction(fn, s, &doc) {
			return LogicalType{}, false
		}
		*args = append(*args, doc)
		return fn.ReturnType, true
	}
	return LogicalType{}, false
}

// columnPath resolves a column reference to its dotted document path.
func columnPath(col *ColumnRefExpression, s *schema.Schema) (string, bool) {
	idx := col.Binding.ColumnIndex
	if idx < 0 || idx >= len(s.Columns) {
		return "", false
	}
	return s.Columns[idx].Path, true
}

// convertFunction translates a whitelisted function call into its operator
// document, e.g. length(name) -> {$strLenCP: ["$name"]}.
func convertFunction(fn *FunctionExpression, s *schema.Schema, out *bson.D) bool {
	m, ok := functionMappingsByName[strings.ToLower(fn.Name)]
	if !ok || !validateFunction(fn, m) {
		return false
	}

	args := make(bson.A, 0, len(fn.Children))
	for i, arg := range fn.Children {
		unwrapped := unwrapCast(arg)
		if col, isCol := unwrapped.(*ColumnRefExpression); isCol {
			path, ok := columnPath(col, s)
			if !ok {
				return false
			}
			args = append(args, "$"+path)
			continue
		}
		if c, isConst := unwrapped.(*ConstantExpression); isConst {
			if m.operator == "$substrCP" && i == 1 {
				// substring is 1-based, $substrCP is 0-based.
				args = append(args, asConstInt64(c.Value.Data)-1)
			} else {
				args = append(args, exprConstant(c.Value))
			}
			continue
		}
		return false
	}

	*out = bson.D{{Key: m.operator, Value: args}}
	return true
}

// validateFunction checks arity, argument types, and the extra $substrCP
// constraints (constant start >= 1, constant length >= 0).
func validateFunction(fn *FunctionExpression, m *functionMapping) bool {
	if len(fn.Children) != m.argCount {
		return false
	}
	if len(m.argTypes) == m.argCount {
		for i, want := range m.argTypes {
			arg := unwrapCast(fn.Children[i])
			if !operandHasType(arg, want) {
				return false
			}
		}
	}
	if m.operator == "$substrCP" {
		if !operandHasType(unwrapCast(fn.Children[0]), TypeIDVarchar) {
			return false
		}
		start, ok := constantInt(fn.Children[1])
		if !ok || start < 1 {
			return false
		}
		length, ok := constantInt(fn.Children[2])
		if !ok || length < 0 {
			return false
		}
	}
	return true
}

func operandHasType(e Expression, want LogicalTypeID) bool {
	switch e := e.(type) {
	case *ColumnRefExpression:
		return e.ReturnType.ID.Normalize() == want
	case *ConstantExpression:
		return e.Value.Type.ID.Normalize() == want
	case *FunctionExpression:
		return e.ReturnType.ID.Normalize() == want
	case *CastExpression:
		return e.ReturnType.ID.Normalize() == want
	}
	return false
}

func constantInt(e Expression) (int64, bool) {
	c, ok := unwrapCast(e).(*ConstantExpression)
	if !ok || c.Value.IsNull {
		return 0, false
	}
	switch n := c.Value.Data.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// recastConstant converts a constant to the target logical type where the
// conversion is lossless enough; otherwise the original value is kept.
func recastConstant(v Value, target LogicalType) Value {
	if v.IsNull || target.ID == "" || v.Type.ID.Normalize() == target.ID.Normalize() {
		return v
	}
	id := target.ID.Normalize()
	switch {
	case id.IsInteger():
		switch d := v.Data.(type) {
		case float64:
			return Value{Type: target, Data: int64(d)}
		case int64:
			return Value{Type: target, Data: d}
		}
	case id == TypeIDDouble || id == TypeIDFloat:
		switch d := v.Data.(type) {
		case int64:
			return Value{Type: target, Data: float64(d)}
		case float64:
			return Value{Type: target, Data: d}
		}
	}
	return v
}

// exprConstant renders a constant for use inside $expr argument arrays.
// No object-id coercion here: $expr compares raw values.
func exprConstant(v Value) any {
	if v.IsNull {
		return nil
	}
	switch v.Type.ID.Normalize() {
	case TypeIDVarchar:
		s, _ := v.Data.(string)
		return s
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt, TypeIDHugeInt:
		return asConstInt64(v.Data)
	case TypeIDFloat, TypeIDDouble, TypeIDDecimal:
		if f, ok := v.Data.(float64); ok {
			return f
		}
		return float64(asConstInt64(v.Data))
	case TypeIDBoolean:
		b, _ := v.Data.(bool)
		return b
	default:
		return v.Data
	}
}
