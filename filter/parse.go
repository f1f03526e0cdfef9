package filter

import (
	"encoding/json"
	"fmt"
)

// Parse parses bound-expression filter JSON from the engine.
//
// Error conditions:
//   - invalid JSON syntax
//   - malformed expression nodes
//
// Unknown expression classes parse into UnsupportedExpression rather than
// failing, so the encoders can skip them individually.
func Parse(data []byte) (*FilterPushdown, error) {
	if len(data) == 0 {
		return &FilterPushdown{}, nil
	}

	var raw rawFilterPushdown
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("filter: invalid JSON: %w", err)
	}

	fp := &FilterPushdown{
		ColumnBindings: raw.ColumnBindings,
		Filters:        make([]Expression, 0, len(raw.Filters)),
	}

	for i, rawExpr := range raw.Filters {
		expr, err := parseExpression(rawExpr)
		if err != nil {
			return nil, fmt.Errorf("filter: error parsing filter %d: %w", i, err)
		}
		fp.Filters = append(fp.Filters, expr)
	}

	return fp, nil
}

type rawFilterPushdown struct {
	Filters        []json.RawMessage `json:"filters"`
	ColumnBindings []string          `json:"column_binding_names_by_index"`
}

// rawExpression is the first pass of the two-phase parse, just enough to
// pick the concrete node type.
type rawExpression struct {
	ExpressionClass string `json:"expression_class"`
	Type            string `json:"type"`
	Alias           string `json:"alias"`
}

func parseExpression(data json.RawMessage) (Expression, error) {
	var raw rawExpression
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}

	switch ExpressionClass(raw.ExpressionClass) {
	case ClassBoundComparison:
		return parseComparison(data)
	case ClassBoundConjunction:
		return parseConjunction(data)
	case ClassBoundConstant:
		return parseConstant(data)
	case ClassBoundColumnRef:
		return parseColumnRef(data)
	case ClassBoundFunction:
		return parseFunction(data)
	case ClassBoundCast:
		return parseCast(data)
	case ClassBoundOperator:
		return parseOperator(data)
	case ClassBoundBetween:
		return parseBetween(data)
	default:
		return &UnsupportedExpression{BaseExpression: BaseExpression{
			ExprClass: ExpressionClass(raw.ExpressionClass),
			ExprType:  ExpressionType(raw.Type),
			ExprAlias: raw.Alias,
		}}, nil
	}
}

func baseOf(raw rawExpression) BaseExpression {
	return BaseExpression{
		ExprClass: ExpressionClass(raw.ExpressionClass),
		ExprType:  ExpressionType(raw.Type),
		ExprAlias: raw.Alias,
	}
}

func parseComparison(data json.RawMessage) (*ComparisonExpression, error) {
	var raw struct {
		rawExpression
		Left  json.RawMessage `json:"left"`
		Right json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid comparison expression: %w", err)
	}
	left, err := parseExpression(raw.Left)
	if err != nil {
		return nil, fmt.Errorf("invalid left operand: %w", err)
	}
	right, err := parseExpression(raw.Right)
	if err != nil {
		return nil, fmt.Errorf("invalid right operand: %w", err)
	}
	return &ComparisonExpression{BaseExpression: baseOf(raw.rawExpression), Left: left, Right: right}, nil
}

func parseConjunction(data json.RawMessage) (*ConjunctionExpression, error) {
	var raw struct {
		rawExpression
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid conjunction expression: %w", err)
	}
	children := make([]Expression, 0, len(raw.Children))
	for i, child := range raw.Children {
		expr, err := parseExpression(child)
		if err != nil {
			return nil, fmt.Errorf("invalid child %d: %w", i, err)
		}
		children = append(children, expr)
	}
	return &ConjunctionExpression{BaseExpression: baseOf(raw.rawExpression), Children: children}, nil
}

func parseConstant(data json.RawMessage) (*ConstantExpression, error) {
	var raw struct {
		rawExpression
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid constant expression: %w", err)
	}
	value, err := parseValue(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return &ConstantExpression{BaseExpression: baseOf(raw.rawExpression), Value: value}, nil
}

func parseColumnRef(data json.RawMessage) (*ColumnRefExpression, error) {
	var raw struct {
		rawExpression
		ReturnType json.RawMessage `json:"return_type"`
		Binding    ColumnBinding   `json:"binding"`
		Depth      int             `json:"depth"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid column ref expression: %w", err)
	}
	rt, err := parseLogicalType(raw.ReturnType)
	if err != nil {
		return nil, fmt.Errorf("invalid return type: %w", err)
	}
	return &ColumnRefExpression{
		BaseExpression: baseOf(raw.rawExpression),
		ReturnType:     rt,
		Binding:        raw.Binding,
		Depth:          raw.Depth,
	}, nil
}

func parseFunction(data json.RawMessage) (*FunctionExpression, error) {
	var raw struct {
		rawExpression
		ReturnType json.RawMessage   `json:"return_type"`
		Children   []json.RawMessage `json:"children"`
		Name       string            `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid function expression: %w", err)
	}
	rt, err := parseLogicalType(raw.ReturnType)
	if err != nil {
		return nil, fmt.Errorf("invalid return type: %w", err)
	}
	children := make([]Expression, 0, len(raw.Children))
	for i, child := range raw.Children {
		expr, err := parseExpression(child)
		if err != nil {
			return nil, fmt.Errorf("invalid child %d: %w", i, err)
		}
		children = append(children, expr)
	}
	return &FunctionExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Name:           raw.Name,
		Children:       children,
		ReturnType:     rt,
	}, nil
}

func parseCast(data json.RawMessage) (*CastExpression, error) {
	var raw struct {
		rawExpression
		Child      json.RawMessage `json:"child"`
		ReturnType json.RawMessage `json:"return_type"`
		TryCast    bool            `json:"try_cast"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid cast expression: %w", err)
	}
	child, err := parseExpression(raw.Child)
	if err != nil {
		return nil, fmt.Errorf("invalid child: %w", err)
	}
	rt, err := parseLogicalType(raw.ReturnType)
	if err != nil {
		return nil, fmt.Errorf("invalid return type: %w", err)
	}
	return &CastExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Child:          child,
		ReturnType:     rt,
		TryCast:        raw.TryCast,
	}, nil
}

func parseOperator(data json.RawMessage) (*OperatorExpression, error) {
	var raw struct {
		rawExpression
		ReturnType json.RawMessage   `json:"return_type"`
		Children   []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid operator expression: %w", err)
	}
	rt, err := parseLogicalType(raw.ReturnType)
	if err != nil {
		return nil, fmt.Errorf("invalid return type: %w", err)
	}
	children := make([]Expression, 0, len(raw.Children))
	for i, child := range raw.Children {
		expr, err := parseExpression(child)
		if err != nil {
			return nil, fmt.Errorf("invalid child %d: %w", i, err)
		}
		children = append(children, expr)
	}
	return &OperatorExpression{BaseExpression: baseOf(raw.rawExpression), Children: children, ReturnType: rt}, nil
}

func parseBetween(data json.RawMessage) (*BetweenExpression, error) {
	var raw struct {
		rawExpression
		Input          json.RawMessage `json:"input"`
		Lower          json.RawMessage `json:"lower"`
		Upper          json.RawMessage `json:"upper"`
		LowerInclusive bool            `json:"lower_inclusive"`
		UpperInclusive bool            `json:"upper_inclusive"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid between expression: %w", err)
	}
	input, err := parseExpression(raw.Input)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	lower, err := parseExpression(raw.Lower)
	if err != nil {
		return nil, fmt.Errorf("invalid lower bound: %w", err)
	}
	upper, err := parseExpression(raw.Upper)
	if err != nil {
		return nil, fmt.Errorf("invalid upper bound: %w", err)
	}
	return &BetweenExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Input:          input,
		Lower:          lower,
		Upper:          upper,
		LowerInclusive: raw.LowerInclusive,
		UpperInclusive: raw.UpperInclusive,
	}, nil
}

func parseLogicalType(data json.RawMessage) (LogicalType, error) {
	if len(data) == 0 || string(data) == "null" {
		return LogicalType{}, nil
	}
	var raw struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogicalType{}, fmt.Errorf("invalid logical type: %w", err)
	}
	return LogicalType{ID: LogicalTypeID(raw.ID).Normalize()}, nil
}

func parseValue(data json.RawMessage) (Value, error) {
	if len(data) == 0 || string(data) == "null" {
		return Value{IsNull: true}, nil
	}

	var raw struct {
		Type   json.RawMessage `json:"type"`
		IsNull bool            `json:"is_null"`
		Value  json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("invalid value: %w", err)
	}

	lt, err := parseLogicalType(raw.Type)
	if err != nil {
		return Value{}, fmt.Errorf("invalid value type: %w", err)
	}

	v := Value{Type: lt, IsNull: raw.IsNull}
	if raw.IsNull || len(raw.Value) == 0 || string(raw.Value) == "null" {
		return v, nil
	}

	switch lt.ID {
	case TypeIDBoolean:
		var b bool
		if err := json.Unmarshal(raw.Value, &b); err != nil {
			return Value{}, err
		}
		v.Data = b
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt, TypeIDHugeInt,
		TypeIDDate, TypeIDTimestamp:
		var n int64
		if err := json.Unmarshal(raw.Value, &n); err != nil {
			return Value{}, err
		}
		v.Data = n
	case TypeIDFloat, TypeIDDouble:
		var f float64
		if err := json.Unmarshal(raw.Value, &f); err != nil {
			return Value{}, err
		}
		v.Data = f
	case TypeIDDecimal:
		var f float64
		if err := json.Unmarshal(raw.Value, &f); err == nil {
			v.Data = f
			break
		}
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return Value{}, err
		}
		v.Data = s
	default:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err == nil {
			v.Data = s
			break
		}
		var generic any
		if err := json.Unmarshal(raw.Value, &generic); err != nil {
			return Value{}, err
		}
		v.Data = generic
	}

	return v, nil
}
