package filter

import "github.com/hugr-lab/mongoport-go/schema"

// LogicalTypeID identifies engine-side data types as they appear in bound
// expression JSON.
type LogicalTypeID string

const (
	TypeIDSQLNull   LogicalTypeID = "SQLNULL"
	TypeIDBoolean   LogicalTypeID = "BOOLEAN"
	TypeIDTinyInt   LogicalTypeID = "TINYINT"
	TypeIDSmallInt  LogicalTypeID = "SMALLINT"
	TypeIDInteger   LogicalTypeID = "INTEGER"
	TypeIDBigInt    LogicalTypeID = "BIGINT"
	TypeIDHugeInt   LogicalTypeID = "HUGEINT"
	TypeIDFloat     LogicalTypeID = "FLOAT"
	TypeIDDouble    LogicalTypeID = "DOUBLE"
	TypeIDDecimal   LogicalTypeID = "DECIMAL"
	TypeIDVarchar   LogicalTypeID = "VARCHAR"
	TypeIDBlob      LogicalTypeID = "BLOB"
	TypeIDDate      LogicalTypeID = "DATE"
	TypeIDTimestamp LogicalTypeID = "TIMESTAMP"
	TypeIDList      LogicalTypeID = "LIST"
	TypeIDStruct    LogicalTypeID = "STRUCT"
)

// typeIDAliases maps full SQL spellings and aliases to canonical ids.
var typeIDAliases = map[LogicalTypeID]LogicalTypeID{
	"INT":                         TypeIDInteger,
	"INT4":                        TypeIDInteger,
	"INT8":                        TypeIDBigInt,
	"INT2":                        TypeIDSmallInt,
	"INT1":                        TypeIDTinyInt,
	"INT128":                      TypeIDHugeInt,
	"FLOAT4":                      TypeIDFloat,
	"FLOAT8":                      TypeIDDouble,
	"REAL":                        TypeIDFloat,
	"STRING":                      TypeIDVarchar,
	"TEXT":                        TypeIDVarchar,
	"BOOL":                        TypeIDBoolean,
	"TIMESTAMP WITHOUT TIME ZONE": TypeIDTimestamp,
}

// Normalize returns the canonical id for aliases and full SQL names.
func (t LogicalTypeID) Normalize() LogicalTypeID {
	if mapped, ok := typeIDAliases[t]; ok {
		return mapped
	}
	return t
}

// IsNumeric reports whether the type is numeric.
func (t LogicalTypeID) IsNumeric() bool {
	switch t {
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt,
		TypeIDHugeInt, TypeIDFloat, TypeIDDouble, TypeIDDecimal:
		return true
	}
	return false
}

// IsInteger reports whether the type is an integer type.
func (t LogicalTypeID) IsInteger() bool {
	switch t {
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt, TypeIDHugeInt:
		return true
	}
	return false
}

// LogicalType is an engine logical type; only the id matters for pushdown.
type LogicalType struct {
	ID LogicalTypeID `json:"id"`
}

// ColumnType maps the engine type onto the collection column algebra.
func (t LogicalType) ColumnType() schema.Type {
	switch t.ID.Normalize() {
	case TypeIDBoolean:
		return schema.Type{ID: schema.Boolean}
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt:
		return schema.Type{ID: schema.BigInt}
	case TypeIDHugeInt:
		return schema.Type{ID: schema.HugeInt}
	case TypeIDFloat, TypeIDDouble, TypeIDDecimal:
		return schema.Type{ID: schema.Double}
	case TypeIDDate:
		return schema.Type{ID: schema.Date}
	case TypeIDTimestamp:
		return schema.Type{ID: schema.Timestamp}
	case TypeIDBlob:
		return schema.Type{ID: schema.Blob}
	default:
		return schema.Type{ID: schema.Varchar}
	}
}

// Value is a typed constant.
type Value struct {
	Type   LogicalType
	IsNull bool
	Data   any
}

// StringValue builds a VARCHAR constant.
func StringValue(s string) Value {
	return Value{Type: LogicalType{ID: TypeIDVarchar}, Data: s}
}

// Int64Value builds a BIGINT constant.
func Int64Value(n int64) Value {
	return Value{Type: LogicalType{ID: TypeIDBigInt}, Data: n}
}

// Float64Value builds a DOUBLE constant.
func Float64Value(f float64) Value {
	return Value{Type: LogicalType{ID: TypeIDDouble}, Data: f}
}

// BoolValue builds a BOOLEAN constant.
func BoolValue(b bool) Value {
	return Value{Type: LogicalType{ID: TypeIDBoolean}, Data: b}
}

// DateValue builds a DATE constant from days since epoch.
func DateValue(days int64) Value {
	return Value{Type: LogicalType{ID: TypeIDDate}, Data: days}
}

// TimestampValue builds a TIMESTAMP constant from microseconds since epoch.
func TimestampValue(micros int64) Value {
	return Value{Type: LogicalType{ID: TypeIDTimestamp}, Data: micros}
}

// NullValue builds a typed NULL.
func NullValue() Value {
	return Value{Type: LogicalType{ID: TypeIDSQLNull}, IsNull: true}
}
