package schema

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Arrow type choices for the column algebra. HUGEINT maps to a 38-digit
// decimal, the widest 128-bit representation Arrow offers; TIMESTAMP keeps
// millisecond precision because BSON dates are milliseconds since epoch.
var (
	hugeIntArrowType   = &arrow.Decimal128Type{Precision: 38, Scale: 0}
	timestampArrowType = &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}
)

// Arrow returns the Arrow data type used to materialize this column type.
func (t Type) Arrow() arrow.DataType {
	switch t.ID {
	case Varchar:
		return arrow.BinaryTypes.String
	case BigInt:
		return arrow.PrimitiveTypes.Int64
	case HugeInt:
		return hugeIntArrowType
	case Double:
		return arrow.PrimitiveTypes.Float64
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Date:
		return arrow.FixedWidthTypes.Date32
	case Timestamp:
		return timestampArrowType
	case Blob:
		return arrow.BinaryTypes.Binary
	case List:
		elem := Type{ID: Varchar}
		if t.Elem != nil {
			elem = *t.Elem
		}
		return arrow.ListOf(elem.Arrow())
	case Struct:
		fields := make([]arrow.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = arrow.Field{Name: f.Name, Type: f.Type.Arrow(), Nullable: true}
		}
		return arrow.StructOf(fields...)
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema returns the Arrow schema for the resolved columns.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type.Arrow(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}
