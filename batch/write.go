package batch

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/hugr-lab/mongoport-go/schema"
)

const millisPerDay = 86_400_000

type arrowDate = arrow.Date32

func arrowTimestamp(ms int64) arrow.Timestamp { return arrow.Timestamp(ms) }

// WriteRow materializes one document into the batch as a new row. Every
// column receives a value or NULL; under Permissive it never fails.
//
// Returns (false, nil) when the row is dropped under DropMalformed, and an
// error naming the document under FailFast. Enforcement only applies when
// hasExplicit is true.
func (b *Batch) WriteRow(doc bson.Raw, mode EnforceMode, hasExplicit bool) (bool, error) {
	if hasExplicit && mode != Permissive {
		ok, err := ValidateDocument(doc, b.schema, mode)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	for i, col := range b.schema.Columns {
		bldr := b.builder.Field(i)
		v, found := lookupColumn(doc, col)
		if !found || v.Type == bsontype.Null || v.Type == bsontype.Undefined {
			bldr.AppendNull()
			continue
		}
		writeValue(bldr, col.Type, v)
	}
	b.rows++
	return true, nil
}

// ValidateDocument checks scalar columns of s against the document without
// writing anything. LIST and STRUCT columns carry their own conversion
// rules and are skipped. Under FailFast the first mismatch is returned as a
// ViolationError; under DropMalformed the document is reported invalid.
func ValidateDocument(doc bson.Raw, s *schema.Schema, mode EnforceMode) (bool, error) {
	for _, col := range s.Columns {
		if col.Type.ID == schema.List || col.Type.ID == schema.Struct {
			continue
		}
		v, found := lookupColumn(doc, col)
		if !found || v.Type == bsontype.Null || v.Type == bsontype.Undefined {
			continue
		}
		if compatible(v.Type, col.Type.ID) {
			continue
		}
		if mode == FailFast {
			return false, &ViolationError{
				DocumentID: documentID(doc),
				Field:      col.Name,
				Expected:   col.Type.String(),
				Observed:   bsonTypeName(v.Type),
			}
		}
		return false, nil
	}
	return true, nil
}

// documentID extracts a printable _id for error context.
func documentID(doc bson.Raw) string {
	v, err := doc.LookupErr("_id")
	if err != nil {
		return "<unknown>"
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return "<unknown>"
}

// compatible implements the target <- source compatibility matrix.
func compatible(bt bsontype.Type, target schema.TypeID) bool {
	switch target {
	case schema.Varchar:
		return true
	case schema.BigInt:
		return bt == bsontype.Int32 || bt == bsontype.Int64 || bt == bsontype.Double
	case schema.HugeInt, schema.Double:
		return bt == bsontype.Int32 || bt == bsontype.Int64 ||
			bt == bsontype.Double || bt == bsontype.Decimal128
	case schema.Boolean:
		return bt == bsontype.Boolean
	case schema.Date, schema.Timestamp:
		return bt == bsontype.DateTime
	case schema.Blob:
		return bt == bsontype.Binary
	case schema.List:
		return bt == bsontype.Array
	case schema.Struct:
		return bt == bsontype.EmbeddedDocument
	}
	return true
}

// lookupColumn locates the source value for a column. Dotted paths navigate
// nested documents; top-level paths use direct access and fall back to an
// underscore-segment walk for flattened names with no registered mapping.
func lookupColumn(doc bson.Raw, col schema.Column) (bson.RawValue, bool) {
	path := col.Path
	if path == "" {
		path = col.Name
	}
	if strings.Contains(path, ".") {
		return lookupDotted(doc, path)
	}
	if v, err := doc.LookupErr(path); err == nil {
		return v, true
	}
	return lookupUnderscore(doc, col.Name)
}

// lookupDotted navigates a dotted path. A non-document mid-segment fails
// the whole lookup cleanly (missing, not an error).
func lookupDotted(doc bson.Raw, path string) (bson.RawValue, bool) {
	segments := strings.Split(path, ".")
	current := doc
	for i, seg := range segments {
		v, err := current.LookupErr(seg)
		if err != nil {
			return bson.RawValue{}, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		next, ok := v.DocumentOK()
		if !ok {
			return bson.RawValue{}, false
		}
		current = next
	}
	return bson.RawValue{}, false
}

// lookupUnderscore walks a flattened name by splitting on underscores,
// for columns synthesized from nested documents without a path mapping.
func lookupUnderscore(doc bson.Raw, flat string) (bson.RawValue, bool) {
	segments := strings.Split(flat, "_")
	current := doc
	for i, seg := range segments {
		v, err := current.LookupErr(seg)
		if err != nil {
			return bson.RawValue{}, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		next, ok := v.DocumentOK()
		if !ok {
			return bson.RawValue{}, false
		}
		current = next
	}
	return bson.RawValue{}, false
}

// writeValue coerces v into the builder according to the target type,
// appending NULL when the source type is not accepted. Returns whether the
// source was compatible.
func writeValue(bldr array.Builder, t schema.Type, v bson.RawValue) bool {
	if v.Type == bsontype.Null || v.Type == bsontype.Undefined {
		bldr.AppendNull()
		return true
	}

	switch t.ID {
	case schema.Varchar:
		bldr.(*array.StringBuilder).Append(scalarText(v))
		return true

	case schema.BigInt:
		n, ok := asInt64(v)
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.Int64Builder).Append(n)
		return true

	case schema.HugeInt:
		n, ok := asInt64(v)
		if !ok {
			if d, isDec := v.Decimal128OK(); isDec {
				f, err := strconv.ParseFloat(d.String(), 64)
				if err != nil {
					bldr.AppendNull()
					return true
				}
				n, ok = int64(f), true
			}
		}
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.Decimal128Builder).Append(decimal128.FromI64(n))
		return true

	case schema.Double:
		f, ok := asFloat64(v)
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.Float64Builder).Append(f)
		return true

	case schema.Boolean:
		bv, ok := v.BooleanOK()
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.BooleanBuilder).Append(bv)
		return true

	case schema.Date:
		ms, ok := v.DateTimeOK()
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.Date32Builder).Append(epochDays(ms))
		return true

	case schema.Timestamp:
		ms, ok := v.DateTimeOK()
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.TimestampBuilder).Append(arrowTimestamp(ms))
		return true

	case schema.Blob:
		_, data, ok := v.BinaryOK()
		if !ok {
			bldr.AppendNull()
			return false
		}
		bldr.(*array.BinaryBuilder).Append(data)
		return true

	case schema.List:
		arr, ok := v.ArrayOK()
		if !ok {
			bldr.AppendNull()
			return false
		}
		lb := bldr.(*array.ListBuilder)
		if arrayDepth(arr, 10) > t.ListDepth() {
			// Deeper than declared: no lossy truncation, the whole list
			// becomes NULL.
			lb.AppendNull()
			return true
		}
		writeArray(lb, t, arr)
		return true

	case schema.Struct:
		doc, ok := v.DocumentOK()
		if !ok {
			bldr.AppendNull()
			return false
		}
		writeStruct(bldr.(*array.StructBuilder), t, doc)
		return true
	}

	bldr.AppendNull()
	return true
}

// writeArray appends arr as one list value. Elements shallower than the
// declared element depth are re-boxed in outer lists until depths match;
// deeper elements become NULL.
func writeArray(lb *array.ListBuilder, t schema.Type, arr bson.Raw) {
	lb.Append(true)
	vb := lb.ValueBuilder()
	et := schema.Type{ID: schema.Varchar}
	if t.Elem != nil {
		et = *t.Elem
	}

	values, err := arr.Values()
	if err != nil {
		return
	}
	for _, v := range values {
		if v.Type == bsontype.Null || v.Type == bsontype.Undefined {
			vb.AppendNull()
			continue
		}
		if et.ID == schema.List {
			if nested, ok := v.ArrayOK(); ok {
				if arrayDepth(nested, 10) > et.ListDepth() {
					vb.AppendNull()
				} else {
					writeArray(vb.(*array.ListBuilder), et, nested)
				}
			} else {
				// Scalar where a list is declared: wrap until depths match.
				writeWrapped(vb.(*array.ListBuilder), et, v)
			}
			continue
		}
		writeValue(vb, et, v)
	}
}

// writeWrapped boxes a scalar value in single-element lists down to the
// innermost element type.
func writeWrapped(lb *array.ListBuilder, t schema.Type, v bson.RawValue) {
	lb.Append(true)
	child := lb.ValueBuilder()
	et := schema.Type{ID: schema.Varchar}
	if t.Elem != nil {
		et = *t.Elem
	}
	if et.ID == schema.List {
		writeWrapped(child.(*array.ListBuilder), et, v)
		return
	}
	writeValue(child, et, v)
}

// writeStruct appends doc as one struct value, materializing each declared
// field by name. Missing fields yield per-field NULL.
func writeStruct(sb *array.StructBuilder, t schema.Type, doc bson.Raw) {
	sb.Append(true)
	for i, f := range t.Fields {
		fb := sb.FieldBuilder(i)
		v, err := doc.LookupErr(f.Name)
		if err != nil || v.Type == bsontype.Null || v.Type == bsontype.Undefined {
			fb.AppendNull()
			continue
		}
		writeValue(fb, f.Type, v)
	}
}

// arrayDepth measures the nesting depth of a BSON array: 0 for empty,
// 1 for scalars, 1 + max child depth for nested arrays.
func arrayDepth(arr bson.Raw, maxDepth int) int {
	if maxDepth <= 0 {
		return 0
	}
	values, err := arr.Values()
	if err != nil || len(values) == 0 {
		return 0
	}
	depth := 0
	for _, v := range values {
		if nested, ok := v.ArrayOK(); ok && v.Type == bsontype.Array {
			if d := 1 + arrayDepth(nested, maxDepth-1); d > depth {
				depth = d
			}
		} else if depth < 1 {
			depth = 1
		}
	}
	return depth
}

// asInt64 truncates numeric sources toward zero.
func asInt64(v bson.RawValue) (int64, bool) {
	switch v.Type {
	case bsontype.Int32:
		n, _ := v.Int32OK()
		return int64(n), true
	case bsontype.Int64:
		return v.Int64OK()
	case bsontype.Double:
		f, _ := v.DoubleOK()
		return int64(f), true
	}
	return 0, false
}

func asFloat64(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Double:
		return v.DoubleOK()
	case bsontype.Int32:
		n, _ := v.Int32OK()
		return float64(n), true
	case bsontype.Int64:
		n, _ := v.Int64OK()
		return float64(n), true
	case bsontype.Decimal128:
		d, _ := v.Decimal128OK()
		f, err := strconv.ParseFloat(d.String(), 64)
		if err != nil {
			return 0, true
		}
		return f, true
	}
	return 0, false
}

// epochDays floors milliseconds-since-epoch to days for DATE columns.
func epochDays(ms int64) arrowDate {
	d := ms / millisPerDay
	if ms%millisPerDay < 0 {
		d--
	}
	return arrowDate(d)
}

// scalarText renders any BSON value in its VARCHAR form. Arrays and
// documents are normalized JSON; dates are epoch-millisecond text; binary
// is the literal "<binary data>"; regexes render as /pattern/flags.
func scalarText(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		s, _ := v.StringValueOK()
		return s
	case bsontype.ObjectID:
		oid, _ := v.ObjectIDOK()
		return oid.Hex()
	case bsontype.EmbeddedDocument:
		doc, _ := v.DocumentOK()
		return documentJSON(doc)
	case bsontype.Array:
		arr, _ := v.ArrayOK()
		return arrayJSON(arr)
	case bsontype.Int32:
		n, _ := v.Int32OK()
		return strconv.FormatInt(int64(n), 10)
	case bsontype.Int64:
		n, _ := v.Int64OK()
		return strconv.FormatInt(n, 10)
	case bsontype.Double:
		f, _ := v.DoubleOK()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case bsontype.Boolean:
		b, _ := v.BooleanOK()
		return strconv.FormatBool(b)
	case bsontype.DateTime:
		ms, _ := v.DateTimeOK()
		return strconv.FormatInt(ms, 10)
	case bsontype.Null:
		return "null"
	case bsontype.Undefined:
		return "undefined"
	case bsontype.Binary:
		return "<binary data>"
	case bsontype.Regex:
		pattern, options, _ := v.RegexOK()
		return "/" + pattern + "/" + options
	case bsontype.DBPointer:
		return "<dbpointer>"
	case bsontype.JavaScript:
		code, _ := v.JavaScriptOK()
		return code
	case bsontype.CodeWithScope:
		code, _, _ := v.CodeWithScopeOK()
		return code
	case bsontype.Symbol:
		sym, _ := v.SymbolOK()
		return sym
	case bsontype.Timestamp:
		t, i, _ := v.TimestampOK()
		return strconv.FormatUint(uint64(t), 10) + ":" + strconv.FormatUint(uint64(i), 10)
	case bsontype.Decimal128:
		d, _ := v.Decimal128OK()
		return d.String()
	}
	return "<unknown type>"
}
