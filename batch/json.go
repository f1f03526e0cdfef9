package batch

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// NormalizeJSON strips whitespace between structural tokens outside string
// literals, so `[ "a", "b" ]` becomes `["a","b"]`. It is idempotent:
// NormalizeJSON(NormalizeJSON(x)) == NormalizeJSON(x). The compact form is
// the externally visible contract for JSON spillover columns.
func NormalizeJSON(s string) string {
	out := make([]byte, 0, len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			out = append(out, c)
			escaped = false
			continue
		}
		if c == '\\' {
			out = append(out, c)
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			out = append(out, c)
			continue
		}
		if inString {
			out = append(out, c)
			continue
		}
		if c == ' ' && i > 0 && i < len(s)-1 {
			prev := s[i-1]
			next := s[i+1]
			valueStart := next == '"' || next == '[' || next == '{' ||
				(next >= '0' && next <= '9') || next == '-' ||
				next == 't' || next == 'f' || next == 'n'
			if (prev == '[' || prev == '{' || prev == ',' || prev == ':') && valueStart {
				continue
			}
			valueEnd := prev == '"' || prev == ']' || prev == '}' ||
				(prev >= '0' && prev <= '9') || prev == 'e' || prev == 'l'
			if (next == ']' || next == '}' || next == ',' || next == ':') && valueEnd {
				continue
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// documentJSON renders a BSON document as normalized JSON.
func documentJSON(doc bson.Raw) string {
	return string(appendDocumentJSON(make([]byte, 0, len(doc)), doc))
}

// arrayJSON renders a BSON array as normalized JSON.
func arrayJSON(arr bson.Raw) string {
	return string(appendArrayJSON(make([]byte, 0, len(arr)), arr))
}

func appendDocumentJSON(dst []byte, doc bson.Raw) []byte {
	dst = append(dst, '{')
	elements, err := doc.Elements()
	if err != nil {
		return append(dst, '}')
	}
	for i, el := range elements {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendQuote(dst, el.Key())
		dst = append(dst, ':')
		dst = appendValueJSON(dst, el.Value())
	}
	return append(dst, '}')
}

func appendArrayJSON(dst []byte, arr bson.Raw) []byte {
	dst = append(dst, '[')
	values, err := arr.Values()
	if err != nil {
		return append(dst, ']')
	}
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendValueJSON(dst, v)
	}
	return append(dst, ']')
}

func appendValueJSON(dst []byte, v bson.RawValue) []byte {
	switch v.Type {
	case bsontype.String:
		s, _ := v.StringValueOK()
		return strconv.AppendQuote(dst, s)
	case bsontype.Int32:
		n, _ := v.Int32OK()
		return strconv.AppendInt(dst, int64(n), 10)
	case bsontype.Int64:
		n, _ := v.Int64OK()
		return strconv.AppendInt(dst, n, 10)
	case bsontype.Double:
		f, _ := v.DoubleOK()
		return strconv.AppendFloat(dst, f, 'g', -1, 64)
	case bsontype.Boolean:
		b, _ := v.BooleanOK()
		return strconv.AppendBool(dst, b)
	case bsontype.Null, bsontype.Undefined:
		return append(dst, "null"...)
	case bsontype.EmbeddedDocument:
		doc, _ := v.DocumentOK()
		return appendDocumentJSON(dst, doc)
	case bsontype.Array:
		arr, _ := v.ArrayOK()
		return appendArrayJSON(dst, arr)
	case bsontype.ObjectID:
		oid, _ := v.ObjectIDOK()
		dst = append(dst, `{"$oid":`...)
		dst = strconv.AppendQuote(dst, oid.Hex())
		return append(dst, '}')
	case bsontype.DateTime:
		ms, _ := v.DateTimeOK()
		dst = append(dst, `{"$date":`...)
		dst = strconv.AppendInt(dst, ms, 10)
		return append(dst, '}')
	case bsontype.Decimal128:
		d, _ := v.Decimal128OK()
		return strconv.AppendQuote(dst, d.String())
	default:
		return strconv.AppendQuote(dst, scalarText(v))
	}
}
