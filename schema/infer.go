package schema

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Inference bounds. Nesting beyond maxInferDepth collapses to VARCHAR;
// struct inference over arrays of documents scans at most
// maxStructScanElements elements.
const (
	maxInferDepth         = 5
	maxStructScanElements = 10
)

// InferScalar maps a single BSON value to a column type. Arrays and
// documents map to VARCHAR here because the materializer spills them as
// normalized JSON; nulls map to VARCHAR so later samples can refine them.
func InferScalar(v bson.RawValue) Type {
	switch v.Type {
	case bsontype.String:
		return Type{ID: Varchar}
	case bsontype.Int32, bsontype.Int64:
		return Type{ID: BigInt}
	case bsontype.Double, bsontype.Decimal128:
		// Decimal128 maps to DOUBLE, accepting precision loss for numeric
		// operations.
		return Type{ID: Double}
	case bsontype.Boolean:
		return Type{ID: Boolean}
	case bsontype.DateTime:
		// DATE if the time component is midnight UTC, otherwise TIMESTAMP.
		ms, _ := v.DateTimeOK()
		if ms%86400000 == 0 {
			return Type{ID: Date}
		}
		return Type{ID: Timestamp}
	case bsontype.ObjectID:
		return Type{ID: Varchar}
	case bsontype.Binary:
		return Type{ID: Blob}
	case bsontype.Array, bsontype.EmbeddedDocument:
		return Type{ID: Varchar}
	default:
		// null, undefined, regex, code, symbol, timestamp, dbpointer,
		// min/max-key and anything unknown spill as text.
		return Type{ID: Varchar}
	}
}

// ResolveType picks one winning type from the samples observed for a path.
func ResolveType(samples []Type) Type {
	if len(samples) == 0 {
		return Type{ID: Varchar}
	}

	allSame := true
	for _, t := range samples[1:] {
		if !t.Equal(samples[0]) {
			allSame = false
			break
		}
	}
	if allSame {
		return samples[0]
	}

	// Any LIST wins; pick the deepest, first-encountered on ties.
	var deepest *Type
	maxDepth := 0
	for i := range samples {
		if samples[i].ID == List {
			if d := samples[i].ListDepth(); d > maxDepth {
				maxDepth = d
				deepest = &samples[i]
			}
		}
	}
	if deepest != nil {
		return *deepest
	}

	// Otherwise any STRUCT wins; pick the first.
	for _, t := range samples {
		if t.ID == Struct {
			return t
		}
	}

	var varchars, doubles, bigints, booleans, timestamps int
	for _, t := range samples {
		switch t.ID {
		case Varchar:
			varchars++
		case Double:
			doubles++
		case BigInt:
			bigints++
		case Boolean:
			booleans++
		case Timestamp:
			timestamps++
		}
	}
	total := len(samples)

	// Frequency-weighted pick. DOUBLE represents integers losslessly enough
	// for analytics, so it needs only 30%; the rigid types need 70%.
	switch {
	case varchars*10 > total*7:
		return Type{ID: Varchar}
	case doubles > 0 && doubles*10 >= total*3:
		return Type{ID: Double}
	case bigints > 0 && bigints*10 >= total*3:
		return Type{ID: BigInt}
	case booleans*10 >= total*7:
		return Type{ID: Boolean}
	case timestamps*10 >= total*7:
		return Type{ID: Timestamp}
	case doubles > 0:
		return Type{ID: Double}
	case bigints > 0:
		return Type{ID: BigInt}
	case booleans > 0:
		return Type{ID: Boolean}
	case timestamps > 0:
		return Type{ID: Timestamp}
	default:
		return Type{ID: Varchar}
	}
}

// inferArray infers the LIST type of a non-empty BSON array based on its
// first element: documents become LIST(STRUCT), nested arrays recurse, and
// scalars become LIST(scalar). Empty arrays yield VARCHAR.
func inferArray(arr bson.Raw, depth int) Type {
	values, err := arr.Values()
	if err != nil || len(values) == 0 {
		return Type{ID: Varchar}
	}

	first := values[0]
	switch first.Type {
	case bsontype.EmbeddedDocument:
		st := inferStructFromArray(arr, depth)
		if st.ID == Struct {
			return ListOf(st)
		}
		return Type{ID: Varchar}
	case bsontype.Array:
		nested := inferNestedArray(arr, depth)
		if nested.ID == List {
			return ListOf(nested)
		}
		return Type{ID: Varchar}
	default:
		return ListOf(InferScalar(first))
	}
}

// inferNestedArray handles array-of-arrays, descending through the first
// element at each level.
func inferNestedArray(arr bson.Raw, depth int) Type {
	if depth > maxInferDepth {
		return Type{ID: Varchar}
	}
	values, err := arr.Values()
	if err != nil || len(values) == 0 {
		return Type{ID: Varchar}
	}

	first := values[0]
	if first.Type != bsontype.Array {
		return ListOf(InferScalar(first))
	}

	inner, ok := first.ArrayOK()
	if !ok {
		return Type{ID: Varchar}
	}
	innerValues, err := inner.Values()
	if err != nil || len(innerValues) == 0 {
		return Type{ID: Varchar}
	}

	switch innerValues[0].Type {
	case bsontype.EmbeddedDocument:
		st := inferStructFromArray(inner, depth+1)
		if st.ID == Struct {
			return ListOf(st)
		}
		return Type{ID: Varchar}
	case bsontype.Array:
		deeper := inferNestedArray(inner, depth+1)
		if deeper.ID == List || deeper.ID == Varchar {
			return ListOf(deeper)
		}
		return Type{ID: Varchar}
	default:
		return ListOf(InferScalar(innerValues[0]))
	}
}

// inferStructFromArray merges the fields of up to maxStructScanElements
// documents into one STRUCT type. A non-document element aborts to VARCHAR.
func inferStructFromArray(arr bson.Raw, depth int) Type {
	if depth > maxInferDepth {
		return Type{ID: Varchar}
	}

	values, err := arr.Values()
	if err != nil {
		return Type{ID: Varchar}
	}

	fieldSamples := make(map[string][]Type)
	var fieldOrder []string

	scanned := 0
	for _, v := range values {
		if scanned >= maxStructScanElements {
			break
		}
		scanned++
		doc, ok := v.DocumentOK()
		if !ok {
			return Type{ID: Varchar}
		}
		elements, err := doc.Elements()
		if err != nil {
			return Type{ID: Varchar}
		}
		for _, el := range elements {
			name := el.Key()
			var ft Type
			switch el.Value().Type {
			case bsontype.EmbeddedDocument, bsontype.Array:
				// Nested containers inside array elements spill as JSON.
				ft = Type{ID: Varchar}
			default:
				ft = InferScalar(el.Value())
			}
			if _, seen := fieldSamples[name]; !seen {
				fieldOrder = append(fieldOrder, name)
			}
			fieldSamples[name] = append(fieldSamples[name], ft)
		}
	}

	if len(fieldOrder) == 0 {
		return Type{ID: Varchar}
	}

	fields := make([]Field, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		fields = append(fields, Field{Name: name, Type: ResolveType(fieldSamples[name])})
	}
	return StructOf(fields...)
}

// collectFieldPaths walks one document, recording the inferred type of every
// scalar and array under its flattened column name, and the original dotted
// path under the same name. Nested documents recurse without recording the
// parent itself, so a STRUCT inferred for a child is never shadowed by a
// VARCHAR spill of its parent.
func collectFieldPaths(doc bson.Raw, prefix string, depth int,
	fieldTypes map[string][]Type, fieldOrder *[]string, pathMap map[string]string, dottedPrefix string) {

	record := func(flat string, t Type) {
		if _, seen := fieldTypes[flat]; !seen {
			*fieldOrder = append(*fieldOrder, flat)
		}
		fieldTypes[flat] = append(fieldTypes[flat], t)
	}

	if depth > maxInferDepth {
		if prefix != "" {
			record(prefix, Type{ID: Varchar})
		}
		return
	}

	elements, err := doc.Elements()
	if err != nil {
		return
	}

	for _, el := range elements {
		name := el.Key()
		flat := name
		if prefix != "" {
			flat = prefix + "_" + name
		}
		dotted := name
		if dottedPrefix != "" {
			dotted = dottedPrefix + "." + name
		}
		pathMap[flat] = dotted

		v := el.Value()
		switch v.Type {
		case bsontype.EmbeddedDocument:
			nested, ok := v.DocumentOK()
			if ok {
				collectFieldPaths(nested, flat, depth+1, fieldTypes, fieldOrder, pathMap, dotted)
			}
		case bsontype.Array:
			arr, ok := v.ArrayOK()
			if !ok {
				record(flat, Type{ID: Varchar})
				continue
			}
			values, err := arr.Values()
			if err != nil || len(values) == 0 {
				record(flat, Type{ID: Varchar})
				continue
			}
			t := inferArray(arr, depth)
			if t.ID != List {
				t = Type{ID: Varchar}
			}
			record(flat, t)
		default:
			record(flat, InferScalar(v))
		}
	}
}
