package filter

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hugr-lab/mongoport-go/schema"
)

const (
	millisPerDay = 86_400_000
	microsPerMs  = 1_000
)

// EncodeFind converts per-column table filters, keyed by schema column
// index, into a native find filter document. Filters on the same document
// path merge into one operator document; top-level operators ($or) become
// sibling conjuncts. More than one conjunct wraps in $and.
//
// The encoding is deterministic for a given filter set, so applying it
// twice yields identical BSON.
func EncodeFind(filters map[int]TableFilter, s *schema.Schema) bson.D {
	if len(filters) == 0 {
		return bson.D{}
	}

	indices := make([]int, 0, len(filters))
	for i := range filters {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	type acc struct {
		eqSet bool
		eq    any
		ops   bson.D
	}
	accs := make(map[string]*acc)
	var order []string
	var globals []bson.D

	for _, i := range indices {
		if i < 0 || i >= len(s.Columns) {
			continue
		}
		col := s.Columns[i]
		doc := convertFilter(filters[i], col.Path, col.Type)
		if len(doc) == 0 {
			continue
		}
		if strings.HasPrefix(doc[0].Key, "$") {
			globals = append(globals, doc)
			continue
		}
		for _, e := range doc {
			a, ok := accs[e.Key]
			if !ok {
				a = &acc{}
				accs[e.Key] = a
				order = append(order, e.Key)
			}
			if ops, isDoc := e.Value.(bson.D); isDoc {
				a.ops = append(a.ops, ops...)
			} else {
				a.eqSet = true
				a.eq = e.Value
			}
		}
	}

	var conjuncts []bson.D
	for _, path := range order {
		a := accs[path]
		switch {
		case a.eqSet && len(a.ops) == 0:
			conjuncts = append(conjuncts, bson.D{{Key: path, Value: a.eq}})
		case !a.eqSet:
			conjuncts = append(conjuncts, bson.D{{Key: path, Value: a.ops}})
		default:
			ops := append(a.ops, bson.E{Key: "$eq", Value: a.eq})
			conjuncts = append(conjuncts, bson.D{{Key: path, Value: ops}})
		}
	}
	conjuncts = append(conjuncts, globals...)

	switch len(conjuncts) {
	case 0:
		return bson.D{}
	case 1:
		return conjuncts[0]
	default:
		terms := make(bson.A, len(conjuncts))
		for i, c := range conjuncts {
			terms[i] = c
		}
		return bson.D{{Key: "$and", Value: terms}}
	}
}

// convertFilter translates one table filter against a document path. The
// result is {path: value}, {path: {op: value, ...}}, a top-level operator
// document like {$or: [...]}, or empty when nothing can be translated.
func convertFilter(f TableFilter, path string, t schema.Type) bson.D {
	// Filters on LIST columns compare against elements; LIST(STRUCT)
	// field predicates need $elemMatch.
	if t.ID == schema.List && t.Elem != nil {
		elem := *t.Elem
		if sf, ok := f.(*StructFilter); ok && elem.ID == schema.Struct {
			inner := convertFilter(sf.Child, sf.ChildName, fieldType(elem, sf.ChildName))
			if len(inner) == 0 {
				return nil
			}
			return bson.D{{Key: path, Value: bson.D{{Key: "$elemMatch", Value: inner}}}}
		}
		return convertFilter(f, path, elem)
	}

	switch f := f.(type) {
	case *ConstantFilter:
		switch f.Op {
		case TypeCompareEqual:
			return bson.D{{Key: path, Value: constantValue(path, f.Value)}}
		case TypeCompareNotEqual:
			return opDoc(path, "$ne", f.Value)
		case TypeCompareLessThan:
			return opDoc(path, "$lt", f.Value)
		case TypeCompareLessThanOrEqual:
			return opDoc(path, "$lte", f.Value)
		case TypeCompareGreaterThan:
			return opDoc(path, "$gt", f.Value)
		case TypeCompareGreaterThanOrEqual:
			return opDoc(path, "$gte", f.Value)
		}
		return nil

	case *InFilter:
		if len(f.Values) == 0 {
			return nil
		}
		set := make(bson.A, len(f.Values))
		for i, v := range f.Values {
			set[i] = constantValue(path, v)
		}
		return bson.D{{Key: path, Value: bson.D{{Key: "$in", Value: set}}}}

	case *IsNullFilter:
		return bson.D{{Key: path, Value: nil}}

	case *IsNotNullFilter:
		return bson.D{{Key: path, Value: bson.D{{Key: "$ne", Value: nil}}}}

	case *AndFilter:
		merged := bson.D{}
		var eq any
		eqSet := false
		for _, child := range f.Children {
			doc := convertFilter(child, path, t)
			for _, e := range doc {
				if e.Key != path {
					continue
				}
				if ops, isDoc := e.Value.(bson.D); isDoc {
					merged = append(merged, ops...)
				} else {
					eqSet, eq = true, e.Value
				}
			}
		}
		if eqSet {
			merged = append(merged, bson.E{Key: "$eq", Value: eq})
		}
		if len(merged) == 0 {
			return nil
		}
		return bson.D{{Key: path, Value: merged}}

	case *OrFilter:
		if len(f.Children) == 0 {
			return nil
		}
		// All-equality disjunctions on one column fold into $in.
		values := make(bson.A, 0, len(f.Children))
		allEquality := true
		for _, child := range f.Children {
			cf, ok := child.(*ConstantFilter)
			if !ok || cf.Op != TypeCompareEqual {
				allEquality = false
				break
			}
			values = append(values, constantValue(path, cf.Value))
		}
		if allEquality && len(values) > 1 {
			return bson.D{{Key: path, Value: bson.D{{Key: "$in", Value: values}}}}
		}
		var terms bson.A
		for _, child := range f.Children {
			doc := convertFilter(child, path, t)
			if len(doc) > 0 {
				terms = append(terms, doc)
			}
		}
		if len(terms) == 0 {
			return nil
		}
		return bson.D{{Key: "$or", Value: terms}}

	case *StructFilter:
		if f.Child == nil {
			return nil
		}
		return convertFilter(f.Child, path+"."+f.ChildName, fieldType(t, f.ChildName))

	case *OptionalFilter:
		if f.Child == nil {
			return nil
		}
		return convertFilter(f.Child, path, t)

	case *DynamicFilter:
		// Translate only once the runtime constant has materialized.
		if !f.Initialized || f.Child == nil {
			return nil
		}
		return convertFilter(f.Child, path, t)
	}

	return nil
}

func opDoc(path, op string, v Value) bson.D {
	return bson.D{{Key: path, Value: bson.D{{Key: op, Value: constantValue(path, v)}}}}
}

// fieldType looks up the declared type of a struct field, VARCHAR if the
// type is not a struct or the field is unknown.
func fieldType(t schema.Type, name string) schema.Type {
	if t.ID == schema.Struct {
		for _, f := range t.Fields {
			if f.Name == name {
				return f.Type
			}
		}
	}
	return schema.Type{ID: schema.Varchar}
}

// constantValue renders a constant as a native BSON value. Temporal values
// become millisecond dates; 24-hex strings on object-id paths become
// object ids.
func constantValue(path string, v Value) any {
	if v.IsNull {
		return nil
	}
	switch v.Type.ID.Normalize() {
	case TypeIDVarchar:
		s, _ := v.Data.(string)
		if isObjectIDPath(path) && isHex24(s) {
			if oid, err := primitive.ObjectIDFromHex(s); err == nil {
				return oid
			}
		}
		return s
	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt, TypeIDHugeInt:
		return asConstInt64(v.Data)
	case TypeIDFloat, TypeIDDouble, TypeIDDecimal:
		switch d := v.Data.(type) {
		case float64:
			return d
		case int64:
			return float64(d)
		}
		return v.Data
	case TypeIDBoolean:
		b, _ := v.Data.(bool)
		return b
	case TypeIDDate:
		return primitive.DateTime(asConstInt64(v.Data) * millisPerDay)
	case TypeIDTimestamp:
		return primitive.DateTime(asConstInt64(v.Data) / microsPerMs)
	default:
		return fmt.Sprint(v.Data)
	}
}

func asConstInt64(data any) int64 {
	switch n := data.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// isObjectIDPath reports whether a document path names an object-id field:
// "_id" itself, a nested "._id", or the "_id"-suffixed foreign-key pattern.
func isObjectIDPath(path string) bool {
	if path == "_id" {
		return true
	}
	if len(path) > 4 && strings.HasSuffix(path, "._id") {
		return true
	}
	if len(path) > 3 && strings.HasSuffix(path, "_id") {
		return true
	}
	return false
}

func isHex24(s string) bool {
	if len(s) != 24 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
