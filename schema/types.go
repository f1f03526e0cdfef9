// Package schema derives and represents the relational schema of a MongoDB
// collection: an ordered column list, a closed column-type algebra, and a
// mapping from each flat column name back to a dotted document path.
//
// A schema comes from one of three sources, in priority order:
//  1. An explicit column list supplied by the caller.
//  2. A sidecar document in the collection whose _id is "__schema".
//  3. Type inference over a bounded sample of documents. The scan package
//     samples the first documents a plain find returns, in natural order;
//     the sample is not randomized.
package schema

import (
	"fmt"
	"strings"
)

// TypeID identifies a column type.
type TypeID uint8

const (
	Invalid TypeID = iota
	Varchar
	BigInt
	HugeInt
	Double
	Boolean
	Date
	Timestamp
	Blob
	List
	Struct
)

// Type is a column type. Scalar types carry only an ID; List carries an
// element type and Struct carries named fields.
type Type struct {
	ID     TypeID
	Elem   *Type   // element type when ID == List
	Fields []Field // fields when ID == Struct
}

// Field is one named field of a Struct type.
type Field struct {
	Name string
	Type Type
}

// ListOf returns a LIST type with the given element type.
func ListOf(elem Type) Type {
	return Type{ID: List, Elem: &elem}
}

// StructOf returns a STRUCT type with the given fields, in order.
func StructOf(fields ...Field) Type {
	return Type{ID: Struct, Fields: fields}
}

// Equal reports whether two types are structurally identical.
func (t Type) Equal(o Type) bool {
	if t.ID != o.ID {
		return false
	}
	switch t.ID {
	case List:
		return t.Elem != nil && o.Elem != nil && t.Elem.Equal(*o.Elem)
	case Struct:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// ListDepth returns the number of LIST wrappers around the innermost
// non-list type. Non-list types have depth 0.
func (t Type) ListDepth() int {
	depth := 0
	for cur := t; cur.ID == List && cur.Elem != nil; cur = *cur.Elem {
		depth++
	}
	return depth
}

// ListBase returns the innermost non-list type of a (possibly nested) LIST.
func (t Type) ListBase() Type {
	cur := t
	for cur.ID == List && cur.Elem != nil {
		cur = *cur.Elem
	}
	return cur
}

// String renders the type the way it appears in schema declarations, e.g.
// "VARCHAR", "LIST(BIGINT)", "STRUCT(city VARCHAR, zip VARCHAR)".
func (t Type) String() string {
	switch t.ID {
	case Varchar:
		return "VARCHAR"
	case BigInt:
		return "BIGINT"
	case HugeInt:
		return "HUGEINT"
	case Double:
		return "DOUBLE"
	case Boolean:
		return "BOOLEAN"
	case Date:
		return "DATE"
	case Timestamp:
		return "TIMESTAMP"
	case Blob:
		return "BLOB"
	case List:
		if t.Elem == nil {
			return "LIST(VARCHAR)"
		}
		return "LIST(" + t.Elem.String() + ")"
	case Struct:
		var sb strings.Builder
		sb.WriteString("STRUCT(")
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteByte(' ')
			sb.WriteString(f.Type.String())
		}
		sb.WriteByte(')')
		return sb.String()
	default:
		return "INVALID"
	}
}

// scalarNames maps declaration spellings (and common aliases) to type IDs.
var scalarNames = map[string]TypeID{
	"VARCHAR":   Varchar,
	"STRING":    Varchar,
	"TEXT":      Varchar,
	"BIGINT":    BigInt,
	"INT8":      BigInt,
	"LONG":      BigInt,
	"INT":       BigInt,
	"INTEGER":   BigInt,
	"HUGEINT":   HugeInt,
	"INT128":    HugeInt,
	"DOUBLE":    Double,
	"FLOAT8":    Double,
	"REAL":      Double,
	"FLOAT":     Double,
	"BOOLEAN":   Boolean,
	"BOOL":      Boolean,
	"DATE":      Date,
	"TIMESTAMP": Timestamp,
	"DATETIME":  Timestamp,
	"BLOB":      Blob,
	"BYTEA":     Blob,
}

// ParseType parses a type declaration string, case-insensitively.
// LIST(...) and STRUCT(name TYPE, ...) nest recursively.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	if id, ok := scalarNames[upper]; ok {
		return Type{ID: id}, nil
	}

	if strings.HasPrefix(upper, "LIST(") && strings.HasSuffix(s, ")") {
		inner := s[len("LIST(") : len(s)-1]
		elem, err := ParseType(inner)
		if err != nil {
			return Type{}, err
		}
		return ListOf(elem), nil
	}

	if strings.HasPrefix(upper, "STRUCT(") && strings.HasSuffix(s, ")") {
		inner := s[len("STRUCT(") : len(s)-1]
		fields, err := parseStructFields(inner)
		if err != nil {
			return Type{}, err
		}
		return StructOf(fields...), nil
	}

	return Type{}, fmt.Errorf("schema: unknown type %q", s)
}

// parseStructFields splits "name TYPE, name TYPE" respecting nested parens.
func parseStructFields(s string) ([]Field, error) {
	var fields []Field
	depth := 0
	start := 0
	flush := func(part string) error {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil
		}
		sp := strings.IndexAny(part, " \t")
		if sp < 0 {
			return fmt.Errorf("schema: struct field %q is missing a type", part)
		}
		t, err := ParseType(part[sp+1:])
		if err != nil {
			return err
		}
		fields = append(fields, Field{Name: part[:sp], Type: t})
		return nil
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if err := flush(s[start:i]); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if err := flush(s[start:]); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema: struct type has no fields")
	}
	return fields, nil
}

// Column is one resolved column: the name presented to SQL, its type, and
// the dotted document path its values are read from.
type Column struct {
	Name string
	Type Type
	Path string
}

// Schema is an immutable resolved schema, produced once per scan.
// Column names are unique; every column has a path.
type Schema struct {
	Columns []Column
}

// Names returns the ordered column names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Types returns the ordered column types.
func (s *Schema) Types() []Type {
	types := make([]Type, len(s.Columns))
	for i, c := range s.Columns {
		types[i] = c.Type
	}
	return types
}

// IndexOf returns the position of the named column, or -1.
func (s *Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PathOf returns the document path for a column name. Unmapped names fall
// back to the name itself; ok reports whether a mapping was registered.
func (s *Schema) PathOf(name string) (path string, ok bool) {
	if i := s.IndexOf(name); i >= 0 {
		return s.Columns[i].Path, true
	}
	return name, false
}

// Select returns a new schema restricted to the columns at the given
// indices, preserving the requested order.
func (s *Schema) Select(indices []int) *Schema {
	sub := &Schema{Columns: make([]Column, 0, len(indices))}
	for _, i := range indices {
		if i >= 0 && i < len(s.Columns) {
			sub.Columns = append(sub.Columns, s.Columns[i])
		}
	}
	return sub
}

// Validate checks the schema invariants: parallel names/types/paths, unique
// names, and the presence of _id.
func (s *Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Columns))
	hasID := false
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: empty column name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Path == "" {
			return fmt.Errorf("schema: column %q has no document path", c.Name)
		}
		if c.Name == "_id" {
			hasID = true
		}
	}
	if !hasID {
		return fmt.Errorf("schema: missing _id column")
	}
	return nil
}
