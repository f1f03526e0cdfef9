// Package batch materializes BSON documents into Arrow record batches
// according to a resolved schema. One batch is the fixed-size columnar
// output unit produced by one scan iteration.
package batch

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// EnforceMode controls behavior when a document field's type disagrees with
// the declared column type. It only applies when the schema was supplied
// explicitly (caller columns or a sidecar document).
type EnforceMode int

const (
	// Permissive replaces mismatched fields with NULL and keeps the row.
	Permissive EnforceMode = iota
	// DropMalformed drops any row with a schema violation.
	DropMalformed
	// FailFast raises on the first violation, naming the document.
	FailFast
)

// ParseEnforceMode parses a schema_mode string, case-insensitively.
// Underscore variants ("drop_malformed", "fail_fast") are accepted.
func ParseEnforceMode(s string) (EnforceMode, error) {
	switch strings.ToLower(s) {
	case "permissive":
		return Permissive, nil
	case "dropmalformed", "drop_malformed":
		return DropMalformed, nil
	case "failfast", "fail_fast":
		return FailFast, nil
	}
	return Permissive, fmt.Errorf("invalid schema_mode %q. Valid options: 'permissive', 'dropmalformed', 'failfast'", s)
}

// String returns the canonical spelling of the mode.
func (m EnforceMode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case DropMalformed:
		return "dropmalformed"
	case FailFast:
		return "failfast"
	}
	return "unknown"
}

// ViolationError reports a schema violation under FailFast, carrying the
// offending document's _id, the field, and the expected and observed types.
type ViolationError struct {
	DocumentID string
	Field      string
	Expected   string
	Observed   string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf(
		"schema violation in document _id='%s': field '%s' expected type %s but found %s.\n"+
			"Hint: use schema_mode='permissive' to replace with NULL, or 'dropmalformed' to skip bad rows",
		e.DocumentID, e.Field, e.Expected, e.Observed)
}

// bsonTypeName returns the wire-level type name used in error messages.
func bsonTypeName(t bsontype.Type) string {
	switch t {
	case bsontype.Double:
		return "double"
	case bsontype.String:
		return "string"
	case bsontype.EmbeddedDocument:
		return "document"
	case bsontype.Array:
		return "array"
	case bsontype.Binary:
		return "binary"
	case bsontype.Undefined:
		return "undefined"
	case bsontype.ObjectID:
		return "objectId"
	case bsontype.Boolean:
		return "bool"
	case bsontype.DateTime:
		return "date"
	case bsontype.Null:
		return "null"
	case bsontype.Regex:
		return "regex"
	case bsontype.DBPointer:
		return "dbPointer"
	case bsontype.JavaScript:
		return "javascript"
	case bsontype.Symbol:
		return "symbol"
	case bsontype.CodeWithScope:
		return "javascriptWithScope"
	case bsontype.Int32:
		return "int32"
	case bsontype.Timestamp:
		return "timestamp"
	case bsontype.Int64:
		return "int64"
	case bsontype.Decimal128:
		return "decimal128"
	case bsontype.MinKey:
		return "minKey"
	case bsontype.MaxKey:
		return "maxKey"
	}
	return "unknown"
}
