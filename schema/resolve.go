package schema

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// SidecarID is the _id of the in-collection sidecar schema document.
const SidecarID = "__schema"

// DefaultSampleSize bounds inference when the caller does not set one.
const DefaultSampleSize = 100

// Source is the slice of a collection the resolver needs. Implementations
// wrap a driver collection; tests provide fakes.
type Source interface {
	// SidecarDocument returns the document whose _id is SidecarID, or nil
	// if the collection has none.
	SidecarDocument(ctx context.Context) (bson.Raw, error)

	// SampleDocuments returns at most limit documents for inference.
	SampleDocuments(ctx context.Context, limit int64) ([]bson.Raw, error)
}

// ColumnSpec declares one column of an explicit schema, mirroring the
// columns parameter of the scan function: either name -> type string, or
// name -> {type, path}.
type ColumnSpec struct {
	Name string
	Type string
	Path string // optional; defaults to Name
}

// ResolveOptions controls schema resolution.
type ResolveOptions struct {
	// Columns is the explicit schema. When non-empty it wins over the
	// sidecar document and inference.
	Columns []ColumnSpec

	// SampleSize caps inference. OPTIONAL: DefaultSampleSize if <= 0.
	SampleSize int64

	// Logger for resolution diagnostics. OPTIONAL: slog.Default() if nil.
	Logger *slog.Logger
}

// Resolve produces the schema for a collection. explicit reports whether
// the schema came from the caller or a sidecar document, which is what
// arms schema enforcement downstream.
func Resolve(ctx context.Context, src Source, opts ResolveOptions) (s *Schema, explicit bool, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(opts.Columns) > 0 {
		s, err = fromColumnSpecs(opts.Columns)
		if err != nil {
			return nil, false, err
		}
		logger.Debug("schema from explicit columns", "columns", len(s.Columns))
		return s, true, nil
	}

	sidecar, err := src.SidecarDocument(ctx)
	if err != nil {
		return nil, false, err
	}
	if sidecar != nil {
		s, ok := fromSidecar(sidecar)
		if ok {
			logger.Debug("schema from sidecar document", "columns", len(s.Columns))
			return s, true, nil
		}
	}

	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	s, err = inferFromSample(ctx, src, sampleSize)
	if err != nil {
		return nil, false, err
	}
	logger.Debug("schema inferred from sample", "sample_size", sampleSize, "columns", len(s.Columns))
	return s, false, nil
}

// fromColumnSpecs parses the explicit columns parameter, preserving caller
// order and appending _id if missing.
func fromColumnSpecs(specs []ColumnSpec) (*Schema, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf(`"columns" parameter needs at least one column`)
	}
	s := &Schema{Columns: make([]Column, 0, len(specs)+1)}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf(`"columns" parameter has a column with no name`)
		}
		if spec.Type == "" {
			return nil, fmt.Errorf(`"columns" parameter column %q must contain a "type" field`, spec.Name)
		}
		t, err := ParseType(spec.Type)
		if err != nil {
			return nil, fmt.Errorf(`"columns" parameter column %q: %w`, spec.Name, err)
		}
		path := spec.Path
		if path == "" {
			path = spec.Name
		}
		s.Columns = append(s.Columns, Column{Name: spec.Name, Type: t, Path: path})
	}
	ensureID(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// fromSidecar parses a "__schema" document. Supported forms:
//
//	{ _id: "__schema", field: "TYPE", ... }
//	{ _id: "__schema", schema: { field: "TYPE", ... } }
//	{ _id: "__schema", field: { type: "TYPE", path: "dotted.path" }, ... }
//
// Invalid entries are skipped. ok is false when nothing usable was found.
func fromSidecar(doc bson.Raw) (*Schema, bool) {
	body := doc
	if inner, err := doc.LookupErr("schema"); err == nil {
		if nested, isDoc := inner.DocumentOK(); isDoc {
			body = nested
		}
	}

	elements, err := body.Elements()
	if err != nil {
		return nil, false
	}

	s := &Schema{}
	for _, el := range elements {
		name := el.Key()
		if name == "_id" || name == "schema" {
			continue
		}

		v := el.Value()
		typeStr := ""
		path := name
		switch v.Type {
		case bsontype.String:
			typeStr, _ = v.StringValueOK()
		case bsontype.EmbeddedDocument:
			field, ok := v.DocumentOK()
			if !ok {
				continue
			}
			tv, err := field.LookupErr("type")
			if err != nil {
				continue
			}
			ts, ok := tv.StringValueOK()
			if !ok {
				continue
			}
			typeStr = ts
			if pv, err := field.LookupErr("path"); err == nil {
				if ps, ok := pv.StringValueOK(); ok {
					path = ps
				}
			}
		default:
			continue
		}

		t, err := ParseType(typeStr)
		if err != nil {
			continue
		}
		s.Columns = append(s.Columns, Column{Name: name, Type: t, Path: path})
	}

	if len(s.Columns) == 0 {
		return nil, false
	}
	ensureID(s)
	return s, true
}

// inferFromSample reads at most sampleSize documents and resolves one type
// per flattened field path. _id always exists and comes first; the rest
// keep first-appearance order across the sample. Empty collections still
// yield a single VARCHAR _id column.
func inferFromSample(ctx context.Context, src Source, sampleSize int64) (*Schema, error) {
	docs, err := src.SampleDocuments(ctx, sampleSize)
	if err != nil {
		return nil, err
	}

	fieldTypes := make(map[string][]Type)
	var fieldOrder []string
	pathMap := make(map[string]string)

	for _, doc := range docs {
		collectFieldPaths(doc, "", 0, fieldTypes, &fieldOrder, pathMap, "")
	}

	if _, ok := fieldTypes["_id"]; !ok {
		fieldTypes["_id"] = []Type{{ID: Varchar}}
		pathMap["_id"] = "_id"
	}

	s := &Schema{Columns: make([]Column, 0, len(fieldTypes))}
	s.Columns = append(s.Columns, Column{Name: "_id", Type: ResolveType(fieldTypes["_id"]), Path: pathMap["_id"]})
	for _, name := range fieldOrder {
		if name == "_id" {
			continue
		}
		s.Columns = append(s.Columns, Column{Name: name, Type: ResolveType(fieldTypes[name]), Path: pathMap[name]})
	}
	return s, nil
}

// ensureID appends a VARCHAR _id column mapped to itself if absent.
func ensureID(s *Schema) {
	if s.IndexOf("_id") < 0 {
		s.Columns = append(s.Columns, Column{Name: "_id", Type: Type{ID: Varchar}, Path: "_id"})
	}
}
