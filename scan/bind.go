package scan

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hugr-lab/mongoport-go"
	"github.com/hugr-lab/mongoport-go/batch"
	"github.com/hugr-lab/mongoport-go/filter"
	"github.com/hugr-lab/mongoport-go/schema"
)

// BindArgs are the arguments of one mongo_scan call: three positional
// values plus the named options.
type BindArgs struct {
	// Positional. REQUIRED.
	Connection string
	Database   string
	Collection string

	// Filter is a raw native filter document as JSON text. When set it
	// replaces any filters translated from engine predicates; the caller
	// takes responsibility for its correctness.
	Filter string

	// Pipeline is a JSON array of aggregation stage documents. When set
	// the scan uses aggregate instead of find.
	Pipeline string

	// SampleSize caps schema inference. OPTIONAL: default 100.
	SampleSize int64

	// Columns is the explicit schema override.
	Columns []schema.ColumnSpec

	// SchemaMode is one of "permissive", "dropmalformed", "failfast"
	// (case-insensitive, underscore variants accepted). Default permissive.
	SchemaMode string

	// Logger for bind and scan diagnostics. OPTIONAL.
	Logger *slog.Logger
}

// BindState is the per-statement state of one scan call. It is created
// once on the driver thread and then shared read-only by the worker-local
// states; the connection handle inside is the only shared resource.
type BindState struct {
	ConnectionString string
	Database         string
	Collection       string
	FilterJSON       string
	PipelineJSON     string
	SampleSize       int64
	Mode             batch.EnforceMode
	HasExplicit      bool
	Schema           *schema.Schema

	// ComplexFilterExpr is the $expr fragment produced by complex filter
	// pushdown, merged into the find filter (or $match stage) at scan time.
	ComplexFilterExpr bson.D

	coll   Collection
	logger *slog.Logger
}

// Bind parses the call arguments, opens the shared connection, resolves
// the collection schema, and returns the bind state advertising it.
func Bind(ctx context.Context, args BindArgs) (*BindState, error) {
	if args.Connection == "" || args.Database == "" || args.Collection == "" {
		return nil, fmt.Errorf("%w: mongo_scan requires at least 3 arguments: connection_string, database, collection",
			mongoport.ErrInvalidInput)
	}

	mode := batch.Permissive
	if args.SchemaMode != "" {
		var err error
		mode, err = batch.ParseEnforceMode(args.SchemaMode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", mongoport.ErrInvalidInput, err)
		}
	}

	if args.Pipeline != "" {
		if _, err := ParsePipeline(args.Pipeline); err != nil {
			return nil, fmt.Errorf("%w: %v", mongoport.ErrInvalidInput, err)
		}
	}

	logger := args.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongoport.Client(ctx, args.Connection)
	if err != nil {
		return nil, err
	}
	coll := WrapCollection(client.Database(args.Database).Collection(args.Collection))

	return bindWithCollection(ctx, args, mode, coll, logger)
}

// bindWithCollection finishes binding against an already-opened collection.
// Split out so tests can bind against a fake.
func bindWithCollection(ctx context.Context, args BindArgs, mode batch.EnforceMode,
	coll Collection, logger *slog.Logger) (*BindState, error) {

	sampleSize := args.SampleSize
	if sampleSize <= 0 {
		sampleSize = schema.DefaultSampleSize
	}

	s, explicit, err := schema.Resolve(ctx, schemaSource{coll: coll}, schema.ResolveOptions{
		Columns:    args.Columns,
		SampleSize: sampleSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s.%s: %w", args.Database, args.Collection, err)
	}

	logger.Debug("scan bound",
		"database", args.Database,
		"collection", args.Collection,
		"columns", len(s.Columns),
		"explicit_schema", explicit,
		"schema_mode", mode.String())

	return &BindState{
		ConnectionString: args.Connection,
		Database:         args.Database,
		Collection:       args.Collection,
		FilterJSON:       args.Filter,
		PipelineJSON:     args.Pipeline,
		SampleSize:       sampleSize,
		Mode:             mode,
		HasExplicit:      explicit,
		Schema:           s,
		coll:             coll,
		logger:           logger,
	}, nil
}

// CloneWithPipeline copies the bind state, attaching a pipeline. The schema
// is unchanged; existing filters stay because the pipeline's $match was
// built from them.
func (b *BindState) CloneWithPipeline(pipelineJSON string) *BindState {
	clone := *b
	clone.PipelineJSON = pipelineJSON
	return &clone
}

// CloneForAggregate copies the bind state for an aggregation scan with a
// different output shape. The raw filter and $expr fragment are cleared:
// both were folded into the pipeline's $match stage.
func (b *BindState) CloneForAggregate(pipelineJSON string, out *schema.Schema) *BindState {
	clone := *b
	clone.PipelineJSON = pipelineJSON
	clone.FilterJSON = ""
	clone.ComplexFilterExpr = nil
	clone.Schema = out
	return &clone
}

// PushdownComplexFilters runs complex filter pushdown over the bound
// expressions, storing the $expr fragment and returning the filters the
// engine must still apply itself.
func (b *BindState) PushdownComplexFilters(filters []filter.Expression, tableIndex int) []filter.Expression {
	remaining, expr := filter.PushdownComplex(filters, b.Schema, tableIndex)
	if len(expr) > 0 {
		b.ComplexFilterExpr = expr
	}
	return remaining
}

// MatchFilter combines every filter already attached to this bind state,
// plus the given table filters, into one document suitable for a $match
// stage: raw filter JSON, translated table filters, and the $expr fragment
// are conjoined.
func (b *BindState) MatchFilter(tableFilters map[int]filter.TableFilter) (bson.D, error) {
	var conjuncts []bson.D

	if b.FilterJSON != "" {
		var manual bson.D
		if err := bson.UnmarshalExtJSON([]byte(b.FilterJSON), false, &manual); err != nil {
			return nil, fmt.Errorf("%w: invalid filter JSON: %v", mongoport.ErrInvalidInput, err)
		}
		if len(manual) > 0 {
			conjuncts = append(conjuncts, manual)
		}
	}

	if len(tableFilters) > 0 {
		if simple := filter.EncodeFind(tableFilters, b.Schema); len(simple) > 0 {
			conjuncts = append(conjuncts, simple)
		}
	}

	if len(b.ComplexFilterExpr) > 0 {
		conjuncts = append(conjuncts, bson.D{{Key: "$expr", Value: b.ComplexFilterExpr}})
	}

	switch len(conjuncts) {
	case 0:
		return bson.D{}, nil
	case 1:
		return conjuncts[0], nil
	default:
		terms := make(bson.A, len(conjuncts))
		for i, c := range conjuncts {
			terms[i] = c
		}
		return bson.D{{Key: "$and", Value: terms}}, nil
	}
}

// ParsePipeline parses pipeline JSON: a JSON array text whose elements are
// stage documents. The array is wrapped as {"pipeline": [...]} so the
// extended-JSON parser can handle it.
func ParsePipeline(text string) ([]bson.D, error) {
	var wrapper struct {
		Pipeline []bson.D `bson:"pipeline"`
	}
	wrapped := `{"pipeline":` + text + `}`
	if err := bson.UnmarshalExtJSON([]byte(wrapped), false, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid pipeline JSON: %w", err)
	}
	return wrapper.Pipeline, nil
}
