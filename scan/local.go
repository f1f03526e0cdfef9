package scan

import (
	"context"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/mongoport-go/batch"
	"github.com/hugr-lab/mongoport-go/filter"
	"github.com/hugr-lab/mongoport-go/schema"
)

// InitOptions carries the per-worker inputs the engine provides when it
// initializes a scan thread.
type InitOptions struct {
	// ColumnIDs are the schema column indices the engine wants, in request
	// order. Empty means every column.
	ColumnIDs []int

	// CountOnly marks scans where the engine requests no column data and
	// only counts rows (COUNT(*) without a pipeline rewrite).
	CountOnly bool

	// Filters are per-column predicates, keyed by schema column index.
	Filters map[int]filter.TableFilter

	// Limit is a LIMIT pushed from directly above the scan; 0 means none.
	Limit int64
}

// LocalState is the per-worker scan state: a live cursor plus the
// projection and pipeline documents that must outlive it. Each worker owns
// exactly one; no synchronization happens during Next.
type LocalState struct {
	bind *BindState

	requested  []int
	reqSchema  *schema.Schema
	countOnly  bool
	filterDoc  bson.D
	projection bson.D
	pipeline   []bson.D
	limit      int64

	cursor   Cursor
	finished bool
	emitted  bool
}

// InitLocal builds a worker-local state: it decides the requested column
// set, assembles the find filter (or parses the pipeline), builds the
// projection document, pushes the limit, and opens the cursor.
func (b *BindState) InitLocal(ctx context.Context, opts InitOptions) (*LocalState, error) {
	s := &LocalState{bind: b, countOnly: opts.CountOnly, limit: opts.Limit}

	// Requested column set. Enforcement needs every column to validate;
	// count-only scans materialize none (validation reads the full schema
	// from the bind state regardless).
	switch {
	case opts.CountOnly:
		s.requested = nil
	case b.Mode != batch.Permissive && b.HasExplicit:
		s.requested = allColumns(b.Schema)
	case len(opts.ColumnIDs) == 0:
		s.requested = allColumns(b.Schema)
	default:
		s.requested = append([]int(nil), opts.ColumnIDs...)
	}

	// Find filter. A raw filter parameter replaces translated predicates:
	// the caller took responsibility for it.
	filtersPushed := false
	if b.FilterJSON != "" {
		var manual bson.D
		if err := bson.UnmarshalExtJSON([]byte(b.FilterJSON), false, &manual); err != nil {
			return nil, err
		}
		s.filterDoc = manual
		filtersPushed = true
	} else {
		s.filterDoc = filter.EncodeFind(opts.Filters, b.Schema)
		filtersPushed = len(s.filterDoc) > 0
		if len(b.ComplexFilterExpr) > 0 {
			expr := bson.D{{Key: "$expr", Value: b.ComplexFilterExpr}}
			if len(s.filterDoc) == 0 {
				s.filterDoc = expr
			} else {
				s.filterDoc = bson.D{{Key: "$and", Value: bson.A{s.filterDoc, expr}}}
			}
			filtersPushed = true
		}
	}

	// Filter columns are only needed client-side when their predicates
	// could not be pushed; otherwise the server already filtered.
	if !filtersPushed && len(opts.Filters) > 0 && !opts.CountOnly {
		need := make(map[int]struct{}, len(s.requested))
		for _, i := range s.requested {
			need[i] = struct{}{}
		}
		for i := range opts.Filters {
			if _, ok := need[i]; !ok {
				s.requested = append(s.requested, i)
			}
		}
		sort.Ints(s.requested)
	}

	s.reqSchema = b.Schema.Select(s.requested)

	if b.PipelineJSON != "" {
		stages, err := ParsePipeline(b.PipelineJSON)
		if err != nil {
			return nil, err
		}
		s.pipeline = stages
		cur, err := b.coll.Aggregate(ctx, stages)
		if err != nil {
			return nil, err
		}
		s.cursor = cur
		return s, nil
	}

	findOpts := options.Find()
	if len(s.reqSchema.Columns) > 0 {
		s.projection = BuildProjection(s.reqSchema)
		if len(s.projection) > 0 {
			findOpts.SetProjection(s.projection)
		}
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cur, err := b.coll.Find(ctx, s.filterDoc, findOpts)
	if err != nil {
		return nil, err
	}
	s.cursor = cur
	return s, nil
}

// RequestedSchema returns the schema subset this worker materializes.
func (s *LocalState) RequestedSchema() *schema.Schema { return s.reqSchema }

// NewBatch allocates a batch matching the requested schema.
func (s *LocalState) NewBatch(mem memory.Allocator, capacity int) *batch.Batch {
	return batch.New(mem, s.reqSchema, capacity)
}

// Close releases the cursor and the documents kept alive for it.
func (s *LocalState) Close(ctx context.Context) error {
	if s.cursor == nil {
		return nil
	}
	err := s.cursor.Close(ctx)
	s.cursor = nil
	s.projection = nil
	s.pipeline = nil
	return err
}

func allColumns(sch *schema.Schema) []int {
	ids := make([]int, len(sch.Columns))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// BuildProjection builds the projection document for the requested columns.
// A child path whose parent is also projected collapses into the parent:
// the server returns whole parent documents either way, and projecting both
// is rejected as a path collision. _id is always included.
func BuildProjection(req *schema.Schema) bson.D {
	added := make(map[string]struct{}, len(req.Columns)+1)
	proj := bson.D{}
	hasID := false

	for _, col := range req.Columns {
		path := col.Path
		if path == "" {
			path = col.Name
		}
		if _, dup := added[path]; dup {
			continue
		}
		if dot := strings.IndexByte(path, '.'); dot >= 0 {
			if _, parent := added[path[:dot]]; parent {
				continue
			}
		} else {
			// A parent listed after its children replaces them.
			kept := proj[:0]
			for _, e := range proj {
				if !strings.HasPrefix(e.Key, path+".") {
					kept = append(kept, e)
				}
			}
			proj = kept
		}
		if path == "_id" {
			hasID = true
		}
		proj = append(proj, bson.E{Key: path, Value: 1})
		added[path] = struct{}{}
	}

	if len(proj) == 0 {
		return bson.D{}
	}
	if !hasID {
		proj = append(proj, bson.E{Key: "_id", Value: 1})
	}
	return proj
}
