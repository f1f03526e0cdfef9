package batch

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/mongoport-go/schema"
)

// Batch accumulates rows for one scan iteration into Arrow builders.
// A batch is owned by a single scan worker and is not goroutine-safe.
type Batch struct {
	schema      *schema.Schema
	arrowSchema *arrow.Schema
	builder     *array.RecordBuilder
	capacity    int
	rows        int
}

// New creates a batch over the given (possibly projected) schema with a
// fixed row capacity.
func New(mem memory.Allocator, s *schema.Schema, capacity int) *Batch {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	as := s.ArrowSchema()
	return &Batch{
		schema:      s,
		arrowSchema: as,
		builder:     array.NewRecordBuilder(mem, as),
		capacity:    capacity,
	}
}

// Schema returns the schema the batch materializes.
func (b *Batch) Schema() *schema.Schema { return b.schema }

// Capacity returns the fixed row capacity.
func (b *Batch) Capacity() int { return b.capacity }

// Len returns the number of rows written so far.
func (b *Batch) Len() int { return b.rows }

// Full reports whether the batch reached capacity.
func (b *Batch) Full() bool { return b.rows >= b.capacity }

// BumpRow advances the row count without materializing any column. Used by
// count-only scans where the engine requested no columns.
func (b *Batch) BumpRow() { b.rows++ }

// Record finalizes the batch into an Arrow record. The caller must Release
// the record. The batch can be reused afterwards.
func (b *Batch) Record() arrow.Record {
	if len(b.schema.Columns) == 0 {
		rec := array.NewRecord(b.arrowSchema, nil, int64(b.rows))
		b.rows = 0
		return rec
	}
	rec := b.builder.NewRecord()
	b.rows = 0
	return rec
}

// Release frees the underlying builders.
func (b *Batch) Release() {
	b.builder.Release()
}
