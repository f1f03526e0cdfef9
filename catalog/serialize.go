package catalog

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/mongoport-go/internal/serialize"
)

// snapshotSchema is the Arrow schema of a catalog snapshot: one row per
// collection, following the catalog-discovery shape engines expect.
var snapshotSchema = arrow.NewSchema([]arrow.Field{
	{Name: "db_schema_name", Type: arrow.BinaryTypes.String},
	{Name: "collection_name", Type: arrow.BinaryTypes.String},
	{Name: "view_sql", Type: arrow.BinaryTypes.String},
}, nil)

// Snapshot serializes the catalog's schemas and collections to compressed
// Arrow IPC bytes for engine-side catalog discovery.
func Snapshot(ctx context.Context, c *Catalog, mem memory.Allocator) ([]byte, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	builder := array.NewRecordBuilder(mem, snapshotSchema)
	defer builder.Release()

	schemaName := builder.Field(0).(*array.StringBuilder)
	collectionName := builder.Field(1).(*array.StringBuilder)
	viewSQL := builder.Field(2).(*array.StringBuilder)

	for _, db := range c.Schemas(ctx) {
		collections, err := c.Collections(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("catalog: listing %s: %w", db, err)
		}
		for _, name := range collections {
			info, err := c.View(ctx, db, name)
			if err != nil {
				return nil, err
			}
			if info == nil {
				continue
			}
			schemaName.Append(db)
			collectionName.Append(name)
			viewSQL.Append(info.SQL)
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(snapshotSchema), ipc.WithAllocator(mem))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("catalog: serializing snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("catalog: closing snapshot writer: %w", err)
	}

	return serialize.Compress(buf.Bytes())
}

// ReadSnapshot decompresses and parses a snapshot produced by Snapshot.
func ReadSnapshot(data []byte, mem memory.Allocator) ([]ViewInfo, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	raw, err := serialize.Decompress(data)
	if err != nil {
		return nil, err
	}

	reader, err := ipc.NewReader(bytes.NewReader(raw), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("catalog: reading snapshot: %w", err)
	}
	defer reader.Release()

	var out []ViewInfo
	for reader.Next() {
		rec := reader.Record()
		schemas := rec.Column(0).(*array.String)
		names := rec.Column(1).(*array.String)
		sqls := rec.Column(2).(*array.String)
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, ViewInfo{
				Schema: schemas.Value(i),
				Name:   names.Value(i),
				SQL:    sqls.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("catalog: reading snapshot: %w", err)
	}
	return out, nil
}
