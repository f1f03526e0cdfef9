// Package mongoport presents MongoDB collections as relational tables to a
// SQL analytic engine, pushing as much of each query as it safely can into
// MongoDB's native find and aggregation facilities.
//
// The package is read-only: CREATE TABLE AS, INSERT, UPDATE, and DELETE
// against a document catalog are rejected with ErrReadOnly.
//
// # Architecture
//
// The heavy lifting lives in focused subpackages:
//
//   - schema: resolves a stable relational schema for a collection, from an
//     explicit column list, a "__schema" sidecar document, or a bounded
//     sample of the collection (its first documents in natural order; the
//     sample is not randomized).
//   - batch: materializes BSON documents into Arrow record batches according
//     to a resolved schema, including nested LIST/STRUCT columns, type
//     coercions, JSON spillover for exotic values, and schema enforcement.
//   - filter: translates engine predicates into native find filter documents
//     and $expr fragments.
//   - plan: a post-planning rewriter that turns {aggregate over scan} and
//     {top-N by _id over scan} plan shapes into aggregation-pipeline scans.
//   - scan: the scan driver binding a call, initializing per-worker state,
//     and driving documents through the materializer batch by batch.
//   - catalog: lists databases as schemas and collections as views, with
//     explicitly invalidated caches.
//
// # Quick Start
//
// Scan a collection into Arrow records:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/apache/arrow-go/v18/arrow/memory"
//
//	    "github.com/hugr-lab/mongoport-go/scan"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    bind, err := scan.Bind(ctx, scan.BindArgs{
//	        Connection: "mongodb://localhost:27017",
//	        Database:   "shop",
//	        Collection: "orders",
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    local, err := bind.InitLocal(ctx, scan.InitOptions{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer local.Close(ctx)
//
//	    for {
//	        out := local.NewBatch(memory.DefaultAllocator, 2048)
//	        if err := local.Next(ctx, out); err != nil {
//	            log.Fatal(err)
//	        }
//	        rec := out.Record()
//	        if rec.NumRows() == 0 {
//	            rec.Release()
//	            break
//	        }
//	        fmt.Println(rec)
//	        rec.Release()
//	    }
//	}
//
// # Concurrency
//
// Bind is invoked once per statement; InitLocal and Next may then run on
// multiple worker threads, each owning an independent local state and
// cursor. The shared connection handle in the bind state reuses the
// driver's connection pool across workers. No lock is ever held across a
// network call.
//
// # Logging
//
// The package uses log/slog. Components accept an optional *slog.Logger
// and fall back to slog.Default().
package mongoport
