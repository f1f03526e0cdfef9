package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"

	"github.com/hugr-lab/mongoport-go"
	"github.com/hugr-lab/mongoport-go/catalog"
	"github.com/hugr-lab/mongoport-go/scan"
	"github.com/hugr-lab/mongoport-go/schema"
)

var (
	// CLI flags (shared)
	uri        string
	database   string
	collection string
	verbose    bool

	// scan flags
	rawFilter   string
	rawPipeline string
	sampleSize  int64
	schemaMode  string
	columns     []string
	limit       int64
	batchSize   int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mongoport",
	Short: "Inspect and scan MongoDB collections as relational tables",
	Long: `mongoport presents MongoDB collections as relational tables.

It resolves a stable schema for a collection (explicit, sidecar, or
inferred from a sample), scans documents into Arrow record batches, and
shows which parts of a query would be pushed down to MongoDB.

Examples:
  mongoport schema --uri mongodb://localhost:27017 --db shop --collection orders
  mongoport scan --uri mongodb://localhost:27017 --db shop --collection orders --limit 10
  mongoport scan --db shop --collection orders --filter '{"status":"A"}'
  mongoport clear-cache --uri mongodb://localhost:27017`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&uri, "uri", "mongodb://localhost:27017", "connection string")
	rootCmd.PersistentFlags().StringVar(&database, "db", "", "database name")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "collection name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, cmd := range []*cobra.Command{scanCmd, explainCmd} {
		cmd.Flags().StringVar(&rawFilter, "filter", "", "raw find filter as JSON text")
		cmd.Flags().StringVar(&rawPipeline, "pipeline", "", "aggregation pipeline as a JSON array text")
		cmd.Flags().Int64Var(&limit, "limit", 0, "limit pushed to the cursor (0 = none)")
	}
	for _, cmd := range []*cobra.Command{schemaCmd, scanCmd, explainCmd} {
		cmd.Flags().Int64Var(&sampleSize, "sample-size", 0, "schema inference sample cap (default 100)")
		cmd.Flags().StringVar(&schemaMode, "schema-mode", "", "permissive, dropmalformed, or failfast")
		cmd.Flags().StringArrayVar(&columns, "column", nil, "explicit column as name=TYPE or name=TYPE@dotted.path (repeatable)")
	}
	scanCmd.Flags().IntVar(&batchSize, "batch-size", mongoport.DefaultBatchSize, "rows per output batch")

	rootCmd.AddCommand(schemaCmd, scanCmd, explainCmd, clearCacheCmd)
}

func bindArgs() (scan.BindArgs, error) {
	if database == "" || collection == "" {
		return scan.BindArgs{}, fmt.Errorf("--db and --collection are required")
	}
	specs, err := parseColumnFlags(columns)
	if err != nil {
		return scan.BindArgs{}, err
	}
	return scan.BindArgs{
		Connection: uri,
		Database:   database,
		Collection: collection,
		Filter:     rawFilter,
		Pipeline:   rawPipeline,
		SampleSize: sampleSize,
		Columns:    specs,
		SchemaMode: schemaMode,
		Logger:     slog.Default(),
	}, nil
}

// parseColumnFlags parses repeated --column name=TYPE or name=TYPE@path.
func parseColumnFlags(flags []string) ([]schema.ColumnSpec, error) {
	specs := make([]schema.ColumnSpec, 0, len(flags))
	for _, f := range flags {
		var spec schema.ColumnSpec
		eq := -1
		for i := 0; i < len(f); i++ {
			if f[i] == '=' {
				eq = i
				break
			}
		}
		if eq <= 0 {
			return nil, fmt.Errorf("invalid --column %q, expected name=TYPE", f)
		}
		spec.Name = f[:eq]
		rest := f[eq+1:]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '@' {
				spec.Path = rest[i+1:]
				rest = rest[:i]
				break
			}
		}
		spec.Type = rest
		specs = append(specs, spec)
	}
	return specs, nil
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Resolve and print a collection's relational schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ba, err := bindArgs()
		if err != nil {
			return err
		}
		bind, err := scan.Bind(ctx, ba)
		if err != nil {
			return err
		}
		source := "inferred"
		if bind.HasExplicit {
			source = "explicit"
		}
		fmt.Printf("%s.%s (%s schema, %d columns)\n", bind.Database, bind.Collection, source, len(bind.Schema.Columns))
		for _, col := range bind.Schema.Columns {
			if col.Path != col.Name {
				fmt.Printf("  %-24s %-20s path=%s\n", col.Name, col.Type, col.Path)
			} else {
				fmt.Printf("  %-24s %s\n", col.Name, col.Type)
			}
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a collection and print Arrow record batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ba, err := bindArgs()
		if err != nil {
			return err
		}
		bind, err := scan.Bind(ctx, ba)
		if err != nil {
			return err
		}
		local, err := bind.InitLocal(ctx, scan.InitOptions{Limit: limit})
		if err != nil {
			return err
		}
		defer local.Close(ctx)

		mem := memory.DefaultAllocator
		total := int64(0)
		for !local.Finished() {
			out := local.NewBatch(mem, batchSize)
			if err := local.Next(ctx, out); err != nil {
				out.Release()
				return err
			}
			rec := out.Record()
			if rec.NumRows() > 0 {
				fmt.Println(rec)
				total += rec.NumRows()
			}
			rec.Release()
			out.Release()
		}
		fmt.Printf("%d rows\n", total)
		return nil
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show how a scan would run: method, filter, pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ba, err := bindArgs()
		if err != nil {
			return err
		}
		bind, err := scan.Bind(ctx, ba)
		if err != nil {
			return err
		}
		local, err := bind.InitLocal(ctx, scan.InitOptions{Limit: limit})
		if err != nil {
			return err
		}
		defer local.Close(ctx)

		info := local.Explain()
		fmt.Printf("database:    %s\n", info.Database)
		fmt.Printf("collection:  %s\n", info.Collection)
		fmt.Printf("scan_method: %s\n", info.ScanMethod)
		if info.Pipeline != "" {
			fmt.Printf("pipeline:    %s\n", info.Pipeline)
		}
		if info.Filter != "" {
			fmt.Printf("filter:      %s\n", info.Filter)
		}
		if info.Expr != "" {
			fmt.Printf("expr:        %s\n", info.Expr)
		}
		return nil
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Invalidate all catalog caches",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.New(uri, catalog.Options{Database: database})
		cat.ClearCache()
		catalog.ClearAllCaches()
		fmt.Println("true")
		return nil
	},
}
