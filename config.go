package mongoport

import (
	"errors"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Config carries cross-cutting options shared by the scan driver and the
// catalog. The zero value is usable.
type Config struct {
	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// BatchSize is the number of rows produced per Next call.
	// OPTIONAL: If 0, DefaultBatchSize is used.
	BatchSize int
}

// DefaultBatchSize is the batch row capacity used when Config.BatchSize is 0.
const DefaultBatchSize = 2048

// Normalize fills in defaults for unset fields.
func (c Config) Normalize() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Allocator == nil {
		c.Allocator = memory.DefaultAllocator
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Standard errors returned by mongoport packages.
var (
	// ErrReadOnly indicates a write operation (CREATE TABLE AS, INSERT,
	// UPDATE, DELETE) was attempted against a document catalog.
	ErrReadOnly = errors.New("mongo catalogs are read-only")

	// ErrInvalidInput indicates malformed scan arguments: wrong argument
	// count, invalid pipeline JSON, unknown schema_mode, or a bad columns
	// specification.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBinder indicates a reference to a schema that does not exist and
	// could not be created.
	ErrBinder = errors.New("binder error")

	// ErrNotImplemented indicates an operation outside the read-only
	// surface of the bridge.
	ErrNotImplemented = errors.New("not implemented")
)
