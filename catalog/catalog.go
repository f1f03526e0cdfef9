// Package catalog exposes a MongoDB deployment to the engine as a catalog:
// databases appear as schemas and collections as views over mongo_scan.
//
// Collection lists and parsed view definitions are cached process-wide.
// The caches are advisory: they never expire on their own and are only
// invalidated by an explicit ClearCache. A stale entry may name a view
// that no longer exists; the next scan fails with a driver error, which
// callers recover from by clearing the cache.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hugr-lab/mongoport-go"
)

// Lister enumerates databases and collections. The default implementation
// wraps the shared driver client; tests inject fakes.
type Lister interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, db string) ([]string, error)
}

// ViewInfo describes one collection presented as a view.
type ViewInfo struct {
	Schema string
	Name   string
	// SQL is the view body wrapping the collection in a mongo_scan call.
	SQL string
}

// Catalog presents one attached MongoDB deployment.
type Catalog struct {
	uri      string
	database string // pinned database, or "" for all
	lister   Lister
	logger   *slog.Logger

	// Collection names per database and parsed view info per collection,
	// each its own cache so ClearCache can invalidate them in order.
	collections *gocache.Cache
	viewInfo    *gocache.Cache
}

// Options configures a catalog.
type Options struct {
	// Database pins the catalog to one database. OPTIONAL: empty lists all
	// non-system databases as schemas.
	Database string

	// Lister overrides the driver-backed lister. OPTIONAL.
	Lister Lister

	// Logger for catalog diagnostics. OPTIONAL.
	Logger *slog.Logger
}

// registry tracks every live catalog so ClearAllCaches can reach them.
var (
	registryMu sync.Mutex
	registry   []*Catalog
)

// New creates a catalog for a deployment and registers it for
// process-wide cache invalidation.
func New(uri string, opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lister := opts.Lister
	if lister == nil {
		lister = &driverLister{uri: uri}
	}
	c := &Catalog{
		uri:         uri,
		database:    opts.Database,
		lister:      lister,
		logger:      logger,
		collections: gocache.New(gocache.NoExpiration, 0),
		viewInfo:    gocache.New(gocache.NoExpiration, 0),
	}
	registryMu.Lock()
	registry = append(registry, c)
	registryMu.Unlock()
	return c
}

// systemDatabases are skipped when listing all databases as schemas.
var systemDatabases = map[string]struct{}{
	"admin":  {},
	"local":  {},
	"config": {},
}

// Schemas lists the schemas this catalog exposes. With a pinned database
// the list is that database alone, verified reachable. Listing failures
// recover to an empty schema list so ATTACH succeeds; queries against the
// missing database fail later with the driver error.
func (c *Catalog) Schemas(ctx context.Context) []string {
	if c.database != "" {
		if _, err := c.Collections(ctx, c.database); err != nil {
			c.logger.Warn("schema listing failed", "database", c.database, "error", err)
			return nil
		}
		return []string{c.database}
	}

	names, err := c.lister.ListDatabases(ctx)
	if err != nil {
		c.logger.Warn("database listing failed", "error", err)
		return nil
	}
	schemas := make([]string, 0, len(names))
	for _, name := range names {
		if _, system := systemDatabases[name]; system {
			continue
		}
		schemas = append(schemas, name)
	}
	return schemas
}

// Schema verifies the named schema exists and returns its canonical name.
// A schema that does not exist and cannot be created is a binder error.
func (c *Catalog) Schema(ctx context.Context, name string) (string, error) {
	for _, s := range c.Schemas(ctx) {
		if strings.EqualFold(s, name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: schema with name %q not found", mongoport.ErrBinder, name)
}

// Collections lists the collections of a database, from cache when
// possible. A cache miss is never an error: it just takes the expensive
// path and repopulates.
func (c *Catalog) Collections(ctx context.Context, db string) ([]string, error) {
	if cached, ok := c.collections.Get(db); ok {
		names := cached.([]string)
		out := make([]string, len(names))
		copy(out, names)
		return out, nil
	}

	names, err := c.lister.ListCollections(ctx, db)
	if err != nil {
		return nil, err
	}
	c.collections.Set(db, names, gocache.NoExpiration)

	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

// View returns the view definition for a collection, from cache when
// possible. Returns (nil, nil) if the collection does not exist.
func (c *Catalog) View(ctx context.Context, db, collection string) (*ViewInfo, error) {
	key := db + ":" + collection
	if cached, ok := c.viewInfo.Get(key); ok {
		info := cached.(ViewInfo)
		return &info, nil
	}

	names, err := c.Collections(ctx, db)
	if err != nil {
		return nil, err
	}
	found := false
	actual := collection
	for _, name := range names {
		if strings.EqualFold(name, collection) {
			found = true
			actual = name
			break
		}
	}
	if !found {
		return nil, nil
	}

	info := ViewInfo{
		Schema: db,
		Name:   actual,
		SQL: fmt.Sprintf("SELECT * FROM mongo_scan('%s', '%s', '%s')",
			escapeSQLString(c.uri), escapeSQLString(db), escapeSQLString(actual)),
	}
	c.viewInfo.Set(key, info, gocache.NoExpiration)
	return &info, nil
}

// ClearCache invalidates both caches, collection names first. Safe to call
// while scans are running: it only affects future lookups.
func (c *Catalog) ClearCache() {
	c.collections.Flush()
	c.viewInfo.Flush()
}

// ClearAllCaches invalidates the caches of every catalog in the process.
// This is the mongo_clear_cache() entry point.
func ClearAllCaches() {
	registryMu.Lock()
	catalogs := make([]*Catalog, len(registry))
	copy(catalogs, registry)
	registryMu.Unlock()

	for _, c := range catalogs {
		c.ClearCache()
	}
}

// Write operations are rejected: the bridge is read-only.

// CreateTable always fails with ErrReadOnly.
func (c *Catalog) CreateTable(string, string) error {
	return fmt.Errorf("%w: CREATE TABLE is not supported for mongo catalogs", mongoport.ErrReadOnly)
}

// Insert always fails with ErrReadOnly.
func (c *Catalog) Insert(string, string) error {
	return fmt.Errorf("%w: INSERT is not supported for mongo catalogs", mongoport.ErrReadOnly)
}

// Update always fails with ErrReadOnly.
func (c *Catalog) Update(string, string) error {
	return fmt.Errorf("%w: UPDATE is not supported for mongo catalogs", mongoport.ErrReadOnly)
}

// Delete always fails with ErrReadOnly.
func (c *Catalog) Delete(string, string) error {
	return fmt.Errorf("%w: DELETE is not supported for mongo catalogs", mongoport.ErrReadOnly)
}

// CreateIndex always fails; index management stays in MongoDB.
func (c *Catalog) CreateIndex(string, string) error {
	return fmt.Errorf("%w: CREATE INDEX is not supported for mongo catalogs", mongoport.ErrNotImplemented)
}

// CreateView always fails; views are generated from collections.
func (c *Catalog) CreateView(string, string) error {
	return fmt.Errorf("%w: CREATE VIEW is not supported for mongo catalogs", mongoport.ErrNotImplemented)
}

// escapeSQLString doubles single quotes for embedding in view SQL.
func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// driverLister lists through the shared driver client.
type driverLister struct {
	uri string
}

func (l *driverLister) ListDatabases(ctx context.Context) ([]string, error) {
	client, err := mongoport.Client(ctx, l.uri)
	if err != nil {
		return nil, err
	}
	return client.ListDatabaseNames(ctx, bson.D{})
}

func (l *driverLister) ListCollections(ctx context.Context, db string) ([]string, error) {
	client, err := mongoport.Client(ctx, l.uri)
	if err != nil {
		return nil, err
	}
	return client.Database(db).ListCollectionNames(ctx, bson.D{})
}
