package mongoport

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// The driver mandates one shared client per connection string per process;
// the client owns the connection pool reused by every scan worker.
var (
	clientsMu sync.Mutex
	clients   map[string]*mongo.Client
)

// Client returns the process-wide client for the given connection string,
// dialing it on first use. The returned client is shared: callers must not
// disconnect it directly, use Shutdown instead.
func Client(ctx context.Context, uri string) (*mongo.Client, error) {
	clientsMu.Lock()
	defer clientsMu.Unlock()

	if c, ok := clients[uri]; ok {
		return c, nil
	}

	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongoport: connect %q: %w", uri, err)
	}
	if clients == nil {
		clients = make(map[string]*mongo.Client)
	}
	clients[uri] = c
	return c, nil
}

// Ping verifies the process-wide client for uri can reach a server.
func Ping(ctx context.Context, uri string) error {
	c, err := Client(ctx, uri)
	if err != nil {
		return err
	}
	return c.Ping(ctx, readpref.Primary())
}

// Shutdown disconnects every process-wide client. Intended for process
// teardown; concurrent scans on a disconnected client will fail.
func Shutdown(ctx context.Context) error {
	clientsMu.Lock()
	defer clientsMu.Unlock()

	var firstErr error
	for uri, c := range clients {
		if err := c.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mongoport: disconnect %q: %w", uri, err)
		}
	}
	clients = nil
	return firstErr
}
