// Package scan implements the mongo_scan table function driver: binding a
// call to a collection, resolving its schema, translating pushed-down
// predicates, and driving documents through the columnar materializer.
package scan

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hugr-lab/mongoport-go/schema"
)

// Cursor abstracts a driver cursor so tests can run without a server.
// A cursor is owned by exactly one local state.
type Cursor interface {
	Next(ctx context.Context) bool
	Current() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// Collection is the slice of the driver collection surface the scan uses.
type Collection interface {
	Find(ctx context.Context, filter any, opts *options.FindOptions) (Cursor, error)
	FindOne(ctx context.Context, filter any) (bson.Raw, error)
	Aggregate(ctx context.Context, pipeline any) (Cursor, error)
}

// mongoCollection adapts *mongo.Collection to Collection.
type mongoCollection struct {
	coll *mongo.Collection
}

// WrapCollection adapts a driver collection.
func WrapCollection(coll *mongo.Collection) Collection {
	return &mongoCollection{coll: coll}
}

func (c *mongoCollection) Find(ctx context.Context, filter any, opts *options.FindOptions) (Cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cur: cur}, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter any) (bson.Raw, error) {
	raw, err := c.coll.FindOne(ctx, filter).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline any) (Cursor, error) {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cur: cur}, nil
}

type mongoCursor struct {
	cur *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) bool   { return c.cur.Next(ctx) }
func (c *mongoCursor) Current() bson.Raw               { return c.cur.Current }
func (c *mongoCursor) Err() error                      { return c.cur.Err() }
func (c *mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

// schemaSource adapts a Collection to the resolver's Source.
type schemaSource struct {
	coll Collection
}

func (s schemaSource) SidecarDocument(ctx context.Context) (bson.Raw, error) {
	return s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: schema.SidecarID}})
}

func (s schemaSource) SampleDocuments(ctx context.Context, limit int64) ([]bson.Raw, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.Raw
	for int64(len(docs)) < limit && cur.Next(ctx) {
		doc := make(bson.Raw, len(cur.Current()))
		copy(doc, cur.Current())
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
