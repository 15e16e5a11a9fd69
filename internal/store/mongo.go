package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const defaultMongoRetries = 5

type nodeDocument struct {
	Root      string    `bson:"_id"`
	Doc       string    `bson:"doc"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Mongo keeps one document per top-level key in a collection. Updates use
// a version field for optimistic concurrency instead of transactions, so
// it runs against standalone servers too.
type Mongo struct {
	client     *mongo.Client
	coll       *mongo.Collection
	maxRetries int
}

// OpenMongo connects to uri and uses the "nodes" collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongo(client, client.Database(database).Collection("nodes")), nil
}

// NewMongo wraps an existing collection.
func NewMongo(client *mongo.Client, coll *mongo.Collection) *Mongo {
	return &Mongo{client: client, coll: coll, maxRetries: defaultMongoRetries}
}

// Collection exposes the underlying collection, mostly for tests.
func (m *Mongo) Collection() *mongo.Collection {
	return m.coll
}

func (m *Mongo) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	node, err := m.load(ctx, segs[0])
	if err != nil {
		return Snapshot{}, err
	}
	var doc any
	if node != nil {
		if doc, err = decodeDoc(node.Doc); err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{Path: joinPath(segs), Value: lookup(doc, segs[1:])}, nil
}

func (m *Mongo) Set(ctx context.Context, path string, value any) error {
	return m.Update(ctx, path, func(Snapshot) (any, error) { return value, nil })
}

func (m *Mongo) Update(ctx context.Context, path string, fn UpdateFunc) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		done, err := m.tryUpdate(ctx, segs, fn)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrConflict, joinPath(segs), m.maxRetries)
}

// tryUpdate returns false when another writer changed the document first.
func (m *Mongo) tryUpdate(ctx context.Context, segs []string, fn UpdateFunc) (bool, error) {
	node, err := m.load(ctx, segs[0])
	if err != nil {
		return false, err
	}
	var doc any
	if node != nil {
		if doc, err = decodeDoc(node.Doc); err != nil {
			return false, err
		}
	}

	next, err := fn(Snapshot{Path: joinPath(segs), Value: clone(lookup(doc, segs[1:]))})
	if err != nil {
		return false, err
	}
	value, err := normalize(next)
	if err != nil {
		return false, err
	}
	doc = assign(doc, segs[1:], value)

	if node == nil {
		if doc == nil {
			return true, nil
		}
		raw, err := encodeDoc(doc)
		if err != nil {
			return false, err
		}
		_, err = m.coll.InsertOne(ctx, nodeDocument{Root: segs[0], Doc: raw, Version: 1, UpdatedAt: time.Now().UTC()})
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("insert %s: %w", segs[0], err)
		}
		return true, nil
	}

	filter := bson.M{"_id": node.Root, "version": node.Version}
	if doc == nil {
		res, err := m.coll.DeleteOne(ctx, filter)
		if err != nil {
			return false, fmt.Errorf("delete %s: %w", segs[0], err)
		}
		return res.DeletedCount == 1, nil
	}
	raw, err := encodeDoc(doc)
	if err != nil {
		return false, err
	}
	res, err := m.coll.ReplaceOne(ctx, filter, nodeDocument{
		Root:      node.Root,
		Doc:       raw,
		Version:   node.Version + 1,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("replace %s: %w", segs[0], err)
	}
	return res.MatchedCount == 1, nil
}

func (m *Mongo) load(ctx context.Context, root string) (*nodeDocument, error) {
	var node nodeDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": root}).Decode(&node)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", root, err)
	}
	return &node, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
