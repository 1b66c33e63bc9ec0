package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"faims3/conductor/pkg/config"
)

// MongoStore is a Store with one MongoDB collection per logical database.
// Each stored document is {_id, rev, body} where body is the JSON encoding,
// so numbers round-trip exactly as the other backends return them.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

type mongoEntry struct {
	ID   string `bson:"_id"`
	Rev  string `bson:"rev"`
	Body string `bson:"body"`
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = config.DefaultMongoURI
	}
	if cfg.Database == "" {
		cfg.Database = config.DefaultMongoDatabase
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = config.DefaultMongoConnectTimeout
	}

	opts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.ConnectTimeout)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, NewStorageError("mongo", "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, NewStorageError("mongo", "ping", err)
	}

	logger := slog.Default().With("component", "docstore.mongo")
	logger.Info("MongoDB document store initialized", "database", cfg.Database)

	return &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Open returns the named database. Collections are created lazily by
// MongoDB, so this only records the name.
func (s *MongoStore) Open(ctx context.Context, name string) (Database, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return nil, NewStorageError("mongo", "open", err)
	}
	if len(names) == 0 {
		if err := s.db.CreateCollection(ctx, name); err != nil {
			var cmdErr mongo.CommandError
			// NamespaceExists: another caller created it first.
			if !errors.As(err, &cmdErr) || cmdErr.Code != 48 {
				return nil, NewStorageError("mongo", "open", err)
			}
		}
	}
	return &mongoDatabase{name: name, coll: s.db.Collection(name)}, nil
}

// List returns collection names in sorted order.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, NewStorageError("mongo", "list", err)
	}
	sort.Strings(names)
	return names, nil
}

// Ping verifies the server is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return NewStorageError("mongo", "ping", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	if err := s.client.Disconnect(context.Background()); err != nil {
		return NewStorageError("mongo", "close", err)
	}
	return nil
}

type mongoDatabase struct {
	name string
	coll *mongo.Collection
}

func (d *mongoDatabase) Name() string { return d.name }

func (d *mongoDatabase) current(ctx context.Context, id string) (string, bool, error) {
	var entry mongoEntry
	err := d.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Rev, true, nil
}

func (d *mongoDatabase) Get(ctx context.Context, id string) (Document, error) {
	var entry mongoEntry
	err := d.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStorageError("mongo", "get", err)
	}
	doc, err := decode([]byte(entry.Body))
	if err != nil {
		return nil, NewStorageError("mongo", "get", err)
	}
	return doc, nil
}

func (d *mongoDatabase) Put(ctx context.Context, doc Document, opts WriteOptions) (string, error) {
	rev, exists, err := d.current(ctx, doc.ID())
	if err != nil {
		return "", NewStorageError("mongo", "put", err)
	}
	prepared, err := prepare(doc, rev, exists, opts)
	if err != nil {
		return "", err
	}
	body, err := encode(prepared)
	if err != nil {
		return "", err
	}

	entry := mongoEntry{ID: prepared.ID(), Rev: prepared.Rev(), Body: string(body)}
	filter := bson.D{{Key: "_id", Value: entry.ID}}
	if exists {
		// Guard against a concurrent writer replacing the revision we read.
		filter = append(filter, bson.E{Key: "rev", Value: rev})
	}
	res, err := d.coll.ReplaceOne(ctx, filter, entry, options.Replace().SetUpsert(!exists))
	if mongo.IsDuplicateKeyError(err) {
		return "", ErrConflict
	}
	if err != nil {
		return "", NewStorageError("mongo", "put", err)
	}
	if exists && res.MatchedCount == 0 {
		return "", ErrConflict
	}
	return entry.Rev, nil
}

// BulkPut writes documents one by one; MongoDB has no cross-document
// transaction outside replica sets and none is needed here.
func (d *mongoDatabase) BulkPut(ctx context.Context, docs []Document, opts WriteOptions) ([]BulkResult, error) {
	results := make([]BulkResult, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rev, err := d.Put(ctx, doc, opts)
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			return nil, err
		}
		results[i] = BulkResult{ID: doc.ID(), Rev: rev, Err: err}
	}
	return results, nil
}

func (d *mongoDatabase) Delete(ctx context.Context, id, rev string) error {
	filter := bson.D{{Key: "_id", Value: id}}
	if rev != "" {
		filter = append(filter, bson.E{Key: "rev", Value: rev})
	}
	res, err := d.coll.DeleteOne(ctx, filter)
	if err != nil {
		return NewStorageError("mongo", "delete", err)
	}
	if res.DeletedCount == 1 {
		return nil
	}
	if _, exists, err := d.current(ctx, id); err != nil {
		return NewStorageError("mongo", "delete", err)
	} else if exists {
		return ErrConflict
	}
	return ErrNotFound
}

func (d *mongoDatabase) AllDocs(ctx context.Context, opts AllDocsOptions) ([]Document, error) {
	idFilter := bson.D{}
	if opts.StartAfter != "" {
		idFilter = append(idFilter, bson.E{Key: "$gt", Value: opts.StartAfter})
	}
	if opts.Prefix != "" {
		idFilter = append(idFilter, bson.E{Key: "$regex", Value: "^" + regexp.QuoteMeta(opts.Prefix)})
	}
	filter := bson.D{}
	if len(idFilter) > 0 {
		filter = bson.D{{Key: "_id", Value: idFilter}}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := d.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, NewStorageError("mongo", "all_docs", err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var entry mongoEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, NewStorageError("mongo", "all_docs", err)
		}
		doc, err := decode([]byte(entry.Body))
		if err != nil {
			return nil, NewStorageError("mongo", "all_docs", fmt.Errorf("document %s: %w", entry.ID, err))
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, NewStorageError("mongo", "all_docs", err)
	}
	return docs, nil
}

func (d *mongoDatabase) Info(ctx context.Context) (Info, error) {
	n, err := d.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return Info{}, NewStorageError("mongo", "info", err)
	}
	return Info{Name: d.name, DocCount: int(n)}, nil
}

// Close is a no-op; the client belongs to the store.
func (d *mongoDatabase) Close() error { return nil }
