package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"faims3/conductor/pkg/config"
)

// BoltStore is a Store backed by a single bbolt file with one bucket per
// logical database. Documents are encoded with MessagePack.
type BoltStore struct {
	bdb    *bbolt.DB
	logger *slog.Logger
}

// NewBoltStore opens (or creates) the bbolt file at cfg.Path.
func NewBoltStore(cfg config.BoltConfig) (*BoltStore, error) {
	if cfg.Path == "" {
		cfg.Path = config.DefaultBoltPath
	}
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = cfg.OpenTimeout

	bdb, err := bbolt.Open(cfg.Path, 0600, &bopt)
	if err != nil {
		return nil, NewStorageError("bolt", "open", err)
	}

	logger := slog.Default().With("component", "docstore.bolt")
	logger.Info("bbolt document store initialized", "path", cfg.Path)
	return &BoltStore{bdb: bdb, logger: logger}, nil
}

// Open returns the named database, creating its bucket if needed.
func (s *BoltStore) Open(ctx context.Context, name string) (Database, error) {
	err := s.bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, NewStorageError("bolt", "open", err)
	}
	return &boltDatabase{store: s, name: name}, nil
}

// List returns the bucket names in key order.
func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		return btx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, NewStorageError("bolt", "list", err)
	}
	return names, nil
}

// Ping checks that the file is still open.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := s.bdb.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return NewStorageError("bolt", "ping", err)
	}
	return nil
}

// Close closes the bbolt file.
func (s *BoltStore) Close() error {
	if err := s.bdb.Close(); err != nil {
		return NewStorageError("bolt", "close", err)
	}
	return nil
}

type boltDatabase struct {
	store *BoltStore
	name  string
}

func (d *boltDatabase) Name() string { return d.name }

func (d *boltDatabase) bucket(btx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := btx.Bucket([]byte(d.name))
	if b == nil {
		return nil, fmt.Errorf("database %q: %w", d.name, ErrNotFound)
	}
	return b, nil
}

func (d *boltDatabase) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := d.store.bdb.View(func(btx *bbolt.Tx) error {
		b, err := d.bucket(btx)
		if err != nil {
			return err
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		doc, err = decodeMsgpack(raw)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, NewStorageError("bolt", "get", err)
	}
	return doc, nil
}

func (d *boltDatabase) Put(ctx context.Context, doc Document, opts WriteOptions) (string, error) {
	results, err := d.BulkPut(ctx, []Document{doc}, opts)
	if err != nil {
		return "", err
	}
	return results[0].Rev, results[0].Err
}

func (d *boltDatabase) BulkPut(ctx context.Context, docs []Document, opts WriteOptions) ([]BulkResult, error) {
	results := make([]BulkResult, len(docs))
	err := d.store.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := d.bucket(btx)
		if err != nil {
			return err
		}
		for i, doc := range docs {
			results[i] = BulkResult{ID: doc.ID()}

			var current string
			exists := false
			if raw := b.Get([]byte(doc.ID())); raw != nil {
				existing, err := decodeMsgpack(raw)
				if err != nil {
					return err
				}
				current, exists = existing.Rev(), true
			}

			prepared, err := prepare(doc, current, exists, opts)
			if err != nil {
				results[i].Err = err
				continue
			}
			raw, err := msgpack.Marshal(map[string]any(prepared))
			if err != nil {
				results[i].Err = fmt.Errorf("%w: %v", ErrInvalidDocument, err)
				continue
			}
			if err := b.Put([]byte(prepared.ID()), raw); err != nil {
				return err
			}
			results[i].Rev = prepared.Rev()
		}
		return nil
	})
	if err != nil {
		return nil, NewStorageError("bolt", "bulk_put", err)
	}
	return results, nil
}

func (d *boltDatabase) Delete(ctx context.Context, id, rev string) error {
	err := d.store.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := d.bucket(btx)
		if err != nil {
			return err
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		if rev != "" {
			existing, err := decodeMsgpack(raw)
			if err != nil {
				return err
			}
			if existing.Rev() != rev {
				return ErrConflict
			}
		}
		return b.Delete([]byte(id))
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	if err != nil {
		return NewStorageError("bolt", "delete", err)
	}
	return nil
}

func (d *boltDatabase) AllDocs(ctx context.Context, opts AllDocsOptions) ([]Document, error) {
	var docs []Document
	err := d.store.bdb.View(func(btx *bbolt.Tx) error {
		b, err := d.bucket(btx)
		if err != nil {
			return err
		}
		c := b.Cursor()

		var k, v []byte
		switch {
		case opts.StartAfter != "" && opts.StartAfter >= opts.Prefix:
			k, v = c.Seek([]byte(opts.StartAfter))
			if k != nil && bytes.Equal(k, []byte(opts.StartAfter)) {
				k, v = c.Next()
			}
		case opts.Prefix != "":
			k, v = c.Seek([]byte(opts.Prefix))
		default:
			k, v = c.First()
		}

		for ; k != nil; k, v = c.Next() {
			if opts.Prefix != "" && !strings.HasPrefix(string(k), opts.Prefix) {
				break
			}
			doc, err := decodeMsgpack(v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			if opts.Limit > 0 && len(docs) == opts.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewStorageError("bolt", "all_docs", err)
	}
	return docs, nil
}

func (d *boltDatabase) Info(ctx context.Context) (Info, error) {
	info := Info{Name: d.name}
	err := d.store.bdb.View(func(btx *bbolt.Tx) error {
		b, err := d.bucket(btx)
		if err != nil {
			return err
		}
		info.DocCount = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return Info{}, NewStorageError("bolt", "info", err)
	}
	return info, nil
}

// Close is a no-op; the file belongs to the store.
func (d *boltDatabase) Close() error { return nil }

// decodeMsgpack decodes a stored document. Loose interface decoding widens
// integers to int64 and floats to float64.
func decodeMsgpack(raw []byte) (Document, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(raw))
	dec.UseLooseInterfaceDecoding(true)

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return Document(m), nil
}
