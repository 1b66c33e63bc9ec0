package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Documents are held encoded so callers
// never share maps with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	dbs    map[string]*memoryDatabase
	closed bool
	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dbs:    make(map[string]*memoryDatabase),
		logger: slog.Default().With("component", "docstore.memory"),
	}
}

// Open returns the named database, creating it if needed.
func (s *MemoryStore) Open(ctx context.Context, name string) (Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, NewStorageError("memory", "open", errors.New("store closed"))
	}
	db, ok := s.dbs[name]
	if !ok {
		db = &memoryDatabase{
			name: name,
			docs: make(map[string]memoryEntry),
		}
		s.dbs[name] = db
		s.logger.Debug("database created", "database", name)
	}
	return db, nil
}

// List returns all database names.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Ping reports an error once the store is closed.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return NewStorageError("memory", "ping", errors.New("store closed"))
	}
	return nil
}

// Close marks the store closed. Existing data is kept.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryEntry struct {
	rev  string
	body []byte
}

type memoryDatabase struct {
	name string
	mu   sync.RWMutex
	docs map[string]memoryEntry
}

func (d *memoryDatabase) Name() string { return d.name }

func (d *memoryDatabase) Get(ctx context.Context, id string) (Document, error) {
	d.mu.RLock()
	entry, ok := d.docs[id]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	doc, err := decode(entry.body)
	if err != nil {
		return nil, NewStorageError("memory", "get", err)
	}
	return doc, nil
}

func (d *memoryDatabase) Put(ctx context.Context, doc Document, opts WriteOptions) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putLocked(doc, opts)
}

func (d *memoryDatabase) putLocked(doc Document, opts WriteOptions) (string, error) {
	current, exists := d.docs[doc.ID()]
	prepared, err := prepare(doc, current.rev, exists, opts)
	if err != nil {
		return "", err
	}
	body, err := encode(prepared)
	if err != nil {
		return "", err
	}
	rev := prepared.Rev()
	d.docs[prepared.ID()] = memoryEntry{rev: rev, body: body}
	return rev, nil
}

func (d *memoryDatabase) BulkPut(ctx context.Context, docs []Document, opts WriteOptions) ([]BulkResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	results := make([]BulkResult, len(docs))
	for i, doc := range docs {
		rev, err := d.putLocked(doc, opts)
		results[i] = BulkResult{ID: doc.ID(), Rev: rev, Err: err}
	}
	return results, nil
}

func (d *memoryDatabase) Delete(ctx context.Context, id, rev string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.docs[id]
	if !ok {
		return ErrNotFound
	}
	if rev != "" && rev != current.rev {
		return ErrConflict
	}
	delete(d.docs, id)
	return nil
}

func (d *memoryDatabase) AllDocs(ctx context.Context, opts AllDocsOptions) ([]Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.docs))
	for id := range d.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	selected := page(ids, opts)
	out := make([]Document, 0, len(selected))
	for _, id := range selected {
		doc, err := decode(d.docs[id].body)
		if err != nil {
			return nil, NewStorageError("memory", "all_docs", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (d *memoryDatabase) Info(ctx context.Context) (Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Info{Name: d.name, DocCount: len(d.docs)}, nil
}

// Close is a no-op; the data belongs to the store.
func (d *memoryDatabase) Close() error { return nil }
