package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Reserved document members.
const (
	FieldID  = "_id"
	FieldRev = "_rev"
)

var (
	// ErrNotFound is returned when a document or database does not exist.
	ErrNotFound = errors.New("docstore: not found")

	// ErrConflict is returned when a write carries a stale or missing
	// revision for an existing document.
	ErrConflict = errors.New("docstore: document update conflict")

	// ErrInvalidDocument is returned for documents without an id.
	ErrInvalidDocument = errors.New("docstore: invalid document")
)

// Document is a JSON-shaped document. The "_id" member is its key and
// "_rev" its current revision.
type Document map[string]any

// ID returns the document id, or "" if absent.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Rev returns the document revision, or "" if absent.
func (d Document) Rev() string {
	rev, _ := d[FieldRev].(string)
	return rev
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// WriteOptions controls revision checking on writes.
type WriteOptions struct {
	// Force overwrites an existing document regardless of its revision.
	Force bool
}

// BulkResult is the outcome of one document in a BulkPut call.
type BulkResult struct {
	ID  string
	Rev string
	Err error
}

// AllDocsOptions pages through a database in id order.
type AllDocsOptions struct {
	// StartAfter excludes ids less than or equal to this key.
	StartAfter string

	// Prefix restricts the result to ids with this prefix.
	Prefix string

	// Limit caps the number of documents returned. Zero means no limit.
	Limit int
}

// Info describes a database.
type Info struct {
	Name     string `json:"db_name"`
	DocCount int    `json:"doc_count"`
}

// Database is a named collection of documents.
type Database interface {
	// Name returns the database name.
	Name() string

	// Get returns the document with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Put writes a document and returns its new revision.
	Put(ctx context.Context, doc Document, opts WriteOptions) (string, error)

	// BulkPut writes many documents. Per-document failures are reported in
	// the results; the error is only set when the whole batch failed.
	BulkPut(ctx context.Context, docs []Document, opts WriteOptions) ([]BulkResult, error)

	// Delete removes a document. An empty rev skips the revision check.
	Delete(ctx context.Context, id, rev string) error

	// AllDocs returns documents ordered by id.
	AllDocs(ctx context.Context, opts AllDocsOptions) ([]Document, error)

	// Info returns database statistics.
	Info(ctx context.Context) (Info, error)

	// Close releases resources held by the handle.
	Close() error
}

// Store opens named databases on one backend.
type Store interface {
	// Open returns the named database, creating it if needed.
	Open(ctx context.Context, name string) (Database, error)

	// List returns all database names in sorted order.
	List(ctx context.Context) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// NextRev returns the revision following prev: the generation is
// incremented and a fresh random suffix attached.
func NextRev(prev string) string {
	gen := 0
	if i := strings.IndexByte(prev, '-'); i > 0 {
		gen, _ = strconv.Atoi(prev[:i])
	}
	return fmt.Sprintf("%d-%s", gen+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// RevGeneration returns the numeric generation of a revision, or 0.
func RevGeneration(rev string) int {
	i := strings.IndexByte(rev, '-')
	if i <= 0 {
		return 0
	}
	gen, err := strconv.Atoi(rev[:i])
	if err != nil {
		return 0
	}
	return gen
}

// prepare validates doc against the current revision of the stored
// document and returns the copy to persist, stamped with a new revision.
func prepare(doc Document, current string, exists bool, opts WriteOptions) (Document, error) {
	if doc.ID() == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidDocument, FieldID)
	}
	if exists && !opts.Force && doc.Rev() != current {
		return nil, ErrConflict
	}
	out := doc.Clone()
	out[FieldRev] = NextRev(current)
	return out, nil
}

// encode marshals a prepared document.
func encode(doc Document) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return body, nil
}

// decode unmarshals a stored document body.
func decode(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// page applies AllDocsOptions to a sorted id list.
func page(ids []string, opts AllDocsOptions) []string {
	start := 0
	if opts.StartAfter != "" {
		start = sort.SearchStrings(ids, opts.StartAfter)
		if start < len(ids) && ids[start] == opts.StartAfter {
			start++
		}
	}
	var out []string
	for _, id := range ids[start:] {
		if opts.Prefix != "" && !strings.HasPrefix(id, opts.Prefix) {
			if id > opts.Prefix {
				break
			}
			continue
		}
		out = append(out, id)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}
