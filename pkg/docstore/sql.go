package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// SQLStore is a Store over database/sql. All logical databases share one
// documents table keyed by (db, id).
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// newSQLStore wraps an opened *sql.DB, creates the schema and verifies its
// version.
func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		dialect: d,
		logger:  slog.Default().With("component", "docstore."+d.backend),
	}
	if err := s.initialize(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initialize(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return NewStorageError(s.dialect.backend, "create_schema", err)
		}
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.ExecContext(ctx, s.rebind(s.dialect.insertVersion), SchemaVersion); err != nil {
		return NewStorageError(s.dialect.backend, "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, getSchemaVersion).Scan(&version); err != nil {
		return NewStorageError(s.dialect.backend, "get_schema_version", err)
	}
	if int(version.Int64) != SchemaVersion {
		return NewStorageError(s.dialect.backend, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}

	s.logger.Debug("schema version verified", "version", version.Int64)
	return nil
}

// rebind rewrites "?" placeholders as $1, $2, ... when the dialect needs it.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open registers the named database and returns a handle to it.
func (s *SQLStore) Open(ctx context.Context, name string) (Database, error) {
	if _, err := s.db.ExecContext(ctx, s.rebind(s.dialect.registerDatabase), name, time.Now().UTC()); err != nil {
		return nil, NewStorageError(s.dialect.backend, "open", err)
	}
	return &sqlDatabase{store: s, name: name}, nil
}

// List returns all registered database names.
func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listDatabases)
	if err != nil {
		return nil, NewStorageError(s.dialect.backend, "list", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, NewStorageError(s.dialect.backend, "list", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(s.dialect.backend, "list", err)
	}
	return names, nil
}

// Ping verifies the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStorageError(s.dialect.backend, "ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	s.logger.Info("closing document store")
	if err := s.db.Close(); err != nil {
		return NewStorageError(s.dialect.backend, "close", err)
	}
	return nil
}

type sqlDatabase struct {
	store *SQLStore
	name  string
}

func (d *sqlDatabase) Name() string { return d.name }

func (d *sqlDatabase) backend() string { return d.store.dialect.backend }

func (d *sqlDatabase) Get(ctx context.Context, id string) (Document, error) {
	var rev, body string
	err := d.store.db.QueryRowContext(ctx, d.store.rebind(selectDocument), d.name, id).Scan(&rev, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStorageError(d.backend(), "get", err)
	}
	doc, err := decode([]byte(body))
	if err != nil {
		return nil, NewStorageError(d.backend(), "get", err)
	}
	return doc, nil
}

func (d *sqlDatabase) Put(ctx context.Context, doc Document, opts WriteOptions) (string, error) {
	results, err := d.BulkPut(ctx, []Document{doc}, opts)
	if err != nil {
		return "", err
	}
	return results[0].Rev, results[0].Err
}

// BulkPut writes the batch in one transaction. Revision conflicts and
// invalid documents are per-document results; a SQL failure rolls back the
// whole batch.
func (d *sqlDatabase) BulkPut(ctx context.Context, docs []Document, opts WriteOptions) ([]BulkResult, error) {
	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewStorageError(d.backend(), "begin", err)
	}
	defer tx.Rollback()

	lookup := d.store.rebind(selectRev + d.store.dialect.lockForUpdate)
	upsert := d.store.rebind(d.store.dialect.upsertDocument)

	results := make([]BulkResult, len(docs))
	for i, doc := range docs {
		results[i].ID = doc.ID()
		if doc.ID() == "" {
			results[i].Err = fmt.Errorf("%w: missing %s", ErrInvalidDocument, FieldID)
			continue
		}

		var current string
		exists := true
		err := tx.QueryRowContext(ctx, lookup, d.name, doc.ID()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return nil, NewStorageError(d.backend(), "bulk_put", err)
		}

		prepared, err := prepare(doc, current, exists, opts)
		if err != nil {
			results[i].Err = err
			continue
		}
		body, err := encode(prepared)
		if err != nil {
			results[i].Err = err
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, d.name, prepared.ID(), prepared.Rev(), string(body)); err != nil {
			return nil, NewStorageError(d.backend(), "bulk_put", err)
		}
		results[i].Rev = prepared.Rev()
	}

	if err := tx.Commit(); err != nil {
		return nil, NewStorageError(d.backend(), "commit", err)
	}
	return results, nil
}

func (d *sqlDatabase) Delete(ctx context.Context, id, rev string) error {
	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError(d.backend(), "begin", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, d.store.rebind(selectRev+d.store.dialect.lockForUpdate), d.name, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return NewStorageError(d.backend(), "delete", err)
	}
	if rev != "" && rev != current {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, d.store.rebind(deleteDocument), d.name, id); err != nil {
		return NewStorageError(d.backend(), "delete", err)
	}
	if err := tx.Commit(); err != nil {
		return NewStorageError(d.backend(), "commit", err)
	}
	return nil
}

func (d *sqlDatabase) AllDocs(ctx context.Context, opts AllDocsOptions) ([]Document, error) {
	query := `SELECT body FROM docstore_documents WHERE db = ?`
	args := []any{d.name}
	if opts.StartAfter != "" {
		query += ` AND id > ?`
		args = append(args, opts.StartAfter)
	}
	if opts.Prefix != "" {
		query += ` AND SUBSTR(id, 1, ?) = ?`
		args = append(args, utf8.RuneCountInString(opts.Prefix), opts.Prefix)
	}
	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := d.store.db.QueryContext(ctx, d.store.rebind(query), args...)
	if err != nil {
		return nil, NewStorageError(d.backend(), "all_docs", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, NewStorageError(d.backend(), "all_docs", err)
		}
		doc, err := decode([]byte(body))
		if err != nil {
			return nil, NewStorageError(d.backend(), "all_docs", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(d.backend(), "all_docs", err)
	}
	return docs, nil
}

func (d *sqlDatabase) Info(ctx context.Context) (Info, error) {
	var count int
	if err := d.store.db.QueryRowContext(ctx, d.store.rebind(countDocuments), d.name).Scan(&count); err != nil {
		return Info{}, NewStorageError(d.backend(), "info", err)
	}
	return Info{Name: d.name, DocCount: count}, nil
}

// Close is a no-op; the pool belongs to the store.
func (d *sqlDatabase) Close() error { return nil }
