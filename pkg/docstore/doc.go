// Package docstore provides the JSON document store that holds notebook
// projects, metadata and records.
//
// A Store opens named databases; each Database holds Documents keyed by
// "_id" and versioned by "_rev". Revisions have the form "<generation>-<hex>"
// and are regenerated on every write. A write to an existing document must
// carry its current revision unless WriteOptions.Force is set; otherwise
// ErrConflict is returned.
//
// # Backends
//
//   - memory: map-backed, for tests
//   - sqlite: modernc.org/sqlite ("sqlite") or mattn/go-sqlite3 ("sqlite3")
//   - postgres: pgx stdlib ("pgx") or lib/pq ("postgres")
//   - mysql: go-sql-driver/mysql
//   - bolt: bbolt with MessagePack values, one bucket per database
//   - mongo: one collection per database
//
// Use Open to build the backend named in config.StorageConfig:
//
//	store, err := docstore.Open(ctx, cfg.Storage)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	db, err := store.Open(ctx, "projects")
//	rev, err := db.Put(ctx, docstore.Document{"_id": "p1", "name": "Survey"}, docstore.WriteOptions{})
package docstore
