package docstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"faims3/conductor/pkg/config"
)

// NewSQLiteStore opens a SQLite-backed store. The "sqlite" driver is the
// pure Go modernc implementation, "sqlite3" the cgo one.
func NewSQLiteStore(cfg config.SQLiteConfig) (*SQLStore, error) {
	if cfg.Driver == "" {
		cfg.Driver = config.DefaultSQLiteDriver
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultSQLitePath
	}

	db, err := sql.Open(cfg.Driver, sqliteDSN(cfg))
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, NewStorageError("sqlite", "set_busy_timeout", err)
	}

	s, err := newSQLStore(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite document store initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

// sqliteDSN carries the busy timeout in the DSN so every pooled connection
// gets it, not only the one the pragma ran on.
func sqliteDSN(cfg config.SQLiteConfig) string {
	ms := cfg.BusyTimeout.Milliseconds()
	if ms <= 0 {
		return cfg.Path
	}
	sep := "?"
	if strings.Contains(cfg.Path, "?") {
		sep = "&"
	}
	if cfg.Driver == "sqlite3" {
		return fmt.Sprintf("%s%s_busy_timeout=%d", cfg.Path, sep, ms)
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", cfg.Path, sep, ms)
}
