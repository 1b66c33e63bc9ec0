package docstore

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/go-sql-driver/mysql"

	"faims3/conductor/pkg/config"
)

// NewMySQLStore opens a MySQL-backed store.
func NewMySQLStore(ctx context.Context, cfg config.MySQLConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, NewStorageError("mysql", "open", errors.New("dsn is required"))
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, NewStorageError("mysql", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewStorageError("mysql", "ping", err)
	}

	s, err := newSQLStore(db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("MySQL document store initialized")
	return s, nil
}
