package docstore

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"faims3/conductor/pkg/config"
)

// NewPostgresStore opens a PostgreSQL-backed store through either the pgx
// stdlib driver ("pgx") or lib/pq ("postgres").
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, NewStorageError("postgres", "open", errors.New("dsn is required"))
	}
	if cfg.Driver == "" {
		cfg.Driver = config.DefaultPostgresDriver
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, NewStorageError("postgres", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewStorageError("postgres", "ping", err)
	}

	s, err := newSQLStore(db, postgresDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("PostgreSQL document store initialized", "driver", cfg.Driver)
	return s, nil
}
