package docstore

import (
	"context"
	"fmt"

	"faims3/conductor/pkg/config"
)

// Open creates the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLite)
	case "postgres":
		return NewPostgresStore(ctx, cfg.Postgres)
	case "mysql":
		return NewMySQLStore(ctx, cfg.MySQL)
	case "bolt":
		return NewBoltStore(cfg.Bolt)
	case "mongo":
		return NewMongoStore(ctx, cfg.Mongo)
	default:
		return nil, NewStorageError(cfg.Backend, "open", fmt.Errorf("unknown storage backend %q", cfg.Backend))
	}
}
