package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/docstore"
)

// Database names.
const (
	ProjectsDBName = "projects"
	dbSeparator    = "||"
)

// MetadataDBName returns the metadata database name of a notebook.
func MetadataDBName(projectID string) string {
	return "metadata" + dbSeparator + projectID
}

// DataDBName returns the data database name of a notebook.
func DataDBName(projectID string) string {
	return "data" + dbSeparator + projectID
}

// Repository reads and writes notebooks stored in a docstore.Store: one
// shared projects database plus a metadata and a data database per
// notebook.
type Repository struct {
	store     docstore.Store
	batchSize int
	logger    *slog.Logger

	mu  sync.Mutex
	dbs map[string]docstore.Database
}

// New creates a repository over store.
func New(store docstore.Store, cfg config.ExportConfig) *Repository {
	batchSize := cfg.IteratorBatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultIteratorBatchSize
	}
	return &Repository{
		store:     store,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "notebook.repository"),
		dbs:       make(map[string]docstore.Database),
	}
}

// Store returns the underlying document store.
func (r *Repository) Store() docstore.Store {
	return r.store
}

func (r *Repository) open(ctx context.Context, name string) (docstore.Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[name]; ok {
		return db, nil
	}
	db, err := r.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", name, err)
	}
	r.dbs[name] = db
	return db, nil
}

// ProjectsDB returns the projects directory database.
func (r *Repository) ProjectsDB(ctx context.Context) (docstore.Database, error) {
	return r.open(ctx, ProjectsDBName)
}

// MetadataDB returns the metadata database of a notebook, creating it if
// needed.
func (r *Repository) MetadataDB(ctx context.Context, projectID string) (docstore.Database, error) {
	return r.open(ctx, MetadataDBName(projectID))
}

// DataDB returns the data database of a notebook, creating it if needed.
func (r *Repository) DataDB(ctx context.Context, projectID string) (docstore.Database, error) {
	return r.open(ctx, DataDBName(projectID))
}
