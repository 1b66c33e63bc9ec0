package backup

import (
	"context"
	"strings"

	"faims3/conductor/pkg/docstore"
)

// DatabaseResolver maps backup sections onto destination databases.
// repository.Repository implements it.
type DatabaseResolver interface {
	ProjectsDB(ctx context.Context) (docstore.Database, error)
	MetadataDB(ctx context.Context, projectID string) (docstore.Database, error)
	DataDB(ctx context.Context, projectID string) (docstore.Database, error)

	// EnsureDesignDocuments bootstraps the indexes of a data database.
	EnsureDesignDocuments(ctx context.Context, db docstore.Database) error
}

// Section prefixes of backup database names.
const (
	projectsPrefix = "projects"
	metadataPrefix = "metadata"
	dataPrefix     = "data"
	nameSeparator  = "||"
)

// sectionKind classifies a backup database name.
type sectionKind int

const (
	sectionUnknown sectionKind = iota
	sectionProjects
	sectionMetadata
	sectionData
)

// classify returns the kind of a database name and, for notebook
// databases, the notebook id: the second "||"-separated segment.
func classify(name string) (sectionKind, string) {
	switch {
	case strings.HasPrefix(name, projectsPrefix):
		return sectionProjects, ""
	case strings.HasPrefix(name, metadataPrefix):
		return sectionMetadata, notebookID(name)
	case strings.HasPrefix(name, dataPrefix):
		return sectionData, notebookID(name)
	default:
		return sectionUnknown, ""
	}
}

func notebookID(name string) string {
	parts := strings.Split(name, nameSeparator)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
