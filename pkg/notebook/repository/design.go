package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"faims3/conductor/pkg/docstore"
)

// DesignPrefix marks design documents, which hold database index
// definitions rather than data.
const DesignPrefix = "_design/"

// dataDesignDocuments are written into every data database.
var dataDesignDocuments = []docstore.Document{
	{
		"_id":      DesignPrefix + "index",
		"language": "javascript",
		"views": map[string]any{
			"records": map[string]any{
				"map": "function (doc) { if (doc.record_format_version) emit(doc._id, doc.type); }",
			},
			"record_count": map[string]any{
				"map":    "function (doc) { if (doc.record_format_version && !doc.deleted) emit(doc.type, 1); }",
				"reduce": "_count",
			},
		},
	},
	{
		"_id":      DesignPrefix + "attachments",
		"language": "javascript",
		"views": map[string]any{
			"by_record": map[string]any{
				"map": "function (doc) { if (doc.content_type) emit(doc.record_id, doc.content_type); }",
			},
		},
	},
}

// EnsureDesignDocuments writes the data database design documents, leaving
// up-to-date copies untouched.
func (r *Repository) EnsureDesignDocuments(ctx context.Context, db docstore.Database) error {
	for _, want := range dataDesignDocuments {
		existing, err := db.Get(ctx, want.ID())
		switch {
		case errors.Is(err, docstore.ErrNotFound):
		case err != nil:
			return fmt.Errorf("failed to read design document %s: %w", want.ID(), err)
		case sameDesign(existing, want):
			continue
		}

		if _, err := db.Put(ctx, want, docstore.WriteOptions{Force: true}); err != nil {
			return fmt.Errorf("failed to write design document %s: %w", want.ID(), err)
		}
		r.logger.Debug("design document written", "database", db.Name(), "id", want.ID())
	}
	return nil
}

func sameDesign(existing, want docstore.Document) bool {
	a := existing.Clone()
	delete(a, docstore.FieldRev)
	b, err := roundTrip(want)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
