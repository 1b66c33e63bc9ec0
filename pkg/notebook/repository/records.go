package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/notebook"
)

// Document id prefixes in a data database.
const (
	RecordPrefix     = "rec-"
	AttachmentPrefix = "att-"
)

// recordFormatVersion marks documents written in the current record layout.
const recordFormatVersion = 1

// RecordDocument is the stored form of a record.
type RecordDocument struct {
	ID                  string         `json:"_id"`
	Rev                 string         `json:"_rev,omitempty"`
	RecordFormatVersion int            `json:"record_format_version"`
	Type                string         `json:"type"`
	RevisionID          string         `json:"revision_id"`
	Created             string         `json:"created,omitempty"`
	CreatedBy           string         `json:"created_by,omitempty"`
	Updated             string         `json:"updated"`
	UpdatedBy           string         `json:"updated_by"`
	Deleted             bool           `json:"deleted,omitempty"`
	Data                map[string]any `json:"data"`
}

// AttachmentRef is how a record's attachment field references stored
// attachment documents.
type AttachmentRef struct {
	AttachmentID string `json:"attachment_id"`
	FileType     string `json:"file_type"`
	Filename     string `json:"filename,omitempty"`
}

// PutRecord stores a record, assigning ids and timestamps that are unset.
func (r *Repository) PutRecord(ctx context.Context, projectID string, rec RecordDocument) (string, error) {
	db, err := r.DataDB(ctx, projectID)
	if err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = RecordPrefix + uuid.NewString()
	}
	if rec.RevisionID == "" {
		rec.RevisionID = "frev-" + uuid.NewString()
	}
	if rec.Updated == "" {
		rec.Updated = time.Now().UTC().Format(time.RFC3339Nano)
	}
	rec.RecordFormatVersion = recordFormatVersion

	doc, err := toDocument(rec)
	if err != nil {
		return "", err
	}
	if _, err := db.Put(ctx, doc, docstore.WriteOptions{Force: true}); err != nil {
		return "", fmt.Errorf("failed to store record %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Records returns an iterator over the live records of form, in id order.
// Unknown notebooks and forms fail before the iterator is returned.
func (r *Repository) Records(ctx context.Context, projectID, form string) (*RecordIterator, error) {
	spec, err := r.LoadUISpec(ctx, projectID)
	if err != nil {
		return nil, err
	}
	fields, err := spec.FieldsForForm(form)
	if err != nil {
		return nil, err
	}
	db, err := r.DataDB(ctx, projectID)
	if err != nil {
		return nil, err
	}

	attachmentFields := make(map[string]bool)
	for _, f := range fields {
		if f.Type == notebook.TypeAttachments {
			attachmentFields[f.ID] = true
		}
	}

	return &RecordIterator{
		db:               db,
		spec:             spec,
		form:             form,
		hridField:        spec.HRIDField(form),
		attachmentFields: attachmentFields,
		batchSize:        r.batchSize,
		repo:             r,
	}, nil
}

// CountRecords returns the number of live records of form, or of every
// form when form is empty.
func (r *Repository) CountRecords(ctx context.Context, projectID, form string) (int, error) {
	exists, err := r.NotebookExists(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", notebook.ErrNotebookNotFound, projectID)
	}
	db, err := r.DataDB(ctx, projectID)
	if err != nil {
		return 0, err
	}

	count := 0
	after := ""
	for {
		docs, err := db.AllDocs(ctx, docstore.AllDocsOptions{StartAfter: after, Prefix: RecordPrefix, Limit: r.batchSize})
		if err != nil {
			return 0, fmt.Errorf("failed to count records: %w", err)
		}
		if len(docs) == 0 {
			return count, nil
		}
		for _, doc := range docs {
			if deleted, _ := doc["deleted"].(bool); deleted {
				continue
			}
			if form == "" || doc["type"] == form {
				count++
			}
		}
		after = docs[len(docs)-1].ID()
	}
}

// RecordIterator pages through a data database in batches and yields the
// records of one form. It implements notebook.RecordIterator.
type RecordIterator struct {
	db               docstore.Database
	spec             *notebook.UISpec
	form             string
	hridField        string
	attachmentFields map[string]bool
	batchSize        int
	repo             *Repository

	buffer    []*notebook.Record
	after     string
	exhausted bool
}

// Spec returns the UI spec the iterator was resolved against.
func (it *RecordIterator) Spec() *notebook.UISpec {
	return it.spec
}

// HRIDField returns the form's HRID field, for passing to exporters.
func (it *RecordIterator) HRIDField() string {
	return it.hridField
}

// Next returns the next record of the form.
func (it *RecordIterator) Next(ctx context.Context) (*notebook.Record, bool, error) {
	for len(it.buffer) == 0 {
		if it.exhausted {
			return nil, true, nil
		}
		if err := it.fetch(ctx); err != nil {
			return nil, false, err
		}
	}
	rec := it.buffer[0]
	it.buffer = it.buffer[1:]
	return rec, false, nil
}

func (it *RecordIterator) fetch(ctx context.Context) error {
	docs, err := it.db.AllDocs(ctx, docstore.AllDocsOptions{
		StartAfter: it.after,
		Prefix:     RecordPrefix,
		Limit:      it.batchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch records: %w", err)
	}
	if len(docs) < it.batchSize {
		it.exhausted = true
	}
	if len(docs) == 0 {
		return nil
	}
	it.after = docs[len(docs)-1].ID()

	for _, doc := range docs {
		if doc["type"] != it.form {
			continue
		}
		var stored RecordDocument
		if err := convert(doc, &stored); err != nil {
			it.repo.logger.Warn("skipping malformed record", "id", doc.ID(), "error", err)
			continue
		}
		if stored.Deleted {
			continue
		}
		it.buffer = append(it.buffer, it.toRecord(stored))
	}
	return nil
}

func (it *RecordIterator) toRecord(stored RecordDocument) *notebook.Record {
	rec := &notebook.Record{
		RecordID:   stored.ID,
		RevisionID: stored.RevisionID,
		Type:       stored.Type,
		UpdatedBy:  stored.UpdatedBy,
		Data:       stored.Data,
	}
	if ts, err := time.Parse(time.RFC3339Nano, stored.Updated); err == nil {
		rec.Updated = ts
	} else if stored.Updated != "" {
		it.repo.logger.Debug("unparseable updated timestamp", "id", stored.ID, "updated", stored.Updated)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}

	for fieldID := range it.attachmentFields {
		if refs, ok := attachmentRefs(rec.Data[fieldID]); ok {
			atts := make([]notebook.Attachment, 0, len(refs))
			for _, ref := range refs {
				atts = append(atts, &storedAttachment{db: it.db, ref: ref})
			}
			rec.Data[fieldID] = atts
		}
	}
	return rec
}

// attachmentRefs decodes a field value holding attachment references.
func attachmentRefs(value any) ([]AttachmentRef, bool) {
	list, ok := value.([]any)
	if !ok {
		return nil, false
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, false
	}
	var refs []AttachmentRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, false
	}
	for _, ref := range refs {
		if ref.AttachmentID == "" {
			return nil, false
		}
	}
	return refs, true
}
