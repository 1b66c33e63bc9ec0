package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/notebook"
)

// AttachmentDocument is the stored form of an attachment's content.
type AttachmentDocument struct {
	ID          string `json:"_id"`
	RecordID    string `json:"record_id,omitempty"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// PutAttachment stores attachment content and returns a reference for a
// record's attachment field.
func (r *Repository) PutAttachment(ctx context.Context, projectID, recordID, contentType string, data []byte) (AttachmentRef, error) {
	db, err := r.DataDB(ctx, projectID)
	if err != nil {
		return AttachmentRef{}, err
	}

	att := AttachmentDocument{
		ID:          AttachmentPrefix + uuid.NewString(),
		RecordID:    recordID,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
	}
	doc, err := toDocument(att)
	if err != nil {
		return AttachmentRef{}, err
	}
	if _, err := db.Put(ctx, doc, docstore.WriteOptions{}); err != nil {
		return AttachmentRef{}, fmt.Errorf("failed to store attachment: %w", err)
	}
	return AttachmentRef{AttachmentID: att.ID, FileType: contentType}, nil
}

// storedAttachment reads attachment content lazily from a data database.
type storedAttachment struct {
	db  docstore.Database
	ref AttachmentRef
}

func (a *storedAttachment) MIMEType() string {
	return a.ref.FileType
}

func (a *storedAttachment) Open(ctx context.Context) (io.ReadCloser, error) {
	doc, err := a.db.Get(ctx, a.ref.AttachmentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", notebook.ErrAttachmentNotFound, a.ref.AttachmentID)
	}
	if err != nil {
		return nil, err
	}

	encoded, _ := doc["data"].(string)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("attachment %s: invalid content: %w", a.ref.AttachmentID, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
