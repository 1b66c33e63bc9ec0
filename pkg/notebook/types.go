package notebook

import (
	"bytes"
	"context"
	"io"
	"time"
)

// SemanticType is the "type-returned" tag of a UI spec field.
type SemanticType string

// Semantic types with special export handling.
const (
	TypeString       SemanticType = "faims-core::String"
	TypeInteger      SemanticType = "faims-core::Integer"
	TypeDate         SemanticType = "faims-core::Date"
	TypeAttachments  SemanticType = "faims-attachment::Files"
	TypeGeoPoint     SemanticType = "faims-pos::Location"
	TypeRelationship SemanticType = "faims-core::Relationship"
	TypeJSON         SemanticType = "faims-core::JSON"
)

// Widgets (component names) with special handling.
const (
	// WidgetTemplatedString renders a record's HRID from a template.
	WidgetTemplatedString = "TemplatedStringField"

	// WidgetMap captures GeoJSON features drawn on a map.
	WidgetMap = "MapFormField"
)

// FieldDescriptor describes one field of a form. View is the form page
// listing the field.
type FieldDescriptor struct {
	ID     string
	Type   SemanticType
	Widget string
	View   string
}

// IsSpatial reports whether the field holds GeoJSON geometry: a location
// field, or a JSON field drawn on a map.
func (f FieldDescriptor) IsSpatial() bool {
	return f.Type == TypeGeoPoint || (f.Type == TypeJSON && f.Widget == WidgetMap)
}

// Record is one notebook record at a single revision.
type Record struct {
	RecordID   string
	RevisionID string
	Type       string
	UpdatedBy  string
	Updated    time.Time
	Data       map[string]any
}

// Attachment is a binary value of an attachment field.
type Attachment interface {
	MIMEType() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Relationship links a record to another record.
type Relationship struct {
	RecordID              string   `json:"record_id"`
	RelationTypeVocabPair []string `json:"relation_type_vocabPair,omitempty"`
}

// RecordIterator yields the records of one form. Next returns done=true,
// with a nil record, once exhausted.
type RecordIterator interface {
	Next(ctx context.Context) (rec *Record, done bool, err error)
}

// UISpecAccessor resolves form fields. FieldsForForm returns an error
// matching ErrFormNotFound for unknown forms.
type UISpecAccessor interface {
	FieldsForForm(form string) ([]FieldDescriptor, error)
}

// HRIDFieldProvider is implemented by UI specs that can name the field
// holding a form's human-readable identifier.
type HRIDFieldProvider interface {
	HRIDField(form string) string
}

// BytesAttachment is an in-memory Attachment.
type BytesAttachment struct {
	ContentType string
	Data        []byte
}

// MIMEType returns the content type.
func (a *BytesAttachment) MIMEType() string { return a.ContentType }

// Open returns a reader over the data.
func (a *BytesAttachment) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(a.Data)), nil
}

// SliceIterator iterates over a fixed slice of records.
type SliceIterator struct {
	records []*Record
	pos     int
}

// NewSliceIterator returns an iterator over records.
func NewSliceIterator(records ...*Record) *SliceIterator {
	return &SliceIterator{records: records}
}

// Next returns the next record.
func (it *SliceIterator) Next(ctx context.Context) (*Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.pos >= len(it.records) {
		return nil, true, nil
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, false, nil
}
