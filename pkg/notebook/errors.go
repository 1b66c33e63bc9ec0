package notebook

import (
	"errors"
	"fmt"
)

var (
	// ErrFormNotFound is returned when a form (viewset) is not in the UI spec.
	ErrFormNotFound = errors.New("form not found")

	// ErrNotebookNotFound is returned for unknown notebook ids.
	ErrNotebookNotFound = errors.New("notebook not found")

	// ErrAttachmentNotFound is returned when an attachment's content is gone.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrNoSpatialFields is returned when a spatial export is asked of a
	// form without location or map fields.
	ErrNoSpatialFields = errors.New("form has no spatial fields")
)

// ExportError represents a failed CSV or ZIP export.
type ExportError struct {
	Format     string // "csv", "zip", "full", "geojson" or "kml"
	NotebookID string // Notebook being exported, if known
	Form       string // Form being exported, if known
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.NotebookID != "" {
		return fmt.Sprintf("%s export failed [notebook=%s, form=%s]: %v", e.Format, e.NotebookID, e.Form, e.Cause)
	}
	if e.Form != "" {
		return fmt.Sprintf("%s export failed [form=%s]: %v", e.Format, e.Form, e.Cause)
	}
	return fmt.Sprintf("%s export failed: %v", e.Format, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format, notebookID, form string, cause error) *ExportError {
	return &ExportError{
		Format:     format,
		NotebookID: notebookID,
		Form:       form,
		Cause:      cause,
	}
}

// RestoreError represents a failure on one line of a backup file.
type RestoreError struct {
	Line  int    // 1-based line number
	DocID string // Document id, if the line parsed
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *RestoreError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("restore failed at line %d [id=%s]: %v", e.Line, e.DocID, e.Cause)
	}
	return fmt.Sprintf("restore failed at line %d: %v", e.Line, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RestoreError) Unwrap() error {
	return e.Cause
}

// NewRestoreError creates a new RestoreError.
func NewRestoreError(line int, docID string, cause error) *RestoreError {
	return &RestoreError{Line: line, DocID: docID, Cause: cause}
}

// IsNotFound reports whether err is one of the not-found kinds that map to
// a 404 before streaming starts.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFormNotFound) || errors.Is(err, ErrNotebookNotFound) || errors.Is(err, ErrNoSpatialFields)
}
