package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custom attribute keys use the "conductor.*" namespace.
const (
	// Notebook attributes
	AttrNotebookID = "conductor.notebook_id"
	AttrForm       = "conductor.form"

	// Export attributes
	AttrExportFormat = "conductor.export.format"
	AttrRows         = "conductor.export.rows"
	AttrZipEntries   = "conductor.export.zip_entries"
	AttrZipMissing   = "conductor.export.zip_missing"

	// Backup attributes
	AttrDatabase         = "conductor.backup.database"
	AttrLines            = "conductor.backup.lines"
	AttrDocumentsWritten = "conductor.backup.documents_written"
	AttrDocumentsSkipped = "conductor.backup.documents_skipped"
	AttrBatchSize        = "conductor.backup.batch_size"
	AttrDocuments        = "conductor.backup.documents"
	AttrBackupTrigger    = "conductor.backup.trigger"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// NotebookAttributes returns the attributes identifying a notebook form.
func NotebookAttributes(notebookID, form string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrNotebookID, notebookID)}
	if form != "" {
		attrs = append(attrs, attribute.String(AttrForm, form))
	}
	return attrs
}

// SetExportResult records the outcome counters of an export on span.
func SetExportResult(span trace.Span, format string, rows, entries, missing int) {
	span.SetAttributes(
		attribute.String(AttrExportFormat, format),
		attribute.Int(AttrRows, rows),
	)
	if format == "zip" {
		span.SetAttributes(
			attribute.Int(AttrZipEntries, entries),
			attribute.Int(AttrZipMissing, missing),
		)
	}
}

// SetRestoreResult records the outcome counters of a restore on span.
func SetRestoreResult(span trace.Span, lines, written, skipped int) {
	span.SetAttributes(
		attribute.Int(AttrLines, lines),
		attribute.Int(AttrDocumentsWritten, written),
		attribute.Int(AttrDocumentsSkipped, skipped),
	)
}

// AddEvent adds an event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
