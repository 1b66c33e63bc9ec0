package export

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"time"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/telemetry/metrics"
	"faims3/conductor/pkg/telemetry/tracing"
)

// leadingColumns precede the field columns in every CSV export.
var leadingColumns = []string{"identifier", "record_id", "revision_id", "type", "updated_by", "updated"}

// CSVExporter streams the records of one form as CSV.
type CSVExporter struct {
	flushEvery int
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewCSVExporter creates a CSV exporter. collector may be nil.
func NewCSVExporter(cfg config.ExportConfig, collector *metrics.Collector) *CSVExporter {
	flushEvery := cfg.CSVFlushEvery
	if flushEvery <= 0 {
		flushEvery = config.DefaultCSVFlushEvery
	}
	return &CSVExporter{
		flushEvery: flushEvery,
		metrics:    collector,
		logger:     slog.Default().With("component", "notebook.export.csv"),
	}
}

// Export writes the records of form to w.
//
// The form's fields are resolved before anything is written, so an unknown
// form fails cleanly with an error matching notebook.ErrFormNotFound. The
// first record fixes the header; later rows are written in that column
// order, with empty cells for columns they lack. An empty iterator writes
// nothing.
func (e *CSVExporter) Export(ctx context.Context, spec notebook.UISpecAccessor, form string, it notebook.RecordIterator, w io.Writer, opts ...ExportOption) (stats ExportStats, err error) {
	o := applyOptions(opts)
	start := time.Now()

	ctx, span := tracing.Start(ctx, "export.csv", tracing.NotebookAttributes(o.notebookID, form)...)
	defer func() {
		tracing.SetExportResult(span, "csv", stats.Rows, 0, 0)
		tracing.End(span, err)
		e.metrics.RecordExport("csv", exportStatus(err), time.Since(start), stats.Rows)
	}()

	fields, err := spec.FieldsForForm(form)
	if err != nil {
		return stats, notebook.NewExportError("csv", o.notebookID, form, err)
	}
	hridField := resolveHRIDField(spec, form, o.hridField)

	logger := e.logger.With("notebook_id", o.notebookID, "form", form)
	registry := NewFilenameRegistry()
	cw := csv.NewWriter(w)

	var header []string
	var columns map[string]bool
	for {
		rec, done, err := it.Next(ctx)
		if err != nil {
			return stats, notebook.NewExportError("csv", o.notebookID, form, err)
		}
		if done {
			break
		}

		hrid := notebook.ResolveHRID(rec, hridField)
		row, missing := FormatRow(fields, rec.Data, hrid, registry)
		for _, fieldID := range missing {
			logger.WarnContext(ctx, "field missing from record data",
				"record_id", rec.RecordID,
				"field", fieldID,
			)
		}

		if header == nil {
			header = append(append([]string{}, leadingColumns...), row.Keys()...)
			columns = make(map[string]bool, row.Len())
			for _, k := range row.Keys() {
				columns[k] = true
			}
			if err := cw.Write(header); err != nil {
				return stats, notebook.NewExportError("csv", o.notebookID, form, err)
			}
		} else {
			for _, k := range row.Keys() {
				if !columns[k] {
					logger.DebugContext(ctx, "dropping column not in header",
						"record_id", rec.RecordID,
						"column", k,
					)
				}
			}
		}

		if err := cw.Write(recordCells(rec, hrid, header, row)); err != nil {
			return stats, notebook.NewExportError("csv", o.notebookID, form, err)
		}
		stats.Rows++

		if stats.Rows%e.flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return stats, notebook.NewExportError("csv", o.notebookID, form, err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, notebook.NewExportError("csv", o.notebookID, form, err)
	}

	logger.InfoContext(ctx, "CSV export completed",
		"rows", stats.Rows,
		"duration", time.Since(start),
	)
	return stats, nil
}

// recordCells lays out one CSV row in header order.
func recordCells(rec *notebook.Record, hrid string, header []string, row *Row) []string {
	cells := make([]string, 0, len(header))
	cells = append(cells,
		hrid,
		rec.RecordID,
		rec.RevisionID,
		rec.Type,
		rec.UpdatedBy,
		FormatTimestamp(rec.Updated),
	)
	for _, column := range header[len(leadingColumns):] {
		v, _ := row.Get(column)
		cells = append(cells, FormatCell(v))
	}
	return cells
}

func exportStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case notebook.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
