package export

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/semaphore"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/telemetry/metrics"
	"faims3/conductor/pkg/telemetry/tracing"
)

// ZipExporter streams the attachments of a record source as a ZIP archive.
type ZipExporter struct {
	level    int
	maxReads int64
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewZipExporter creates a ZIP exporter. collector may be nil.
func NewZipExporter(cfg config.ExportConfig, collector *metrics.Collector) *ZipExporter {
	level := cfg.ZipCompressionLevel
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = config.DefaultZipCompressionLevel
	}
	maxReads := cfg.MaxConcurrentReads
	if maxReads <= 0 {
		maxReads = config.DefaultMaxConcurrentReads
	}
	return &ZipExporter{
		level:    level,
		maxReads: int64(maxReads),
		metrics:  collector,
		logger:   slog.Default().With("component", "notebook.export.zip"),
	}
}

// appendRequest asks the archive goroutine to write one entry.
type appendRequest struct {
	name     string
	modified time.Time
	data     []byte
}

// zipRun is the state of one Export call.
//
// Every scheduled attachment increments requested; every finished one
// (written, missing or failed) increments completed. Once the iterator is
// exhausted and the two counts match, ready is closed exactly once.
type zipRun struct {
	zw      *zip.Writer
	jobs    chan appendRequest
	ready   chan struct{}
	once    sync.Once
	logger  *slog.Logger
	metrics *metrics.Collector

	mu          sync.Mutex
	requested   int
	completed   int
	exhausted   bool
	dataWritten bool
	entries     int
	missing     int
	folders     map[string]int
	fatal       error
}

func (r *zipRun) request() {
	r.mu.Lock()
	r.requested++
	r.mu.Unlock()
}

// complete records one finished attachment and re-checks the finalize
// predicate.
func (r *zipRun) complete(written, missing bool) {
	r.mu.Lock()
	r.completed++
	if written {
		r.entries++
	}
	if missing {
		r.missing++
	}
	r.mu.Unlock()

	switch {
	case written:
		r.metrics.RecordZipEntry("written")
	case missing:
		r.metrics.RecordZipEntry("missing")
	default:
		r.metrics.RecordZipEntry("failed")
	}
	r.check()
}

// exhaust marks the iterator finished. The check that follows is the
// zero/zero case: with nothing requested no completion will ever arrive.
func (r *zipRun) exhaust() {
	r.mu.Lock()
	r.exhausted = true
	r.mu.Unlock()
	r.check()
}

func (r *zipRun) check() {
	r.mu.Lock()
	finished := r.exhausted && r.requested == r.completed
	r.mu.Unlock()
	if finished {
		r.once.Do(func() { close(r.ready) })
	}
}

func (r *zipRun) fail(err error) {
	r.mu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.mu.Unlock()
}

func (r *zipRun) failed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// enqueue hands a read attachment to the archive goroutine.
func (r *zipRun) enqueue(req appendRequest) {
	r.mu.Lock()
	r.dataWritten = true
	r.mu.Unlock()
	r.jobs <- req
}

// archive owns the zip writer until jobs is closed.
func (r *zipRun) archive(done chan<- struct{}) {
	defer close(done)
	for req := range r.jobs {
		if r.failed() != nil {
			r.complete(false, false)
			continue
		}
		err := r.writeEntry(req)
		if err != nil {
			r.logger.Error("failed to write archive entry", "name", req.name, "error", err)
			r.fail(err)
		} else {
			r.mu.Lock()
			r.folders[path.Dir(req.name)]++
			r.mu.Unlock()
		}
		r.complete(err == nil, false)
	}
}

func (r *zipRun) writeEntry(req appendRequest) error {
	f, err := r.zw.CreateHeader(&zip.FileHeader{
		Name:     req.name,
		Method:   zip.Deflate,
		Modified: req.modified,
	})
	if err != nil {
		return err
	}
	_, err = f.Write(req.data)
	return err
}

// Export writes every attachment referenced by the records of it into a ZIP
// archive on w.
//
// Attachments are read concurrently and appended as they arrive, so entry
// order is not iteration order. Names are allocated in iteration order and
// match the names a CSV export of the same records would reference. Missing
// attachments are logged and skipped; any other read or write error aborts
// the archive. When no attachment was written nothing is written to w.
//
// With WithFullArchive the archive also holds GeoJSON and KML files of the
// form's spatial fields and an RO-Crate metadata file, and is written even
// when the records carry no attachments.
func (e *ZipExporter) Export(ctx context.Context, it notebook.RecordIterator, w io.Writer, opts ...ExportOption) (stats ExportStats, err error) {
	o := applyOptions(opts)
	start := time.Now()
	format := "zip"
	if o.fullSpec != nil {
		format = "full"
	}

	ctx, span := tracing.Start(ctx, "export."+format, tracing.NotebookAttributes(o.notebookID, o.form)...)
	defer func() {
		tracing.SetExportResult(span, format, stats.Features, stats.Entries, stats.Missing)
		tracing.End(span, err)
		e.metrics.RecordExport(format, exportStatus(err), time.Since(start), stats.Features)
	}()

	logger := e.logger.With("notebook_id", o.notebookID, "form", o.form)

	hridField := o.hridField
	var full *fullArchive
	if o.fullSpec != nil {
		hridField = resolveHRIDField(o.fullSpec, o.form, o.hridField)
		full, err = newFullArchive(o.fullSpec, o.notebookID, o.form, hridField, logger)
		if err != nil {
			return stats, notebook.NewExportError(format, o.notebookID, o.form, err)
		}
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, e.level)
	})

	run := &zipRun{
		zw:      zw,
		jobs:    make(chan appendRequest),
		ready:   make(chan struct{}),
		logger:  logger,
		metrics: e.metrics,
		folders: make(map[string]int),
	}
	archiveDone := make(chan struct{})
	go run.archive(archiveDone)

	sem := semaphore.NewWeighted(e.maxReads)
	registry := NewFilenameRegistry()

records:
	for run.failed() == nil {
		rec, done, err := it.Next(ctx)
		if err != nil {
			run.fail(err)
			break
		}
		if done {
			break
		}

		if full != nil {
			full.add(ctx, rec)
		}

		hrid := notebook.ResolveHRID(rec, hridField)
		for _, fieldID := range sortedKeys(rec.Data) {
			for _, att := range Attachments(rec.Data[fieldID]) {
				name := registry.Allocate(fieldID, hrid, att.MIMEType())

				// The semaphore bounds reads plus appends waiting for the
				// archive goroutine.
				if err := sem.Acquire(ctx, 1); err != nil {
					run.fail(err)
					break records
				}
				run.request()
				go readAttachment(ctx, run, sem, att, appendRequest{name: name, modified: rec.Updated})
			}
		}
	}

	run.exhaust()
	<-run.ready
	close(run.jobs)
	<-archiveDone

	run.mu.Lock()
	stats = ExportStats{Requested: run.requested, Entries: run.entries, Missing: run.missing}
	dataWritten := run.dataWritten
	run.mu.Unlock()

	if fatal := run.failed(); fatal != nil {
		logger.ErrorContext(ctx, "ZIP export aborted", "error", fatal, "entries", stats.Entries)
		return stats, notebook.NewExportError(format, o.notebookID, o.form, fatal)
	}

	if full != nil {
		if err := full.finish(run, time.Now()); err != nil {
			return stats, notebook.NewExportError(format, o.notebookID, o.form, err)
		}
		stats.Features = full.features
		dataWritten = true
	}

	if !dataWritten {
		logger.InfoContext(ctx, "ZIP export aborted, no attachments",
			"requested", stats.Requested,
			"missing", stats.Missing,
		)
		return stats, nil
	}

	if err := zw.Close(); err != nil {
		return stats, notebook.NewExportError(format, o.notebookID, o.form, err)
	}

	logger.InfoContext(ctx, "ZIP export completed",
		"format", format,
		"entries", stats.Entries,
		"missing", stats.Missing,
		"features", stats.Features,
		"duration", time.Since(start),
	)
	return stats, nil
}

// readAttachment reads one attachment fully and passes it to the archive
// goroutine.
func readAttachment(ctx context.Context, run *zipRun, sem *semaphore.Weighted, att notebook.Attachment, req appendRequest) {
	defer sem.Release(1)

	data, err := readAll(ctx, att)
	switch {
	case err == nil:
		req.data = data
		run.enqueue(req)
	case isMissing(err):
		run.logger.WarnContext(ctx, "attachment not found, skipping", "name", req.name, "error", err)
		run.complete(false, true)
	default:
		run.logger.ErrorContext(ctx, "failed to read attachment", "name", req.name, "error", err)
		run.fail(err)
		run.complete(false, false)
	}
}

func readAll(ctx context.Context, att notebook.Attachment) ([]byte, error) {
	rc, err := att.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isMissing(err error) bool {
	return errors.Is(err, notebook.ErrAttachmentNotFound) || errors.Is(err, fs.ErrNotExist)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
