package backup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/telemetry/metrics"
	"faims3/conductor/pkg/telemetry/tracing"
)

// designPrefix marks design documents. They are created when a
// destination is bootstrapped and never restored.
const designPrefix = "_design"

// RestoreOptions controls which sections are restored and how.
type RestoreOptions struct {
	// Pattern is matched against each header's database name. Documents
	// of non-matching sections are dropped. Empty matches everything.
	Pattern string

	// Force overwrites existing documents. Otherwise a document whose id
	// already exists is counted as a conflict and left alone.
	Force bool

	// BatchSize is the number of documents buffered per bulk write.
	BatchSize int
}

// OptionsFromConfig returns the restore options of cfg.
func OptionsFromConfig(cfg config.RestoreConfig) RestoreOptions {
	return RestoreOptions{
		Pattern:   cfg.Pattern,
		Force:     cfg.Force,
		BatchSize: cfg.BatchSize,
	}
}

// RestoreStats summarizes one restore run.
type RestoreStats struct {
	Lines     int      `json:"lines"`
	Headers   int      `json:"headers"`
	Invalid   int      `json:"invalid"`
	Written   int      `json:"written"`
	Skipped   int      `json:"skipped"`
	Conflicts int      `json:"conflicts"`
	Failed    int      `json:"failed"`
	Databases []string `json:"databases"`
}

// Restorer replays backup files into the databases of a DatabaseResolver.
// A Restorer may be shared, but restores writing to the same databases
// must not run concurrently.
type Restorer struct {
	resolver  DatabaseResolver
	pattern   *regexp.Regexp
	force     bool
	batchSize int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewRestorer creates a restorer. collector may be nil.
func NewRestorer(resolver DatabaseResolver, opts RestoreOptions, collector *metrics.Collector) (*Restorer, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = config.DefaultRestorePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid restore pattern %q: %w", pattern, err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultRestoreBatchSize
	}

	return &Restorer{
		resolver:  resolver,
		pattern:   re,
		force:     opts.Force,
		batchSize: batchSize,
		metrics:   collector,
		logger:    slog.Default().With("component", "notebook.backup.restore"),
	}, nil
}

// RestoreFile restores the backup at path. Nothing is written if the file
// cannot be opened.
func (r *Restorer) RestoreFile(ctx context.Context, path string) (RestoreStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return RestoreStats{}, fmt.Errorf("failed to open backup %s: %w", path, err)
	}
	defer f.Close()

	r.logger.InfoContext(ctx, "restoring backup file", "path", path)
	return r.Restore(ctx, f)
}

// Restore reads a JSONL backup from src, gzip-compressed or not, and
// writes its documents to the destinations named by its headers.
//
// Malformed lines and failed writes are logged and counted; they do not
// stop the restore. An error is returned only when src cannot be read or
// ctx is done. Restores are not transactional: documents written before
// an error stay written.
func (r *Restorer) Restore(ctx context.Context, src io.Reader) (stats RestoreStats, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "backup.restore")
	defer func() {
		tracing.SetRestoreResult(span, stats.Lines, stats.Written, stats.Skipped+stats.Conflicts)
		tracing.End(span, err)
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordRestore(status, time.Since(start))
	}()

	br, err := decompress(src)
	if err != nil {
		return stats, fmt.Errorf("failed to read backup: %w", err)
	}

	run := &restoreRun{
		Restorer:     r,
		stats:        &stats,
		bootstrapped: make(map[string]bool),
	}

	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return stats, notebook.NewRestoreError(lineNo, "", err)
		}

		data, readErr := br.ReadBytes('\n')
		if len(data) > 0 {
			stats.Lines++
			run.handle(ctx, lineNo, data)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			run.flush(ctx)
			return stats, notebook.NewRestoreError(lineNo, "", readErr)
		}
	}
	run.flush(ctx)

	r.logger.InfoContext(ctx, "restore completed",
		"lines", stats.Lines,
		"databases", len(stats.Databases),
		"written", stats.Written,
		"skipped", stats.Skipped,
		"conflicts", stats.Conflicts,
		"failed", stats.Failed,
		"invalid", stats.Invalid,
		"duration", time.Since(start),
	)
	return stats, nil
}

// decompress sniffs the gzip magic number and unwraps compressed input.
func decompress(src io.Reader) (*bufio.Reader, error) {
	br := bufio.NewReaderSize(src, 64*1024)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return bufio.NewReaderSize(zr, 64*1024), nil
	}
	return br, nil
}

// restoreRun is the per-call state of Restore. Only header lines change
// the destination.
type restoreRun struct {
	*Restorer
	stats *RestoreStats

	dest     docstore.Database
	destName string
	skipping bool

	batch        []docstore.Document
	batchLines   []int
	bootstrapped map[string]bool
}

func (run *restoreRun) handle(ctx context.Context, lineNo int, data []byte) {
	line, err := ParseLine(data)
	if err != nil {
		run.stats.Invalid++
		run.metrics.RecordRestoreLine("invalid")
		run.logger.WarnContext(ctx, "skipping malformed backup line",
			"error", notebook.NewRestoreError(lineNo, "", err),
		)
		return
	}
	run.metrics.RecordRestoreLine(line.Kind.String())

	switch line.Kind {
	case LineHeader:
		run.stats.Headers++
		run.switchTo(ctx, lineNo, line.Database)
	case LineDocument:
		run.add(ctx, lineNo, line)
	}
}

// switchTo flushes the pending batch and routes subsequent documents to
// the database named by a header.
func (run *restoreRun) switchTo(ctx context.Context, lineNo int, name string) {
	run.flush(ctx)

	run.dest = nil
	run.destName = name
	run.skipping = !run.pattern.MatchString(name)
	if run.skipping {
		run.logger.InfoContext(ctx, "skipping database", "database", name, "line", lineNo)
		return
	}

	kind, projectID := classify(name)
	if (kind == sectionMetadata || kind == sectionData) && projectID == "" {
		run.logger.WarnContext(ctx, "database name has no notebook id, skipping", "database", name, "line", lineNo)
		return
	}

	var (
		db  docstore.Database
		err error
	)
	switch kind {
	case sectionProjects:
		db, err = run.resolver.ProjectsDB(ctx)
	case sectionMetadata:
		db, err = run.resolver.MetadataDB(ctx, projectID)
	case sectionData:
		db, err = run.resolver.DataDB(ctx, projectID)
		if err == nil && !run.bootstrapped[db.Name()] {
			err = run.resolver.EnsureDesignDocuments(ctx, db)
			run.bootstrapped[db.Name()] = err == nil
		}
	default:
		run.logger.InfoContext(ctx, "unknown database, skipping", "database", name, "line", lineNo)
		return
	}
	if err != nil {
		run.logger.ErrorContext(ctx, "failed to open restore destination",
			"database", name,
			"error", notebook.NewRestoreError(lineNo, "", err),
		)
		return
	}

	run.dest = db
	run.stats.Databases = append(run.stats.Databases, db.Name())
	run.logger.InfoContext(ctx, "restoring database", "database", name, "destination", db.Name())
}

func (run *restoreRun) add(ctx context.Context, lineNo int, line Line) {
	if run.skipping || run.dest == nil || strings.HasPrefix(line.ID, designPrefix) {
		run.stats.Skipped++
		run.metrics.RecordRestoreDocuments("skipped", 1)
		return
	}

	doc := line.Doc.Clone()
	delete(doc, docstore.FieldRev)
	run.batch = append(run.batch, doc)
	run.batchLines = append(run.batchLines, lineNo)

	if len(run.batch) >= run.batchSize {
		run.flush(ctx)
	}
}

// flush writes the pending batch to the current destination.
func (run *restoreRun) flush(ctx context.Context) {
	if len(run.batch) == 0 {
		return
	}
	batch, lines := run.batch, run.batchLines
	run.batch, run.batchLines = nil, nil

	tracing.AddEvent(tracing.SpanFromContext(ctx), "restore.batch",
		attribute.String(tracing.AttrDatabase, run.dest.Name()),
		attribute.Int(tracing.AttrBatchSize, len(batch)),
	)

	results, err := run.dest.BulkPut(ctx, batch, docstore.WriteOptions{Force: run.force})
	if err != nil {
		run.stats.Failed += len(batch)
		run.metrics.RecordRestoreDocuments("failed", len(batch))
		run.logger.ErrorContext(ctx, "bulk write failed",
			"database", run.destName,
			"documents", len(batch),
			"error", notebook.NewRestoreError(lines[0], batch[0].ID(), err),
		)
		return
	}

	var written, conflicts, failed int
	for i, res := range results {
		switch {
		case res.Err == nil:
			written++
		case errors.Is(res.Err, docstore.ErrConflict):
			conflicts++
			run.logger.WarnContext(ctx, "document exists, skipping",
				"database", run.destName,
				"id", res.ID,
				"line", lines[i],
			)
		default:
			failed++
			run.logger.ErrorContext(ctx, "failed to restore document",
				"database", run.destName,
				"error", notebook.NewRestoreError(lines[i], res.ID, res.Err),
			)
		}
	}

	run.stats.Written += written
	run.stats.Conflicts += conflicts
	run.stats.Failed += failed
	run.metrics.RecordRestoreDocuments("written", written)
	run.metrics.RecordRestoreDocuments("conflict", conflicts)
	run.metrics.RecordRestoreDocuments("failed", failed)
}
