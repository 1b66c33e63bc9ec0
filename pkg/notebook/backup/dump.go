package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/telemetry/metrics"
	"faims3/conductor/pkg/telemetry/tracing"
)

// DumpStats summarizes one dump.
type DumpStats struct {
	Databases int `json:"databases"`
	Documents int `json:"documents"`
}

// DumpOption configures a single Dump call.
type DumpOption func(*dumpOptions)

type dumpOptions struct {
	databases []string
	trigger   string
}

// WithDatabases limits the dump to the named databases, in that order.
func WithDatabases(names ...string) DumpOption {
	return func(o *dumpOptions) {
		o.databases = names
	}
}

// WithTrigger labels the dump in metrics and traces: "manual", "scheduled"
// or "http".
func WithTrigger(trigger string) DumpOption {
	return func(o *dumpOptions) {
		o.trigger = trigger
	}
}

// headerLine and documentLine are the two line shapes of a backup file.
type headerLine struct {
	Type     string        `json:"type"`
	Database string        `json:"database"`
	Info     docstore.Info `json:"info"`
}

type documentLine struct {
	ID    string            `json:"id"`
	Key   string            `json:"key"`
	Value documentValue     `json:"value"`
	Doc   docstore.Document `json:"doc"`
}

type documentValue struct {
	Rev string `json:"rev"`
}

// Dumper writes databases of a store as a JSONL backup that Restorer reads.
type Dumper struct {
	store     docstore.Store
	blockSize int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewDumper creates a dumper over store. collector may be nil.
func NewDumper(store docstore.Store, cfg config.BackupConfig, collector *metrics.Collector) *Dumper {
	blockSize := cfg.DumpBlockSize
	if blockSize <= 0 {
		blockSize = config.DefaultDumpBlockSize
	}
	return &Dumper{
		store:     store,
		blockSize: blockSize,
		metrics:   collector,
		logger:    slog.Default().With("component", "notebook.backup.dump"),
	}
}

// Dump writes every database of the store, or those chosen with
// WithDatabases, to w. Each section is a header line followed by one line
// per document, design documents included.
func (d *Dumper) Dump(ctx context.Context, w io.Writer, opts ...DumpOption) (stats DumpStats, err error) {
	o := dumpOptions{trigger: "manual"}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	ctx, span := tracing.Start(ctx, "backup.dump", attribute.String(tracing.AttrBackupTrigger, o.trigger))
	defer func() {
		span.SetAttributes(attribute.Int(tracing.AttrDocuments, stats.Documents))
		tracing.End(span, err)
		status := "success"
		if err != nil {
			status = "error"
		}
		d.metrics.RecordBackupRun(o.trigger, status, time.Since(start))
	}()

	names := o.databases
	if len(names) == 0 {
		names, err = d.store.List(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to list databases: %w", err)
		}
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, name := range names {
		n, err := d.dumpDatabase(ctx, enc, name)
		stats.Documents += n
		if err != nil {
			return stats, err
		}
		stats.Databases++
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("failed to write backup: %w", err)
	}

	d.logger.InfoContext(ctx, "backup dump completed",
		"trigger", o.trigger,
		"databases", stats.Databases,
		"documents", stats.Documents,
		"duration", time.Since(start),
	)
	return stats, nil
}

func (d *Dumper) dumpDatabase(ctx context.Context, enc *json.Encoder, name string) (int, error) {
	db, err := d.store.Open(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to open database %s: %w", name, err)
	}
	defer db.Close()

	info, err := db.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read info of %s: %w", name, err)
	}
	if err := enc.Encode(headerLine{Type: headerType, Database: name, Info: info}); err != nil {
		return 0, fmt.Errorf("failed to write backup: %w", err)
	}

	count := 0
	after := ""
	for {
		docs, err := db.AllDocs(ctx, docstore.AllDocsOptions{StartAfter: after, Limit: d.blockSize})
		if err != nil {
			return count, fmt.Errorf("failed to read %s: %w", name, err)
		}
		for _, doc := range docs {
			line := documentLine{
				ID:    doc.ID(),
				Key:   doc.ID(),
				Value: documentValue{Rev: doc.Rev()},
				Doc:   doc,
			}
			if err := enc.Encode(line); err != nil {
				return count, fmt.Errorf("failed to write backup: %w", err)
			}
			count++
		}
		if len(docs) < d.blockSize {
			break
		}
		after = docs[len(docs)-1].ID()
	}

	d.logger.DebugContext(ctx, "database dumped", "database", name, "documents", count)
	return count, nil
}
