package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"faims3/conductor/pkg/notebook/backup"
	"faims3/conductor/pkg/telemetry/metrics"
)

// BackupHandler serves GET /api/backup[?database=<name>...] as a JSONL
// dump.
type BackupHandler struct {
	dumper *backup.Dumper
	logger *slog.Logger
}

// NewBackupHandler creates a backup handler.
func NewBackupHandler(dumper *backup.Dumper) *BackupHandler {
	return &BackupHandler{
		dumper: dumper,
		logger: slog.Default().With("component", "server.backup"),
	}
}

// ServeHTTP implements http.Handler.
func (h *BackupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := []backup.DumpOption{backup.WithTrigger("http")}
	if names := r.URL.Query()["database"]; len(names) > 0 {
		opts = append(opts, backup.WithDatabases(names...))
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename=conductor-backup.jsonl")
	tw := &trackingWriter{ResponseWriter: w}

	if _, err := h.dumper.Dump(r.Context(), tw, opts...); err != nil {
		if !tw.started() {
			writeError(w, r, statusFor(err), err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "backup failed mid-stream", "error", err, "bytes", tw.n)
	}
}

// RestoreHandler serves POST /api/restore. The backup is either the raw
// request body or the "backup" part of a multipart form. Query parameters
// pattern, force and batch_size override the configured defaults.
//
// Restores are serialized: a second request waits for the first, and for
// any other restore holding the same lock.
type RestoreHandler struct {
	resolver backup.DatabaseResolver
	defaults backup.RestoreOptions
	maxBytes int64
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu *sync.Mutex
}

// NewRestoreHandler creates a restore handler. collector may be nil. lock
// is shared with other restore paths of the process; nil serializes HTTP
// restores only.
func NewRestoreHandler(resolver backup.DatabaseResolver, defaults backup.RestoreOptions, maxBytes int64, collector *metrics.Collector, lock *sync.Mutex) *RestoreHandler {
	if lock == nil {
		lock = new(sync.Mutex)
	}
	return &RestoreHandler{
		resolver: resolver,
		defaults: defaults,
		maxBytes: maxBytes,
		metrics:  collector,
		logger:   slog.Default().With("component", "server.restore"),
		mu:       lock,
	}
}

// ServeHTTP implements http.Handler.
func (h *RestoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts, err := h.options(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	restorer, err := backup.NewRestorer(h.resolver, opts, h.metrics)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	body, err := backupBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	stats, err := restorer.Restore(r.Context(), body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "restore aborted", "error", err, "written", stats.Written)
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, r, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *RestoreHandler) options(r *http.Request) (backup.RestoreOptions, error) {
	opts := h.defaults
	q := r.URL.Query()
	if pattern := q.Get("pattern"); pattern != "" {
		opts.Pattern = pattern
	}
	if force := q.Get("force"); force != "" {
		v, err := strconv.ParseBool(force)
		if err != nil {
			return opts, fmt.Errorf("invalid force value %q", force)
		}
		opts.Force = v
	}
	if size := q.Get("batch_size"); size != "" {
		v, err := strconv.Atoi(size)
		if err != nil || v <= 0 {
			return opts, fmt.Errorf("invalid batch_size value %q", size)
		}
		opts.BatchSize = v
	}
	return opts, nil
}

// backupBody returns the backup stream of a restore request.
func backupBody(r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errors.New(`multipart body has no "backup" part`)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		if part.FormName() == "backup" {
			return part, nil
		}
		part.Close()
	}
}
