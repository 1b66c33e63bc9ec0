package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"faims3/conductor/pkg/notebook/export"
	"faims3/conductor/pkg/notebook/repository"
	"faims3/conductor/pkg/telemetry/logging"
)

// ExportHandler serves GET /api/notebooks/{id}/{file}, where file is
// "<view>.csv", "<view>.zip", "<view>.geojson" or "<view>.kml". A ZIP
// request with ?full=true gets the full archive of the view.
//
// Unknown notebooks and views, and spatial requests for a view without
// spatial fields, are answered with 404 before any output.
// Once streaming has started the status is fixed, so later failures are
// only logged and the client sees a truncated body.
type ExportHandler struct {
	repo    *repository.Repository
	csv     *export.CSVExporter
	zip     *export.ZipExporter
	spatial *export.SpatialExporter
	logger  *slog.Logger
}

// NewExportHandler creates an export handler.
func NewExportHandler(repo *repository.Repository, csv *export.CSVExporter, zip *export.ZipExporter, spatial *export.SpatialExporter) *ExportHandler {
	return &ExportHandler{
		repo:    repo,
		csv:     csv,
		zip:     zip,
		spatial: spatial,
		logger:  slog.Default().With("component", "server.export"),
	}
}

var exportExtensions = map[string]bool{".csv": true, ".zip": true, ".geojson": true, ".kml": true}

// ServeHTTP implements http.Handler.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	file := r.PathValue("file")
	ext := path.Ext(file)
	view := strings.TrimSuffix(file, ext)
	if view == "" || !exportExtensions[ext] {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown export %q", file))
		return
	}

	full := false
	if raw := r.URL.Query().Get("full"); raw != "" {
		var err error
		if full, err = strconv.ParseBool(raw); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid full value %q", raw))
			return
		}
		if full && ext != ".zip" {
			writeError(w, r, http.StatusBadRequest, "full is only supported for .zip exports")
			return
		}
	}

	ctx := logging.WithForm(logging.WithNotebook(r.Context(), notebookID), view)

	it, err := h.repo.Records(ctx, notebookID, view)
	if err != nil {
		h.logger.WarnContext(ctx, "export rejected", "error", err)
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	opts := []export.ExportOption{
		export.WithNotebookID(notebookID),
		export.WithForm(view),
		export.WithHRIDField(it.HRIDField()),
	}
	filename := notebookID + "-" + file
	if full {
		opts = append(opts, export.WithFullArchive(it.Spec()))
		filename = notebookID + "-" + view + "-full.zip"
	}
	tw := &trackingWriter{ResponseWriter: w}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	switch ext {
	case ".csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, err = h.csv.Export(ctx, it.Spec(), view, it, tw, opts...)
	case ".zip":
		w.Header().Set("Content-Type", "application/zip")
		_, err = h.zip.Export(ctx, it, tw, opts...)
	case ".geojson", ".kml":
		format := export.SpatialFormat(strings.TrimPrefix(ext, "."))
		w.Header().Set("Content-Type", format.ContentType())
		_, err = h.spatial.Export(ctx, it.Spec(), view, it, tw, format, opts...)
	}

	switch {
	case err != nil && !tw.started():
		writeError(w, r, statusFor(err), err.Error())
	case err != nil:
		h.logger.ErrorContext(ctx, "export failed mid-stream", "error", err, "bytes", tw.n)
	case ext == ".zip" && !tw.started():
		// No attachments: the archive was aborted rather than finalized empty.
		w.Header().Del("Content-Type")
		w.Header().Del("Content-Disposition")
		w.WriteHeader(http.StatusNoContent)
	}
}

// CountHandler serves GET /api/notebooks/{id}/count[?view=<form>].
type CountHandler struct {
	repo *repository.Repository
}

// NewCountHandler creates a record count handler.
func NewCountHandler(repo *repository.Repository) *CountHandler {
	return &CountHandler{repo: repo}
}

// CountResponse is the body of a record count.
type CountResponse struct {
	NotebookID string `json:"notebook_id"`
	View       string `json:"view,omitempty"`
	Count      int    `json:"count"`
}

// ServeHTTP implements http.Handler.
func (h *CountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	notebookID := r.PathValue("id")
	view := r.URL.Query().Get("view")

	count, err := h.repo.CountRecords(r.Context(), notebookID, view)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{NotebookID: notebookID, View: view, Count: count})
}

// NotebooksHandler serves GET /api/notebooks.
type NotebooksHandler struct {
	repo *repository.Repository
}

// NewNotebooksHandler creates a notebook listing handler.
func NewNotebooksHandler(repo *repository.Repository) *NotebooksHandler {
	return &NotebooksHandler{repo: repo}
}

// ServeHTTP implements http.Handler.
func (h *NotebooksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projects, err := h.repo.ListNotebooks(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	if projects == nil {
		projects = []repository.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}
