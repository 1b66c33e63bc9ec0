package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/notebook/backup"
	"faims3/conductor/pkg/notebook/export"
	"faims3/conductor/pkg/notebook/repository"
	"faims3/conductor/pkg/server/handlers"
	"faims3/conductor/pkg/telemetry/health"
	"faims3/conductor/pkg/telemetry/metrics"
)

const testSpec = `{
  "fields": {
    "hrid": {"component-name": "TemplatedStringField", "type-returned": "faims-core::String"},
    "name": {"component-name": "TextField", "type-returned": "faims-core::String"},
    "photo": {"component-name": "TakePhoto", "type-returned": "faims-attachment::Files"},
    "loc": {"component-name": "TakePoint", "type-returned": "faims-pos::Location"}
  },
  "fviews": {"p1": {"fields": ["hrid", "name", "photo", "loc"]}, "s1": {"fields": ["name"]}},
  "viewsets": {"Survey": {"views": ["p1"], "hridField": "hrid"}, "Site": {"views": ["s1"]}}
}`

type testEnv struct {
	store       docstore.Store
	repo        *repository.Repository
	handler     http.Handler
	metrics     *metrics.Collector
	restoreLock *sync.Mutex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.Telemetry.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "test"}
	cfg.Server.MaxUploadBytes = 1 << 20

	store := docstore.NewMemoryStore()
	repo := repository.New(store, cfg.Export)
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	checker := health.New(0)
	checker.RegisterCheck("storage", health.PingCheck(store))
	restoreLock := new(sync.Mutex)

	srv := NewServer(cfg, Dependencies{
		Repository:  repo,
		CSV:         export.NewCSVExporter(cfg.Export, collector),
		Zip:         export.NewZipExporter(cfg.Export, collector),
		Spatial:     export.NewSpatialExporter(collector),
		Dumper:      backup.NewDumper(store, cfg.Backup, collector),
		Health:      checker,
		Metrics:     collector,
		RestoreLock: restoreLock,
	})
	return &testEnv{store: store, repo: repo, handler: srv.Handler(), metrics: collector, restoreLock: restoreLock}
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	spec, err := notebook.ParseUISpec([]byte(testSpec))
	if err != nil {
		t.Fatalf("ParseUISpec() failed: %v", err)
	}
	if err := e.repo.CreateNotebook(ctx, repository.Project{ID: "p1", Name: "Survey notebook"}, spec); err != nil {
		t.Fatalf("CreateNotebook() failed: %v", err)
	}
	ref, err := e.repo.PutAttachment(ctx, "p1", "rec-1", "image/png", []byte("PNG"))
	if err != nil {
		t.Fatalf("PutAttachment() failed: %v", err)
	}
	_, err = e.repo.PutRecord(ctx, "p1", repository.RecordDocument{
		ID:        "rec-1",
		Type:      "Survey",
		UpdatedBy: "alice",
		Data: map[string]any{
			"hrid":  "H-1",
			"name":  "first",
			"photo": []any{map[string]any{"attachment_id": ref.AttachmentID, "file_type": ref.FileType}},
			"loc": map[string]any{
				"type":     "Feature",
				"geometry": map[string]any{"type": "Point", "coordinates": []any{151.2, -33.8}},
			},
		},
	})
	if err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}
	if _, err := e.repo.PutRecord(ctx, "p1", repository.RecordDocument{ID: "rec-2", Type: "Site", Data: map[string]any{"name": "site"}}); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var body handlers.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return body
}

func TestServer_ExportCSV(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/Survey.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header and one record", len(rows))
	}
	if rows[0][0] != "identifier" || rows[1][0] != "H-1" || rows[1][1] != "rec-1" {
		t.Errorf("rows = %v", rows)
	}
	if !strings.Contains(strings.Join(rows[1], ","), "photo/H-1-photo.png") {
		t.Errorf("row does not reference the attachment: %v", rows[1])
	}
}

func TestServer_ExportErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown notebook", "/api/notebooks/nope/Survey.csv", http.StatusNotFound},
		{"unknown view", "/api/notebooks/p1/Missing.zip", http.StatusNotFound},
		{"unknown format", "/api/notebooks/p1/Survey.xlsx", http.StatusNotFound},
		{"no spatial fields", "/api/notebooks/p1/Site.geojson", http.StatusNotFound},
		{"invalid full", "/api/notebooks/p1/Survey.zip?full=maybe", http.StatusBadRequest},
		{"full on csv", "/api/notebooks/p1/Survey.csv?full=true", http.StatusBadRequest},
		{"count unknown notebook", "/api/notebooks/nope/count", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decodeError(t, rec)
			if body.Error == "" || body.RequestID == "" {
				t.Errorf("error body = %+v", body)
			}
			if rec.Header().Get("Content-Disposition") != "" {
				t.Error("error response carries Content-Disposition")
			}
		})
	}
}

func TestServer_ExportZip(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/Survey.zip", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid ZIP: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "photo/H-1-photo.png" {
		t.Fatalf("entries = %v", zr.File)
	}
	rc, _ := zr.File[0].Open()
	content, _ := io.ReadAll(rc)
	rc.Close()
	if string(content) != "PNG" {
		t.Errorf("content = %q", content)
	}
}

func TestServer_ExportZip_NoAttachments(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/Site.zip", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %d bytes, want none", rec.Body.Len())
	}
}

func TestServer_ExportSpatial(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		file        string
		contentType string
		contains    string
	}{
		{"Survey.geojson", "application/geo+json", `"coordinates":[151.2,-33.8]`},
		{"Survey.kml", "application/vnd.google-earth.kml+xml", "<coordinates>151.2,-33.8,0</coordinates>"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/"+tt.file, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "p1-"+tt.file) {
				t.Errorf("Content-Disposition = %q", cd)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body lacks %s:\n%s", tt.contains, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), "H-1") {
				t.Errorf("body lacks the record HRID:\n%s", rec.Body.String())
			}
		})
	}
}

func TestServer_ExportFullArchive(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/Survey.zip?full=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "p1-Survey-full.zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid ZIP: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"photo/H-1-photo.png", export.SpatialGeoJSONName, export.SpatialKMLName, export.MetadataName}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestServer_RestoreWaitsForSharedLock(t *testing.T) {
	env := newTestEnv(t)
	dump := "{\"type\":\"header\",\"database\":\"data||p9\"}\n{\"id\":\"rec-1\",\"doc\":{\"_id\":\"rec-1\"}}\n"

	env.restoreLock.Lock()
	done := make(chan int, 1)
	go func() {
		done <- env.do(t, httptest.NewRequest(http.MethodPost, "/api/restore", strings.NewReader(dump))).Code
	}()

	select {
	case code := <-done:
		t.Fatalf("restore finished with %d while the lock was held", code)
	case <-time.After(100 * time.Millisecond):
	}

	env.restoreLock.Unlock()
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("restore did not finish after unlock")
	}
}

func TestServer_CountAndList(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/count?view=Survey", nil))
	var count handlers.CountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &count); err != nil || count.Count != 1 {
		t.Errorf("count = %+v, %v (body %s)", count, err, rec.Body.String())
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks", nil))
	var projects []repository.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &projects); err != nil || len(projects) != 1 || projects[0].ID != "p1" {
		t.Errorf("notebooks = %+v, %v", projects, err)
	}
}

func TestServer_BackupAndRestore(t *testing.T) {
	source := newTestEnv(t)
	source.seed(t)

	rec := source.do(t, httptest.NewRequest(http.MethodGet, "/api/backup", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d", rec.Code)
	}
	dump := rec.Body.Bytes()
	if !bytes.Contains(dump, []byte(`"type":"header"`)) {
		t.Fatalf("dump has no header lines:\n%s", dump)
	}

	target := newTestEnv(t)
	rec = target.do(t, httptest.NewRequest(http.MethodPost, "/api/restore", bytes.NewReader(dump)))
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats backup.RestoreStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats: %v", err)
	}
	if stats.Written == 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	// The restored notebook exports the same CSV.
	want := source.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/Survey.csv", nil)).Body.String()
	got := target.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks/p1/Survey.csv", nil)).Body.String()
	if got != want {
		t.Errorf("restored export differs:\n%s\nwant:\n%s", got, want)
	}
}

func TestServer_RestoreMultipart(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("comment", "ignored")
	part, _ := mw.CreateFormFile("backup", "backup.jsonl")
	part.Write([]byte("{\"type\":\"header\",\"database\":\"data||p9\"}\n{\"id\":\"rec-1\",\"doc\":{\"_id\":\"rec-1\"}}\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/restore?force=true", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	db, _ := env.repo.DataDB(context.Background(), "p9")
	if _, err := db.Get(context.Background(), "rec-1"); err != nil {
		t.Errorf("rec-1 not restored: %v", err)
	}
}

func TestServer_RestoreBadRequest(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"invalid pattern", "/api/restore?pattern=(", http.StatusBadRequest},
		{"invalid force", "/api/restore?force=maybe", http.StatusBadRequest},
		{"invalid batch size", "/api/restore?batch_size=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader("")))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("too large", func(t *testing.T) {
		big := strings.Repeat("x", 2<<20)
		rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/restore", strings.NewReader(big)))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})
}

func TestServer_RequestID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notebooks", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec = env.do(t, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q, want client-id", got)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, body %s", path, rec.Code, rec.Body.String())
		}
	}

	env.do(t, httptest.NewRequest(http.MethodGet, "/api/notebooks", nil))
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="GET /api/notebooks"`) {
		t.Errorf("metrics missing route label:\n%s", rec.Body.String())
	}
}
