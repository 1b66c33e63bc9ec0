package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"faims3/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:         true,
		Namespace:       "test",
		DurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.config != cfg {
		t.Error("Collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_NewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	NewCollector(cfg, nil)

	if cfg.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("expected namespace %q, got %q", config.DefaultMetricsNamespace, cfg.Namespace)
	}
	if len(cfg.DurationBuckets) == 0 {
		t.Error("expected default duration buckets")
	}
}

func TestCollector_RecordExport(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordExport("csv", "success", 200*time.Millisecond, 10)
	collector.RecordExport("csv", "success", 300*time.Millisecond, 5)
	collector.RecordExport("zip", "error", time.Second, 0)

	em := collector.exportMetrics
	if got := testutil.ToFloat64(em.requestsTotal.WithLabelValues("csv", "success")); got != 2 {
		t.Errorf("expected 2 csv exports, got %v", got)
	}
	if got := testutil.ToFloat64(em.requestsTotal.WithLabelValues("zip", "error")); got != 1 {
		t.Errorf("expected 1 failed zip export, got %v", got)
	}
	if got := testutil.ToFloat64(em.rowsTotal.WithLabelValues("csv")); got != 15 {
		t.Errorf("expected 15 csv rows, got %v", got)
	}
}

func TestCollector_RecordZipEntry(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordZipEntry("written")
	collector.RecordZipEntry("written")
	collector.RecordZipEntry("missing")

	em := collector.exportMetrics
	if got := testutil.ToFloat64(em.zipEntries.WithLabelValues("written")); got != 2 {
		t.Errorf("expected 2 written entries, got %v", got)
	}
	if got := testutil.ToFloat64(em.zipEntries.WithLabelValues("missing")); got != 1 {
		t.Errorf("expected 1 missing entry, got %v", got)
	}
}

func TestCollector_RecordRestore(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordRestoreLine("header")
	collector.RecordRestoreLine("document")
	collector.RecordRestoreLine("document")
	collector.RecordRestoreDocuments("written", 7)
	collector.RecordRestoreDocuments("skipped", 0)
	collector.RecordRestore("success", time.Second)

	bm := collector.backupMetrics
	if got := testutil.ToFloat64(bm.linesTotal.WithLabelValues("document")); got != 2 {
		t.Errorf("expected 2 document lines, got %v", got)
	}
	if got := testutil.ToFloat64(bm.documentsTotal.WithLabelValues("written")); got != 7 {
		t.Errorf("expected 7 written documents, got %v", got)
	}
	if got := testutil.CollectAndCount(bm.documentsTotal); got != 1 {
		t.Errorf("zero-count record should not create a series, got %d series", got)
	}
}

func TestCollector_RecordBackupRun(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordBackupRun("scheduled", "success", 2*time.Second)
	collector.RecordBackupRun("manual", "error", time.Second)

	bm := collector.backupMetrics
	if got := testutil.ToFloat64(bm.runsTotal.WithLabelValues("scheduled", "success")); got != 1 {
		t.Errorf("expected 1 scheduled run, got %v", got)
	}
	if got := testutil.CollectAndCount(bm.backupDuration); got != 1 {
		t.Errorf("expected backup duration histogram, got %d", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	collector.RecordExport("csv", "success", time.Second, 10)
	collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	if got := testutil.CollectAndCount(collector.exportMetrics.requestsTotal); got != 0 {
		t.Errorf("disabled collector recorded %d series", got)
	}
}

func TestCollector_Nil(t *testing.T) {
	var collector *Collector

	// Must not panic
	collector.RecordExport("zip", "success", time.Second, 1)
	collector.RecordZipEntry("written")
	collector.RecordRestoreLine("header")
	collector.RecordRestoreDocuments("written", 1)
	collector.RecordRestore("success", time.Second)
	collector.RecordBackupRun("manual", "success", time.Second)
	collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordHTTPRequest("GET", "/api/notebooks/{id}/count", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_http_requests_total") {
		t.Errorf("expected http metric in scrape output")
	}
}
