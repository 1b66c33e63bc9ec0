package metrics

import (
	"time"

	"faims3/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// conductor service. It owns a private registry and exposes one recording
// method per event so callers never touch label vectors directly.
//
// A nil *Collector is valid and records nothing, which lets pipelines run
// without metrics in tests and one-shot CLI commands.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Export pipeline metrics
	exportMetrics *ExportMetrics

	// Backup and restore metrics
	backupMetrics *BackupMetrics

	// HTTP surface metrics
	httpMetrics *HTTPMetrics
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "conductor"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		exportMetrics: NewExportMetrics(cfg, registry),
		backupMetrics: NewBackupMetrics(cfg, registry),
		httpMetrics:   NewHTTPMetrics(cfg, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordExport records a finished export.
//
// Parameters:
//   - format: "csv", "zip", "full", "geojson" or "kml"
//   - status: "success" or "error"
//   - duration: wall time of the export
//   - rows: records written (CSV), features written (spatial and full) or 0
func (c *Collector) RecordExport(format, status string, duration time.Duration, rows int) {
	if !c.enabled() {
		return
	}

	c.exportMetrics.RecordExport(format, status, duration, rows)
}

// RecordZipEntry records the outcome of one attachment in a ZIP export.
//
// Parameters:
//   - result: "written", "missing" or "failed"
func (c *Collector) RecordZipEntry(result string) {
	if !c.enabled() {
		return
	}

	c.exportMetrics.RecordZipEntry(result)
}

// RecordRestoreLine records a parsed backup line.
//
// Parameters:
//   - kind: "header", "document", "blank" or "invalid"
func (c *Collector) RecordRestoreLine(kind string) {
	if !c.enabled() {
		return
	}

	c.backupMetrics.RecordLine(kind)
}

// RecordRestoreDocuments records the outcome of restored documents.
//
// Parameters:
//   - result: "written", "skipped", "conflict" or "failed"
//   - n: number of documents
func (c *Collector) RecordRestoreDocuments(result string, n int) {
	if !c.enabled() || n <= 0 {
		return
	}

	c.backupMetrics.RecordDocuments(result, n)
}

// RecordRestore records a finished restore run.
func (c *Collector) RecordRestore(status string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.backupMetrics.RecordRestore(status, duration)
}

// RecordBackupRun records a finished backup dump.
//
// Parameters:
//   - trigger: "manual", "scheduled" or "http"
//   - status: "success" or "error"
func (c *Collector) RecordBackupRun(trigger, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.backupMetrics.RecordBackup(trigger, status, duration)
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.httpMetrics.RecordRequest(method, route, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
