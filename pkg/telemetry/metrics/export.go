package metrics

import (
	"time"

	"faims3/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics tracks the CSV and ZIP export pipelines.
//
// Metrics:
//   - conductor_export_requests_total: exports by format and status
//   - conductor_export_duration_seconds: export duration histogram
//   - conductor_export_rows_total: records emitted by format
//   - conductor_export_zip_entries_total: attachment outcomes in ZIP exports
type ExportMetrics struct {
	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	rowsTotal     *prometheus.CounterVec
	zipEntries    *prometheus.CounterVec
}

// NewExportMetrics creates and registers export metrics with the provided registry.
func NewExportMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ExportMetrics {
	em := &ExportMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "export_requests_total",
				Help:      "Total number of notebook exports",
			},
			[]string{"format", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "export_duration_seconds",
				Help:      "Duration of notebook exports in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"format"},
		),

		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "export_rows_total",
				Help:      "Total number of records emitted by exports",
			},
			[]string{"format"},
		),

		zipEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "export_zip_entries_total",
				Help:      "Attachment outcomes in ZIP exports",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		em.requestsTotal,
		em.duration,
		em.rowsTotal,
		em.zipEntries,
	)

	return em
}

// RecordExport records one finished export.
func (em *ExportMetrics) RecordExport(format, status string, duration time.Duration, rows int) {
	em.requestsTotal.WithLabelValues(format, status).Inc()
	em.duration.WithLabelValues(format).Observe(duration.Seconds())
	if rows > 0 {
		em.rowsTotal.WithLabelValues(format).Add(float64(rows))
	}
}

// RecordZipEntry records one attachment outcome.
func (em *ExportMetrics) RecordZipEntry(result string) {
	em.zipEntries.WithLabelValues(result).Inc()
}
