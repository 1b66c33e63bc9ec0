package metrics

import (
	"time"

	"faims3/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// BackupMetrics tracks backup dumps and restores.
//
// Metrics:
//   - conductor_restore_lines_total: backup lines read by kind
//   - conductor_restore_documents_total: restored documents by result
//   - conductor_restore_duration_seconds: restore duration by status
//   - conductor_backup_runs_total: backup dumps by trigger and status
//   - conductor_backup_duration_seconds: backup dump duration
type BackupMetrics struct {
	linesTotal      *prometheus.CounterVec
	documentsTotal  *prometheus.CounterVec
	restoreDuration *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	backupDuration  prometheus.Histogram
}

// NewBackupMetrics creates and registers backup metrics with the provided registry.
func NewBackupMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BackupMetrics {
	bm := &BackupMetrics{
		linesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "restore_lines_total",
				Help:      "Backup lines read during restore",
			},
			[]string{"kind"},
		),

		documentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "restore_documents_total",
				Help:      "Documents processed during restore",
			},
			[]string{"result"},
		),

		restoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "restore_duration_seconds",
				Help:      "Duration of restores in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"status"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "backup_runs_total",
				Help:      "Backup dumps by trigger and status",
			},
			[]string{"trigger", "status"},
		),

		backupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "backup_duration_seconds",
				Help:      "Duration of backup dumps in seconds",
				Buckets:   cfg.DurationBuckets,
			},
		),
	}

	registry.MustRegister(
		bm.linesTotal,
		bm.documentsTotal,
		bm.restoreDuration,
		bm.runsTotal,
		bm.backupDuration,
	)

	return bm
}

// RecordLine counts one backup line.
func (bm *BackupMetrics) RecordLine(kind string) {
	bm.linesTotal.WithLabelValues(kind).Inc()
}

// RecordDocuments counts restored documents.
func (bm *BackupMetrics) RecordDocuments(result string, n int) {
	bm.documentsTotal.WithLabelValues(result).Add(float64(n))
}

// RecordRestore observes a finished restore.
func (bm *BackupMetrics) RecordRestore(status string, duration time.Duration) {
	bm.restoreDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordBackup counts and observes a finished dump.
func (bm *BackupMetrics) RecordBackup(trigger, status string, duration time.Duration) {
	bm.runsTotal.WithLabelValues(trigger, status).Inc()
	bm.backupDuration.Observe(duration.Seconds())
}
