// Package metrics provides Prometheus metrics collection for the conductor service.
//
// # Metrics Categories
//
//   - Export Metrics: export count, duration and rows by format, ZIP entry outcomes
//   - Backup Metrics: restore lines and documents, restore duration, backup runs
//   - HTTP Metrics: request count and duration by route
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordExport("csv", "success", time.Second, 1200)
//	mux.Handle("/metrics", collector.Handler())
//
// All metrics live on a private registry owned by the Collector. A nil
// Collector is a valid no-op.
package metrics
