// Package telemetry groups the observability packages of conductor.
//
// # Components
//
//   - logging: slog setup with request, notebook and form context fields
//   - metrics: Prometheus collectors for exports, backups, restores and HTTP
//   - tracing: OpenTelemetry spans over exports, dumps and restores
//   - health: liveness and readiness endpoints with pluggable checks
//
// # Usage
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr)
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("storage", health.PingCheck(store))
//
// Every collector method is safe on a nil *metrics.Collector, so the export
// and backup pipelines run unchanged without metrics.
package telemetry
