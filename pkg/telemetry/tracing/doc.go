// Package tracing provides OpenTelemetry distributed tracing for the
// conductor service.
//
// # Overview
//
// Spans are exported over OTLP gRPC when tracing is enabled. When it is
// disabled every call is a noop, so pipelines can start spans unconditionally.
//
// # Span Names
//
//   - export.csv, export.zip: one span per export request
//   - backup.restore: one span per restore, with child events per database
//   - backup.dump: one span per backup dump
//   - "<METHOD> <path>": server spans created by HTTPMiddleware
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(ctx)
//
//	ctx, span := tracing.Start(ctx, "export.csv", tracing.NotebookAttributes(id, form)...)
//	defer func() { tracing.End(span, err) }()
//
// # Sampling
//
// Samplers are "always", "never" and "ratio"; all are wrapped in ParentBased
// so an upstream sampling decision wins.
package tracing
