// Package server provides the conductor HTTP server.
//
// It ties the notebook repository, the export pipelines and the backup
// components to HTTP routes and manages the server lifecycle: start,
// graceful shutdown and OS signal handling.
//
// # Routes
//
//   - GET /api/notebooks - list notebooks
//   - GET /api/notebooks/{id}/count[?view=<form>] - live record count
//   - GET /api/notebooks/{id}/{view}.csv - CSV export of one view
//   - GET /api/notebooks/{id}/{view}.zip[?full=true] - ZIP of the view's
//     attachments, or the full archive with spatial files and metadata
//   - GET /api/notebooks/{id}/{view}.geojson, .kml - geometries of the view
//   - GET /api/backup[?database=<name>] - JSONL dump
//   - POST /api/restore[?pattern=&force=&batch_size=] - restore a dump
//   - GET /health, GET /ready - liveness and readiness checks
//   - GET <telemetry.metrics.path> - Prometheus metrics
//
// Exports are streamed. Errors found before the first byte are answered
// as JSON with a 4xx or 5xx status; later errors truncate the body and are
// logged. A ZIP export of a view without attachments answers 204.
//
// # Basic Usage
//
//	srv := server.NewServer(cfg, server.Dependencies{
//	    Repository: repo,
//	    CSV:        export.NewCSVExporter(cfg.Export, collector),
//	    Zip:        export.NewZipExporter(cfg.Export, collector),
//	    Spatial:    export.NewSpatialExporter(collector),
//	    Dumper:     backup.NewDumper(store, cfg.Backup, collector),
//	    Restore:    backup.OptionsFromConfig(cfg.Backup.Restore),
//	    Health:     checker,
//	    Metrics:    collector,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
