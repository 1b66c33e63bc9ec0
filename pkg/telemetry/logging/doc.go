// Package logging provides structured logging for the conductor service.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - JSON, text and console output
//   - Context-aware records carrying request, notebook, form and database fields
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//
//	// Packages log through the default logger
//	log := slog.Default().With("component", "export.zip")
//
//	// Context fields are attached automatically
//	ctx = logging.WithNotebook(ctx, "1693291182736-campus-survey-demo")
//	log.WarnContext(ctx, "attachment missing", "field", "photo")
package logging
