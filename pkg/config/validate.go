package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateExport(&cfg.Export)...)
	errs = append(errs, validateBackup(&cfg.Backup)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	// Validate timeouts are non-negative
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be non-negative",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be non-negative",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be non-negative",
		})
	}
	if cfg.MaxUploadBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_upload_bytes",
			Message: "max upload bytes must be non-negative",
		})
	}

	return errs
}

// validateStorage validates the selected storage backend.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "sqlite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid sqlite driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 || cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.max_open_conns",
				Message: "connection limits must be non-negative",
			})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.dsn",
				Message: "postgres dsn is required when backend is 'postgres'",
			})
		}
		if cfg.Postgres.Driver != "pgx" && cfg.Postgres.Driver != "postgres" {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.driver",
				Message: fmt.Sprintf("invalid postgres driver %q: must be 'pgx' or 'postgres'", cfg.Postgres.Driver),
			})
		}
	case "mysql":
		if cfg.MySQL.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "storage.mysql.dsn",
				Message: "mysql dsn is required when backend is 'mysql'",
			})
		}
	case "bolt":
		if cfg.Bolt.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.bolt.path",
				Message: "bolt path is required when backend is 'bolt'",
			})
		}
	case "mongo":
		if cfg.Mongo.URI == "" {
			errs = append(errs, FieldError{
				Field:   "storage.mongo.uri",
				Message: "mongo uri is required when backend is 'mongo'",
			})
		}
		if cfg.Mongo.Database == "" {
			errs = append(errs, FieldError{
				Field:   "storage.mongo.database",
				Message: "mongo database is required when backend is 'mongo'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid storage backend %q: must be one of memory, sqlite, postgres, mysql, bolt, mongo", cfg.Backend),
		})
	}

	return errs
}

// validateExport validates export configuration.
func validateExport(cfg *ExportConfig) []FieldError {
	var errs []FieldError

	if cfg.CSVFlushEvery < 1 {
		errs = append(errs, FieldError{
			Field:   "export.csv_flush_every",
			Message: "csv flush interval must be at least 1",
		})
	}
	if cfg.ZipCompressionLevel < 1 || cfg.ZipCompressionLevel > 9 {
		errs = append(errs, FieldError{
			Field:   "export.zip_compression_level",
			Message: "zip compression level must be between 1 and 9",
		})
	}
	if cfg.MaxConcurrentReads < 1 {
		errs = append(errs, FieldError{
			Field:   "export.max_concurrent_reads",
			Message: "max concurrent reads must be at least 1",
		})
	}
	if cfg.IteratorBatchSize < 1 {
		errs = append(errs, FieldError{
			Field:   "export.iterator_batch_size",
			Message: "iterator batch size must be at least 1",
		})
	}

	return errs
}

// validateBackup validates backup and restore configuration.
func validateBackup(cfg *BackupConfig) []FieldError {
	var errs []FieldError

	if _, err := regexp.Compile(cfg.Restore.Pattern); err != nil {
		errs = append(errs, FieldError{
			Field:   "backup.restore.pattern",
			Message: fmt.Sprintf("invalid pattern: %v", err),
		})
	}
	if cfg.Restore.BatchSize < 1 {
		errs = append(errs, FieldError{
			Field:   "backup.restore.batch_size",
			Message: "batch size must be at least 1",
		})
	}
	if cfg.DumpBlockSize < 1 {
		errs = append(errs, FieldError{
			Field:   "backup.dump_block_size",
			Message: "dump block size must be at least 1",
		})
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "backup.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
		if cfg.Directory == "" {
			errs = append(errs, FieldError{
				Field:   "backup.directory",
				Message: "directory is required when a schedule is set",
			})
		}
	}

	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		errs = append(errs, FieldError{
			Field:   "backup.s3.bucket",
			Message: "bucket is required when s3 upload is enabled",
		})
	}
	if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
		errs = append(errs, FieldError{
			Field:   "backup.s3.access_key_id",
			Message: "access key id and secret access key must be set together",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text' or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path is required when metrics are enabled",
		})
	}
	if cfg.Metrics.Path != "" && cfg.Metrics.Path[0] != '/' {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	// Validate tracing configuration
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never' or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.Enabled {
		if cfg.Health.LivenessPath == "" || cfg.Health.LivenessPath[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.liveness_path",
				Message: "liveness path must start with /",
			})
		}
		if cfg.Health.ReadinessPath == "" || cfg.Health.ReadinessPath[0] != '/' {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.readiness_path",
				Message: "readiness path must start with /",
			})
		}
	}

	return errs
}
