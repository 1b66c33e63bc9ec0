package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 5 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxUploadBytes  = int64(1 << 30)

	// Storage defaults
	DefaultStorageBackend       = "sqlite"
	DefaultSQLitePath           = "data/conductor.db"
	DefaultSQLiteDriver         = "sqlite"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresDriver       = "pgx"
	DefaultPostgresMaxOpenConns = 10
	DefaultMySQLMaxOpenConns    = 10
	DefaultBoltPath             = "data/conductor.bolt"
	DefaultBoltOpenTimeout      = time.Second
	DefaultMongoURI             = "mongodb://localhost:27017"
	DefaultMongoDatabase        = "conductor"
	DefaultMongoConnectTimeout  = 10 * time.Second

	// Export defaults
	DefaultCSVFlushEvery       = 100
	DefaultZipCompressionLevel = 9
	DefaultMaxConcurrentReads  = 16
	DefaultIteratorBatchSize   = 20

	// Backup defaults
	DefaultRestorePattern   = ".*"
	DefaultRestoreBatchSize = 500
	DefaultDumpBlockSize    = 10
	DefaultBackupDirectory  = "data/backups/"
	DefaultInboxDebounce    = 500 * time.Millisecond
	DefaultS3Region         = "us-east-1"
	DefaultS3Prefix         = "backups/"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "conductor"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "conductor"
	DefaultTracingInsecure    = true
	DefaultTracingTimeout     = 10 * time.Second
	DefaultHealthEnabled      = true
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// DefaultDurationBuckets are the histogram buckets used for export and
// restore durations when none are configured.
var DefaultDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900}

// NewDefaultConfig returns a Config with every default applied, including
// boolean defaults. Loaders decode files on top of it so that an explicit
// false in a file survives.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Storage.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	cfg.Telemetry.Health.Enabled = DefaultHealthEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values. Boolean fields are
// left untouched; see NewDefaultConfig.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyExportDefaults(&cfg.Export)
	applyBackupDefaults(&cfg.Backup)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStorageBackend
	}

	// SQLite defaults
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.SQLite.MaxOpenConns == 0 {
		cfg.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.SQLite.MaxIdleConns == 0 {
		cfg.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Postgres defaults
	if cfg.Postgres.Driver == "" {
		cfg.Postgres.Driver = DefaultPostgresDriver
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}

	// MySQL defaults
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = DefaultMySQLMaxOpenConns
	}

	// Bolt defaults
	if cfg.Bolt.Path == "" {
		cfg.Bolt.Path = DefaultBoltPath
	}
	if cfg.Bolt.OpenTimeout == 0 {
		cfg.Bolt.OpenTimeout = DefaultBoltOpenTimeout
	}

	// Mongo defaults
	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = DefaultMongoURI
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = DefaultMongoDatabase
	}
	if cfg.Mongo.ConnectTimeout == 0 {
		cfg.Mongo.ConnectTimeout = DefaultMongoConnectTimeout
	}
}

func applyExportDefaults(cfg *ExportConfig) {
	if cfg.CSVFlushEvery == 0 {
		cfg.CSVFlushEvery = DefaultCSVFlushEvery
	}
	if cfg.ZipCompressionLevel == 0 {
		cfg.ZipCompressionLevel = DefaultZipCompressionLevel
	}
	if cfg.MaxConcurrentReads == 0 {
		cfg.MaxConcurrentReads = DefaultMaxConcurrentReads
	}
	if cfg.IteratorBatchSize == 0 {
		cfg.IteratorBatchSize = DefaultIteratorBatchSize
	}
}

func applyBackupDefaults(cfg *BackupConfig) {
	if cfg.Restore.Pattern == "" {
		cfg.Restore.Pattern = DefaultRestorePattern
	}
	if cfg.Restore.BatchSize == 0 {
		cfg.Restore.BatchSize = DefaultRestoreBatchSize
	}
	if cfg.DumpBlockSize == 0 {
		cfg.DumpBlockSize = DefaultDumpBlockSize
	}
	if cfg.Directory == "" {
		cfg.Directory = DefaultBackupDirectory
	}
	if cfg.InboxDebounce == 0 {
		cfg.InboxDebounce = DefaultInboxDebounce
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = DefaultS3Region
	}
	if cfg.S3.Prefix == "" {
		cfg.S3.Prefix = DefaultS3Prefix
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.DurationBuckets) == 0 {
		cfg.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}

	// Tracing defaults
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}

	// Health defaults
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
