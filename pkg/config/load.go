package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "CONDUCTOR_"

// LoadConfig loads configuration from a YAML or TOML file at the specified
// path. Files ending in ".toml" are decoded as TOML, everything else as YAML.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Fill anything the file zeroed out
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// LoadConfigWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Environment variables follow the naming
// convention CONDUCTOR_SECTION_FIELD (e.g., CONDUCTOR_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
//
// The loading sequence is:
// 1. Load the file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed numeric, boolean and duration values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if val := os.Getenv(EnvPrefix + "SERVER_MAX_UPLOAD_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Server.MaxUploadBytes = i
		}
	}
	if val := os.Getenv(EnvPrefix + "SERVER_CORS_ALLOWED_ORIGINS"); val != "" {
		cfg.Server.CORSAllowedOrigins = strings.Split(val, ",")
	}

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	envBool("STORAGE_SQLITE_WAL_MODE", &cfg.Storage.SQLite.WALMode)
	envString("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	envString("STORAGE_POSTGRES_DRIVER", &cfg.Storage.Postgres.Driver)
	envString("STORAGE_MYSQL_DSN", &cfg.Storage.MySQL.DSN)
	envString("STORAGE_BOLT_PATH", &cfg.Storage.Bolt.Path)
	envString("STORAGE_MONGO_URI", &cfg.Storage.Mongo.URI)
	envString("STORAGE_MONGO_DATABASE", &cfg.Storage.Mongo.Database)

	// Export overrides
	envInt("EXPORT_CSV_FLUSH_EVERY", &cfg.Export.CSVFlushEvery)
	envInt("EXPORT_ZIP_COMPRESSION_LEVEL", &cfg.Export.ZipCompressionLevel)
	envInt("EXPORT_MAX_CONCURRENT_READS", &cfg.Export.MaxConcurrentReads)
	envInt("EXPORT_ITERATOR_BATCH_SIZE", &cfg.Export.IteratorBatchSize)

	// Backup overrides
	envString("BACKUP_RESTORE_PATTERN", &cfg.Backup.Restore.Pattern)
	envBool("BACKUP_RESTORE_FORCE", &cfg.Backup.Restore.Force)
	envInt("BACKUP_RESTORE_BATCH_SIZE", &cfg.Backup.Restore.BatchSize)
	envInt("BACKUP_DUMP_BLOCK_SIZE", &cfg.Backup.DumpBlockSize)
	envString("BACKUP_SCHEDULE", &cfg.Backup.Schedule)
	envString("BACKUP_DIRECTORY", &cfg.Backup.Directory)
	envString("BACKUP_INBOX", &cfg.Backup.Inbox)
	envBool("BACKUP_S3_ENABLED", &cfg.Backup.S3.Enabled)
	envString("BACKUP_S3_BUCKET", &cfg.Backup.S3.Bucket)
	envString("BACKUP_S3_REGION", &cfg.Backup.S3.Region)
	envString("BACKUP_S3_PREFIX", &cfg.Backup.S3.Prefix)
	envString("BACKUP_S3_ENDPOINT", &cfg.Backup.S3.Endpoint)
	envString("BACKUP_S3_ACCESS_KEY_ID", &cfg.Backup.S3.AccessKeyID)
	envString("BACKUP_S3_SECRET_ACCESS_KEY", &cfg.Backup.S3.SecretAccessKey)
	envBool("BACKUP_S3_USE_PATH_STYLE", &cfg.Backup.S3.UsePathStyle)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
