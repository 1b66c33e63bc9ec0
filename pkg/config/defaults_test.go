package config

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(*testing.T, *Config)
	}{
		{
			name:  "empty config gets all defaults",
			input: Config{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.ListenAddress != DefaultListenAddress {
					t.Errorf("expected listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
				}
				if cfg.Server.ReadTimeout != DefaultReadTimeout {
					t.Errorf("expected read timeout %v, got %v", DefaultReadTimeout, cfg.Server.ReadTimeout)
				}
				if cfg.Server.WriteTimeout != 0 {
					t.Errorf("expected write timeout to stay disabled, got %v", cfg.Server.WriteTimeout)
				}
				if cfg.Storage.Backend != DefaultStorageBackend {
					t.Errorf("expected backend %q, got %q", DefaultStorageBackend, cfg.Storage.Backend)
				}
				if cfg.Storage.SQLite.Path != DefaultSQLitePath {
					t.Errorf("expected SQLite path %q, got %q", DefaultSQLitePath, cfg.Storage.SQLite.Path)
				}
				if cfg.Export.CSVFlushEvery != DefaultCSVFlushEvery {
					t.Errorf("expected flush every %d, got %d", DefaultCSVFlushEvery, cfg.Export.CSVFlushEvery)
				}
				if cfg.Export.ZipCompressionLevel != DefaultZipCompressionLevel {
					t.Errorf("expected compression level %d, got %d", DefaultZipCompressionLevel, cfg.Export.ZipCompressionLevel)
				}
				if cfg.Backup.Restore.Pattern != DefaultRestorePattern {
					t.Errorf("expected restore pattern %q, got %q", DefaultRestorePattern, cfg.Backup.Restore.Pattern)
				}
				if cfg.Backup.Restore.BatchSize != DefaultRestoreBatchSize {
					t.Errorf("expected batch size %d, got %d", DefaultRestoreBatchSize, cfg.Backup.Restore.BatchSize)
				}
				if cfg.Backup.DumpBlockSize != DefaultDumpBlockSize {
					t.Errorf("expected dump block size %d, got %d", DefaultDumpBlockSize, cfg.Backup.DumpBlockSize)
				}
				if cfg.Telemetry.Logging.Level != DefaultLoggingLevel {
					t.Errorf("expected logging level %q, got %q", DefaultLoggingLevel, cfg.Telemetry.Logging.Level)
				}
				if cfg.Telemetry.Metrics.Path != DefaultPrometheusPath {
					t.Errorf("expected prometheus path %q, got %q", DefaultPrometheusPath, cfg.Telemetry.Metrics.Path)
				}
				if len(cfg.Telemetry.Metrics.DurationBuckets) != len(DefaultDurationBuckets) {
					t.Errorf("expected %d duration buckets, got %d", len(DefaultDurationBuckets), len(cfg.Telemetry.Metrics.DurationBuckets))
				}
			},
		},
		{
			name: "existing values are preserved",
			input: Config{
				Server: ServerConfig{
					ListenAddress: "192.168.1.1:9090",
					ReadTimeout:   60 * time.Second,
				},
				Storage: StorageConfig{Backend: "bolt"},
				Backup: BackupConfig{
					Restore: RestoreConfig{Pattern: "^data", BatchSize: 50},
				},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.ListenAddress != "192.168.1.1:9090" {
					t.Error("existing listen address was overwritten")
				}
				if cfg.Server.ReadTimeout != 60*time.Second {
					t.Error("existing read timeout was overwritten")
				}
				if cfg.Storage.Backend != "bolt" {
					t.Error("existing backend was overwritten")
				}
				if cfg.Backup.Restore.Pattern != "^data" || cfg.Backup.Restore.BatchSize != 50 {
					t.Error("existing restore settings were overwritten")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			ApplyDefaults(&cfg)
			tt.check(t, &cfg)
		})
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if !reflect.DeepEqual(cfg.Server, first.Server) {
		t.Error("server section changed on second ApplyDefaults")
	}
	if cfg.Storage != first.Storage {
		t.Error("storage section changed on second ApplyDefaults")
	}
	if cfg.Export != first.Export {
		t.Error("export section changed on second ApplyDefaults")
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if !cfg.Storage.SQLite.WALMode {
		t.Error("expected WAL mode enabled by default")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
	if !cfg.Telemetry.Health.Enabled {
		t.Error("expected health checks enabled by default")
	}
	if cfg.Telemetry.Tracing.Enabled {
		t.Error("expected tracing disabled by default")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
