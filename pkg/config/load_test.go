package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, "conductor.yaml", `
server:
  listen_address: "0.0.0.0:8080"
  read_timeout: "60s"

storage:
  backend: "sqlite"
  sqlite:
    path: "./test.db"
    wal_mode: false

backup:
  schedule: "0 2 * * *"
  restore:
    pattern: "^data"
    force: true

telemetry:
  logging:
    level: "debug"
    format: "text"
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:8080", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout %v, got %v", 60*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Storage.SQLite.Path != "./test.db" {
		t.Errorf("expected sqlite path %q, got %q", "./test.db", cfg.Storage.SQLite.Path)
	}
	if cfg.Storage.SQLite.WALMode {
		t.Error("explicit wal_mode: false was not honoured")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit metrics.enabled: false was not honoured")
	}
	if !cfg.Backup.Restore.Force {
		t.Error("expected restore force")
	}
	if cfg.Backup.Restore.BatchSize != DefaultRestoreBatchSize {
		t.Errorf("expected default batch size, got %d", cfg.Backup.Restore.BatchSize)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	path := writeConfig(t, "conductor.toml", `
[server]
listen_address = "0.0.0.0:9000"
idle_timeout = "30s"

[storage]
backend = "bolt"

[storage.bolt]
path = "/tmp/conductor.bolt"

[export]
csv_flush_every = 10
zip_compression_level = 5

[telemetry.logging]
level = "warn"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9000", cfg.Server.ListenAddress)
	}
	if cfg.Server.IdleTimeout != 30*time.Second {
		t.Errorf("expected idle timeout 30s, got %v", cfg.Server.IdleTimeout)
	}
	if cfg.Storage.Backend != "bolt" || cfg.Storage.Bolt.Path != "/tmp/conductor.bolt" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Export.CSVFlushEvery != 10 {
		t.Errorf("expected flush every 10, got %d", cfg.Export.CSVFlushEvery)
	}
	if cfg.Export.ZipCompressionLevel != 5 {
		t.Errorf("expected compression level 5, got %d", cfg.Export.ZipCompressionLevel)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected logging level warn, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{
			name:    "malformed yaml",
			file:    "bad.yaml",
			content: "server: [unclosed",
			wantMsg: "failed to parse",
		},
		{
			name:    "malformed toml",
			file:    "bad.toml",
			content: "[server\nlisten_address = ",
			wantMsg: "failed to parse",
		},
		{
			name:    "unknown backend",
			file:    "backend.yaml",
			content: "storage:\n  backend: \"couch\"\n",
			wantMsg: "storage.backend",
		},
		{
			name:    "invalid restore pattern",
			file:    "pattern.yaml",
			content: "backup:\n  restore:\n    pattern: \"([\"\n",
			wantMsg: "backup.restore.pattern",
		},
		{
			name:    "invalid schedule",
			file:    "schedule.yaml",
			content: "backup:\n  schedule: \"every day\"\n",
			wantMsg: "backup.schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "conductor.yaml", `
server:
  listen_address: "127.0.0.1:8080"
storage:
  backend: "memory"
`)

	t.Setenv("CONDUCTOR_SERVER_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("CONDUCTOR_BACKUP_RESTORE_FORCE", "true")
	t.Setenv("CONDUCTOR_BACKUP_RESTORE_BATCH_SIZE", "25")
	t.Setenv("CONDUCTOR_EXPORT_CSV_FLUSH_EVERY", "not-a-number")
	t.Setenv("CONDUCTOR_SERVER_IDLE_TIMEOUT", "45s")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("expected env override for listen address, got %q", cfg.Server.ListenAddress)
	}
	if !cfg.Backup.Restore.Force {
		t.Error("expected env override for restore force")
	}
	if cfg.Backup.Restore.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.Backup.Restore.BatchSize)
	}
	if cfg.Export.CSVFlushEvery != DefaultCSVFlushEvery {
		t.Errorf("malformed override should be ignored, got %d", cfg.Export.CSVFlushEvery)
	}
	if cfg.Server.IdleTimeout != 45*time.Second {
		t.Errorf("expected idle timeout 45s, got %v", cfg.Server.IdleTimeout)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("CONDUCTOR_STORAGE_BACKEND", "memory")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected backend memory, got %q", cfg.Storage.Backend)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	t.Setenv("CONDUCTOR_TELEMETRY_LOGGING_LEVEL", "verbose")

	_, err := LoadConfigWithEnvOverrides("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Errors[0].Field != "telemetry.logging.level" {
		t.Errorf("expected telemetry.logging.level, got %q", verr.Errors[0].Field)
	}
}
