// Package config provides configuration management for the conductor service.
//
// Configuration is read from a YAML or TOML file, filled with defaults,
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a file only:
//     cfg, err := config.LoadConfig("conductor.yaml")
//
//  2. From a file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("conductor.toml")
//
// Files ending in ".toml" are decoded as TOML, anything else as YAML.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CONDUCTOR_SECTION_FIELD:
//
//   - CONDUCTOR_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CONDUCTOR_STORAGE_BACKEND overrides storage.backend
//   - CONDUCTOR_BACKUP_RESTORE_PATTERN overrides backup.restore.pattern
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from the file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("conductor.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/conductor.db"
//
//	backup:
//	  schedule: "0 2 * * *"
//	  directory: "data/backups/"
//	  restore:
//	    pattern: "^data\\|\\|"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
