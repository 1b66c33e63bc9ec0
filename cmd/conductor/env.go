package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"faims3/conductor/pkg/cli"
	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/notebook/backup"
	"faims3/conductor/pkg/notebook/repository"
	"faims3/conductor/pkg/objectstore"
	"faims3/conductor/pkg/telemetry/metrics"
)

// appEnv holds the components shared by every command.
type appEnv struct {
	cfg     *config.Config
	store   docstore.Store
	repo    *repository.Repository
	metrics *metrics.Collector
}

// openEnv loads configuration, sets up logging and opens the store.
func openEnv(ctx context.Context) (*appEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg); err != nil {
		return nil, err
	}

	store, err := docstore.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	return &appEnv{
		cfg:     cfg,
		store:   store,
		repo:    repository.New(store, cfg.Export),
		metrics: collector,
	}, nil
}

func (env *appEnv) Close() error {
	return env.store.Close()
}

// uploader returns the S3 client for backup uploads, or nil when uploads
// are disabled.
func (env *appEnv) uploader(ctx context.Context) (backup.Uploader, *objectstore.Client, error) {
	if !env.cfg.Backup.S3.Enabled {
		return nil, nil, nil
	}
	client, err := objectstore.New(ctx, env.cfg.Backup.S3)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// outputFile is a command output: stdout for "-", otherwise a file that
// only appears under its final name once Commit is called.
type outputFile struct {
	io.Writer
	file *os.File
	path string
}

func createOutput(path string) (*outputFile, error) {
	if path == "-" {
		return &outputFile{Writer: os.Stdout}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &outputFile{Writer: f, file: f, path: path}, nil
}

// Commit closes the file and moves it into place.
func (o *outputFile) Commit() error {
	if o.file == nil {
		return nil
	}
	if err := o.file.Close(); err != nil {
		os.Remove(o.file.Name())
		return fmt.Errorf("failed to write %s: %w", o.path, err)
	}
	return os.Rename(o.file.Name(), o.path)
}

// Discard closes and removes the partial file.
func (o *outputFile) Discard() {
	if o.file == nil {
		return
	}
	o.file.Close()
	os.Remove(o.file.Name())
}

// printResult writes a command summary to stderr in the --output format.
func printResult(format string, result any) error {
	f, err := parseOutput(format)
	if err != nil {
		return err
	}
	return f.FormatTo(os.Stderr, result)
}

func parseOutput(format string) (cli.Formatter, error) {
	f, err := cli.ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(f), nil
}
