package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"faims3/conductor/pkg/cli"
	"faims3/conductor/pkg/notebook/backup"
	"faims3/conductor/pkg/objectstore"
)

var restoreFlags struct {
	pattern   string
	force     bool
	batchSize int
	output    string
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file|s3://bucket/key|->",
	Short: "Restore a JSONL backup",
	Long: `Restore a JSONL backup, plain or gzip-compressed, into the configured store.

Each section is routed by its database name: "projects" to the projects
directory, "metadata||<id>" and "data||<id>" to the notebook's databases.
Sections whose name does not match --pattern are skipped. Existing
documents are left alone unless --force is given.

Examples:
  # Restore a local backup
  conductor restore backup.jsonl

  # Restore only data databases from S3, overwriting existing documents
  conductor restore s3://backups/conductor-backup.jsonl --pattern '^data' --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRestore(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreFlags.pattern, "pattern", "", "regular expression selecting databases (default from config)")
	restoreCmd.Flags().BoolVar(&restoreFlags.force, "force", false, "overwrite existing documents")
	restoreCmd.Flags().IntVar(&restoreFlags.batchSize, "batch-size", 0, "documents per bulk write (default from config)")
	restoreCmd.Flags().StringVar(&restoreFlags.output, "output", "text", "summary format (text, json)")
}

func runRestore(ctx context.Context, source string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := cli.SetupSignalHandler(ctx)
	defer stop()

	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	opts := backup.OptionsFromConfig(env.cfg.Backup.Restore)
	if restoreFlags.pattern != "" {
		opts.Pattern = restoreFlags.pattern
	}
	if restoreFlags.force {
		opts.Force = true
	}
	if restoreFlags.batchSize > 0 {
		opts.BatchSize = restoreFlags.batchSize
	}

	restorer, err := backup.NewRestorer(env.repo, opts, env.metrics)
	if err != nil {
		return cli.NewUsageError("%v", err)
	}

	src, err := openSource(ctx, env, source)
	if err != nil {
		return cli.NewCommandError("restore", err)
	}
	defer src.Close()

	stats, err := restorer.Restore(ctx, src)
	if err != nil {
		return cli.NewCommandError("restore", err)
	}
	return printResult(restoreFlags.output, stats)
}

// openSource opens a backup given as a path, an s3:// URL or "-".
func openSource(ctx context.Context, env *appEnv, source string) (io.ReadCloser, error) {
	switch {
	case source == "-":
		return io.NopCloser(os.Stdin), nil
	case objectstore.IsURL(source):
		bucket, key, err := objectstore.ParseURL(source)
		if err != nil {
			return nil, err
		}
		cfg := env.cfg.Backup.S3
		if cfg.Bucket == "" {
			cfg.Bucket = bucket
		}
		client, err := objectstore.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client.Open(ctx, bucket, key)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open backup: %w", err)
		}
		return f, nil
	}
}
