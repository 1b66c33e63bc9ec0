package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faims3/conductor/pkg/cli"
	"faims3/conductor/pkg/notebook/backup"
)

var backupFlags struct {
	outputPath string
	databases  []string
	output     string
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump databases as a JSONL backup",
	Long: `Dump the databases of the configured store as a JSONL backup.

Without -o the backup is written to the configured backup directory and,
when S3 is enabled, uploaded. With -o it is written to that file, or to
stdout with -o -.

Examples:
  # Back up everything into the backup directory
  conductor backup

  # Dump one notebook's databases to stdout
  conductor backup -o - --database 'metadata||p1' --database 'data||p1'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringVarP(&backupFlags.outputPath, "out", "o", "", `output file, "-" for stdout`)
	backupCmd.Flags().StringArrayVar(&backupFlags.databases, "database", nil, "database to dump (repeatable, default all)")
	backupCmd.Flags().StringVar(&backupFlags.output, "output", "text", "summary format (text, json)")
}

func runBackup(ctx context.Context) error {
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

	dumper := backup.NewDumper(env.store, env.cfg.Backup, env.metrics)

	if backupFlags.outputPath == "" {
		if len(backupFlags.databases) > 0 {
			return cli.NewUsageError("--database requires -o")
		}
		uploader, _, err := env.uploader(ctx)
		if err != nil {
			return cli.NewCommandError("backup", err)
		}
		path, err := backup.NewScheduler(dumper, env.cfg.Backup, uploader).RunOnce(ctx, "manual")
		if err != nil {
			return cli.NewCommandError("backup", err)
		}
		fmt.Fprintf(os.Stderr, "Backup written to %s\n", path)
		return nil
	}

	out, err := createOutput(backupFlags.outputPath)
	if err != nil {
		return err
	}
	stats, err := dumper.Dump(ctx, out, backup.WithDatabases(backupFlags.databases...))
	if err != nil {
		out.Discard()
		return cli.NewCommandError("backup", err)
	}
	if err := out.Commit(); err != nil {
		return cli.NewCommandError("backup", err)
	}
	return printResult(backupFlags.output, stats)
}
