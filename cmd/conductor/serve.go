package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"faims3/conductor/pkg/cli"
	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/notebook/backup"
	"faims3/conductor/pkg/notebook/export"
	"faims3/conductor/pkg/server"
	"faims3/conductor/pkg/telemetry/health"
	"faims3/conductor/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conductor HTTP server",
	Long: `Start the conductor HTTP server with the specified configuration.

Besides the export and backup endpoints the server runs scheduled backups
when backup.schedule is set and restores files dropped into backup.inbox.

Examples:
  # Start with ./config.yaml or the defaults
  conductor serve

  # Start with a custom config and listen address
  conductor serve --config /etc/conductor/config.yaml --listen 0.0.0.0:8080

  # Validate config without starting the server
  conductor serve --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	if serveFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	tracing.Version = Version
	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer tracer.Shutdown(context.Background())

	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	fmt.Printf("✓ Document store opened (%s)\n", cfg.Storage.Backend)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.SetVersion(Version)
	checker.RegisterCheck("storage", health.PingCheck(env.store))

	dumper := backup.NewDumper(env.store, cfg.Backup, env.metrics)

	uploader, s3Client, err := env.uploader(ctx)
	if err != nil {
		return cli.NewConfigError("backup.s3", err.Error())
	}
	if s3Client != nil {
		checker.RegisterCheck("s3", health.PingCheck(s3Client))
		fmt.Printf("✓ Backup uploads enabled (s3://%s)\n", s3Client.Bucket())
	}

	if cfg.Backup.Schedule != "" {
		scheduler := backup.NewScheduler(dumper, cfg.Backup, uploader)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewConfigError("backup.schedule", err.Error())
		}
		defer scheduler.Stop()
		checker.RegisterCheck("backup_directory", health.WritableDirCheck(cfg.Backup.Directory))
		if next := scheduler.NextRun(); next != nil {
			slog.Debug("backup scheduler started", "next_run", next)
		}
		fmt.Printf("✓ Backups scheduled (%s)\n", cfg.Backup.Schedule)
	}

	// HTTP and inbox restores share one lock so they never write concurrently.
	restoreMu := new(sync.Mutex)

	if cfg.Backup.Inbox != "" {
		if err := startInbox(ctx, env, cfg, checker, restoreMu); err != nil {
			return err
		}
		fmt.Printf("✓ Watching restore inbox %s\n", cfg.Backup.Inbox)
	}

	srv := server.NewServer(cfg, server.Dependencies{
		Repository:  env.repo,
		CSV:         export.NewCSVExporter(cfg.Export, env.metrics),
		Zip:         export.NewZipExporter(cfg.Export, env.metrics),
		Spatial:     export.NewSpatialExporter(env.metrics),
		Dumper:      dumper,
		Restore:     backup.OptionsFromConfig(cfg.Backup.Restore),
		Health:      healthOrNil(cfg, checker),
		Metrics:     env.metrics,
		RestoreLock: restoreMu,
	})

	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Println("✓ Server stopped")
	return nil
}

// startInbox starts the restore inbox watcher in the background. It stops
// with ctx. Inbox restores hold lock.
func startInbox(ctx context.Context, env *appEnv, cfg *config.Config, checker *health.Checker, lock *sync.Mutex) error {
	restorer, err := backup.NewRestorer(env.repo, backup.OptionsFromConfig(cfg.Backup.Restore), env.metrics)
	if err != nil {
		return cli.NewConfigError("backup.restore.pattern", err.Error())
	}
	watcher, err := backup.NewInboxWatcher(restorer, cfg.Backup, lock)
	if err != nil {
		return cli.NewConfigError("backup.inbox", err.Error())
	}

	go func() {
		if err := watcher.Watch(ctx); err != nil {
			slog.Error("restore inbox stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		watcher.Stop()
	}()

	checker.RegisterCheck("restore_inbox", health.RunningCheck("restore inbox", watcher.IsRunning))
	return nil
}

func healthOrNil(cfg *config.Config, checker *health.Checker) *health.Checker {
	if !cfg.Telemetry.Health.Enabled {
		return nil
	}
	return checker
}
