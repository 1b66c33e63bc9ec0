package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"faims3/conductor/pkg/config"
)

// Uploader ships a finished backup file off the host.
// objectstore.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) error
}

// FileName returns the name of a backup file taken at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("conductor-backup-%s-%s.jsonl",
		t.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// Scheduler dumps all databases into the backup directory on a cron
// schedule and optionally uploads each file.
type Scheduler struct {
	dumper   *Dumper
	schedule string
	dir      string
	uploader Uploader
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a backup scheduler. uploader may be nil.
func NewScheduler(dumper *Dumper, cfg config.BackupConfig, uploader Uploader) *Scheduler {
	dir := cfg.Directory
	if dir == "" {
		dir = config.DefaultBackupDirectory
	}
	return &Scheduler{
		dumper:   dumper,
		schedule: cfg.Schedule,
		dir:      dir,
		uploader: uploader,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "notebook.backup.scheduler"),
	}
}

// Start schedules backups using the configured cron expression, e.g.
// "0 2 * * *" for daily at 2 AM. With no schedule it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("backup schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx, "scheduled"); err != nil {
			s.logger.Error("scheduled backup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("backup scheduler started",
		"schedule", s.schedule,
		"directory", s.dir,
		"upload", s.uploader != nil,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce writes one backup file and returns its path. The file appears
// under its final name only once the dump is complete.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := FileName(time.Now())
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	stats, err := s.dumper.Dump(ctx, f, WithTrigger(trigger))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to finalize backup file: %w", err)
	}

	s.logger.Info("backup written",
		"path", final,
		"databases", stats.Databases,
		"documents", stats.Documents,
	)

	if s.uploader != nil {
		if err := s.upload(ctx, final, name); err != nil {
			return final, err
		}
	}
	return final, nil
}

func (s *Scheduler) upload(ctx context.Context, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen backup file: %w", err)
	}
	defer f.Close()
	return s.uploader.Upload(ctx, name, f)
}

// Stop stops the scheduler and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("backup scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled backup time, or nil.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
