package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"faims3/conductor/pkg/config"
)

// Suffixes appended to inbox files once processed.
const (
	RestoredSuffix = ".restored"
	FailedSuffix   = ".failed"
)

// IsBackupFile reports whether name looks like a backup file the inbox
// should restore.
func IsBackupFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".jsonl") || strings.HasSuffix(base, ".jsonl.gz")
}

// InboxWatcher restores backup files dropped into a directory. Each file
// is restored once it has been quiet for the debounce interval, then
// renamed with RestoredSuffix or FailedSuffix.
type InboxWatcher struct {
	watcher  *fsnotify.Watcher
	restorer *Restorer
	dir      string
	debounce *Debouncer
	logger   *slog.Logger

	// restoreMu serializes restores, possibly with other restore paths.
	restoreMu *sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewInboxWatcher creates a watcher for cfg.Inbox. Restores hold lock, so
// passing the lock of another restore path keeps the two from writing
// concurrently. A nil lock serializes inbox restores only.
func NewInboxWatcher(restorer *Restorer, cfg config.BackupConfig, lock *sync.Mutex) (*InboxWatcher, error) {
	if cfg.Inbox == "" {
		return nil, fmt.Errorf("backup inbox directory is not configured")
	}
	interval := cfg.InboxDebounce
	if interval <= 0 {
		interval = config.DefaultInboxDebounce
	}

	if lock == nil {
		lock = new(sync.Mutex)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &InboxWatcher{
		watcher:   watcher,
		restorer:  restorer,
		restoreMu: lock,
		dir:       cfg.Inbox,
		debounce:  NewDebouncer(interval),
		logger:    slog.Default().With("component", "notebook.backup.inbox"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Watch restores files already in the inbox, then watches it until ctx is
// cancelled or Stop is called.
func (iw *InboxWatcher) Watch(ctx context.Context) error {
	iw.mu.Lock()
	if iw.running {
		iw.mu.Unlock()
		return fmt.Errorf("inbox watcher already running")
	}
	iw.running = true
	iw.mu.Unlock()

	defer func() {
		iw.mu.Lock()
		iw.running = false
		iw.mu.Unlock()
		close(iw.doneCh)
	}()

	if err := os.MkdirAll(iw.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	if err := iw.watcher.Add(iw.dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	iw.logger.Info("inbox watcher started", "path", iw.dir)

	entries, err := os.ReadDir(iw.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && IsBackupFile(entry.Name()) {
			iw.schedule(ctx, filepath.Join(iw.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			iw.logger.Info("inbox watcher stopped (context cancelled)")
			return nil

		case <-iw.stopCh:
			iw.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-iw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsBackupFile(event.Name) {
				continue
			}
			iw.logger.Debug("inbox event", "path", event.Name, "op", event.Op.String())
			iw.schedule(ctx, event.Name)

		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			iw.logger.Error("inbox watcher error", "error", err)
		}
	}
}

func (iw *InboxWatcher) schedule(ctx context.Context, path string) {
	iw.debounce.Trigger(path, func() {
		iw.process(ctx, path)
	})
}

// process restores one file and renames it by outcome.
func (iw *InboxWatcher) process(ctx context.Context, path string) {
	iw.restoreMu.Lock()
	defer iw.restoreMu.Unlock()

	if _, err := os.Stat(path); err != nil {
		// Already processed by an earlier trigger.
		return
	}

	suffix := RestoredSuffix
	stats, err := iw.restorer.RestoreFile(ctx, path)
	if err != nil {
		suffix = FailedSuffix
		iw.logger.Error("inbox restore failed", "path", path, "error", err)
	} else {
		iw.logger.Info("inbox restore completed",
			"path", path,
			"written", stats.Written,
			"conflicts", stats.Conflicts,
			"failed", stats.Failed,
		)
	}

	if err := os.Rename(path, path+suffix); err != nil {
		iw.logger.Error("failed to rename inbox file", "path", path, "error", err)
	}
}

// IsRunning returns true while Watch is running.
func (iw *InboxWatcher) IsRunning() bool {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	return iw.running
}

// Stop stops the watcher and cancels pending restores.
func (iw *InboxWatcher) Stop() error {
	iw.mu.Lock()
	if !iw.running {
		iw.mu.Unlock()
		return iw.close()
	}
	iw.mu.Unlock()

	close(iw.stopCh)
	<-iw.doneCh
	return iw.close()
}

func (iw *InboxWatcher) close() error {
	iw.debounce.Stop()
	if err := iw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Debouncer delays a callback per key until events for that key have been
// quiet for the interval.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timers   map[string]*time.Timer
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		timers:   make(map[string]*time.Timer),
	}
}

// Trigger (re)starts the timer of key. callback runs once the interval
// passes without another Trigger for the same key.
func (d *Debouncer) Trigger(key string, callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		current := d.timers[key] == timer && !d.stopped
		if current {
			delete(d.timers, key)
		}
		d.mu.Unlock()

		if current {
			callback()
		}
	})
	d.timers[key] = timer
}

// Stop cancels all pending callbacks. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
