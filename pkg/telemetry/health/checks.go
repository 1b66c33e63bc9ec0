package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Pinger is implemented by anything that can verify its backing connection,
// such as the document store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger into a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// WritableDirCheck verifies that dir exists and accepts new files. It is
// registered for the backup output directory and the restore inbox.
func WritableDirCheck(dir string) CheckFunc {
	return func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}

		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(filepath.Clean(name))
	}
}

// RunningCheck reports unhealthy while isRunning returns false. It is used
// for background workers such as the backup scheduler and inbox watcher.
func RunningCheck(component string, isRunning func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if !isRunning() {
			return errors.New(component + " is not running")
		}
		return nil
	}
}
