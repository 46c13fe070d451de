package deletion

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// FS is the filesystem surface the engine touches.
type FS interface {
	Stat(path string) (os.FileInfo, error)
	Remove(path string) error
	// ClearAttributes drops read-only and similar flags that block removal.
	ClearAttributes(path string) error
}

// Shell runs an external removal command.
type Shell interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type osFS struct{}

func (osFS) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (osFS) Remove(path string) error { return os.Remove(path) }

func (osFS) ClearAttributes(path string) error { return clearAttributes(path) }

type execShell struct{}

func (execShell) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	_, err := cmd.CombinedOutput()
	return err
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func exists(fsys FS, path string) bool {
	_, err := fsys.Stat(path)
	if err == nil {
		return true
	}
	// Anything other than a definite not-exist keeps the path in play.
	return !errors.Is(err, os.ErrNotExist)
}
