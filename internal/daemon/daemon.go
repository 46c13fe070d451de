package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"splicer/internal/concat"
	"splicer/internal/config"
	"splicer/internal/deletion"
	"splicer/internal/deps"
	"splicer/internal/history"
	"splicer/internal/jobs"
	"splicer/internal/logging"
	"splicer/internal/media/ffprobe"
	"splicer/internal/preflight"
	"splicer/internal/services"
)

// staleScriptAge is how old a leftover concat script must be before the
// startup sweep removes it.
const staleScriptAge = time.Hour

// Daemon owns the merge controller and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	jobs    *jobs.Controller
	history *history.Store
	scripts *concat.Manager
	events  *EventLog

	ffmpeg  string
	ffprobe string

	lockPath string
	lock     *flock.Flock

	// mu orders Start, Stop and StartMerge so that no relay is added once
	// Stop has begun waiting for them.
	mu       sync.Mutex
	running  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	relays   sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Job          *jobs.Snapshot
	LockPath     string
	HistoryPath  string
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies. The history ledger
// is opened only when enabled.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		scripts:  concat.NewManager(cfg.Paths.ScriptDir, logger),
		events:   NewEventLog(0, 0),
		ffmpeg:   deps.ResolveTool(cfg.Tools.FFmpeg),
		ffprobe:  deps.ResolveTool(cfg.Tools.FFprobe),
		lockPath: cfg.DaemonLockPath(),
		lock:     flock.New(cfg.DaemonLockPath()),
		done:     make(chan struct{}),
	}

	var opts []jobs.Option
	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.history = store
		opts = append(opts, jobs.WithRecorder(store))
	}
	ctrl, err := jobs.NewFromConfig(cfg, logger, opts...)
	if err != nil {
		_ = d.history.Close()
		return nil, err
	}
	d.jobs = ctrl
	return d, nil
}

// Start acquires the daemon lock and sweeps scripts left by crashed runs.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another splicer daemon instance is already running")
	}

	if removed, err := d.scripts.Sweep(staleScriptAge); err != nil {
		logging.WarnWithContext(d.logger, "leftover script sweep failed", "script_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the script directory"),
		)
	} else if removed > 0 {
		d.logger.Info("removed leftover concat scripts", logging.Int("count", removed))
	}

	d.pruneHistory(ctx)

	for _, check := range preflight.Failed(preflight.RunAll(d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "merges writing to this location will fail"),
		)
	}

	d.running.Store(true)
	d.logger.Info("splicer daemon started",
		logging.String("lock", d.lockPath),
		logging.String("ffmpeg", d.ffmpeg),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop cancels any active merge and releases the daemon lock. It is safe to
// call more than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	d.running.Store(false)
	d.mu.Unlock()

	if snap, ok := d.jobs.Current(); ok {
		result := d.jobs.CancelMerge(context.Background(), snap.OutputPath)
		if !result.Success {
			logging.WarnWithContext(d.logger, "partial output left after shutdown", "shutdown_cleanup_failed",
				logging.String("path", snap.OutputPath),
				logging.String(logging.FieldErrorHint, result.Remediation),
			)
		}
	}
	d.relays.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.stopOnce.Do(func() { close(d.done) })
	d.logger.Info("splicer daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Done is closed once Stop has run.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// StartMerge starts a merge and buffers its events for polling. It is
// rejected with ErrUnavailable once Stop has begun.
func (d *Daemon) StartMerge(ctx context.Context, inputs []string, output string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return "", services.Wrap(services.ErrUnavailable, "daemon", "start merge", "daemon is not running", nil)
	}
	stream, err := d.jobs.StartMerge(ctx, inputs, output)
	if err != nil {
		return "", err
	}
	d.events.Open(stream.JobID())
	d.relays.Add(1)
	go func() {
		defer d.relays.Done()
		for ev := range stream.Events() {
			d.events.Publish(ev)
		}
	}()
	return stream.JobID(), nil
}

// Events returns buffered events for jobID after sinceSeq.
func (d *Daemon) Events(jobID string, sinceSeq int64) ([]jobs.Event, bool, error) {
	events, done, known := d.events.Since(jobID, sinceSeq)
	if !known {
		return nil, false, services.Wrap(services.ErrValidation, "daemon", "events", fmt.Sprintf("unknown job %q", jobID), nil)
	}
	return events, done, nil
}

// CancelMerge cancels the active merge and force-deletes output.
func (d *Daemon) CancelMerge(ctx context.Context, output string) deletion.Result {
	return d.jobs.CancelMerge(ctx, output)
}

// ForceDelete force-deletes path.
func (d *Daemon) ForceDelete(ctx context.Context, path string) deletion.Result {
	return d.jobs.ForceDelete(ctx, path)
}

// MediaInfo probes path for duration and size.
func (d *Daemon) MediaInfo(ctx context.Context, path string) (ffprobe.Info, error) {
	return ffprobe.MediaInfo(ctx, d.ffprobe, path)
}

// FileExists reports whether path exists.
func (d *Daemon) FileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the size of path in bytes.
func (d *Daemon) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, services.Wrap(services.ErrValidation, "daemon", "file size", fmt.Sprintf("file not found: %s", path), nil)
		}
		return 0, services.Wrap(services.ErrIO, "daemon", "file size", path, err)
	}
	return info.Size(), nil
}

// ToolCheck reports the version line of each external tool.
func (d *Daemon) ToolCheck(ctx context.Context) []deps.VersionInfo {
	return []deps.VersionInfo{
		deps.ToolVersion(ctx, d.ffmpeg),
		deps.ToolVersion(ctx, d.ffprobe),
	}
}

// History lists recorded jobs, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if d.history == nil {
		return nil, errors.New("history is disabled; set history.enabled = true in the config")
	}
	return d.history.List(ctx, limit)
}

// HistoryEntry returns the recorded entry for jobID.
func (d *Daemon) HistoryEntry(ctx context.Context, jobID string) (*history.Entry, error) {
	if d.history == nil {
		return nil, errors.New("history is disabled; set history.enabled = true in the config")
	}
	entry, err := d.history.Get(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, services.Wrap(services.ErrValidation, "daemon", "history", fmt.Sprintf("unknown job %q", jobID), nil)
	}
	return entry, nil
}

// pruneHistory drops finished entries older than the configured retention.
func (d *Daemon) pruneHistory(ctx context.Context) {
	retention := d.cfg.HistoryRetention()
	if d.history == nil || retention <= 0 {
		return
	}
	removed, err := d.history.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logging.WarnWithContext(d.logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old history entries are kept until the next start"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("pruned history entries", logging.Int("count", int(removed)), logging.Duration("retention", retention))
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(_ context.Context) Status {
	status := Status{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		LockPath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Checks:       preflight.RunAll(d.cfg),
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	if snap, ok := d.jobs.Current(); ok {
		status.Job = &snap
	}
	return status
}
