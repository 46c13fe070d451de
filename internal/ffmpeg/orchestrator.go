package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"splicer/internal/logging"
	"splicer/internal/services"
)

const (
	// DefaultGracePeriod bounds how long Cancel waits for the killed process.
	DefaultGracePeriod = 500 * time.Millisecond
	stderrTailLines    = 20
)

// EventKind distinguishes relayed orchestrator events.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is delivered to the Start callback. Err is set only for EventFailed.
type Event struct {
	Kind     EventKind
	Progress Progress
	Err      error
}

// Terminal reports whether the event ends the run.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

// ScriptRemover deletes the concat script once the process has exited.
type ScriptRemover interface {
	Remove(path string) error
}

// Request describes one concatenation run.
type Request struct {
	ScriptPath string
	OutputPath string
	// TotalSeconds is the summed input duration; zero leaves Percent at 0
	// until ffmpeg reports the end of the run.
	TotalSeconds float64
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithGracePeriod overrides how long Cancel waits for process exit.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.grace = d
		}
	}
}

// Orchestrator runs ffmpeg concat jobs and relays their progress.
type Orchestrator struct {
	binary  string
	runner  Runner
	scripts ScriptRemover
	grace   time.Duration
	logger  *slog.Logger
}

// New constructs an orchestrator for the given ffmpeg binary.
func New(binary string, scripts ScriptRemover, logger *slog.Logger, opts ...Option) *Orchestrator {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	o := &Orchestrator{
		binary:  binary,
		runner:  commandRunner{},
		scripts: scripts,
		grace:   DefaultGracePeriod,
		logger:  logging.NewComponentLogger(logger, "ffmpeg"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Binary returns the ffmpeg executable the orchestrator spawns.
func (o *Orchestrator) Binary() string {
	return o.binary
}

// Args returns the ffmpeg argument list for a concat run.
func Args(scriptPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", scriptPath,
		"-c", "copy",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}
}

// Handle tracks one running ffmpeg process.
type Handle struct {
	proc    Process
	onEvent func(Event)
	killed  atomic.Bool
	done    chan struct{}

	mu       sync.Mutex
	finished bool
	last     Progress
	tail     []string
	err      error
}

// Done is closed once the process has exited and cleanup has run.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Killed reports whether Cancel was called before the run finished.
func (h *Handle) Killed() bool {
	return h.killed.Load()
}

// Err returns the exit error once Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// emit forwards an event unless the run was cancelled or already ended.
func (h *Handle) emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished || h.killed.Load() {
		return
	}
	if ev.Terminal() {
		h.finished = true
	} else {
		h.last = ev.Progress
	}
	if h.onEvent != nil {
		h.onEvent(ev)
	}
}

func (h *Handle) recordStderr(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tail = append(h.tail, line)
	if len(h.tail) > stderrTailLines {
		h.tail = h.tail[len(h.tail)-stderrTailLines:]
	}
}

func (h *Handle) stderrTail() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.tail, "\n")
}

// Start spawns ffmpeg for req and relays events to onEvent. onEvent must not
// block; it is called with the handle's lock held so that Cancel can
// guarantee nothing is delivered after it returns.
func (o *Orchestrator) Start(ctx context.Context, req Request, onEvent func(Event)) (*Handle, error) {
	if strings.TrimSpace(req.ScriptPath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "ffmpeg", "start", "script and output paths are required", nil)
	}
	logger := logging.WithContext(ctx, o.logger)

	handle := &Handle{
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	parser := newProgressParser(req.TotalSeconds)
	onStdout := func(line string) {
		if snapshot, ok := parser.Feed(line); ok {
			handle.emit(Event{Kind: EventProgress, Progress: snapshot})
		}
	}

	args := Args(req.ScriptPath, req.OutputPath)
	proc, err := o.runner.Start(ctx, o.binary, args, onStdout, handle.recordStderr)
	if err != nil {
		return nil, services.Wrap(services.ErrSpawn, "ffmpeg", "start", o.binary, err)
	}
	handle.proc = proc

	logger.Info("ffmpeg started",
		logging.String("binary", o.binary),
		logging.String("output", req.OutputPath),
		logging.Float64("total_seconds", req.TotalSeconds),
	)

	go o.monitor(logger, handle, req)
	return handle, nil
}

func (o *Orchestrator) monitor(logger *slog.Logger, h *Handle, req Request) {
	defer close(h.done)
	waitErr := h.proc.Wait()

	if o.scripts != nil {
		if err := o.scripts.Remove(req.ScriptPath); err != nil {
			logging.WarnWithContext(logger, "concat script cleanup failed", "script_cleanup_failed",
				logging.String("path", req.ScriptPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the leftover script manually"),
			)
		}
	}

	if waitErr == nil {
		h.mu.Lock()
		final := h.last
		h.mu.Unlock()
		final.Percent = 100
		if final.Timemark == "" {
			final.Timemark = DefaultTimemark
		}
		logger.Info("ffmpeg completed", logging.String("output", req.OutputPath))
		h.emit(Event{Kind: EventCompleted, Progress: final})
		return
	}

	if h.Killed() {
		h.mu.Lock()
		h.err = waitErr
		h.mu.Unlock()
		logger.Debug("ffmpeg exited after cancel", logging.Error(waitErr))
		return
	}

	message := "exit"
	if tail := h.stderrTail(); tail != "" {
		message = fmt.Sprintf("exit: %s", tail)
	}
	failure := services.Wrap(services.ErrExternalTool, "ffmpeg", "merge", message, waitErr)
	h.mu.Lock()
	h.err = failure
	h.mu.Unlock()
	logging.ErrorWithContext(logger, "ffmpeg failed", "merge_failed",
		logging.String("output", req.OutputPath),
		logging.Error(failure),
		logging.String(logging.FieldErrorHint, "check the inputs share codecs and the output directory is writable"),
	)
	h.emit(Event{Kind: EventFailed, Err: failure})
}

// Cancel kills the process and waits up to the grace period for it to exit.
// It reports whether this call performed the cancellation; repeated calls and
// calls after natural completion are no-ops.
func (o *Orchestrator) Cancel(h *Handle) bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	if h.finished || !h.killed.CompareAndSwap(false, true) {
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	if h.proc != nil {
		if err := h.proc.Kill(); err != nil {
			o.logger.Debug("ffmpeg kill returned error", logging.Error(err))
		}
	}

	timer := time.NewTimer(o.grace)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		logging.WarnWithContext(o.logger, "ffmpeg did not exit within grace period", "cancel_grace_elapsed",
			logging.Duration("grace", o.grace),
			logging.String(logging.FieldErrorHint, "the output file may stay locked until the process exits"),
		)
	}
	return true
}
