package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"splicer/internal/deletion"
	"splicer/internal/ffmpeg"
	"splicer/internal/history"
	"splicer/internal/logging"
	"splicer/internal/services"
)

const (
	eventBuffer = 256
	// defaultProbeTimeout bounds the input duration probe so StartMerge
	// returns promptly even when ffprobe stalls.
	defaultProbeTimeout = 3 * time.Second
	// defaultSpawnWait bounds how long a cancel waits for an in-flight spawn
	// before giving up on killing the process itself.
	defaultSpawnWait = 2 * time.Second
)

// Scripts creates and removes concat scripts.
type Scripts interface {
	Create(inputs []string) (string, error)
	Remove(path string) error
}

// Merger runs and cancels ffmpeg concat processes.
type Merger interface {
	Start(ctx context.Context, req ffmpeg.Request, onEvent func(ffmpeg.Event)) (*ffmpeg.Handle, error)
	Cancel(h *ffmpeg.Handle) bool
}

// Deleter force-removes a path.
type Deleter interface {
	Delete(ctx context.Context, path string) deletion.Result
}

// Recorder persists job transitions.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// DurationProbe returns the summed duration of the inputs in seconds.
type DurationProbe func(ctx context.Context, paths []string) (float64, error)

// Option configures the controller.
type Option func(*Controller)

// WithRecorder records job transitions in a history ledger.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithDurationProbe supplies the total input duration used for percentages.
func WithDurationProbe(p DurationProbe) Option {
	return func(c *Controller) {
		c.probe = p
	}
}

// WithProbeTimeout overrides how long StartMerge waits for the duration probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// WithLockDir enables advisory output locks stored under dir.
func WithLockDir(dir string) Option {
	return func(c *Controller) {
		c.lockDir = strings.TrimSpace(dir)
	}
}

// Controller owns the single merge slot.
type Controller struct {
	scripts  Scripts
	merger   Merger
	deleter  Deleter
	probe    DurationProbe
	recorder Recorder
	lockDir  string
	now      func() time.Time
	logger   *slog.Logger

	probeTimeout time.Duration
	spawnWait    time.Duration

	slot atomic.Pointer[job]
}

// New constructs a controller from its collaborators. Script removal falls
// back to deleter when a plain remove fails.
func New(scripts Scripts, merger Merger, deleter Deleter, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		scripts:      withDeleteFallback(scripts, deleter, logger),
		merger:       merger,
		deleter:      deleter,
		now:          time.Now,
		logger:       logging.NewComponentLogger(logger, "jobs"),
		probeTimeout: defaultProbeTimeout,
		spawnWait:    defaultSpawnWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type job struct {
	id        string
	inputs    []string
	output    string
	startedAt time.Time

	// abort stops the probe and spawn phase of StartMerge. spawned is
	// closed once StartMerge has either set handle or decided not to spawn.
	abort   context.CancelFunc
	spawned chan struct{}

	mu       sync.Mutex
	state    State
	script   string
	handle   *ffmpeg.Handle
	progress ffmpeg.Progress
	seq      int64
	events   chan Event
	closed   bool
	lock     *flock.Flock
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:         j.id,
		Inputs:     slices.Clone(j.inputs),
		OutputPath: j.output,
		State:      j.state,
		StartedAt:  j.startedAt,
		Progress:   j.progress,
	}
}

// push appends an event and closes the stream after a terminal one. Callers
// hold j.mu. Progress events are dropped when the buffer is full; a terminal
// event evicts the oldest buffered event instead.
func (j *job) push(ev Event) {
	if j.closed {
		return
	}
	j.seq++
	ev.Seq = j.seq
	ev.JobID = j.id
	if ev.Kind.Terminal() {
		select {
		case j.events <- ev:
		default:
			select {
			case <-j.events:
			default:
			}
			j.events <- ev
		}
		close(j.events)
		j.closed = true
		return
	}
	select {
	case j.events <- ev:
	default:
	}
}

// StartMerge claims the slot and starts concatenating inputs into output.
// It returns as soon as the process is running.
func (c *Controller) StartMerge(ctx context.Context, inputs []string, output string) (*Stream, error) {
	if len(inputs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "jobs", "start", "at least one input is required", nil)
	}
	if strings.TrimSpace(output) == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "start", "output path is required", nil)
	}

	startCtx, abort := context.WithCancel(ctx)
	defer abort()
	j := &job{
		id:        uuid.NewString(),
		inputs:    slices.Clone(inputs),
		output:    output,
		startedAt: c.now(),
		state:     StateRunning,
		events:    make(chan Event, eventBuffer),
		abort:     abort,
		spawned:   make(chan struct{}),
	}
	if !c.slot.CompareAndSwap(nil, j) {
		return nil, services.Wrap(services.ErrAlreadyRunning, "jobs", "start", "a merge is already in progress", nil)
	}
	defer close(j.spawned)

	ctx = services.WithJobID(ctx, j.id)
	startCtx = services.WithJobID(startCtx, j.id)
	logger := logging.WithContext(ctx, c.logger)

	if err := c.lockOutput(j); err != nil {
		c.slot.CompareAndSwap(j, nil)
		return nil, err
	}
	c.record(ctx, j, StateRunning, "")

	var total float64
	if c.probe != nil {
		probeCtx, cancel := context.WithTimeout(startCtx, c.probeTimeout)
		seconds, err := c.probe(probeCtx, inputs)
		cancel()
		if err != nil {
			logging.WarnWithContext(logger, "input duration unavailable", "duration_probe_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "progress percentage stays at 0 until the merge ends"),
			)
		}
		total = seconds
	}

	script, err := c.scripts.Create(inputs)
	if err != nil {
		c.release(j)
		c.record(ctx, j, StateFailed, err.Error())
		return nil, err
	}
	j.mu.Lock()
	j.script = script
	cancelled := j.state != StateRunning
	j.mu.Unlock()
	stream := &Stream{jobID: j.id, events: j.events}
	if cancelled {
		c.removeScript(logger, script)
		return stream, nil
	}

	// The process outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)
	handle, err := c.merger.Start(runCtx, ffmpeg.Request{
		ScriptPath:   script,
		OutputPath:   output,
		TotalSeconds: total,
	}, func(ev ffmpeg.Event) { c.relay(j, ev) })
	if err != nil {
		c.removeScript(logger, script)
		c.release(j)
		c.record(runCtx, j, StateFailed, err.Error())
		return nil, err
	}

	j.mu.Lock()
	j.handle = handle
	lateCancel := j.state == StateCancelled
	j.mu.Unlock()
	if lateCancel {
		// The cancel gave up waiting for this spawn; the process is ours to stop.
		c.merger.Cancel(handle)
		return stream, nil
	}

	logger.Info("merge started",
		logging.Int("inputs", len(inputs)),
		logging.String("output", output),
		logging.String("script", script),
	)
	return stream, nil
}

// relay maps orchestrator events onto the job stream while it is running.
// On a terminal event the slot is freed and the transition recorded before
// the event is published, so a consumer that sees it can start the next job.
func (c *Controller) relay(j *job, ev ffmpeg.Event) {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return
	}
	var terminal Event
	switch ev.Kind {
	case ffmpeg.EventProgress:
		j.progress = ev.Progress
		j.push(Event{Kind: EventProgress, Progress: ev.Progress})
		j.mu.Unlock()
		return
	case ffmpeg.EventCompleted:
		j.state = StateCompleted
		j.progress = ev.Progress
		terminal = Event{Kind: EventCompleted, Progress: ev.Progress}
	case ffmpeg.EventFailed:
		j.state = StateFailed
		terminal = Event{
			Kind:      EventFailed,
			Progress:  j.progress,
			Error:     errorString(ev.Err),
			ErrorKind: services.Kind(ev.Err),
		}
	default:
		j.mu.Unlock()
		return
	}
	state := j.state
	j.mu.Unlock()

	c.release(j)
	c.record(context.Background(), j, state, terminal.Error)

	j.mu.Lock()
	j.push(terminal)
	j.mu.Unlock()
}

// CancelMerge stops the active job, if any, and then force-deletes output.
// An empty output targets the active job's output. Repeated calls are safe.
func (c *Controller) CancelMerge(ctx context.Context, output string) deletion.Result {
	logger := logging.WithContext(ctx, c.logger)
	target := strings.TrimSpace(output)

	if j := c.slot.Load(); j != nil {
		if target == "" {
			target = j.output
		} else if !samePath(target, j.output) {
			logging.WarnWithContext(logger, "cancel target differs from active output", "cancel_output_mismatch",
				logging.String("requested", target),
				logging.String("active", j.output),
				logging.String(logging.FieldErrorHint, "the active merge is cancelled and only the requested path is deleted"),
			)
		}
		c.cancelJob(logging.WithContext(services.WithJobID(ctx, j.id), c.logger), j)
	}

	if target == "" {
		return deletion.Result{Success: true, Reason: "nothing to delete"}
	}
	return c.deleter.Delete(ctx, target)
}

// cancelJob moves j to Cancelling, waits for an in-flight spawn, stops the
// process and only then frees the slot, so no process outlives the
// acknowledgement.
func (c *Controller) cancelJob(logger *slog.Logger, j *job) {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return
	}
	j.state = StateCancelling
	j.mu.Unlock()

	j.abort()
	timer := time.NewTimer(c.spawnWait)
	select {
	case <-j.spawned:
	case <-timer.C:
		logging.WarnWithContext(logger, "ffmpeg spawn still in progress at cancel", "cancel_spawn_pending",
			logging.Duration("waited", c.spawnWait),
			logging.String(logging.FieldImpact, "the process is stopped as soon as it starts"),
		)
	}
	timer.Stop()

	j.mu.Lock()
	handle := j.handle
	script := j.script
	j.mu.Unlock()

	if handle != nil {
		c.merger.Cancel(handle)
	}
	c.removeScript(logger, script)

	j.mu.Lock()
	j.state = StateCancelled
	j.mu.Unlock()

	c.release(j)
	c.record(context.Background(), j, StateCancelled, "")
	logger.Info("merge cancelled", logging.String("output", j.output))

	j.mu.Lock()
	j.push(Event{Kind: EventCancelled, Progress: j.progress})
	j.mu.Unlock()
}

// ForceDelete runs the deletion engine on path.
func (c *Controller) ForceDelete(ctx context.Context, path string) deletion.Result {
	return c.deleter.Delete(ctx, path)
}

// Current returns the active job, if any.
func (c *Controller) Current() (Snapshot, bool) {
	j := c.slot.Load()
	if j == nil {
		return Snapshot{State: StateIdle}, false
	}
	return j.snapshot(), true
}

func (c *Controller) lockOutput(j *job) error {
	if c.lockDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.lockDir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "jobs", "lock output", c.lockDir, err)
	}
	lock := flock.New(filepath.Join(c.lockDir, lockName(j.output)))
	locked, err := lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrAlreadyRunning, "jobs", "lock output", j.output, err)
	}
	if !locked {
		return services.Wrap(services.ErrAlreadyRunning, "jobs", "lock output",
			fmt.Sprintf("%s is being written by another splicer process", j.output), nil)
	}
	j.mu.Lock()
	j.lock = lock
	j.mu.Unlock()
	return nil
}

// release drops the output lock and frees the slot.
func (c *Controller) release(j *job) {
	j.mu.Lock()
	lock := j.lock
	j.lock = nil
	j.mu.Unlock()
	if lock != nil {
		if err := lock.Unlock(); err != nil {
			c.logger.Debug("output lock release failed", logging.Error(err))
		}
	}
	c.slot.CompareAndSwap(j, nil)
}

func (c *Controller) removeScript(logger *slog.Logger, script string) {
	if script == "" {
		return
	}
	if err := c.scripts.Remove(script); err != nil {
		logging.WarnWithContext(logger, "concat script cleanup failed", "script_cleanup_failed",
			logging.String("path", script),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the leftover script manually"),
		)
	}
}

func (c *Controller) record(ctx context.Context, j *job, state State, errMsg string) {
	if c.recorder == nil {
		return
	}
	entry := history.Entry{
		JobID:      j.id,
		Inputs:     j.inputs,
		OutputPath: j.output,
		State:      string(state),
		Error:      errMsg,
		StartedAt:  j.startedAt,
	}
	if state.Terminal() {
		entry.FinishedAt = c.now()
	}
	if err := c.recorder.Record(ctx, entry); err != nil {
		logging.WarnWithContext(c.logger, "history record failed", "history_record_failed",
			logging.String(logging.FieldJobID, j.id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database path is writable"),
		)
	}
}

func lockName(output string) string {
	key := output
	if abs, err := filepath.Abs(output); err == nil {
		key = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(key)))
	return hex.EncodeToString(sum[:8]) + ".lock"
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && filepath.Clean(absA) == filepath.Clean(absB)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
