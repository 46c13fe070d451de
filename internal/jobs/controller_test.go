package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"splicer/internal/concat"
	"splicer/internal/deletion"
	"splicer/internal/ffmpeg"
	"splicer/internal/history"
	"splicer/internal/services"
	"splicer/internal/testsupport"
)

type fakeProcess struct {
	exit   chan error
	killed atomic.Bool
}

func (p *fakeProcess) Wait() error { return <-p.exit }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	select {
	case p.exit <- errors.New("signal: killed"):
	default:
	}
	return nil
}

type fakeRunner struct {
	mu       sync.Mutex
	startErr error
	proc     *fakeProcess
	args     []string
	stdout   func(string)
}

func (r *fakeRunner) Start(_ context.Context, _ string, args []string, onStdout, _ func(string)) (ffmpeg.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.proc = &fakeProcess{exit: make(chan error, 1)}
	r.args = args
	r.stdout = onStdout
	return r.proc, nil
}

func (r *fakeRunner) script() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.args[8]
}

func (r *fakeRunner) emit(lines ...string) {
	r.mu.Lock()
	forward := r.stdout
	r.mu.Unlock()
	for _, line := range lines {
		forward(line)
	}
}

func (r *fakeRunner) exit(err error) {
	r.mu.Lock()
	proc := r.proc
	r.mu.Unlock()
	proc.exit <- err
}

// gatedRunner holds Start until release is closed.
type gatedRunner struct {
	*fakeRunner
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedRunner) Start(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) (ffmpeg.Process, error) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return r.fakeRunner.Start(ctx, binary, args, onStdout, onStderr)
}

// stuckScripts fails every plain Remove, like a script still held open.
type stuckScripts struct {
	Scripts
	failures atomic.Int32
}

func (s *stuckScripts) Remove(path string) error {
	s.failures.Add(1)
	return services.Wrap(services.ErrIO, "concat", "remove", path, errors.New("text file busy"))
}

func fastDeleter() *deletion.Engine {
	policy := deletion.DefaultPolicy()
	policy.Backoff = time.Millisecond
	policy.MaxBackoff = 5 * time.Millisecond
	policy.ConfirmDelay = time.Millisecond
	policy.ErrorPause = time.Millisecond
	policy.SettleDelay = time.Millisecond
	return deletion.New(nil, deletion.WithPolicy(policy))
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *memoryRecorder) Record(_ context.Context, entry history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryRecorder) states() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.State)
	}
	return out
}

type fixture struct {
	ctrl      *Controller
	runner    *fakeRunner
	scriptDir string
	dir       string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	scriptDir := filepath.Join(dir, "scripts")
	runner := &fakeRunner{}
	scripts := concat.NewManager(scriptDir, nil)
	merger := ffmpeg.New("ffmpeg", scripts, nil, ffmpeg.WithRunner(runner), ffmpeg.WithGracePeriod(time.Second))
	return &fixture{
		ctrl:      New(scripts, merger, fastDeleter(), nil, opts...),
		runner:    runner,
		scriptDir: scriptDir,
		dir:       dir,
	}
}

func drain(t *testing.T, stream *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream not closed; got %+v", events)
		}
	}
}

func TestStartMergeCompletesAndCleansUp(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.dir, "out.mp4")

	stream, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4", "b.mp4"}, output)
	if err != nil {
		t.Fatalf("StartMerge returned error: %v", err)
	}
	content, err := os.ReadFile(f.runner.script())
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if string(content) != "file 'a.mp4'\nfile 'b.mp4'" {
		t.Fatalf("unexpected script %q", content)
	}
	snap, ok := f.ctrl.Current()
	if !ok || snap.State != StateRunning || snap.ID != stream.JobID() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	f.runner.emit("out_time_us=1000000", "progress=continue")
	f.runner.exit(nil)
	events := drain(t, stream)

	if len(events) != 2 {
		t.Fatalf("expected progress then completion, got %+v", events)
	}
	if events[0].Kind != EventProgress || events[0].Seq != 1 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	last := events[1]
	if last.Kind != EventCompleted || last.Seq != 2 || last.JobID != stream.JobID() {
		t.Fatalf("unexpected terminal event %+v", last)
	}
	if scripts := testsupport.ConcatScripts(t, f.scriptDir); len(scripts) != 0 {
		t.Fatalf("expected no residual scripts, got %v", scripts)
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Fatal("expected slot freed after completion")
	}
}

func TestStartMergeRejectsWhileRunning(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.dir, "out.mp4")
	if _, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output); err != nil {
		t.Fatalf("first StartMerge: %v", err)
	}

	start := time.Now()
	_, err := f.ctrl.StartMerge(context.Background(), []string{"b.mp4"}, filepath.Join(f.dir, "other.mp4"))
	if !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("rejection should be immediate, took %s", elapsed)
	}
	f.ctrl.CancelMerge(context.Background(), output)
}

func TestStartMergeValidatesInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ctrl.StartMerge(context.Background(), nil, "out.mp4"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty inputs, got %v", err)
	}
	if _, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty output, got %v", err)
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Fatal("validation failures must not claim the slot")
	}
}

func TestStartMergeSpawnFailureReleasesSlot(t *testing.T) {
	f := newFixture(t)
	f.runner.startErr = errors.New(`exec: "ffmpeg": executable file not found in $PATH`)

	_, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, filepath.Join(f.dir, "out.mp4"))
	if !errors.Is(err, services.ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Fatal("expected slot released after spawn failure")
	}
	if scripts := testsupport.ConcatScripts(t, f.scriptDir); len(scripts) != 0 {
		t.Fatalf("expected script removed after spawn failure, got %v", scripts)
	}
}

func TestFailedMergeEmitsSingleFailure(t *testing.T) {
	f := newFixture(t)
	stream, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, filepath.Join(f.dir, "out.mp4"))
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}
	f.runner.exit(errors.New("exit status 1"))
	events := drain(t, stream)
	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("expected one failure event, got %+v", events)
	}
	if events[0].ErrorKind != "external_tool" || events[0].Error == "" {
		t.Fatalf("expected classified error, got %+v", events[0])
	}
}

func TestCancelMergeAcknowledgesAndDeletesOutput(t *testing.T) {
	recorder := &memoryRecorder{}
	f := newFixture(t, WithRecorder(recorder))
	output := filepath.Join(f.dir, "out.mp4")
	testsupport.WriteFile(t, output, 1024)

	stream, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4", "b.mp4"}, output)
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}
	f.runner.emit("out_time_us=1000000", "progress=continue")

	start := time.Now()
	result := f.ctrl.CancelMerge(context.Background(), output)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancel took %s", elapsed)
	}
	if !result.Success {
		t.Fatalf("expected output deletion success, got %+v", result)
	}
	if testsupport.Exists(output) {
		t.Fatal("expected output removed")
	}
	if scripts := testsupport.ConcatScripts(t, f.scriptDir); len(scripts) != 0 {
		t.Fatalf("expected script removed, got %v", scripts)
	}
	if _, ok := f.ctrl.Current(); ok {
		t.Fatal("expected slot freed after cancel")
	}

	// Late output from the dying process must not reach the stream.
	f.runner.emit("out_time_us=2000000", "progress=continue")

	events := drain(t, stream)
	last := events[len(events)-1]
	if last.Kind != EventCancelled {
		t.Fatalf("expected cancel acknowledgement last, got %+v", events)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != EventProgress {
			t.Fatalf("unexpected event before acknowledgement %+v", ev)
		}
	}

	states := recorder.states()
	if len(states) != 2 || states[0] != "running" || states[1] != "cancelled" {
		t.Fatalf("unexpected recorded states %v", states)
	}

	again := f.ctrl.CancelMerge(context.Background(), output)
	if !again.Success || len(again.Attempts) != 0 {
		t.Fatalf("second cancel should be a no-op success, got %+v", again)
	}

	next, err := f.ctrl.StartMerge(context.Background(), []string{"c.mp4"}, output)
	if err != nil {
		t.Fatalf("expected new merge after cancel, got %v", err)
	}
	f.runner.exit(nil)
	drain(t, next)
}

func TestCancelMergeWithoutActiveJobStillDeletes(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.dir, "leftover.mp4")
	testsupport.WriteFile(t, output, 10)

	result := f.ctrl.CancelMerge(context.Background(), output)
	if !result.Success || testsupport.Exists(output) {
		t.Fatalf("expected leftover deleted, got %+v", result)
	}
}

func TestOutputLockRejectsSecondController(t *testing.T) {
	lockDir := filepath.Join(t.TempDir(), "locks")
	first := newFixture(t, WithLockDir(lockDir))
	second := newFixture(t, WithLockDir(lockDir))
	output := filepath.Join(first.dir, "shared.mp4")

	if _, err := first.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output); err != nil {
		t.Fatalf("first StartMerge: %v", err)
	}
	if _, err := second.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output); !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning from output lock, got %v", err)
	}
	if _, ok := second.ctrl.Current(); ok {
		t.Fatal("lock failure must release the slot")
	}

	first.ctrl.CancelMerge(context.Background(), output)
	stream, err := second.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output)
	if err != nil {
		t.Fatalf("expected lock free after cancel, got %v", err)
	}
	second.runner.exit(nil)
	drain(t, stream)
}

func TestStartMergeRecordsHistoryInSQLite(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistory())
	store := testsupport.MustOpenHistory(t, cfg)
	f := newFixture(t, WithRecorder(store))

	stream, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, filepath.Join(f.dir, "out.mp4"))
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}
	f.runner.exit(nil)
	drain(t, stream)

	entry, err := store.Get(context.Background(), stream.JobID())
	if err != nil {
		t.Fatalf("history Get: %v", err)
	}
	if entry == nil || entry.State != "completed" || entry.FinishedAt.IsZero() {
		t.Fatalf("unexpected history entry %+v", entry)
	}
}

func TestNewFromConfigRunsStubFFmpeg(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	cfg := testsupport.NewConfig(t,
		testsupport.WithFFmpegStub(`for last; do :; done
echo merged > "$last"
echo "out_time_us=1000000"
echo "progress=continue"
echo "out_time_us=2000000"
echo "progress=end"
`),
		testsupport.WithFFprobeStub(`echo '{"format":{"duration":"1"}}'
`),
	)
	ctrl, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	output := filepath.Join(testsupport.BaseDir(cfg), "merged.mp4")

	stream, err := ctrl.StartMerge(context.Background(), []string{"a.mp4", "b.mp4"}, output)
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}
	events := drain(t, stream)
	if len(events) != 3 {
		t.Fatalf("expected two progress events and completion, got %+v", events)
	}
	if events[0].Progress.Percent != 50 || events[2].Kind != EventCompleted {
		t.Fatalf("unexpected events %+v", events)
	}
	if !testsupport.Exists(output) {
		t.Fatal("expected stub to write output")
	}
	if scripts := testsupport.ConcatScripts(t, cfg.Paths.ScriptDir); len(scripts) != 0 {
		t.Fatalf("expected no residual scripts, got %v", scripts)
	}
}

func TestNewFromConfigStartThenCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	cfg := testsupport.NewConfig(t,
		testsupport.WithFFmpegStub("exec sleep 30\n"),
		testsupport.WithFFprobeStub("exit 1\n"),
	)
	ctrl, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	output := filepath.Join(testsupport.BaseDir(cfg), "merged.mp4")
	testsupport.WriteFile(t, output, 64)

	stream, err := ctrl.StartMerge(context.Background(), []string{"a.mp4", "b.mp4"}, output)
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}

	start := time.Now()
	result := ctrl.CancelMerge(context.Background(), output)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancel exceeded budget: %s", elapsed)
	}
	if !result.Success {
		t.Fatalf("expected output deleted, got %+v", result)
	}
	events := drain(t, stream)
	if len(events) != 1 || events[0].Kind != EventCancelled {
		t.Fatalf("expected only the cancel acknowledgement, got %+v", events)
	}
	if scripts := testsupport.ConcatScripts(t, cfg.Paths.ScriptDir); len(scripts) != 0 {
		t.Fatalf("expected script removed, got %v", scripts)
	}
	if _, ok := ctrl.Current(); ok {
		t.Fatal("expected slot freed")
	}
}

func TestCancelDuringSpawnKillsProcessBeforeReturning(t *testing.T) {
	dir := t.TempDir()
	scriptDir := filepath.Join(dir, "scripts")
	runner := &gatedRunner{
		fakeRunner: &fakeRunner{},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	scripts := concat.NewManager(scriptDir, nil)
	merger := ffmpeg.New("ffmpeg", scripts, nil, ffmpeg.WithRunner(runner), ffmpeg.WithGracePeriod(time.Second))
	ctrl := New(scripts, merger, fastDeleter(), nil)
	output := filepath.Join(dir, "out.mp4")
	testsupport.WriteFile(t, output, 256)

	type started struct {
		stream *Stream
		err    error
	}
	startDone := make(chan started, 1)
	go func() {
		stream, err := ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output)
		startDone <- started{stream, err}
	}()
	select {
	case <-runner.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("spawn never began")
	}

	cancelDone := make(chan deletion.Result, 1)
	go func() { cancelDone <- ctrl.CancelMerge(context.Background(), output) }()
	select {
	case result := <-cancelDone:
		t.Fatalf("cancel returned while the spawn was in flight: %+v", result)
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	var result deletion.Result
	select {
	case result = <-cancelDone:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not return after spawn finished")
	}

	runner.mu.Lock()
	proc := runner.proc
	runner.mu.Unlock()
	if proc == nil || !proc.killed.Load() {
		t.Fatal("expected the spawned process killed before cancel returned")
	}
	if !result.Success || testsupport.Exists(output) {
		t.Fatalf("expected output deleted, got %+v", result)
	}
	if _, ok := ctrl.Current(); ok {
		t.Fatal("expected slot freed")
	}

	got := <-startDone
	if got.err != nil {
		t.Fatalf("StartMerge: %v", got.err)
	}
	events := drain(t, got.stream)
	if len(events) != 1 || events[0].Kind != EventCancelled {
		t.Fatalf("expected only the cancel acknowledgement, got %+v", events)
	}
	if leftover := testsupport.ConcatScripts(t, scriptDir); len(leftover) != 0 {
		t.Fatalf("expected script removed, got %v", leftover)
	}
}

func TestCancelAbortsSlowDurationLookup(t *testing.T) {
	entered := make(chan struct{})
	probe := func(ctx context.Context, _ []string) (float64, error) {
		close(entered)
		<-ctx.Done()
		return 0, ctx.Err()
	}
	f := newFixture(t, WithDurationProbe(probe), WithProbeTimeout(time.Minute))
	output := filepath.Join(f.dir, "out.mp4")

	type started struct {
		stream *Stream
		err    error
	}
	startDone := make(chan started, 1)
	go func() {
		stream, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output)
		startDone <- started{stream, err}
	}()
	<-entered

	f.ctrl.CancelMerge(context.Background(), output)
	var got started
	select {
	case got = <-startDone:
	case <-time.After(5 * time.Second):
		t.Fatal("StartMerge stayed blocked on the duration lookup after cancel")
	}
	if got.err != nil {
		t.Fatalf("StartMerge: %v", got.err)
	}
	events := drain(t, got.stream)
	if len(events) != 1 || events[0].Kind != EventCancelled {
		t.Fatalf("expected only the cancel acknowledgement, got %+v", events)
	}
	f.runner.mu.Lock()
	spawned := f.runner.proc != nil
	f.runner.mu.Unlock()
	if spawned {
		t.Fatal("ffmpeg must not start after the merge was cancelled")
	}
	if leftover := testsupport.ConcatScripts(t, f.scriptDir); len(leftover) != 0 {
		t.Fatalf("expected script removed, got %v", leftover)
	}
}

func TestStartMergeBoundsDurationLookup(t *testing.T) {
	probe := func(ctx context.Context, _ []string) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	f := newFixture(t, WithDurationProbe(probe), WithProbeTimeout(50*time.Millisecond))
	output := filepath.Join(f.dir, "out.mp4")

	start := time.Now()
	stream, err := f.ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output)
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("StartMerge waited %s on a stalled duration lookup", elapsed)
	}
	if snap, ok := f.ctrl.Current(); !ok || snap.State != StateRunning {
		t.Fatalf("expected running job, got %+v", snap)
	}
	f.runner.exit(nil)
	drain(t, stream)
}

func TestScriptCleanupFallsBackToDeletionEngine(t *testing.T) {
	newStuck := func(t *testing.T) (*Controller, *fakeRunner, *stuckScripts, string) {
		dir := t.TempDir()
		scriptDir := filepath.Join(dir, "scripts")
		runner := &fakeRunner{}
		stuck := &stuckScripts{Scripts: concat.NewManager(scriptDir, nil)}
		deleter := fastDeleter()
		scripts := withDeleteFallback(stuck, deleter, nil)
		merger := ffmpeg.New("ffmpeg", scripts, nil, ffmpeg.WithRunner(runner), ffmpeg.WithGracePeriod(time.Second))
		return New(scripts, merger, deleter, nil), runner, stuck, scriptDir
	}

	t.Run("cancel", func(t *testing.T) {
		ctrl, _, stuck, scriptDir := newStuck(t)
		output := filepath.Join(filepath.Dir(scriptDir), "out.mp4")
		stream, err := ctrl.StartMerge(context.Background(), []string{"a.mp4"}, output)
		if err != nil {
			t.Fatalf("StartMerge: %v", err)
		}
		ctrl.CancelMerge(context.Background(), output)
		drain(t, stream)
		if stuck.failures.Load() == 0 {
			t.Fatal("expected the plain remove to be attempted")
		}
		if leftover := testsupport.ConcatScripts(t, scriptDir); len(leftover) != 0 {
			t.Fatalf("expected script removed by fallback, got %v", leftover)
		}
	})

	t.Run("failure", func(t *testing.T) {
		ctrl, runner, stuck, scriptDir := newStuck(t)
		stream, err := ctrl.StartMerge(context.Background(), []string{"a.mp4"}, filepath.Join(filepath.Dir(scriptDir), "out.mp4"))
		if err != nil {
			t.Fatalf("StartMerge: %v", err)
		}
		runner.exit(errors.New("exit status 1"))
		events := drain(t, stream)
		if len(events) != 1 || events[0].Kind != EventFailed {
			t.Fatalf("expected one failure event, got %+v", events)
		}
		if stuck.failures.Load() == 0 {
			t.Fatal("expected the plain remove to be attempted")
		}
		if leftover := testsupport.ConcatScripts(t, scriptDir); len(leftover) != 0 {
			t.Fatalf("expected script removed by fallback, got %v", leftover)
		}
	})
}
