package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"splicer/internal/config"
	"splicer/internal/daemon"
	"splicer/internal/ipc"
	"splicer/internal/jobs"
	"splicer/internal/logging"
	"splicer/internal/services"
	"splicer/internal/testsupport"
)

func startServer(t *testing.T, cfg *config.Config) (*daemon.Daemon, *ipc.Client) {
	t.Helper()
	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return d, client
}

func TestIPCMergeRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	cfg := testsupport.NewConfig(t,
		testsupport.WithFFmpegStub(`for last; do :; done
echo merged > "$last"
echo "out_time_us=1000000"
echo "progress=continue"
echo "progress=end"
`),
		testsupport.WithFFprobeStub(`echo '{"format":{"duration":"2"}}'`+"\n"),
	)
	_, client := startServer(t, cfg)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	output := filepath.Join(testsupport.BaseDir(cfg), "merged.mp4")
	jobID, err := client.StartMerge([]string{"a.mp4"}, output)
	if err != nil {
		t.Fatalf("StartMerge RPC failed: %v", err)
	}

	var seen []jobs.Event
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := client.Follow(ctx, jobID, 10*time.Millisecond, func(ev jobs.Event) {
		seen = append(seen, ev)
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if final.Kind != jobs.EventCompleted {
		t.Fatalf("expected completion, got %+v", final)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Seq <= seen[i-1].Seq {
			t.Fatalf("events out of order: %+v", seen)
		}
	}

	exists, err := client.FileExists(output)
	if err != nil || !exists {
		t.Fatalf("FileExists = %v, %v", exists, err)
	}
	size, err := client.FileSize(output)
	if err != nil || size == 0 {
		t.Fatalf("FileSize = %d, %v", size, err)
	}
	info, err := client.MediaInfo(output)
	if err != nil {
		t.Fatalf("MediaInfo: %v", err)
	}
	if info.DurationSeconds != 2 || info.SizeBytes != size {
		t.Fatalf("unexpected media info %+v", info)
	}

	deleted, err := client.ForceDelete(output)
	if err != nil {
		t.Fatalf("ForceDelete: %v", err)
	}
	if !deleted.Success || len(deleted.Attempts) == 0 {
		t.Fatalf("unexpected delete response %+v", deleted)
	}
	if testsupport.Exists(output) {
		t.Fatal("expected output removed")
	}
}

func TestIPCStartMergeRejectionKeepsKind(t *testing.T) {
	_, client := startServer(t, testsupport.NewConfig(t))

	_, err := client.StartMerge(nil, "out.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error across IPC, got %v", err)
	}
}

func TestIPCCancelWithoutJobDeletesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)
	output := filepath.Join(testsupport.BaseDir(cfg), "partial.mp4")
	testsupport.WriteFile(t, output, 128)

	resp, err := client.CancelMerge(output)
	if err != nil {
		t.Fatalf("CancelMerge: %v", err)
	}
	if !resp.Success || testsupport.Exists(output) {
		t.Fatalf("expected output removed, got %+v", resp)
	}
}

func TestIPCMediaInfoMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)
	if _, err := client.MediaInfo(filepath.Join(testsupport.BaseDir(cfg), "nope.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIPCHistoryDisabled(t *testing.T) {
	_, client := startServer(t, testsupport.NewConfig(t))
	if _, err := client.History(5); err == nil || !strings.Contains(err.Error(), "history is disabled") {
		t.Fatalf("expected disabled history error, got %v", err)
	}
}

func TestIPCStopShutsDaemonDown(t *testing.T) {
	d, client := startServer(t, testsupport.NewConfig(t))
	resp, err := client.Stop()
	if err != nil || !resp.Stopped {
		t.Fatalf("Stop = %+v, %v", resp, err)
	}
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
