package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"splicer/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Deletion delays are shortened so the full retry schedule runs quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScriptDir = filepath.Join(base, "scripts")
	cfgVal.Paths.SocketPath = filepath.Join(base, "state", "splicer.sock")
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Deletion.BackoffMS = 1
	cfgVal.Deletion.MaxBackoffMS = 5
	cfgVal.Deletion.ConfirmDelayMS = 1
	cfgVal.Deletion.ErrorPauseMS = 1
	cfgVal.Deletion.SettleDelayMS = 1
	cfgVal.Merge.GracePeriodMS = 500

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithHistory enables the sqlite job ledger.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			writeStub(b.t, binDir, name, "exit 0\n")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WithFFmpegStub installs an ffmpeg shell script with the given body and
// points the config at it.
func WithFFmpegStub(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tools.FFmpeg = writeStub(b.t, filepath.Join(b.baseDir, "bin"), "ffmpeg", body)
	}
}

// WithFFprobeStub installs an ffprobe shell script with the given body and
// points the config at it.
func WithFFprobeStub(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tools.FFprobe = writeStub(b.t, filepath.Join(b.baseDir, "bin"), "ffprobe", body)
	}
}

func writeStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
