package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"splicer/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "splicer")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantState, "splicer.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Paths.ScriptDir != os.TempDir() {
		t.Fatalf("expected scripts in OS temp dir, got %q", cfg.Paths.ScriptDir)
	}
	if cfg.History.Enabled {
		t.Fatal("expected history disabled by default")
	}
	if cfg.History.Path != filepath.Join(wantState, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
	if cfg.Deletion.MaxAttempts != 10 {
		t.Fatalf("expected 10 deletion attempts, got %d", cfg.Deletion.MaxAttempts)
	}
	if got := cfg.GracePeriod().Milliseconds(); got != 500 {
		t.Fatalf("expected 500ms grace period, got %d", got)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"state_dir":  "~/state",
			"script_dir": "~/scripts",
		},
		"tools": map[string]any{
			"ffmpeg": "/opt/ffmpeg/bin/ffmpeg",
		},
		"merge": map[string]any{
			"grace_period_ms": 250,
		},
		"deletion": map[string]any{
			"max_attempts": 3,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to load from %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.ScriptDir != filepath.Join(tempHome, "scripts") {
		t.Fatalf("unexpected script dir: %q", cfg.Paths.ScriptDir)
	}
	if cfg.Tools.FFmpeg != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected ffmpeg: %q", cfg.Tools.FFmpeg)
	}
	if cfg.Tools.FFprobe != "ffprobe" {
		t.Fatalf("expected default ffprobe, got %q", cfg.Tools.FFprobe)
	}
	if cfg.Merge.GracePeriodMS != 250 {
		t.Fatalf("unexpected grace period: %d", cfg.Merge.GracePeriodMS)
	}
	if cfg.Deletion.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts: %d", cfg.Deletion.MaxAttempts)
	}
	if cfg.Deletion.BackoffMS != 500 {
		t.Fatalf("expected untouched backoff default, got %d", cfg.Deletion.BackoffMS)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging settings, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestLoadDevelopmentUsesWorkingDirectoryForScripts(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	workDir := t.TempDir()
	t.Chdir(workDir)

	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[merge]\ndevelopment = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wd, _ := os.Getwd()
	if cfg.Paths.ScriptDir != wd {
		t.Fatalf("expected script dir %q, got %q", wd, cfg.Paths.ScriptDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative grace", func(c *config.Config) { c.Merge.GracePeriodMS = -1 }, "grace_period_ms"},
		{"huge grace", func(c *config.Config) { c.Merge.GracePeriodMS = 60000 }, "grace_period_ms"},
		{"too many attempts", func(c *config.Config) { c.Deletion.MaxAttempts = 500 }, "max_attempts"},
		{"negative settle", func(c *config.Config) { c.Deletion.SettleDelayMS = -5 }, "settle_delay_ms"},
		{"backoff above cap", func(c *config.Config) { c.Deletion.BackoffMS = 9000 }, "backoff_ms"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[merge]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected parse error for unknown key")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Deletion.SettleDelayMS != 200 {
		t.Fatalf("unexpected settle delay from sample: %d", cfg.Deletion.SettleDelayMS)
	}
}
