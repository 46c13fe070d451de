package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeDeletion()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Paths.ScriptDir = strings.TrimSpace(c.Paths.ScriptDir)
	switch {
	case c.Paths.ScriptDir != "":
		if c.Paths.ScriptDir, err = expandPath(c.Paths.ScriptDir); err != nil {
			return fmt.Errorf("paths.script_dir: %w", err)
		}
	case c.Merge.Development:
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return fmt.Errorf("paths.script_dir: resolve working directory: %w", wdErr)
		}
		c.Paths.ScriptDir = wd
	default:
		c.Paths.ScriptDir = os.TempDir()
	}

	c.Paths.SocketPath = strings.TrimSpace(c.Paths.SocketPath)
	if c.Paths.SocketPath == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, "splicer.sock")
	} else if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		if value, ok := os.LookupEnv("SPLICER_FFMPEG"); ok && strings.TrimSpace(value) != "" {
			c.Tools.FFmpeg = strings.TrimSpace(value)
		} else {
			c.Tools.FFmpeg = defaultFFmpeg
		}
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		if value, ok := os.LookupEnv("SPLICER_FFPROBE"); ok && strings.TrimSpace(value) != "" {
			c.Tools.FFprobe = strings.TrimSpace(value)
		} else {
			c.Tools.FFprobe = defaultFFprobe
		}
	}
}

func (c *Config) normalizeDeletion() {
	if c.Deletion.MaxAttempts <= 0 {
		c.Deletion.MaxAttempts = defaultDeleteMaxAttempts
	}
	if c.Deletion.MaxBackoffMS <= 0 {
		c.Deletion.MaxBackoffMS = defaultDeleteMaxBackoffMS
	}
	if c.Deletion.ShellTimeoutSeconds <= 0 {
		c.Deletion.ShellTimeoutSeconds = defaultDeleteShellTimeout
	}
}

func (c *Config) normalizeHistory() error {
	c.History.Path = strings.TrimSpace(c.History.Path)
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, defaultHistoryFile)
		return nil
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
