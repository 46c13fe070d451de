package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateDeletion(); err != nil {
		return err
	}
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.GracePeriodMS < 0 {
		return errors.New("merge.grace_period_ms must be >= 0")
	}
	if c.Merge.GracePeriodMS > 5000 {
		return errors.New("merge.grace_period_ms must be <= 5000")
	}
	return nil
}

func (c *Config) validateDeletion() error {
	d := c.Deletion
	if d.MaxAttempts > 50 {
		return fmt.Errorf("deletion.max_attempts must be <= 50 (got %d)", d.MaxAttempts)
	}
	for name, value := range map[string]int{
		"deletion.backoff_ms":       d.BackoffMS,
		"deletion.confirm_delay_ms": d.ConfirmDelayMS,
		"deletion.error_pause_ms":   d.ErrorPauseMS,
		"deletion.settle_delay_ms":  d.SettleDelayMS,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if d.BackoffMS > d.MaxBackoffMS {
		return errors.New("deletion.backoff_ms must not exceed deletion.max_backoff_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}
