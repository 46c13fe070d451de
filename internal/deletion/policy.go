package deletion

import (
	"time"

	"splicer/internal/config"
)

// Policy holds the retry schedule. Every delay is configurable so tests can
// run the full schedule without sleeping.
type Policy struct {
	MaxAttempts  int
	Backoff      time.Duration
	MaxBackoff   time.Duration
	ConfirmDelay time.Duration
	ErrorPause   time.Duration
	SettleDelay  time.Duration
	ShellTimeout time.Duration
}

// DefaultPolicy returns the production schedule: ten attempts with a linear
// 500ms backoff capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  10,
		Backoff:      500 * time.Millisecond,
		MaxBackoff:   5 * time.Second,
		ConfirmDelay: 100 * time.Millisecond,
		ErrorPause:   time.Second,
		SettleDelay:  200 * time.Millisecond,
		ShellTimeout: 10 * time.Second,
	}
}

// PolicyFromConfig maps the [deletion] section onto a Policy.
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return DefaultPolicy()
	}
	d := cfg.Deletion
	return Policy{
		MaxAttempts:  d.MaxAttempts,
		Backoff:      time.Duration(d.BackoffMS) * time.Millisecond,
		MaxBackoff:   time.Duration(d.MaxBackoffMS) * time.Millisecond,
		ConfirmDelay: time.Duration(d.ConfirmDelayMS) * time.Millisecond,
		ErrorPause:   time.Duration(d.ErrorPauseMS) * time.Millisecond,
		SettleDelay:  time.Duration(d.SettleDelayMS) * time.Millisecond,
		ShellTimeout: time.Duration(d.ShellTimeoutSeconds) * time.Second,
	}
}

func (p Policy) backoff(attempt int) time.Duration {
	wait := p.Backoff * time.Duration(attempt)
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}
