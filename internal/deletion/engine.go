package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"splicer/internal/logging"
	"splicer/internal/services"
)

// Attempt records one strategy invocation.
type Attempt struct {
	Index    int     `json:"index"`
	Strategy string  `json:"strategy"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Result summarises a deletion. Remediation is set only on failure.
type Result struct {
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	Attempts    []Attempt `json:"attempts,omitempty"`
	Path        string    `json:"path"`
	Remediation string    `json:"remediation,omitempty"`
}

// Err returns a *Failure when the deletion did not succeed.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Failure{Path: r.Path, Reason: r.Reason, Remediation: r.Remediation}
}

// Failure reports a path that survived every strategy.
type Failure struct {
	Path        string
	Reason      string
	Remediation string
}

func (f *Failure) Error() string {
	reason := f.Reason
	if reason == "" {
		reason = "all strategies failed"
	}
	return fmt.Sprintf("delete %s: %s", f.Path, reason)
}

// Unwrap classifies the failure as ErrDeletionExhausted.
func (f *Failure) Unwrap() error {
	return services.ErrDeletionExhausted
}

// Strategy is one named removal technique. Attempts bounds how many times the
// engine invokes Run before moving to the next strategy.
type Strategy struct {
	Name     string
	Attempts int
	Run      func(ctx context.Context, path string, attempt int) (Outcome, error)
}

// Option configures the engine.
type Option func(*Engine)

// WithFS injects a filesystem (primarily for tests).
func WithFS(fsys FS) Option {
	return func(e *Engine) {
		if fsys != nil {
			e.fs = fsys
		}
	}
}

// WithShell injects the command runner used by fallback strategies.
func WithShell(shell Shell) Option {
	return func(e *Engine) {
		if shell != nil {
			e.shell = shell
		}
	}
}

// WithSleeper replaces the delay function.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithPolicy overrides the retry schedule.
func WithPolicy(policy Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithGOOS selects the platform whose fallback commands and remediation
// text are used.
func WithGOOS(goos string) Option {
	return func(e *Engine) {
		if goos = strings.TrimSpace(goos); goos != "" {
			e.goos = goos
		}
	}
}

// Engine removes files that resist deletion. It keeps no state between calls.
type Engine struct {
	fs     FS
	shell  Shell
	sleep  Sleeper
	policy Policy
	goos   string
	logger *slog.Logger
}

// New constructs an engine with the default policy and the real filesystem.
func New(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		fs:     osFS{},
		shell:  execShell{},
		sleep:  contextSleep,
		policy: DefaultPolicy(),
		goos:   runtime.GOOS,
		logger: logging.NewComponentLogger(logger, "deletion"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns the ordered strategy chain.
func (e *Engine) Strategies() []Strategy {
	strategies := []Strategy{{
		Name:     StrategyUnlink,
		Attempts: e.policy.MaxAttempts,
		Run:      e.unlink,
	}}
	for _, cmd := range fallbackCommands(e.goos, "") {
		strategy := cmd.strategy
		strategies = append(strategies, Strategy{
			Name:     strategy,
			Attempts: 1,
			Run: func(ctx context.Context, path string, _ int) (Outcome, error) {
				return e.shellRemove(ctx, strategy, path)
			},
		})
	}
	return strategies
}

// Delete removes path, escalating through the strategy chain. A path that
// does not exist is reported as success without any attempts.
func (e *Engine) Delete(ctx context.Context, path string) Result {
	logger := logging.WithContext(ctx, e.logger)
	result := Result{Path: path}
	if strings.TrimSpace(path) == "" {
		result.Reason = "path is required"
		return result
	}
	if !exists(e.fs, path) {
		result.Success = true
		result.Reason = "not found"
		return result
	}

	index := 0
	for _, strategy := range e.Strategies() {
		for attempt := 1; attempt <= strategy.Attempts; attempt++ {
			if ctx.Err() != nil {
				return e.fail(logger, result, "deletion interrupted: "+ctx.Err().Error())
			}
			index++
			outcome, err := strategy.Run(ctx, path, attempt)
			entry := Attempt{Index: index, Strategy: strategy.Name, Outcome: outcome}
			if err != nil {
				entry.Error = err.Error()
			}
			result.Attempts = append(result.Attempts, entry)

			if outcome.Done() {
				result.Success = true
				result.Reason = "deleted"
				if outcome == OutcomeNotFound {
					result.Reason = "not found"
				}
				logger.Info("path deleted",
					logging.String("path", path),
					logging.String("strategy", strategy.Name),
					logging.Int("attempts", index),
				)
				return result
			}
			logger.Debug("deletion attempt failed",
				logging.String("path", path),
				logging.String("strategy", strategy.Name),
				logging.Int("attempt", index),
				logging.String("error", entry.Error),
			)
		}
	}
	return e.fail(logger, result, "file is locked or access is denied after all strategies")
}

func (e *Engine) fail(logger *slog.Logger, result Result, reason string) Result {
	result.Success = false
	result.Reason = reason
	result.Remediation = Remediation(e.goos, result.Path)
	logging.WarnWithContext(logger, "path could not be deleted", "deletion_exhausted",
		logging.String("path", result.Path),
		logging.Int("attempts", len(result.Attempts)),
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, result.Remediation),
	)
	return result
}

// unlink clears attributes, backs off linearly, removes, and confirms.
func (e *Engine) unlink(ctx context.Context, path string, attempt int) (Outcome, error) {
	if err := e.fs.ClearAttributes(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Debug("clear attributes failed", logging.String("path", path), logging.Error(err))
	}
	if err := e.sleep(ctx, e.policy.backoff(attempt)); err != nil {
		return OutcomeRetryable, err
	}
	if err := e.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return OutcomeNotFound, nil
		}
		_ = e.sleep(ctx, e.policy.ErrorPause)
		return OutcomeRetryable, err
	}
	if err := e.sleep(ctx, e.policy.ConfirmDelay); err != nil {
		return OutcomeRetryable, err
	}
	if exists(e.fs, path) {
		return OutcomeRetryable, errors.New("path still present after remove")
	}
	return OutcomeSuccess, nil
}

func (e *Engine) shellRemove(ctx context.Context, strategy, path string) (Outcome, error) {
	var cmd command
	for _, candidate := range fallbackCommands(e.goos, path) {
		if candidate.strategy == strategy {
			cmd = candidate
			break
		}
	}
	runCtx := ctx
	if e.policy.ShellTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.policy.ShellTimeout)
		defer cancel()
	}
	// Command errors are expected while the file is locked; the existence
	// check below decides the outcome.
	runErr := e.shell.Run(runCtx, cmd.name, cmd.args...)
	if err := e.sleep(ctx, e.policy.SettleDelay); err != nil {
		return OutcomeRetryable, err
	}
	if !exists(e.fs, path) {
		return OutcomeSuccess, nil
	}
	if runErr != nil {
		return OutcomeRetryable, runErr
	}
	return OutcomeRetryable, errors.New("path still present after " + cmd.name)
}
