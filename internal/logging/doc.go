// Package logging assembles structured slog loggers and formatting helpers used
// across splicer.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so merge code can automatically
// tag log lines with job IDs, operations, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
