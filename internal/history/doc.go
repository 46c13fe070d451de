// Package history keeps an optional SQLite ledger of merge jobs.
//
// The ledger is disabled by default. When enabled, the job controller
// records each state transition so `splicer history` can list past runs.
// The schema is created on first open and version-checked afterwards.
package history
