package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"splicer/internal/config"
)

// Entry is one merge job as recorded in the ledger. FinishedAt is zero while
// the job is still active.
type Entry struct {
	JobID      string    `json:"job_id"`
	Inputs     []string  `json:"inputs"`
	OutputPath string    `json:"output_path"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Store persists merge job history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// Fixed-width UTC timestamps keep lexical and chronological order equal.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open opens the ledger at cfg.History.Path.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	return OpenPath(cfg.History.Path)
}

// OpenPath initializes or connects to the ledger database at path.
func OpenPath(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or updates the entry keyed by JobID. Inputs and StartedAt
// are fixed on first insert.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return errors.New("job id required")
	}
	inputs, err := json.Marshal(entry.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	started := entry.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	now := time.Now().UTC().Format(timeLayout)
	return retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO merge_jobs (
                job_id, inputs_json, output_path, state, error_message,
                started_at, finished_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(job_id) DO UPDATE SET
                state = excluded.state,
                error_message = excluded.error_message,
                finished_at = excluded.finished_at,
                updated_at = excluded.updated_at`,
			entry.JobID,
			string(inputs),
			entry.OutputPath,
			entry.State,
			entry.Error,
			started.UTC().Format(timeLayout),
			formatTime(entry.FinishedAt),
			now,
		)
		return execErr
	})
}

// Get returns the entry whose id is jobID, or the single entry whose id
// starts with it. It returns nil when nothing matches and an error when the
// prefix matches more than one job.
func (s *Store) Get(ctx context.Context, jobID string) (*Entry, error) {
	if jobID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, inputs_json, output_path, state, error_message, started_at, finished_at
         FROM merge_jobs WHERE job_id = ? OR substr(job_id, 1, ?) = ?
         ORDER BY job_id = ? DESC LIMIT 2`,
		jobID, len(jobID), jobID, jobID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var matches []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	switch {
	case len(matches) == 0:
		return nil, nil
	case matches[0].JobID == jobID || len(matches) == 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("job id prefix %q matches more than one job", jobID)
	}
}

// List returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT job_id, inputs_json, output_path, state, error_message, started_at, finished_at
              FROM merge_jobs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Prune removes finished entries that ended before cutoff and reports how
// many were deleted. Active entries are never pruned.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`DELETE FROM merge_jobs WHERE finished_at != '' AND finished_at < ?`,
			cutoff.UTC().Format(timeLayout),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry              Entry
		inputs             string
		started, finished string
	)
	if err := row.Scan(&entry.JobID, &inputs, &entry.OutputPath, &entry.State, &entry.Error, &started, &finished); err != nil {
		return nil, err
	}
	if inputs != "" {
		if err := json.Unmarshal([]byte(inputs), &entry.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs for %s: %w", entry.JobID, err)
		}
	}
	entry.StartedAt = parseTime(started)
	entry.FinishedAt = parseTime(finished)
	return &entry, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
