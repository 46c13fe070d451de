package concat

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"splicer/internal/logging"
	"splicer/internal/services"
)

const (
	scriptPrefix = "concat_list_"
	scriptSuffix = ".txt"
)

// Manager writes and removes the concat demuxer scripts handed to ffmpeg.
type Manager struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// NewManager constructs a Manager that writes scripts into dir. An empty dir
// selects the OS temp directory.
func NewManager(dir string, logger *slog.Logger) *Manager {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = os.TempDir()
	}
	return &Manager{
		dir:    dir,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "concat"),
	}
}

// Dir returns the directory scripts are written to.
func (m *Manager) Dir() string {
	return m.dir
}

// Create writes the ordered input list and returns the script path.
func (m *Manager) Create(inputs []string) (string, error) {
	if len(inputs) == 0 {
		return "", services.Wrap(services.ErrValidation, "concat", "create", "at least one input is required", nil)
	}
	for i, input := range inputs {
		if strings.TrimSpace(input) == "" {
			return "", services.Wrap(services.ErrValidation, "concat", "create", fmt.Sprintf("input %d is empty", i), nil)
		}
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, "concat", "create", "script directory unavailable", err)
	}

	name := fmt.Sprintf("%s%d_%s%s", scriptPrefix, m.now().UnixMilli(), uuid.NewString()[:8], scriptSuffix)
	path := filepath.Join(m.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", services.Wrap(services.ErrIO, "concat", "create", "open script", err)
	}
	if _, err := file.WriteString(Render(inputs)); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", services.Wrap(services.ErrIO, "concat", "create", "write script", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", services.Wrap(services.ErrIO, "concat", "create", "close script", err)
	}

	m.logger.Debug("concat script written",
		logging.String("path", path),
		logging.Int("inputs", len(inputs)),
	)
	return path, nil
}

// Remove deletes a script. A script that is already gone is not an error.
func (m *Manager) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return services.Wrap(services.ErrIO, "concat", "remove", path, err)
	}
	m.logger.Debug("concat script removed", logging.String("path", path))
	return nil
}

// Sweep removes scripts left behind by crashed runs. Only files matching the
// script naming pattern and older than olderThan are touched.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, services.Wrap(services.ErrIO, "concat", "sweep", m.dir, err)
	}
	cutoff := m.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, scriptPrefix) || !strings.HasSuffix(name, scriptSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := m.Remove(filepath.Join(m.dir, name)); err != nil {
			logging.WarnWithContext(m.logger, "stale concat script not removed", "concat_sweep_failed",
				logging.String("path", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the file manually"),
			)
			continue
		}
		removed++
	}
	return removed, nil
}

// Render formats inputs as concat demuxer directives, one per line.
func Render(inputs []string) string {
	lines := make([]string, 0, len(inputs))
	for _, input := range inputs {
		lines = append(lines, Line(input))
	}
	return strings.Join(lines, "\n")
}

// Line formats one input as `file '<path>'`. Backslashes become forward
// slashes and embedded single quotes are closed, escaped, and reopened.
func Line(path string) string {
	normalized := strings.ReplaceAll(path, `\`, "/")
	escaped := strings.ReplaceAll(normalized, "'", `'\''`)
	return "file '" + escaped + "'"
}
