package jobs

import (
	"context"
	"errors"
	"log/slog"

	"splicer/internal/logging"
)

// scriptCleanup removes concat scripts and escalates to the deletion engine
// when a plain remove fails, as it can while a dying ffmpeg still holds the
// file open.
type scriptCleanup struct {
	scripts Scripts
	deleter Deleter
	logger  *slog.Logger
}

// withDeleteFallback wraps scripts so Remove retries through deleter.
func withDeleteFallback(scripts Scripts, deleter Deleter, logger *slog.Logger) Scripts {
	if scripts == nil || deleter == nil {
		return scripts
	}
	if _, ok := scripts.(*scriptCleanup); ok {
		return scripts
	}
	return &scriptCleanup{
		scripts: scripts,
		deleter: deleter,
		logger:  logging.NewComponentLogger(logger, "jobs"),
	}
}

func (s *scriptCleanup) Create(inputs []string) (string, error) {
	return s.scripts.Create(inputs)
}

func (s *scriptCleanup) Remove(path string) error {
	err := s.scripts.Remove(path)
	if err == nil {
		return nil
	}
	s.logger.Debug("concat script remove failed, retrying with deletion engine",
		logging.String("path", path),
		logging.Error(err),
	)
	result := s.deleter.Delete(context.Background(), path)
	if result.Success {
		return nil
	}
	return errors.Join(err, result.Err())
}
