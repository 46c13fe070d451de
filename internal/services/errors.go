package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSpawn marks an external tool that is missing or could not be started.
	ErrSpawn = errors.New("spawn error")
	// ErrProbe marks a failed metadata query; callers degrade rather than fail.
	ErrProbe = errors.New("probe error")
	// ErrIO marks temp artifact write or remove failures.
	ErrIO = errors.New("io error")
	// ErrAlreadyRunning marks a start request rejected by the single-flight guard.
	ErrAlreadyRunning = errors.New("merge already running")
	// ErrDeletionExhausted marks a path that survived every removal strategy.
	ErrDeletionExhausted = errors.New("deletion exhausted")
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation error")
	// ErrExternalTool marks a tool that started but exited unsuccessfully.
	ErrExternalTool = errors.New("external tool error")
	// ErrUnavailable marks a request that arrived while the daemon is stopping.
	ErrUnavailable = errors.New("service unavailable")
)

// Wrap builds an error message that includes component context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to the short code reported across the IPC boundary.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrProbe):
		return "probe"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrDeletionExhausted):
		return "deletion_exhausted"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "external_tool"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
