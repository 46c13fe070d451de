package jobs

import (
	"context"
	"errors"
	"log/slog"

	"splicer/internal/concat"
	"splicer/internal/config"
	"splicer/internal/deletion"
	"splicer/internal/deps"
	"splicer/internal/ffmpeg"
	"splicer/internal/media/ffprobe"
)

// NewFromConfig wires a controller with the real concat manager,
// orchestrator, deletion engine and ffprobe duration probe.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	deleter := deletion.New(logger, deletion.WithPolicy(deletion.PolicyFromConfig(cfg)))
	// The orchestrator removes scripts after ffmpeg exits; share the fallback
	// so those removals escalate the same way cancels do.
	scripts := withDeleteFallback(concat.NewManager(cfg.Paths.ScriptDir, logger), deleter, logger)
	merger := ffmpeg.New(
		deps.ResolveTool(cfg.Tools.FFmpeg),
		scripts,
		logger,
		ffmpeg.WithGracePeriod(cfg.GracePeriod()),
	)

	ffprobeBinary := deps.ResolveTool(cfg.Tools.FFprobe)
	base := []Option{
		WithLockDir(cfg.LockDir()),
		WithDurationProbe(func(ctx context.Context, paths []string) (float64, error) {
			return ffprobe.TotalDuration(ctx, ffprobeBinary, paths)
		}),
	}
	return New(scripts, merger, deleter, logger, append(base, opts...)...), nil
}
