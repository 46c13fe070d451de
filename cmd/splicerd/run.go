package main

import (
	"context"
	"fmt"
	"log/slog"

	"splicer/internal/config"
	"splicer/internal/daemon"
	"splicer/internal/ipc"
	"splicer/internal/logging"
)

// run serves the daemon until ctx ends or a client asks it to stop.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-ctx.Done():
		logger.Info("splicerd shutting down", logging.String("reason", "signal"))
	case <-d.Done():
		logger.Info("splicerd shutting down", logging.String("reason", "stop requested"))
	}
	return nil
}
