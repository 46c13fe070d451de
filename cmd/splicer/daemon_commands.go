package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"splicer/internal/config"
	"splicer/internal/daemonctl"
	"splicer/internal/deps"
	"splicer/internal/ipc"
	"splicer/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStatusCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newToolCheckCommand(ctx),
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status *ipc.StatusResponse
			if ctx.local() {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				status = localStatus(cfg, ctx.socketPath())
			} else if err := ctx.withClient(func(client *ipc.Client) error {
				var err error
				status, err = client.Status()
				return err
			}); err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, isTerminal(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// localStatus reports checks without a daemon. Running reflects whether
// splicerd answers on socket.
func localStatus(cfg *config.Config, socket string) *ipc.StatusResponse {
	running, pid, _ := daemonctl.ProcessInfo(socket)
	status := &ipc.StatusResponse{Running: running, PID: pid, LockPath: cfg.DaemonLockPath()}
	if cfg.History.Enabled {
		status.HistoryPath = cfg.History.Path
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		status.Dependencies = append(status.Dependencies, ipc.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	for _, check := range preflight.RunAll(cfg) {
		status.Checks = append(status.Checks, ipc.CheckStatus{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
	}
	return status
}

func renderStatus(out io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	daemonKind := statusOK
	daemonDetail := fmt.Sprintf("pid %d", status.PID)
	if !status.Running {
		daemonKind = statusWarn
		daemonDetail = "not running"
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonDetail, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, status.LockPath, colorize))
	if status.HistoryPath != "" {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, status.HistoryPath, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, "disabled", colorize))
	}
	fmt.Fprintln(out)

	if len(status.Checks) > 0 {
		for _, line := range renderSectionHeader("System", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, check := range status.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	for _, line := range renderSectionHeader("Merge", colorize) {
		fmt.Fprintln(out, line)
	}
	if job := status.Job; job != nil {
		detail := fmt.Sprintf("%d%% at %s, started %s", job.Progress.Percent, job.Progress.Timemark, humanize.Time(job.StartedAt))
		fmt.Fprintln(out, renderStatusLine(stateLabel(job.State), stateKind(job.State), detail, colorize))
		fmt.Fprintln(out, renderStatusLine("Output", statusInfo, job.OutputPath, colorize))
		fmt.Fprintln(out, renderStatusLine("Inputs", statusInfo, strconv.Itoa(len(job.Inputs)), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Job", statusInfo, "idle", colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range status.Dependencies {
		kind := statusOK
		detail := dep.Command
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			detail = dep.Detail
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start splicerd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonctl.ResolveExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{ConfigPath: ctx.configPath}, wait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the daemon socket")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop splicerd, cancelling any running merge",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndWait(ctx.socketPath(), wait)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(out, "Stop request sent")
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait before killing the daemon")
	return cmd
}

func newToolCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tool-check",
		Short: "Report ffmpeg and ffprobe versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tools []ipc.ToolInfo
			if ctx.local() {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				for _, configured := range []string{cfg.Tools.FFmpeg, cfg.Tools.FFprobe} {
					info := deps.ToolVersion(cmd.Context(), deps.ResolveTool(configured))
					tools = append(tools, ipc.ToolInfo{Path: info.Path, Available: info.Available, Version: info.Version, Detail: info.Detail})
				}
			} else if err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ToolCheck()
				if err != nil {
					return err
				}
				tools = resp.Tools
				return nil
			}); err != nil {
				return fmt.Errorf("tool check: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, tools)
			}
			rows := make([][]string, 0, len(tools))
			missing := 0
			for _, tool := range tools {
				version := tool.Version
				if !tool.Available {
					missing++
					version = tool.Detail
				}
				rows = append(rows, []string{filepath.Base(tool.Path), yesNo(tool.Available), version, tool.Path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
				{Title: "Tool"},
				{Title: "Available"},
				{Title: "Version"},
				{Title: "Path"},
			}, rows))
			if missing > 0 {
				return fmt.Errorf("%d tool(s) unavailable", missing)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
