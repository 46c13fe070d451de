package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"splicer/internal/config"
	"splicer/internal/deletion"
	"splicer/internal/history"
	"splicer/internal/ipc"
	"splicer/internal/jobs"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge -o OUTPUT INPUT...",
		Short: "Concatenate inputs into one file without re-encoding",
		Long: "Concatenate inputs into one file with ffmpeg stream copy.\n\n" +
			"Interrupting the command cancels the merge and force-deletes the partial output.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, inputs, err := resolveMergePaths(output, args)
			if err != nil {
				return err
			}
			if ctx.local() {
				return runLocalMerge(cmd, ctx, inputs, target)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				return runDaemonMerge(cmd, client, inputs, target)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func resolveMergePaths(output string, args []string) (string, []string, error) {
	target, err := expandArg(output)
	if err != nil {
		return "", nil, fmt.Errorf("resolve output: %w", err)
	}
	inputs := make([]string, 0, len(args))
	for _, arg := range args {
		path, err := expandArg(arg)
		if err != nil {
			return "", nil, fmt.Errorf("resolve input %q: %w", arg, err)
		}
		inputs = append(inputs, path)
	}
	return target, inputs, nil
}

// expandArg expands ~ and makes path absolute, since the daemon does not
// share the CLI's working directory.
func expandArg(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

func runDaemonMerge(cmd *cobra.Command, client *ipc.Client, inputs []string, output string) error {
	jobID, err := client.StartMerge(inputs, output)
	if err != nil {
		return fmt.Errorf("start merge: %w", err)
	}
	stdout := cmd.OutOrStdout()
	reporter := newProgressReporter(stdout, filepath.Base(output))

	final, err := client.Follow(cmd.Context(), jobID, 0, reporter.Update)
	reporter.Finish()
	if errors.Is(err, context.Canceled) {
		resp, cancelErr := client.CancelMerge(output)
		if cancelErr != nil {
			return fmt.Errorf("cancel merge: %w", cancelErr)
		}
		printCancelOutcome(stdout, output, resp.Success, resp.Error, resp.Remediation)
		return context.Canceled
	}
	if err != nil {
		return fmt.Errorf("follow merge %s: %w", jobID, err)
	}
	return reportFinalEvent(stdout, final, output)
}

func runLocalMerge(cmd *cobra.Command, ctx *commandContext, inputs []string, output string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger := ctx.localLogger()

	var opts []jobs.Option
	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		opts = append(opts, jobs.WithRecorder(store))
	}
	controller, err := jobs.NewFromConfig(cfg, logger, opts...)
	if err != nil {
		return err
	}

	stream, err := controller.StartMerge(cmd.Context(), inputs, output)
	if err != nil {
		return fmt.Errorf("start merge: %w", err)
	}
	stdout := cmd.OutOrStdout()
	reporter := newProgressReporter(stdout, filepath.Base(output))
	defer reporter.Finish()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return errors.New("merge stream closed without a result")
			}
			reporter.Update(ev)
			if ev.Kind.Terminal() {
				reporter.Finish()
				return reportFinalEvent(stdout, ev, output)
			}
		case <-cmd.Context().Done():
			reporter.Finish()
			result := controller.CancelMerge(context.Background(), output)
			printCancelOutcome(stdout, output, result.Success, deletionError(result), result.Remediation)
			return context.Canceled
		}
	}
}

func reportFinalEvent(out io.Writer, ev jobs.Event, output string) error {
	switch ev.Kind {
	case jobs.EventCompleted:
		fmt.Fprintf(out, "Merged into %s (%s)\n", output, ev.Progress.Timemark)
		return nil
	case jobs.EventCancelled:
		fmt.Fprintf(out, "Merge into %s was cancelled\n", output)
		return context.Canceled
	default:
		msg := strings.TrimSpace(ev.Error)
		if msg == "" {
			msg = "ffmpeg failed"
		}
		return fmt.Errorf("merge failed: %s", msg)
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [OUTPUT]",
		Short: "Cancel the running merge and delete its output",
		Long: "Cancel the running merge and force-delete OUTPUT, or the merge's own output when\n" +
			"no path is given. With --local there is no daemon job to stop, so OUTPUT is\n" +
			"required and only force-deleted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var output string
			if len(args) == 1 {
				path, err := expandArg(args[0])
				if err != nil {
					return err
				}
				output = path
			}
			if ctx.local() {
				return runLocalCancel(cmd, ctx, output)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CancelMerge(output)
				if err != nil {
					return fmt.Errorf("cancel merge: %w", err)
				}
				printCancelOutcome(cmd.OutOrStdout(), output, resp.Success, resp.Error, resp.Remediation)
				if !resp.Success {
					return errors.New("output could not be deleted")
				}
				return nil
			})
		},
	}
}

// runLocalCancel force-deletes output in-process. A local merge lives in its
// own CLI process, so there is no job here to stop, only the file to remove.
func runLocalCancel(cmd *cobra.Command, ctx *commandContext, output string) error {
	if output == "" {
		return errors.New("OUTPUT is required with --local")
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	controller, err := jobs.NewFromConfig(cfg, ctx.localLogger())
	if err != nil {
		return err
	}
	result := controller.CancelMerge(cmd.Context(), output)
	printCancelOutcome(cmd.OutOrStdout(), output, result.Success, deletionError(result), result.Remediation)
	if !result.Success {
		return errors.New("output could not be deleted")
	}
	return nil
}

func printCancelOutcome(out io.Writer, output string, success bool, errMsg, remediation string) {
	label := output
	if label == "" {
		label = "output"
	}
	if success {
		fmt.Fprintf(out, "Merge cancelled; %s removed\n", label)
		return
	}
	fmt.Fprintf(out, "Merge cancelled but %s could not be deleted: %s\n", label, errMsg)
	if remediation != "" {
		fmt.Fprintln(out, remediation)
	}
}

func deletionError(result deletion.Result) string {
	if err := result.Err(); err != nil {
		return err.Error()
	}
	return ""
}
