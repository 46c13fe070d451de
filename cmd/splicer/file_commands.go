package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"splicer/internal/deletion"
	"splicer/internal/deps"
	"splicer/internal/ipc"
	"splicer/internal/media/ffprobe"
)

func newFileCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newDeleteCommand(ctx),
		newProbeCommand(ctx),
		newExistsCommand(ctx),
		newSizeCommand(ctx),
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var showAttempts bool

	cmd := &cobra.Command{
		Use:     "delete PATH",
		Aliases: []string{"rm"},
		Short:   "Force-delete a file, retrying through locks and read-only flags",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := expandArg(args[0])
			if err != nil {
				return err
			}

			var result deletion.Result
			if ctx.local() {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				engine := deletion.New(ctx.localLogger(), deletion.WithPolicy(deletion.PolicyFromConfig(cfg)))
				result = engine.Delete(cmd.Context(), path)
			} else {
				err := ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.ForceDelete(path)
					if err != nil {
						return err
					}
					result = deletion.Result{
						Success:     resp.Success,
						Reason:      resp.Reason,
						Attempts:    resp.Attempts,
						Path:        path,
						Remediation: resp.Remediation,
					}
					return nil
				})
				if err != nil {
					return fmt.Errorf("force delete: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if showAttempts && len(result.Attempts) > 0 {
				fmt.Fprintln(out, renderAttempts(result.Attempts))
			}
			return reportDeletion(out, result)
		},
	}
	cmd.Flags().BoolVar(&showAttempts, "attempts", false, "Print every deletion attempt")
	return cmd
}

func reportDeletion(out io.Writer, result deletion.Result) error {
	if result.Success {
		if len(result.Attempts) == 0 {
			fmt.Fprintf(out, "%s: %s\n", result.Path, result.Reason)
		} else {
			fmt.Fprintf(out, "Deleted %s\n", result.Path)
		}
		return nil
	}
	if result.Remediation != "" {
		fmt.Fprintln(out, result.Remediation)
	}
	return result.Err()
}

func renderAttempts(attempts []deletion.Attempt) string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{strconv.Itoa(a.Index), a.Strategy, string(a.Outcome), a.Error})
	}
	return renderTable([]tableColumn{
		{Title: "#", Align: alignRight},
		{Title: "Strategy"},
		{Title: "Outcome"},
		{Title: "Error"},
	}, rows)
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe PATH...",
		Short: "Report duration and size of media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type probeRow struct {
				Path string `json:"path"`
				ffprobe.Info
			}
			results := make([]probeRow, 0, len(args))

			probe := func(path string) (ffprobe.Info, error) {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return ffprobe.Info{}, err
				}
				return ffprobe.MediaInfo(cmd.Context(), deps.ResolveTool(cfg.Tools.FFprobe), path)
			}
			var client *ipc.Client
			if !ctx.local() {
				c, err := ctx.dialClient()
				if err != nil {
					return err
				}
				defer c.Close()
				client = c
				probe = func(path string) (ffprobe.Info, error) {
					resp, err := client.MediaInfo(path)
					if err != nil {
						return ffprobe.Info{}, err
					}
					return ffprobe.Info{
						DurationSeconds: resp.DurationSeconds,
						SizeBytes:       resp.SizeBytes,
						VideoStreams:    resp.VideoStreams,
						AudioStreams:    resp.AudioStreams,
						Error:           resp.Error,
					}, nil
				}
			}

			for _, arg := range args {
				path, err := expandArg(arg)
				if err != nil {
					return err
				}
				info, err := probe(path)
				if err != nil {
					return fmt.Errorf("probe %s: %w", path, err)
				}
				results = append(results, probeRow{Path: path, Info: info})
			}

			if asJSON {
				return writeJSON(cmd, results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{
					r.Path,
					formatSeconds(r.DurationSeconds),
					humanize.IBytes(uint64(max(r.SizeBytes, 0))),
					fmt.Sprintf("%dv/%da", r.VideoStreams, r.AudioStreams),
					r.Error,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
				{Title: "Path"},
				{Title: "Duration", Align: alignRight},
				{Title: "Size", Align: alignRight},
				{Title: "Streams"},
				{Title: "Note"},
			}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newExistsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "exists PATH",
		Short: "Report whether a path exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := expandArg(args[0])
			if err != nil {
				return err
			}
			var exists bool
			if ctx.local() {
				_, statErr := os.Stat(path)
				exists = statErr == nil
			} else if err := ctx.withClient(func(client *ipc.Client) error {
				var err error
				exists, err = client.FileExists(path)
				return err
			}); err != nil {
				return fmt.Errorf("file exists: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), yesNo(exists))
			return nil
		},
	}
}

func newSizeCommand(ctx *commandContext) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "size PATH",
		Short: "Report the size of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := expandArg(args[0])
			if err != nil {
				return err
			}
			var size int64
			if ctx.local() {
				info, statErr := os.Stat(path)
				if errors.Is(statErr, os.ErrNotExist) {
					return fmt.Errorf("file size: %s does not exist", path)
				}
				if statErr != nil {
					return fmt.Errorf("file size: %w", statErr)
				}
				size = info.Size()
			} else if err := ctx.withClient(func(client *ipc.Client) error {
				var err error
				size, err = client.FileSize(path)
				return err
			}); err != nil {
				return fmt.Errorf("file size: %w", err)
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, size)
				return nil
			}
			fmt.Fprintf(out, "%s (%d bytes)\n", humanize.IBytes(uint64(size)), size)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "bytes", false, "Print the size in bytes only")
	return cmd
}

// formatSeconds renders a duration as H:MM:SS.
func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int64(seconds + 0.5)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
