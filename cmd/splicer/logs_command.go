package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"splicer/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logs.Path(cfg)
			out := cmd.OutOrStdout()
			opts := logs.TailOptions{Offset: -1, Limit: lines, JobID: jobID}
			printed := false

			for {
				result, err := logs.Tail(cmd.Context(), path, opts)
				if err != nil {
					return fmt.Errorf("tail logs: %w", err)
				}
				for _, line := range result.Lines {
					if raw {
						fmt.Fprintln(out, line)
					} else {
						fmt.Fprintln(out, logs.Format(line))
					}
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintf(out, "No log entries in %s\n", path)
					}
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 5 * time.Second, JobID: jobID}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines for this job id (prefix match)")
	cmd.Flags().BoolVar(&raw, "json", false, "Print raw JSON records")
	return cmd
}
