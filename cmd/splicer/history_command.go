package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"splicer/internal/history"
	"splicer/internal/ipc"
	"splicer/internal/jobs"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [JOB_ID]",
		Short: "List recent merge jobs, or show one job by id or id prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showHistoryEntry(cmd, ctx, strings.TrimSpace(args[0]), asJSON)
			}
			var entries []history.Entry
			if ctx.local() {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				if !cfg.History.Enabled {
					return fmt.Errorf("history is disabled; set history.enabled = true in the config")
				}
				store, err := history.Open(cfg)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer store.Close()
				entries, err = store.List(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list history: %w", err)
				}
			} else if err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				entries = resp.Entries
				return nil
			}); err != nil {
				return fmt.Errorf("history: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No merge jobs recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				took := "-"
				if !e.FinishedAt.IsZero() {
					took = e.FinishedAt.Sub(e.StartedAt).Round(100 * time.Millisecond).String()
				}
				rows = append(rows, []string{
					shortID(e.JobID),
					stateLabel(jobs.State(e.State)),
					filepath.Base(e.OutputPath),
					strconv.Itoa(len(e.Inputs)),
					humanize.Time(e.StartedAt),
					took,
					e.Error,
				})
			}
			fmt.Fprintln(out, renderTable([]tableColumn{
				{Title: "Job"},
				{Title: "State"},
				{Title: "Output"},
				{Title: "Inputs", Align: alignRight},
				{Title: "Started"},
				{Title: "Took", Align: alignRight},
				{Title: "Error"},
			}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func showHistoryEntry(cmd *cobra.Command, ctx *commandContext, jobID string, asJSON bool) error {
	var entry *history.Entry
	if ctx.local() {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		if !cfg.History.Enabled {
			return fmt.Errorf("history is disabled; set history.enabled = true in the config")
		}
		store, err := history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		if entry, err = store.Get(cmd.Context(), jobID); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		if entry == nil {
			return fmt.Errorf("job %s not found", jobID)
		}
	} else if err := ctx.withClient(func(client *ipc.Client) error {
		var err error
		entry, err = client.HistoryEntry(jobID)
		return err
	}); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if asJSON {
		return writeJSON(cmd, entry)
	}
	finished := "-"
	if !entry.FinishedAt.IsZero() {
		finished = entry.FinishedAt.Local().Format(time.DateTime)
	}
	rows := [][]string{
		{"Job", entry.JobID},
		{"State", stateLabel(jobs.State(entry.State))},
		{"Output", entry.OutputPath},
		{"Inputs", strings.Join(entry.Inputs, "\n")},
		{"Started", entry.StartedAt.Local().Format(time.DateTime)},
		{"Finished", finished},
	}
	if entry.Error != "" {
		rows = append(rows, []string{"Error", entry.Error})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{{Title: "Field"}, {Title: "Value"}}, rows))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
