package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/api"
	"github.com/lad75020/SendToOneNote/internal/daemonctl"
	"github.com/lad75020/SendToOneNote/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			resp, err := daemonctl.ReadHistory(cmd.Context(), ctx.socketPath(), ctx.configValue(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Entries) == 0 {
				fmt.Fprintln(out, "No finished jobs recorded")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"Finished", "Status", "Job", "Title", "Duration", "Result"},
				historyRows(resp.Entries),
				4,
			))
			if len(resp.Counts) > 0 {
				fmt.Fprintf(out, "Totals: %d done, %d failed\n", resp.Counts[string(history.StatusDone)], resp.Counts[string(history.StatusFailed)])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print history as JSON")
	return cmd
}

func historyRows(entries []api.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		result := entry.WebURL
		if result == "" {
			result = entry.PageID
		}
		if entry.Status != string(history.StatusDone) {
			result = strings.TrimSpace(entry.ErrorKind + ": " + entry.ErrorMessage)
		}
		rows = append(rows, []string{
			entry.FinishedAt,
			entry.Status,
			entry.Stem,
			entry.Title,
			formatMillis(entry.DurationMS),
			truncate(result, 80),
		})
	}
	return rows
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return strconv.FormatFloat(float64(ms)/1000, 'f', 1, 64) + "s"
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
