package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/ipc"
	"github.com/lad75020/SendToOneNote/internal/logs"
)

const logPointerName = "sendtoonenote.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var match string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := ctx.dialClient()
			if err != nil {
				// Offline: read the pointer to the most recent run.
				cfg := ctx.configValue()
				return tailFile(cmd.Context(), out, filepath.Join(cfg.Paths.LogDir, logPointerName), lines, follow, match)
			}
			defer client.Close()
			return tailDaemon(cmd.Context(), out, client, lines, follow, match)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&match, "match", "", "Only show lines containing this text, such as a job stem")
	return cmd
}

func tailDaemon(ctx context.Context, out io.Writer, client *ipc.Client, limit int, follow bool, match string) error {
	offset := int64(-1)
	if limit <= 0 {
		offset = 0
	}
	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: 1000,
			Match:      match,
		})
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(out, line)
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func tailFile(ctx context.Context, out io.Writer, path string, limit int, follow bool, match string) error {
	offset := int64(-1)
	if limit <= 0 {
		offset = 0
	}
	printed := false
	for {
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: offset,
			Limit:  limit,
			Follow: follow,
			Wait:   time.Second,
			Match:  match,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
			printed = true
		}
		offset = result.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		if len(result.Lines) > 0 {
			continue
		}
		// A missing file returns at once; wait before checking again.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}
