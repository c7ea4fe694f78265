package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/daemonctl"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/ipc"
)

func newQueueCommands(ctx *commandContext) []*cobra.Command {
	rescanCmd := &cobra.Command{
		Use:   "rescan",
		Short: "Scan Incoming now instead of waiting for the next event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Rescan()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Staged %d job(s)\n", resp.Staged)
				return nil
			})
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart-watcher",
		Short: "Re-establish the folder watch and poll schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RestartWatcher()
				if err != nil {
					return err
				}
				if resp.Message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				} else if resp.Restarted {
					fmt.Fprintln(cmd.OutOrStdout(), "Watcher restarted")
				}
				return nil
			})
		},
	}

	var requeueAll bool
	requeueCmd := &cobra.Command{
		Use:   "requeue [stem...]",
		Short: "Move failed jobs back to Incoming",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !requeueAll && len(args) == 0 {
				return errors.New("name at least one job stem or pass --all")
			}
			cfg := ctx.configValue()
			moved, err := daemonctl.Requeue(ctx.socketPath(), cfg, args, requeueAll)
			out := cmd.OutOrStdout()
			for _, stem := range moved {
				fmt.Fprintf(out, "Requeued %s\n", stem)
			}
			if err != nil {
				return err
			}
			if len(moved) == 0 {
				fmt.Fprintln(out, "No failed jobs to requeue")
			}
			return nil
		},
	}
	requeueCmd.Flags().BoolVar(&requeueAll, "all", false, "Requeue every job in Failed")

	var title, user, jobID string
	submitCmd := &cobra.Command{
		Use:   "submit <file|->",
		Short: "Queue a PDF or PostScript document the way the print backend does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			data, err := readSubmission(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(title) == "" && args[0] != "-" {
				base := filepath.Base(args[0])
				title = strings.TrimSuffix(base, filepath.Ext(base))
			}
			job, err := ingest.Submit(ingest.Layout{Root: cfg.Paths.QueueRoot}, ingest.SubmitRequest{
				Data:  data,
				Title: title,
				User:  user,
				Job:   jobID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s)\n", job.Stem, job.Document)
			return nil
		},
	}
	submitCmd.Flags().StringVar(&title, "title", "", "Page title (defaults to the file name)")
	submitCmd.Flags().StringVar(&user, "user", "", "Submitting user recorded in the sidecar")
	submitCmd.Flags().StringVar(&jobID, "job", "", "Spooler job id used in the file name")

	return []*cobra.Command{rescanCmd, restartCmd, requeueCmd, submitCmd}
}

func readSubmission(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}
