package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/ipc"
	"github.com/lad75020/SendToOneNote/internal/notifications"
)

const directNotifyTimeout = 15 * time.Second

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test push notification",
		Long: "Send a test ntfy notification through the running daemon. With --direct the\n" +
			"notification is sent from this process using the loaded configuration.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if direct {
				return notifyDirect(cmd.Context(), out, ctx)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if resp != nil {
					reportNotify(out, resp.Sent, resp.Message)
				}
				if err != nil {
					return fmt.Errorf("test notification: %w", err)
				}
				if resp == nil {
					return fmt.Errorf("test notification: daemon returned no response")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "Send from the CLI instead of the daemon")
	return cmd
}

func notifyDirect(parent context.Context, out io.Writer, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		reportNotify(out, false, "ntfy topic not configured")
		return nil
	}
	if parent == nil {
		parent = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(parent, directNotifyTimeout)
	defer cancel()
	if err := notifications.NewService(cfg).TestNotification(sendCtx); err != nil {
		reportNotify(out, false, "failed to send notification")
		return fmt.Errorf("test notification: %w", err)
	}
	reportNotify(out, true, "")
	return nil
}

func reportNotify(out io.Writer, sent bool, message string) {
	switch {
	case message != "":
		fmt.Fprintln(out, message)
	case sent:
		fmt.Fprintln(out, "Test notification sent")
	default:
		fmt.Fprintln(out, "Notification not sent")
	}
}
