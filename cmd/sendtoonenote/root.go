package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:   "sendtoonenote",
		Short: "Send printed documents to OneNote",
		Long: "sendtoonenote watches a print queue folder, turns each finished print job\n" +
			"into a OneNote page and uploads it. The same binary runs the daemon and\n" +
			"the commands that control it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ctx.socket, "socket", "", "Path to the daemon control socket")
	flags.StringVarP(&ctx.configFile, "config", "c", "", "Configuration file path")

	root.AddCommand(newRunCommand(ctx))
	root.AddCommand(newDaemonCommands(ctx)...)
	root.AddCommand(newQueueCommands(ctx)...)
	root.AddCommand(newNotebookCommands(ctx)...)
	root.AddCommand(
		newLoginCommand(ctx),
		newPreviewCommand(ctx),
		newHistoryCommand(ctx),
		newLogsCommand(ctx),
		newTestNotifyCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
