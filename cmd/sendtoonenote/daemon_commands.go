package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lad75020/SendToOneNote/internal/api"
	"github.com/lad75020/SendToOneNote/internal/daemonctl"
	"github.com/lad75020/SendToOneNote/internal/daemonrun"
	"github.com/lad75020/SendToOneNote/internal/ingest"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: startLogLevel},
				10*time.Second,
			)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon, waiting for in-flight uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in %s; killed pid %d\n", grace, result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	// Longer than the daemon's own drain so uploads get to finish first.
	stopCmd.Flags().DurationVar(&grace, "grace", 45*time.Second, "How long to wait before killing the daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection(stdout, "Daemon", colorize, daemonLines(status, colorize))
			printSection(stdout, "Dependencies", colorize, dependencyLines(status.Dependencies, colorize))
			if status.Running {
				printSection(stdout, "Watcher", colorize, watcherLines(status.Watcher, colorize))
			}
			printSection(stdout, "Queue", colorize, nil)
			fmt.Fprint(stdout, renderTable([]string{"State", "Jobs"}, queueRows(status.Queue), 1))
			if len(status.Stager.InFlight) > 0 {
				fmt.Fprintf(stdout, "Uploading: %s\n", strings.Join(status.Stager.InFlight, ", "))
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func daemonLines(status *api.DaemonStatus, colorize bool) []string {
	lines := make([]string, 0, 5)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	targetKind := statusInfo
	if strings.TrimSpace(status.Target) == "" {
		targetKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Target", targetKind, valueOr(status.Target, "not configured"), colorize),
		renderStatusLine("Import mode", statusInfo, status.Mode, colorize),
		renderStatusLine("Queue root", statusInfo, status.QueueRoot, colorize),
	)
	if status.HistoryPath != "" {
		lines = append(lines, renderStatusLine("History", statusInfo, status.HistoryPath, colorize))
	}
	return lines
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Detail != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Detail)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, valueOr(dep.Detail, "not available"), colorize))
	}
	return lines
}

func watcherLines(w api.WatcherStatus, colorize bool) []string {
	push := renderStatusLine("Push events", statusOK, "active", colorize)
	if !w.PushActive {
		push = renderStatusLine("Push events", statusWarn, "inactive, polling only", colorize)
	}
	lines := []string{
		push,
		renderStatusLine("Scans", statusInfo, fmt.Sprintf("%d run, %d dropped", w.ScansRun, w.ScansDropped), colorize),
		renderStatusLine("Last scan", statusInfo, valueOr(w.LastScan, "never"), colorize),
	}
	if w.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, w.LastError, colorize))
	}
	return lines
}

func queueRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(ingest.States))
	for _, state := range ingest.States {
		rows = append(rows, []string{string(state), strconv.Itoa(counts[string(state)])})
	}
	return rows
}
