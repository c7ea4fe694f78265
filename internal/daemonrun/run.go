package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/daemon"
	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/ipc"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/notifications"
	"github.com/lad75020/SendToOneNote/internal/preflight"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

const logPointerName = "sendtoonenote.log"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the ingestion daemon and blocks until SIGINT, SIGTERM, or a
// stop request over the control socket.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("sendtoonenote-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	layout := ingest.Layout{Root: cfg.Paths.QueueRoot}
	if err := layout.EnsureLayout(); err != nil {
		return fmt.Errorf("prepare queue: %w", err)
	}
	logDependencySnapshot(signalCtx, logger, cfg)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String("path", cfg.HistoryPath()),
			logging.String(logging.FieldErrorHint, "check state_dir permissions or move the database aside"),
			logging.String(logging.FieldImpact, "job outcomes are not recorded"),
		)
		store = nil
	} else {
		defer store.Close()
	}
	var recorder ingest.HistoryRecorder
	if store != nil {
		recorder = store
	}

	tokens, err := NewTokenProvider(cfg, logger, os.Stderr)
	if err != nil {
		return fmt.Errorf("init sign-in: %w", err)
	}
	pipeline, err := NewPipeline(cfg, tokens, logger)
	if err != nil {
		return err
	}

	// Pipelines outlive the signal so shutdown can drain them; the daemon
	// cancels them once the drain timeout passes.
	jobsCtx, cancelJobs := context.WithCancel(context.WithoutCancel(signalCtx))
	defer cancelJobs()

	journal := ingest.NewJournal(recorder, notifications.NewService(cfg), logger)
	stager := ingest.NewStager(layout, pipeline,
		ingest.WithReporter(journal),
		ingest.WithStagerLogger(logger),
		ingest.WithBaseContext(jobsCtx),
	)
	w := watcher.New(layout.Incoming(), stager,
		watcher.WithDebounce(cfg.DebounceWindow()),
		watcher.WithPoll(cfg.PollInterval(), cfg.PollDelay()),
		watcher.WithLogger(logger),
	)

	d, err := daemon.New(cfg, stager, w, logger,
		daemon.WithHistory(store),
		daemon.WithJobCancel(cancelJobs),
		daemon.WithTarget(Target(cfg).String()),
		daemon.WithLogPath(logPath),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	release, err := claimRuntimeFiles(cfg, logger, logPath)
	if err != nil {
		return err
	}
	defer release()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// claimRuntimeFiles points the log link at logPath, prunes old run logs and
// writes the pid file. Callers must hold the daemon lock. The returned func
// removes the pid file.
func claimRuntimeFiles(cfg *config.Config, logger *slog.Logger, logPath string) (func(), error) {
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logPointerName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "sendtoonenote-*.log", Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return func() { _ = os.Remove(pidPath) }, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logPointerName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logDependencySnapshot records which optional pieces are configured and
// logs every failed preflight check.
func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	results := preflight.RunAll(ctx, cfg)
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("import_mode", cfg.Import.Mode),
		logging.String("ghostscript_binary", cfg.Ghostscript.Binary),
		logging.Bool("client_id_present", strings.TrimSpace(cfg.Auth.ClientID) != ""),
		logging.Bool("token_cache_present", preflight.CheckAuth(cfg).Passed),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_enabled", cfg.API.Bind != ""),
		logging.Int("preflight_checks", len(results)),
	)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "jobs may land in Failed until fixed"),
		)
	}
}
