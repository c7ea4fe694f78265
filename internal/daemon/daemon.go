package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/lad75020/SendToOneNote/internal/api"
	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/deps"
	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/notifications"
	"github.com/lad75020/SendToOneNote/internal/preflight"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

// defaultDrainTimeout bounds how long Stop waits for running uploads.
const defaultDrainTimeout = 30 * time.Second

// Daemon coordinates the background ingestion services and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	stager  *ingest.Stager
	watcher *watcher.Watcher
	history *history.Store
	target  string
	logPath string

	lockPath string
	lock     *flock.Flock

	drainTimeout time.Duration
	cancelJobs   context.CancelFunc

	mu        sync.Mutex
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	retention *retention
	api       *apiServer

	depsMu sync.Mutex
	deps   []deps.Status
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHistory attaches the history store used by status and retention.
func WithHistory(store *history.Store) Option {
	return func(d *Daemon) { d.history = store }
}

// WithJobCancel registers the function that aborts running pipelines once
// the drain timeout expires.
func WithJobCancel(cancel context.CancelFunc) Option {
	return func(d *Daemon) { d.cancelJobs = cancel }
}

// WithDrainTimeout overrides how long Stop waits for running pipelines.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(d *Daemon) {
		if timeout > 0 {
			d.drainTimeout = timeout
		}
	}
}

// WithTarget records a display label for the upload target.
func WithTarget(label string) Option {
	return func(d *Daemon) { d.target = label }
}

// WithLogPath records the current run's log file.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, stager *ingest.Stager, w *watcher.Watcher, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || stager == nil || w == nil {
		return nil, errors.New("daemon requires config, stager, and watcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		stager:       stager,
		watcher:      w,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Start acquires the daemon lock, recovers stranded jobs, and starts the
// watcher, retention schedule, and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another daemon instance holds %s", d.lockPath)
	}

	if err := d.stager.Layout().EnsureLayout(); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("prepare queue: %w", err)
	}
	if recovered, err := d.stager.Recover(); err != nil {
		logging.WarnWithContext(d.logger, "recovery incomplete", "recover_failed",
			logging.Error(err),
			logging.Int("recovered", len(recovered)),
			logging.String(logging.FieldErrorHint, "move remaining files from Processing to Incoming by hand"),
			logging.String(logging.FieldImpact, "some jobs stay in Processing until moved"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	snapshot := preflight.CheckSystemDeps(d.ctx, d.cfg)
	d.depsMu.Lock()
	d.deps = snapshot
	d.depsMu.Unlock()

	if err := d.watcher.Start(d.ctx); err != nil {
		d.cancel()
		_ = d.lock.Unlock()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start watcher: %w", err)
	}

	d.retention = newRetention(d.cfg, d.stager.Layout().Done(), d.history, d.logger)
	d.retention.start(d.ctx)

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		logging.WarnWithContext(d.logger, "api server unavailable", "api_server_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "HTTP status endpoint disabled"),
		)
	} else if srv != nil {
		if err := srv.start(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "api server failed to start", "api_server_failed",
				logging.Error(err),
				logging.String("bind", d.cfg.API.Bind),
				logging.String(logging.FieldErrorHint, "check api.bind for a free address"),
				logging.String(logging.FieldImpact, "HTTP status endpoint disabled"),
			)
		} else {
			d.api = srv
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("queue_root", d.stager.Layout().Root),
		logging.String("target", d.target),
	)
	return nil
}

// Stop stops the watcher, drains running pipelines, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.watcher.Stop()
	d.retention.stop()
	d.api.stop()
	d.drain()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) drain() {
	done := make(chan struct{})
	go func() {
		d.stager.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(d.drainTimeout):
	}
	logging.WarnWithContext(d.logger, "uploads still running at shutdown", "drain_timeout",
		logging.Duration("timeout", d.drainTimeout),
		logging.Any("in_flight", d.stager.InFlight()),
		logging.String(logging.FieldImpact, "running jobs are cancelled and land in Failed"),
		logging.String(logging.FieldErrorHint, "requeue the failed jobs after restart"),
	)
	if d.cancelJobs != nil {
		d.cancelJobs()
	}
	<-done
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueRoot:    d.stager.Layout().Root,
		LockFilePath: d.lockPath,
		Target:       d.target,
		Mode:         d.cfg.Import.Mode,
		Watcher:      api.FromWatcherStats(d.watcher.Dir(), d.watcher.Stats()),
		Stager:       api.FromStagerStats(d.stager.Stats(), d.stager.InFlight()),
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	counts, err := d.stager.Counts()
	if err != nil {
		d.logger.Debug("queue count failed", logging.Error(err))
	}
	status.Queue = api.FromQueueCounts(counts)

	d.depsMu.Lock()
	snapshot := d.deps
	d.depsMu.Unlock()
	if snapshot == nil {
		snapshot = preflight.CheckSystemDeps(ctx, d.cfg)
	}
	status.Dependencies = api.FromDependencies(snapshot)
	return status
}

// Rescan runs a scan through the watcher executor and returns how many
// jobs were staged.
func (d *Daemon) Rescan(ctx context.Context) (int, error) {
	if !d.running.Load() {
		return 0, errors.New("daemon is not running")
	}
	return d.watcher.ScanNow(ctx)
}

// RestartWatcher re-arms the folder watcher.
func (d *Daemon) RestartWatcher() error {
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	return d.watcher.Restart()
}

// Requeue moves failed jobs back to Incoming. It runs on the watcher
// executor so it never interleaves with a scan, then requests a scan.
func (d *Daemon) Requeue(ctx context.Context, stems []string, all bool) ([]string, error) {
	if !all && len(stems) == 0 {
		return nil, errors.New("requeue requires at least one job name or all")
	}
	var (
		mu    sync.Mutex
		moved []string
	)
	run := func(context.Context) error {
		result, err := d.stager.Requeue(stems, all)
		mu.Lock()
		moved = result
		mu.Unlock()
		return err
	}
	var err error
	if d.running.Load() {
		err = d.watcher.Submit(ctx, run)
	} else {
		err = run(ctx)
	}
	mu.Lock()
	moved = append([]string(nil), moved...)
	mu.Unlock()
	if len(moved) > 0 && d.running.Load() {
		d.watcher.Request()
	}
	return moved, err
}

// History returns recent finished jobs and per-status totals.
func (d *Daemon) History(ctx context.Context, limit int) (api.HistoryResponse, error) {
	if d.history == nil {
		return api.HistoryResponse{Entries: []api.HistoryEntry{}}, nil
	}
	entries, err := d.history.Recent(ctx, limit)
	if err != nil {
		return api.HistoryResponse{}, err
	}
	counts, err := d.history.Counts(ctx)
	if err != nil {
		return api.HistoryResponse{}, err
	}
	return api.HistoryResponse{
		Entries: api.FromHistoryEntries(entries),
		Counts:  api.FromHistoryCounts(counts),
	}, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
