package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
)

// ErrStopped is returned when a task is submitted to a stopped watcher.
var ErrStopped = errors.New("watcher stopped")

// Scanner stages new jobs and starts their pipelines.
type Scanner interface {
	Scan(ctx context.Context) ([]ingest.Job, error)
	Dispatch(job ingest.Job)
}

// Stats summarizes watcher activity.
type Stats struct {
	Requests     int64
	ScansRun     int64
	ScansDropped int64
	LastScan     time.Time
	LastStaged   int
	LastError    string
	PushActive   bool
}

type task struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Watcher coalesces arrivals into serialized scans.
type Watcher struct {
	dir          string
	scanner      Scanner
	debounce     time.Duration
	pollInterval time.Duration
	pollDelay    time.Duration
	logger       *slog.Logger

	tasks    chan task
	stopOnce sync.Once
	stopCh   chan struct{}
	execDone chan struct{}
	started  atomic.Bool
	scanning atomic.Bool

	mu         sync.Mutex
	generation uint64
	// requestSeq identifies the latest Request; a debounce callback that
	// lost the race with a newer Request sees a different value and exits.
	requestSeq uint64
	debouncer  *time.Timer
	delay      *time.Timer
	poller     *cron.Cron
	fsw        *fsnotify.Watcher
	eventsDone chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window before a scan fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPoll sets the safety-net poll interval and the delay before it starts.
func WithPoll(interval, delay time.Duration) Option {
	return func(w *Watcher) {
		if interval > 0 {
			w.pollInterval = interval
		}
		if delay >= 0 {
			w.pollDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logging.NewComponentLogger(logger, "watcher") }
}

// New constructs a Watcher for dir.
func New(dir string, scanner Scanner, opts ...Option) *Watcher {
	w := &Watcher{
		dir:          dir,
		scanner:      scanner,
		debounce:     350 * time.Millisecond,
		pollInterval: 5 * time.Second,
		pollDelay:    1500 * time.Millisecond,
		logger:       logging.NewComponentLogger(nil, "watcher"),
		tasks:        make(chan task, 16),
		stopCh:       make(chan struct{}),
		execDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the executor and arms push events, polling and an initial
// scan request. ctx bounds the executor's lifetime.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watcher already started")
	}
	go w.execute(ctx)
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopCh:
		}
	}()
	w.arm()
	w.Request()
	return nil
}

// Stop disarms every timer and stops the executor after its current task.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.disarm()
		close(w.stopCh)
		if w.started.Load() {
			<-w.execDone
		}
	})
}

// Restart cancels the pending debounce and poll timers and re-establishes
// them along with the push watch. Dispatched pipelines keep running.
func (w *Watcher) Restart() error {
	select {
	case <-w.stopCh:
		return ErrStopped
	default:
	}
	w.disarm()
	w.arm()
	w.logger.Info("watcher restarted", logging.String(logging.FieldEventType, "watcher_restarted"))
	w.Request()
	return nil
}

// Request asks for a scan. The debounce timer is cancelled and rescheduled so
// only the last request in a burst fires.
func (w *Watcher) Request() {
	w.statsMu.Lock()
	w.stats.Requests++
	w.statsMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.requestSeq++
	gen, seq := w.generation, w.requestSeq
	w.debouncer = time.AfterFunc(w.debounce, func() { w.fire(gen, seq) })
}

func (w *Watcher) fire(gen, seq uint64) {
	w.mu.Lock()
	stale := gen != w.generation || seq != w.requestSeq
	w.mu.Unlock()
	if stale {
		return
	}
	if !w.scanning.CompareAndSwap(false, true) {
		w.statsMu.Lock()
		w.stats.ScansDropped++
		w.statsMu.Unlock()
		w.logger.Debug("scan already running; request dropped")
		return
	}
	if err := w.enqueue(task{fn: func(ctx context.Context) error {
		defer w.scanning.Store(false)
		_, err := w.scan(ctx)
		return err
	}}); err != nil {
		w.scanning.Store(false)
	}
}

// ScanNow runs a scan on the executor and waits for it. It returns the number
// of jobs staged.
func (w *Watcher) ScanNow(ctx context.Context) (int, error) {
	var staged int
	err := w.Submit(ctx, func(taskCtx context.Context) error {
		n, err := w.scan(taskCtx)
		staged = n
		return err
	})
	return staged, err
}

// Submit runs fn on the serial executor and waits for its result, so callers
// can mutate the queue without racing scans.
func (w *Watcher) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := w.enqueue(task{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.execDone:
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	}
}

func (w *Watcher) enqueue(t task) error {
	if !w.started.Load() {
		return errors.New("watcher not started")
	}
	select {
	case <-w.stopCh:
		return ErrStopped
	default:
	}
	select {
	case w.tasks <- t:
		return nil
	case <-w.stopCh:
		return ErrStopped
	}
}

func (w *Watcher) execute(ctx context.Context) {
	defer close(w.execDone)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-w.tasks:
			err := t.fn(ctx)
			if t.done != nil {
				t.done <- err
			}
		}
	}
}

func (w *Watcher) scan(ctx context.Context) (int, error) {
	jobs, err := w.scanner.Scan(services.WithStage(ctx, "scan"))
	for _, job := range jobs {
		w.scanner.Dispatch(job)
	}

	w.statsMu.Lock()
	w.stats.ScansRun++
	w.stats.LastScan = time.Now()
	w.stats.LastStaged = len(jobs)
	w.stats.LastError = ""
	if err != nil {
		w.stats.LastError = err.Error()
	}
	w.statsMu.Unlock()

	if err != nil {
		logging.WarnWithContext(w.logger, "scan failed", "scan_failed",
			logging.String("dir", w.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the queue root exists and is readable"),
			logging.String(logging.FieldImpact, "new jobs wait for the next scan"),
		)
		return len(jobs), err
	}
	if len(jobs) > 0 {
		w.logger.Info("scan staged jobs", logging.Int("count", len(jobs)))
	}
	return len(jobs), nil
}

// arm establishes the push watch, the delayed poll schedule and a fresh
// debounce generation.
func (w *Watcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	gen := w.generation

	if fsw, err := w.openPush(); err != nil {
		logging.WarnWithContext(w.logger, "filesystem notifications unavailable; relying on polling", "watch_unavailable",
			logging.String("dir", w.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "create the queue directories or check inotify limits"),
			logging.String(logging.FieldImpact, "arrivals are noticed on the poll interval"),
		)
	} else {
		w.fsw = fsw
		w.eventsDone = make(chan struct{})
		go w.consume(fsw, w.eventsDone)
	}
	w.setPushActive(w.fsw != nil)

	poller := cron.New()
	if _, err := poller.AddFunc(fmt.Sprintf("@every %s", w.pollInterval), w.Request); err != nil {
		w.logger.Error("poll schedule rejected", logging.Error(err))
	}
	w.poller = poller
	w.delay = time.AfterFunc(w.pollDelay, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if gen != w.generation || w.poller == nil {
			return
		}
		w.poller.Start()
	})
}

func (w *Watcher) openPush() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return fsw, nil
}

func (w *Watcher) consume(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.logger.Debug("filesystem event", logging.String("path", event.Name), logging.String("op", event.Op.String()))
			w.Request()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "filesystem watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "events may be missed until the next poll"),
			)
		}
	}
}

// disarm stops the debounce timer, the poll schedule and the push watch.
func (w *Watcher) disarm() {
	w.mu.Lock()
	w.generation++
	if w.debouncer != nil {
		w.debouncer.Stop()
		w.debouncer = nil
	}
	if w.delay != nil {
		w.delay.Stop()
		w.delay = nil
	}
	poller := w.poller
	w.poller = nil
	fsw := w.fsw
	w.fsw = nil
	eventsDone := w.eventsDone
	w.eventsDone = nil
	w.mu.Unlock()

	if poller != nil {
		<-poller.Stop().Done()
	}
	if fsw != nil {
		_ = fsw.Close()
		<-eventsDone
	}
	w.setPushActive(false)
}

func (w *Watcher) setPushActive(active bool) {
	w.statsMu.Lock()
	w.stats.PushActive = active
	w.statsMu.Unlock()
}

// Stats returns a snapshot of watcher counters.
func (w *Watcher) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}
