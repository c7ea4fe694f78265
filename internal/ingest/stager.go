package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lad75020/SendToOneNote/internal/fileutil"
	"github.com/lad75020/SendToOneNote/internal/jobmeta"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
)

// Runner processes one staged job.
type Runner interface {
	Run(ctx context.Context, job Job) (Outcome, error)
}

// Reporter observes terminal outcomes.
type Reporter interface {
	Report(ctx context.Context, job Job, outcome Outcome, err error)
}

// Stager moves jobs through Incoming, Processing, Done and Failed.
type Stager struct {
	layout   Layout
	runner   Runner
	reporter Reporter
	logger   *slog.Logger
	base     context.Context

	// queueMu serializes every mutation of the queue directories.
	queueMu sync.Mutex
	// leftovers remembers Incoming originals that could not be deleted after
	// staging so later scans do not stage them again.
	leftovers map[string]struct{}
	remove    func(string) error

	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]time.Time
	stats    StagerStats
}

// StagerStats counts stager activity since startup.
type StagerStats struct {
	Staged     int
	Skipped    int
	Succeeded  int
	Failed     int
	LastStaged time.Time
}

// StagerOption customizes a Stager.
type StagerOption func(*Stager)

// WithReporter records terminal outcomes.
func WithReporter(r Reporter) StagerOption {
	return func(s *Stager) { s.reporter = r }
}

// WithStagerLogger sets the logger.
func WithStagerLogger(logger *slog.Logger) StagerOption {
	return func(s *Stager) { s.logger = logging.NewComponentLogger(logger, "stager") }
}

// WithRemover replaces the function that deletes Incoming originals once
// they are staged.
func WithRemover(remove func(string) error) StagerOption {
	return func(s *Stager) {
		if remove != nil {
			s.remove = remove
		}
	}
}

// WithBaseContext sets the context pipelines run under. It outlives scans so a
// watcher restart never cancels an upload.
func WithBaseContext(ctx context.Context) StagerOption {
	return func(s *Stager) {
		if ctx != nil {
			s.base = ctx
		}
	}
}

// NewStager constructs a Stager over layout.
func NewStager(layout Layout, runner Runner, opts ...StagerOption) *Stager {
	s := &Stager{
		layout:    layout,
		runner:    runner,
		logger:    logging.NewComponentLogger(nil, "stager"),
		base:      context.Background(),
		leftovers: map[string]struct{}{},
		remove:    os.Remove,
		inFlight:  map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the queue layout.
func (s *Stager) Layout() Layout {
	return s.layout
}

// Scan stages every complete pair in Incoming and returns the staged jobs.
// Documents without a sidecar stay put for the next scan. A pair that fails to
// stage is skipped without aborting the batch.
func (s *Stager) Scan(ctx context.Context) ([]Job, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	entries, err := os.ReadDir(s.layout.Incoming())
	if err != nil {
		return nil, services.Wrap(services.ErrStaging, "scan", "list incoming", "", err)
	}
	names := make(map[string]struct{}, len(entries))
	var documents []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names[entry.Name()] = struct{}{}
		if IsDocument(entry.Name()) {
			documents = append(documents, entry.Name())
		}
	}
	sort.Strings(documents)
	pruneLeftovers(s.leftovers, documents)

	logger := logging.WithContext(services.WithStage(ctx, "scan"), s.logger)
	var staged []Job
	for _, name := range documents {
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		stem := Stem(name)
		sidecar := SidecarName(stem)
		if _, ok := names[sidecar]; !ok {
			logger.Debug("document waiting for sidecar", logging.String("document", name))
			continue
		}
		if s.isLeftover(stem) {
			continue
		}
		job, err := s.stage(stem, name, sidecar)
		if err != nil {
			s.count(func(st *StagerStats) { st.Skipped++ })
			if errors.Is(err, fileutil.ErrExists) {
				logger.Info("job already staged; skipping",
					logging.String(logging.FieldJob, stem),
					logging.String(logging.FieldEventType, "stage_duplicate"),
				)
				continue
			}
			logging.WarnWithContext(logger, "staging failed; pair left in incoming", "stage_failed",
				logging.String(logging.FieldJob, stem),
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.FailureKind(err)),
				logging.String(logging.FieldErrorHint, "check queue directory permissions and free space"),
				logging.String(logging.FieldImpact, "job will be retried on the next scan"),
			)
			continue
		}
		s.count(func(st *StagerStats) {
			st.Staged++
			st.LastStaged = time.Now()
		})
		logger.Info("job staged",
			logging.String(logging.FieldJob, stem),
			logging.String("document", name),
			logging.String(logging.FieldEventType, "job_staged"),
		)
		staged = append(staged, job)
	}
	return staged, nil
}

// stage copies both files into Processing, then removes the originals best
// effort. A destination that already exists means the job was staged before.
func (s *Stager) stage(stem, docName, sidecarName string) (Job, error) {
	srcDoc := filepath.Join(s.layout.Incoming(), docName)
	srcSidecar := filepath.Join(s.layout.Incoming(), sidecarName)
	dstDoc := filepath.Join(s.layout.Processing(), docName)
	dstSidecar := filepath.Join(s.layout.Processing(), sidecarName)

	for _, dst := range []string{dstDoc, dstSidecar} {
		if _, err := os.Lstat(dst); err == nil {
			return Job{}, services.Wrap(services.ErrStaging, "stage", stem, "", fmt.Errorf("%w: %s", fileutil.ErrExists, dst))
		}
	}
	if err := fileutil.CopyExclusive(srcDoc, dstDoc); err != nil {
		return Job{}, services.Wrap(services.ErrStaging, "stage", stem, "copy document", err)
	}
	if err := fileutil.CopyExclusive(srcSidecar, dstSidecar); err != nil {
		_ = os.Remove(dstDoc)
		return Job{}, services.Wrap(services.ErrStaging, "stage", stem, "copy sidecar", err)
	}

	var leftover bool
	for _, src := range []string{srcDoc, srcSidecar} {
		if err := s.remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			leftover = true
			logging.WarnWithContext(s.logger, "incoming original not removed; continuing from copy", "stage_leftover",
				logging.String(logging.FieldJob, stem),
				logging.String("path", src),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the producer owns the file; remove it manually when convenient"),
				logging.String(logging.FieldImpact, "stale file stays in incoming and is ignored"),
			)
		}
	}
	if leftover {
		s.leftovers[stem] = struct{}{}
	}

	return Job{Stem: stem, Document: dstDoc, Sidecar: dstSidecar, Dir: StateProcessing}, nil
}

func (s *Stager) isLeftover(stem string) bool {
	_, ok := s.leftovers[stem]
	return ok
}

// pruneLeftovers forgets stems whose document is gone from Incoming.
func pruneLeftovers(leftovers map[string]struct{}, documents []string) {
	if len(leftovers) == 0 {
		return
	}
	present := make(map[string]struct{}, len(documents))
	for _, name := range documents {
		present[Stem(name)] = struct{}{}
	}
	for stem := range leftovers {
		if _, ok := present[stem]; !ok {
			delete(leftovers, stem)
		}
	}
}

// Dispatch decodes the sidecar of a staged job and starts its pipeline in the
// background. A sidecar that does not decode sends the job straight to Failed.
func (s *Stager) Dispatch(job Job) {
	jobCtx := services.WithJob(s.base, job.Stem)
	logger := logging.WithContext(jobCtx, s.logger)

	meta, err := jobmeta.DecodeFile(job.Sidecar)
	if err != nil {
		logging.ErrorWithContext(logger, "sidecar rejected", "metadata_invalid",
			logging.String("sidecar", job.Sidecar),
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.FailureKind(err)),
			logging.String(logging.FieldErrorHint, "the sidecar needs string fields file, title, user and job"),
		)
		now := time.Now()
		s.complete(jobCtx, job, Outcome{StartedAt: now, FinishedAt: now}, err)
		return
	}
	job.Meta = meta

	s.mu.Lock()
	s.inFlight[job.Stem] = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, job.Stem)
			s.mu.Unlock()
		}()
		outcome, runErr := s.runner.Run(jobCtx, job)
		s.complete(jobCtx, job, outcome, runErr)
	}()
}

// complete moves the job to its terminal directory and reports the outcome.
func (s *Stager) complete(ctx context.Context, job Job, outcome Outcome, err error) {
	state := StateDone
	if err != nil {
		state = StateFailed
	}
	finished, moveErr := s.Finish(job, state)
	if moveErr != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "terminal move incomplete", "finish_failed",
			logging.String("state", string(state)),
			logging.Error(moveErr),
			logging.String(logging.FieldErrorHint, "move the remaining file from Processing by hand"),
		)
	}
	s.count(func(st *StagerStats) {
		if state == StateDone {
			st.Succeeded++
		} else {
			st.Failed++
		}
	})
	if s.reporter != nil {
		s.reporter.Report(ctx, finished, outcome, err)
	}
}

// Finish moves both files of job into the terminal state directory under
// their original names, replacing same-named files. Each file is attempted
// independently; the returned error joins any failures.
func (s *Stager) Finish(job Job, state State) (Job, error) {
	if !state.Terminal() {
		return job, fmt.Errorf("finish: %s is not a terminal state", state)
	}
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	target := job.relocate(s.layout, state)
	var errs []error
	if err := fileutil.MoveFile(job.Document, target.Document); err != nil {
		errs = append(errs, fmt.Errorf("move document: %w", err))
	}
	if err := fileutil.MoveFile(job.Sidecar, target.Sidecar); err != nil {
		errs = append(errs, fmt.Errorf("move sidecar: %w", err))
	}
	if len(errs) > 0 {
		return target, services.Wrap(services.ErrStaging, "finish", job.Stem, string(state), errors.Join(errs...))
	}
	return target, nil
}

// Requeue moves pairs from Failed back to Incoming. With all set every failed
// document is requeued; otherwise only the named stems. It returns the stems
// that were moved.
func (s *Stager) Requeue(stems []string, all bool) ([]string, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	entries, err := os.ReadDir(s.layout.Failed())
	if err != nil {
		return nil, services.Wrap(services.ErrStaging, "requeue", "list failed", "", err)
	}
	wanted := make(map[string]bool, len(stems))
	for _, stem := range stems {
		if stem = strings.TrimSpace(stem); stem != "" {
			wanted[stem] = true
		}
	}

	var (
		moved []string
		errs  []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !IsDocument(entry.Name()) {
			continue
		}
		stem := Stem(entry.Name())
		if !all && !wanted[stem] {
			continue
		}
		delete(wanted, stem)
		job := Job{
			Stem:     stem,
			Document: filepath.Join(s.layout.Failed(), entry.Name()),
			Sidecar:  filepath.Join(s.layout.Failed(), SidecarName(stem)),
			Dir:      StateFailed,
		}
		target := job.relocate(s.layout, StateIncoming)
		// The sidecar goes last so a scan never sees a pair whose document is
		// still missing.
		if err := fileutil.MoveFile(job.Document, target.Document); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stem, err))
			continue
		}
		if err := fileutil.MoveFile(job.Sidecar, target.Sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", stem, err))
			continue
		}
		delete(s.leftovers, stem)
		moved = append(moved, stem)
	}
	for stem := range wanted {
		errs = append(errs, fmt.Errorf("%s: not found in %s", stem, s.layout.Failed()))
	}
	sort.Strings(moved)
	if len(errs) > 0 {
		return moved, services.Wrap(services.ErrStaging, "requeue", "", "", errors.Join(errs...))
	}
	if len(moved) > 0 {
		s.logger.Info("jobs requeued",
			logging.Int("count", len(moved)),
			logging.String(logging.FieldEventType, "jobs_requeued"),
		)
	}
	return moved, nil
}

// Recover moves pairs left in Processing by an interrupted run back to
// Incoming so the next scan stages them again. Documents whose sidecar is
// missing are moved alone. It returns the recovered stems.
func (s *Stager) Recover() ([]string, error) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	entries, err := os.ReadDir(s.layout.Processing())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrStaging, "recover", "list processing", "", err)
	}
	var (
		recovered []string
		errs      []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !IsDocument(entry.Name()) {
			continue
		}
		stem := Stem(entry.Name())
		job := Job{
			Stem:     stem,
			Document: filepath.Join(s.layout.Processing(), entry.Name()),
			Sidecar:  filepath.Join(s.layout.Processing(), SidecarName(stem)),
			Dir:      StateProcessing,
		}
		target := job.relocate(s.layout, StateIncoming)
		if err := fileutil.MoveFile(job.Document, target.Document); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stem, err))
			continue
		}
		if err := fileutil.MoveFile(job.Sidecar, target.Sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", stem, err))
			continue
		}
		delete(s.leftovers, stem)
		recovered = append(recovered, stem)
	}
	sort.Strings(recovered)
	if len(recovered) > 0 {
		logging.WarnWithContext(s.logger, "jobs interrupted by shutdown returned to incoming", "processing_recovered",
			logging.Int("count", len(recovered)),
			logging.String("stems", strings.Join(recovered, ",")),
			logging.String(logging.FieldErrorHint, "no action needed; they are staged again by the next scan"),
			logging.String(logging.FieldImpact, "interrupted jobs are uploaded again"),
		)
	}
	if len(errs) > 0 {
		return recovered, services.Wrap(services.ErrStaging, "recover", "", "", errors.Join(errs...))
	}
	return recovered, nil
}

// Wait blocks until every dispatched pipeline has finished.
func (s *Stager) Wait() {
	s.wg.Wait()
}

// InFlight returns the stems whose pipelines are running, oldest first.
func (s *Stager) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	stems := make([]string, 0, len(s.inFlight))
	for stem := range s.inFlight {
		stems = append(stems, stem)
	}
	sort.Slice(stems, func(i, j int) bool {
		ti, tj := s.inFlight[stems[i]], s.inFlight[stems[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return stems[i] < stems[j]
	})
	return stems
}

// Stats returns a snapshot of stager counters.
func (s *Stager) Stats() StagerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Stager) count(update func(*StagerStats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}

// Counts returns how many documents sit in each state directory.
func (s *Stager) Counts() (map[State]int, error) {
	return s.layout.Counts()
}
