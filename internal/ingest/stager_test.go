package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/services"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
)

type stubRunner struct {
	mu   sync.Mutex
	jobs []ingest.Job
	err  error
	gate chan struct{}
}

func (r *stubRunner) Run(_ context.Context, job ingest.Job) (ingest.Outcome, error) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	return ingest.Outcome{PageID: "page-" + job.Stem}, r.err
}

func (r *stubRunner) ran() []ingest.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ingest.Job(nil), r.jobs...)
}

type reported struct {
	job     ingest.Job
	outcome ingest.Outcome
	err     error
}

type stubReporter struct {
	mu      sync.Mutex
	reports []reported
}

func (r *stubReporter) Report(_ context.Context, job ingest.Job, outcome ingest.Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reported{job: job, outcome: outcome, err: err})
}

func (r *stubReporter) all() []reported {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reported(nil), r.reports...)
}

func newLayout(t *testing.T) ingest.Layout {
	t.Helper()
	layout := ingest.Layout{Root: filepath.Join(t.TempDir(), "OneNoteHelper")}
	require.NoError(t, layout.EnsureLayout())
	return layout
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestEnsureLayoutCreatesStickyDirectories(t *testing.T) {
	layout := newLayout(t)
	for _, state := range ingest.States {
		info, err := os.Stat(layout.Dir(state))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.NotZero(t, info.Mode()&os.ModeSticky, "state %s", state)
	}
	assert.Error(t, ingest.Layout{}.EnsureLayout())
}

func TestScanStagesCompletePairsOnly(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Incoming(), "job-1-100", ".pdf", "Invoice", testsupport.BuildPDF("hello"))
	testsupport.WriteJob(t, layout.Incoming(), "job-2-200", ".PS", "Print", []byte("%!PS-Adobe-3.0\n"))
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-3-300.pdf"), testsupport.BuildPDF("lonely"))
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "notes.txt"), []byte("ignored"))

	stager := ingest.NewStager(layout, &stubRunner{})
	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1-100", jobs[0].Stem)
	assert.Equal(t, ingest.StateProcessing, jobs[0].Dir)
	assert.Equal(t, filepath.Join(layout.Processing(), "job-1-100.pdf"), jobs[0].Document)
	assert.Equal(t, "job-2-200", jobs[1].Stem)

	assert.ElementsMatch(t, []string{"job-3-300.pdf", "notes.txt"}, listNames(t, layout.Incoming()))
	assert.ElementsMatch(t, []string{"job-1-100.pdf", "job-1-100.json", "job-2-200.PS", "job-2-200.json"}, listNames(t, layout.Processing()))

	again, err := stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.ElementsMatch(t, []string{"job-3-300.pdf", "notes.txt"}, listNames(t, layout.Incoming()))
}

func TestScanPicksUpLateSidecar(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-4-400.pdf"), testsupport.BuildPDF("late"))
	stager := ingest.NewStager(layout, &stubRunner{})

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-4-400.json"), []byte(`{"file":"job-4-400.pdf","title":"t","user":"u","job":"4"}`))
	jobs, err = stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestScanSkipsPairAlreadyInProcessing(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Incoming(), "job-5-500", ".pdf", "Dup", testsupport.BuildPDF("one"))
	testsupport.WriteFile(t, filepath.Join(layout.Processing(), "job-5-500.pdf"), []byte("already staged"))

	stager := ingest.NewStager(layout, &stubRunner{})
	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.ElementsMatch(t, []string{"job-5-500.pdf", "job-5-500.json"}, listNames(t, layout.Incoming()))

	data, err := os.ReadFile(filepath.Join(layout.Processing(), "job-5-500.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "already staged", string(data))
	assert.Equal(t, 1, stager.Stats().Skipped)
}

func TestScanFailsWhenIncomingMissing(t *testing.T) {
	stager := ingest.NewStager(ingest.Layout{Root: filepath.Join(t.TempDir(), "missing")}, &stubRunner{})
	_, err := stager.Scan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrStaging)
}

func TestDispatchMovesSuccessfulJobToDone(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Incoming(), "job-6-600", ".pdf", "Report", testsupport.BuildPDF("text"))
	runner := &stubRunner{}
	reporter := &stubReporter{}
	stager := ingest.NewStager(layout, runner, ingest.WithReporter(reporter))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stager.Dispatch(jobs[0])
	stager.Wait()

	require.Len(t, runner.ran(), 1)
	assert.Equal(t, "Report", runner.ran()[0].Meta.Title)
	assert.Equal(t, "tester", runner.ran()[0].Meta.User)
	assert.ElementsMatch(t, []string{"job-6-600.pdf", "job-6-600.json"}, listNames(t, layout.Done()))
	assert.Empty(t, listNames(t, layout.Processing()))

	reports := reporter.all()
	require.Len(t, reports, 1)
	assert.NoError(t, reports[0].err)
	assert.Equal(t, ingest.StateDone, reports[0].job.Dir)
	assert.Equal(t, "page-job-6-600", reports[0].outcome.PageID)
	assert.Equal(t, 1, stager.Stats().Succeeded)
}

func TestScanSkipsOriginalThatCouldNotBeRemoved(t *testing.T) {
	layout := newLayout(t)
	docPath, _ := testsupport.WriteJob(t, layout.Incoming(), "job-11-110", ".pdf", "Locked", testsupport.BuildPDF("text"))
	denied := errors.New("permission denied")
	remove := func(path string) error {
		if path == docPath {
			return denied
		}
		return os.Remove(path)
	}
	runner := &stubRunner{}
	stager := ingest.NewStager(layout, runner, ingest.WithRemover(remove))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stager.Dispatch(jobs[0])
	stager.Wait()

	assert.ElementsMatch(t, []string{"job-11-110.pdf", "job-11-110.json"}, listNames(t, layout.Done()))
	assert.Equal(t, []string{"job-11-110.pdf"}, listNames(t, layout.Incoming()))

	// A late sidecar for the stale document must not stage it a second time.
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-11-110.json"), []byte(`{"file":"job-11-110.pdf","title":"Locked","user":"tester","job":"11"}`))
	jobs, err = stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Len(t, runner.ran(), 1)
	assert.Equal(t, 1, stager.Stats().Staged)
}

func TestScanStagesStemAgainOnceLeftoverIsGone(t *testing.T) {
	layout := newLayout(t)
	docPath, _ := testsupport.WriteJob(t, layout.Incoming(), "job-12-120", ".pdf", "Locked", testsupport.BuildPDF("text"))
	stager := ingest.NewStager(layout, &stubRunner{}, ingest.WithRemover(func(path string) error {
		if path == docPath {
			return errors.New("busy")
		}
		return os.Remove(path)
	}))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stager.Dispatch(jobs[0])
	stager.Wait()

	require.NoError(t, os.Remove(docPath))
	jobs, err = stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)

	testsupport.WriteJob(t, layout.Incoming(), "job-12-120", ".pdf", "Resent", testsupport.BuildPDF("text"))
	jobs, err = stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestDispatchMovesFailedJobToFailed(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Incoming(), "job-7-700", ".pdf", "Broken", testsupport.BuildPDF("text"))
	runner := &stubRunner{err: services.Wrap(services.ErrUpload, "upload", "POST", "status 500", nil)}
	reporter := &stubReporter{}
	stager := ingest.NewStager(layout, runner, ingest.WithReporter(reporter))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	stager.Dispatch(jobs[0])
	stager.Wait()

	assert.ElementsMatch(t, []string{"job-7-700.pdf", "job-7-700.json"}, listNames(t, layout.Failed()))
	require.Len(t, reporter.all(), 1)
	assert.ErrorIs(t, reporter.all()[0].err, services.ErrUpload)
	assert.Equal(t, 1, stager.Stats().Failed)
}

func TestDispatchRoutesBadSidecarToFailedWithoutRunning(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-8-800.pdf"), testsupport.BuildPDF("x"))
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-8-800.json"), []byte(`{"file":"job-8-800.pdf","title":"no user"}`))
	runner := &stubRunner{}
	reporter := &stubReporter{}
	stager := ingest.NewStager(layout, runner, ingest.WithReporter(reporter))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stager.Dispatch(jobs[0])
	stager.Wait()

	assert.Empty(t, runner.ran())
	assert.ElementsMatch(t, []string{"job-8-800.pdf", "job-8-800.json"}, listNames(t, layout.Failed()))
	require.Len(t, reporter.all(), 1)
	assert.Equal(t, "metadata", services.FailureKind(reporter.all()[0].err))
}

func TestInFlightTracksRunningPipelines(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Incoming(), "job-9-900", ".pdf", "Slow", testsupport.BuildPDF("x"))
	runner := &stubRunner{gate: make(chan struct{})}
	stager := ingest.NewStager(layout, runner)

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	stager.Dispatch(jobs[0])
	assert.Equal(t, []string{"job-9-900"}, stager.InFlight())

	counts, err := stager.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[ingest.StateProcessing])

	close(runner.gate)
	stager.Wait()
	assert.Empty(t, stager.InFlight())
}

func TestFinishToleratesMissingSidecar(t *testing.T) {
	layout := newLayout(t)
	doc := filepath.Join(layout.Processing(), "job-10-1.pdf")
	testsupport.WriteFile(t, doc, []byte("%PDF"))
	stager := ingest.NewStager(layout, &stubRunner{})

	job := ingest.Job{Stem: "job-10-1", Document: doc, Sidecar: filepath.Join(layout.Processing(), "job-10-1.json"), Dir: ingest.StateProcessing}
	finished, err := stager.Finish(job, ingest.StateFailed)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrStaging)
	assert.Equal(t, ingest.StateFailed, finished.Dir)
	assert.Equal(t, []string{"job-10-1.pdf"}, listNames(t, layout.Failed()))

	_, err = stager.Finish(job, ingest.StateProcessing)
	assert.Error(t, err)
}

func TestFinishReplacesSameNamedFiles(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteFile(t, filepath.Join(layout.Done(), "job-11-1.pdf"), []byte("old"))
	doc, sidecar := testsupport.WriteJob(t, layout.Processing(), "job-11-1", ".pdf", "t", []byte("new"))
	stager := ingest.NewStager(layout, &stubRunner{})

	_, err := stager.Finish(ingest.Job{Stem: "job-11-1", Document: doc, Sidecar: sidecar}, ingest.StateDone)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(layout.Done(), "job-11-1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestRequeueMovesFailedPairsToIncoming(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Failed(), "job-12-1", ".pdf", "a", []byte("%PDF"))
	testsupport.WriteJob(t, layout.Failed(), "job-13-1", ".ps", "b", []byte("%!PS"))
	stager := ingest.NewStager(layout, &stubRunner{})

	moved, err := stager.Requeue([]string{"job-12-1"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-12-1"}, moved)
	assert.ElementsMatch(t, []string{"job-12-1.pdf", "job-12-1.json"}, listNames(t, layout.Incoming()))

	moved, err = stager.Requeue(nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-13-1"}, moved)
	assert.Empty(t, listNames(t, layout.Failed()))

	_, err = stager.Requeue([]string{"job-404-1"}, false)
	assert.ErrorIs(t, err, services.ErrStaging)
}

func TestRecoverReturnsProcessingPairsToIncoming(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Processing(), "job-14-1", ".pdf", "a", []byte("%PDF"))
	stager := ingest.NewStager(layout, &stubRunner{})

	recovered, err := stager.Recover()
	require.NoError(t, err)
	assert.Equal(t, []string{"job-14-1"}, recovered)
	assert.ElementsMatch(t, []string{"job-14-1.pdf", "job-14-1.json"}, listNames(t, layout.Incoming()))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestScanHonorsCancellation(t *testing.T) {
	layout := newLayout(t)
	testsupport.WriteJob(t, layout.Incoming(), "job-15-1", ".pdf", "a", []byte("%PDF"))
	stager := ingest.NewStager(layout, &stubRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stager.Scan(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEveryPairEndsInExactlyOneDirectory(t *testing.T) {
	layout := newLayout(t)
	stems := []string{"job-20-1", "job-21-1", "job-22-1", "job-23-1"}
	for _, stem := range stems {
		testsupport.WriteJob(t, layout.Incoming(), stem, ".pdf", stem, []byte("%PDF"))
	}
	runner := &stubRunner{}
	stager := ingest.NewStager(layout, runner)
	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	for i, job := range jobs {
		if i%2 == 0 {
			stager.Dispatch(job)
		}
	}
	stager.Wait()

	for _, stem := range stems {
		found := 0
		for _, state := range ingest.States {
			if _, err := os.Stat(filepath.Join(layout.Dir(state), stem+".pdf")); err == nil {
				found++
			}
		}
		assert.Equal(t, 1, found, "stem %s", stem)
	}
	assert.Len(t, runner.ran(), 2)
}
