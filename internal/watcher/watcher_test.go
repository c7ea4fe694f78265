package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

type countingScanner struct {
	scans      atomic.Int32
	running    atomic.Int32
	overlap    atomic.Bool
	dispatched atomic.Int32
	gate       chan struct{}
	jobs       []ingest.Job
}

func (s *countingScanner) Scan(context.Context) ([]ingest.Job, error) {
	if s.running.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.running.Add(-1)
	if s.gate != nil {
		<-s.gate
	}
	s.scans.Add(1)
	return s.jobs, nil
}

func (s *countingScanner) Dispatch(ingest.Job) { s.dispatched.Add(1) }

func startWatcher(t *testing.T, dir string, scanner watcher.Scanner, opts ...watcher.Option) *watcher.Watcher {
	t.Helper()
	base := []watcher.Option{watcher.WithDebounce(40 * time.Millisecond), watcher.WithPoll(time.Hour, time.Hour)}
	w := watcher.New(dir, scanner, append(base, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	return w
}

func TestBurstOfRequestsTriggersOneScan(t *testing.T) {
	scanner := &countingScanner{}
	w := startWatcher(t, t.TempDir(), scanner)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	for range 10 {
		w.Request()
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return scanner.scans.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return scanner.scans.Load() > 2 }, 200*time.Millisecond, 10*time.Millisecond)

	w.Request()
	require.Eventually(t, func() bool { return scanner.scans.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, w.Stats().Requests, int64(12))
}

func TestRequestDuringScanIsDropped(t *testing.T) {
	scanner := &countingScanner{gate: make(chan struct{})}
	w := startWatcher(t, t.TempDir(), scanner)
	require.Eventually(t, func() bool { return scanner.running.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	w.Request()
	require.Eventually(t, func() bool { return w.Stats().ScansDropped == 1 }, 2*time.Second, 5*time.Millisecond)

	close(scanner.gate)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return scanner.scans.Load() > 1 }, 150*time.Millisecond, 10*time.Millisecond)
	assert.False(t, scanner.overlap.Load())
}

func TestPushEventTriggersScan(t *testing.T) {
	dir := t.TempDir()
	scanner := &countingScanner{}
	w := startWatcher(t, dir, scanner)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, w.Stats().PushActive)

	testsupport.WriteFile(t, filepath.Join(dir, "job-1-1.pdf"), []byte("%PDF"))
	require.Eventually(t, func() bool { return scanner.scans.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestPollingCoversMissingPushWatch(t *testing.T) {
	scanner := &countingScanner{}
	w := startWatcher(t, filepath.Join(t.TempDir(), "missing"), scanner, watcher.WithPoll(time.Second, 0))
	assert.False(t, w.Stats().PushActive)
	require.Eventually(t, func() bool { return scanner.scans.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
}

func TestRestartReestablishesWatch(t *testing.T) {
	dir := t.TempDir()
	scanner := &countingScanner{}
	w := startWatcher(t, dir, scanner)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Restart())
	require.Eventually(t, func() bool { return scanner.scans.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, w.Stats().PushActive)

	testsupport.WriteFile(t, filepath.Join(dir, "after-restart.pdf"), []byte("%PDF"))
	require.Eventually(t, func() bool { return scanner.scans.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	assert.ErrorIs(t, w.Restart(), watcher.ErrStopped)
}

func TestSubmitAndScanNowRunOnExecutor(t *testing.T) {
	scanner := &countingScanner{jobs: []ingest.Job{{Stem: "a"}, {Stem: "b"}}}
	w := startWatcher(t, t.TempDir(), scanner, watcher.WithDebounce(time.Hour))

	staged, err := w.ScanNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, staged)
	assert.EqualValues(t, 2, scanner.dispatched.Load())

	ran := false
	require.NoError(t, w.Submit(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	w.Stop()
	assert.ErrorIs(t, w.Submit(context.Background(), func(context.Context) error { return nil }), watcher.ErrStopped)
}

func TestWatcherStagesRealQueue(t *testing.T) {
	layout := ingest.Layout{Root: filepath.Join(t.TempDir(), "queue")}
	require.NoError(t, layout.EnsureLayout())
	stager := ingest.NewStager(layout, runnerFunc(func(context.Context, ingest.Job) (ingest.Outcome, error) {
		return ingest.Outcome{}, nil
	}))
	startWatcher(t, layout.Incoming(), stager)

	testsupport.WriteJob(t, layout.Incoming(), "job-1-100", ".pdf", "Invoice", testsupport.BuildPDF("x"))
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(layout.Done())
		return err == nil && len(entries) == 2
	}, 3*time.Second, 10*time.Millisecond)
	stager.Wait()
}

type runnerFunc func(context.Context, ingest.Job) (ingest.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, job ingest.Job) (ingest.Outcome, error) { return f(ctx, job) }
