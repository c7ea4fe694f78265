package watcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lad75020/SendToOneNote/internal/ingest"
)

type tallyScanner struct {
	scans atomic.Int32
}

func (s *tallyScanner) Scan(context.Context) ([]ingest.Job, error) {
	s.scans.Add(1)
	return nil, nil
}

func (s *tallyScanner) Dispatch(ingest.Job) {}

func (w *Watcher) pendingRequest() (uint64, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation, w.requestSeq
}

// A debounce callback already past its timer when a newer Request lands must
// not scan on its own; only the newest callback does.
func TestSupersededDebounceCallbackDoesNotScan(t *testing.T) {
	scanner := &tallyScanner{}
	w := New(t.TempDir(), scanner, WithDebounce(time.Hour), WithPoll(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})

	staleGen, staleSeq := w.pendingRequest()
	w.Request()
	w.fire(staleGen, staleSeq)
	require.Never(t, func() bool { return scanner.scans.Load() > 0 }, 150*time.Millisecond, 10*time.Millisecond)
	require.Zero(t, w.Stats().ScansDropped)

	gen, seq := w.pendingRequest()
	w.fire(gen, seq)
	require.Eventually(t, func() bool { return scanner.scans.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	w.fire(gen, seq+1)
	require.Never(t, func() bool { return scanner.scans.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}
