package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lad75020/SendToOneNote/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecentNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []history.Entry{
		{Stem: "job-1-100", Title: "Invoice", User: "alice", Job: "1", Status: history.StatusDone, PageID: "p1", WebURL: "https://example.test/p1", StartedAt: base, FinishedAt: base.Add(2 * time.Second)},
		{Stem: "job-2-200", Title: "Scan", User: "bob", Job: "2", Status: history.StatusFailed, ErrorKind: "upload", ErrorMessage: "status 403", FinishedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if _, err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Stem != "job-2-200" || recent[0].Status != history.StatusFailed || recent[0].ErrorKind != "upload" {
		t.Fatalf("unexpected newest entry: %#v", recent[0])
	}
	if recent[1].WebURL != "https://example.test/p1" || recent[1].Duration() != 2*time.Second {
		t.Fatalf("unexpected older entry: %#v", recent[1])
	}
	if !recent[0].StartedAt.Equal(recent[0].FinishedAt) {
		t.Fatalf("expected missing start to default to finish time, got %#v", recent[0])
	}
}

func TestRecordRejectsNonTerminalStatus(t *testing.T) {
	store := openStore(t)
	if _, err := store.Record(context.Background(), history.Entry{Stem: "x", Status: "processing"}); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
	if _, err := store.Record(context.Background(), history.Entry{Status: history.StatusDone}); err == nil {
		t.Fatal("expected error for missing stem")
	}
}

func TestCountsAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -40)
	for i, status := range []history.Status{history.StatusDone, history.StatusDone, history.StatusFailed} {
		finished := time.Now()
		if i == 0 {
			finished = old
		}
		if _, err := store.Record(ctx, history.Entry{Stem: "job", Status: status, FinishedAt: finished}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[history.StatusDone] != 2 || counts[history.StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	removed, err := store.Prune(ctx, time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned entry, got %d", removed)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Record(context.Background(), history.Entry{Stem: "a", Status: history.StatusDone}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = store.Close()

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 0)
	if err != nil || len(recent) != 1 {
		t.Fatalf("expected persisted entry, got %v err=%v", recent, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open(" "); err == nil || errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected path error, got %v", err)
	}
}
