package api

import (
	"testing"
	"time"

	"github.com/lad75020/SendToOneNote/internal/deps"
	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

func TestFromHistoryEntry(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := history.Entry{
		ID:         7,
		Stem:       "job-12-1700000000",
		Status:     history.StatusFailed,
		ErrorKind:  "upload",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}

	dto := FromHistoryEntry(entry)
	if dto.Status != "failed" || dto.ErrorKind != "upload" {
		t.Fatalf("unexpected status fields: %#v", dto)
	}
	if dto.StartedAt != "2026-03-01T10:00:00.000Z" {
		t.Fatalf("unexpected startedAt %q", dto.StartedAt)
	}
	if dto.DurationMS != 1500 {
		t.Fatalf("expected 1500ms, got %d", dto.DurationMS)
	}
	if dto.PageID != "" || dto.WebURL != "" {
		t.Fatalf("expected empty page fields, got %#v", dto)
	}
}

func TestFromQueueCountsIncludesEveryState(t *testing.T) {
	counts := FromQueueCounts(map[ingest.State]int{ingest.StateDone: 3})
	if len(counts) != 4 {
		t.Fatalf("expected all four states, got %v", counts)
	}
	if counts["Done"] != 3 || counts["Incoming"] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestFromWatcherAndStagerStats(t *testing.T) {
	ws := FromWatcherStats("/queue/Incoming", watcher.Stats{ScansRun: 2, PushActive: true})
	if ws.Dir != "/queue/Incoming" || ws.ScansRun != 2 || !ws.PushActive || ws.LastScan != "" {
		t.Fatalf("unexpected watcher status %#v", ws)
	}

	ss := FromStagerStats(ingest.StagerStats{Staged: 1}, nil)
	if ss.InFlight == nil || len(ss.InFlight) != 0 {
		t.Fatalf("expected empty in-flight slice, got %#v", ss.InFlight)
	}
}

func TestFromDependenciesAndCounts(t *testing.T) {
	out := FromDependencies([]deps.Status{{Name: "Ghostscript", Command: "gs", Available: true}})
	if len(out) != 1 || !out[0].Available || out[0].Command != "gs" {
		t.Fatalf("unexpected dependencies %#v", out)
	}
	if FromHistoryCounts(nil) != nil {
		t.Fatal("expected nil counts for empty map")
	}
	counts := FromHistoryCounts(map[history.Status]int{history.StatusDone: 2})
	if counts["done"] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
