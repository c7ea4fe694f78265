package api

import (
	"time"

	"github.com/lad75020/SendToOneNote/internal/deps"
	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

// FromHistoryEntry converts a history row to its API representation.
func FromHistoryEntry(e history.Entry) HistoryEntry {
	return HistoryEntry{
		ID:            e.ID,
		Stem:          e.Stem,
		Title:         e.Title,
		User:          e.User,
		Status:        string(e.Status),
		ErrorKind:     e.ErrorKind,
		ErrorMessage:  e.ErrorMessage,
		PageID:        e.PageID,
		WebURL:        e.WebURL,
		CorrelationID: e.CorrelationID,
		StartedAt:     formatTime(e.StartedAt),
		FinishedAt:    formatTime(e.FinishedAt),
		DurationMS:    e.Duration().Milliseconds(),
	}
}

// FromHistoryEntries converts history rows, newest first as given.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromHistoryEntry(e))
	}
	return out
}

// FromHistoryCounts converts per-status counts.
func FromHistoryCounts(counts map[history.Status]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}

// FromWatcherStats converts watcher counters.
func FromWatcherStats(dir string, s watcher.Stats) WatcherStatus {
	return WatcherStatus{
		Dir:          dir,
		PushActive:   s.PushActive,
		Requests:     s.Requests,
		ScansRun:     s.ScansRun,
		ScansDropped: s.ScansDropped,
		LastScan:     formatTime(s.LastScan),
		LastStaged:   s.LastStaged,
		LastError:    s.LastError,
	}
}

// FromStagerStats converts stager counters and the in-flight stems.
func FromStagerStats(s ingest.StagerStats, inFlight []string) StagerStatus {
	if inFlight == nil {
		inFlight = []string{}
	}
	return StagerStatus{
		Staged:     s.Staged,
		Skipped:    s.Skipped,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		LastStaged: formatTime(s.LastStaged),
		InFlight:   inFlight,
	}
}

// FromQueueCounts converts per-directory counts keyed by state name.
func FromQueueCounts(counts map[ingest.State]int) map[string]int {
	out := make(map[string]int, len(ingest.States))
	for _, state := range ingest.States {
		out[string(state)] = counts[state]
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
