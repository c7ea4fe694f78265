package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/logging"
)

// PruneResult contains the outcome of a prune pass.
type PruneResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// PruneOlderThan removes job pairs in dir whose document is older than maxAge.
// The sidecar goes with its document; stray sidecars are judged on their own
// modification time. A non-positive maxAge disables pruning.
func PruneOlderThan(ctx context.Context, dir string, maxAge time.Duration, logger *slog.Logger) PruneResult {
	result := PruneResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" || maxAge <= 0 {
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	documents := map[string]time.Time{}
	var sidecars []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(filepath.Ext(name), ".json") {
			sidecars = append(sidecars, entry)
			continue
		}
		if !ingest.IsDocument(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: filepath.Join(dir, name), Error: err})
			continue
		}
		documents[ingest.Stem(name)] = info.ModTime()
		if info.ModTime().Before(cutoff) {
			remove(filepath.Join(dir, name), info.ModTime(), &result, logger)
		}
	}

	for _, entry := range sidecars {
		if ctx.Err() != nil {
			break
		}
		stem := ingest.Stem(entry.Name())
		modTime, paired := documents[stem]
		if !paired {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			modTime = info.ModTime()
		}
		if modTime.Before(cutoff) {
			remove(filepath.Join(dir, entry.Name()), modTime, &result, logger)
		}
	}

	sort.Strings(result.Removed)
	return result
}

func remove(path string, modTime time.Time, result *PruneResult, logger *slog.Logger) {
	if err := os.Remove(path); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
		logging.WarnWithContext(logger, "failed to remove archived job file", "archive_prune_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue directory permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result.Removed = append(result.Removed, path)
	if logger != nil {
		logger.Debug("removed archived job file",
			logging.String("path", path),
			logging.Duration("age", time.Since(modTime)),
			logging.String(logging.FieldEventType, "archive_pruned"),
		)
	}
}

// DirInfo summarizes a queue directory.
type DirInfo struct {
	Path   string
	Files  int
	Size   int64
	Oldest time.Time
}

// Describe returns file count, total size and oldest modification time of
// the regular files in dir. A missing directory yields a zero DirInfo.
func Describe(dir string) (DirInfo, error) {
	info := DirInfo{Path: dir}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return info, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		info.Files++
		info.Size += fi.Size()
		if info.Oldest.IsZero() || fi.ModTime().Before(info.Oldest) {
			info.Oldest = fi.ModTime()
		}
	}
	return info, nil
}
