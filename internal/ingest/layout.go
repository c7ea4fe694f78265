package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State is the queue directory a job currently lives in.
type State string

const (
	StateIncoming   State = "Incoming"
	StateProcessing State = "Processing"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// States lists every queue state in lifecycle order.
var States = []State{StateIncoming, StateProcessing, StateDone, StateFailed}

// Terminal reports whether s is Done or Failed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// queueDirMode lets a spooler running as another user drop files while the
// sticky bit keeps users from deleting each other's jobs.
const queueDirMode = os.ModeSticky | 0o777

// Layout resolves queue directories under Root.
type Layout struct {
	Root string
}

// Dir returns the directory for state.
func (l Layout) Dir(state State) string {
	return filepath.Join(l.Root, string(state))
}

func (l Layout) Incoming() string   { return l.Dir(StateIncoming) }
func (l Layout) Processing() string { return l.Dir(StateProcessing) }
func (l Layout) Done() string       { return l.Dir(StateDone) }
func (l Layout) Failed() string     { return l.Dir(StateFailed) }

// EnsureLayout creates the root and the four state directories. Permission
// fixes are best effort because the directories may belong to another user.
func (l Layout) EnsureLayout() error {
	if strings.TrimSpace(l.Root) == "" {
		return fmt.Errorf("queue root is empty")
	}
	dirs := append([]string{l.Root}, l.Incoming(), l.Processing(), l.Done(), l.Failed())
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return fmt.Errorf("create queue directory %q: %w", dir, err)
		}
		_ = os.Chmod(dir, queueDirMode)
	}
	return nil
}

// IsDocument reports whether name has a queued document extension.
func IsDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".ps":
		return true
	default:
		return false
	}
}

// Stem strips the extension from a file name.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SidecarName returns the sidecar file name for stem.
func SidecarName(stem string) string {
	return stem + ".json"
}

// Counts returns how many documents sit in each state directory. Missing
// directories count as empty.
func (l Layout) Counts() (map[State]int, error) {
	counts := make(map[State]int, len(States))
	for _, state := range States {
		entries, err := os.ReadDir(l.Dir(state))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && IsDocument(entry.Name()) {
				counts[state]++
			}
		}
	}
	return counts, nil
}
