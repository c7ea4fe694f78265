package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lad75020/SendToOneNote/internal/config"
)

// TestClientID is the application id placed in generated configs.
const TestClientID = "00000000-0000-0000-0000-00000000c1d0"

// ConfigOption adjusts a generated test configuration.
type ConfigOption func(t testing.TB, cfg *config.Config)

// NewConfig returns a validated-looking config whose queue, state and log
// directories live under a fresh temp dir. Sign-in never prompts and the
// watcher timings are short enough for tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		QueueRoot: filepath.Join(base, "queue"),
		StateDir:  filepath.Join(base, "state"),
		LogDir:    filepath.Join(base, "state", "logs"),
	}
	cfg.Auth.ClientID = TestClientID
	cfg.Auth.Interactive = "none"
	cfg.OneNote.SectionID = "section-test"
	cfg.Watcher = config.Watcher{DebounceMS: 20, InitialDelayMS: 10, PollIntervalSeconds: 1}

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory backing cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.QueueRoot)
}

func WithImportMode(mode string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Import.Mode = mode }
}

// WithTarget sets the upload section and, when pageID is set, the page that
// receives appended content.
func WithTarget(sectionID, pageID string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.OneNote.SectionID = sectionID
		cfg.OneNote.PageID = pageID
	}
}

// WithStubbedBinaries puts do-nothing executables named names (gs when
// empty) first on PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"gs"}
	}
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		dir := filepath.Join(BaseDir(cfg), "bin")
		for _, name := range names {
			WriteStub(t, dir, name, "exit 0")
		}
		t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WriteStub writes an executable shell script called name into dir and
// returns its path. body is the script text after the shebang.
func WriteStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + strings.TrimSpace(body) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}
