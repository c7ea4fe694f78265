package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/daemon"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/ipc"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

type okRunner struct{}

func (okRunner) Run(context.Context, ingest.Job) (ingest.Outcome, error) {
	return ingest.Outcome{PageID: "page-1"}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	layout     ingest.Layout
	configPath string
	socketPath string
}

// setupCLIConfig writes a config file for a fresh temp tree without starting
// a daemon.
func setupCLIConfig(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		layout:     ingest.Layout{Root: cfg.Paths.QueueRoot},
		configPath: configPath,
		socketPath: cfg.SocketPath(),
	}
}

// setupCLIDaemon additionally runs a daemon and control socket in process.
func setupCLIDaemon(t *testing.T) *cliTestEnv {
	t.Helper()
	env := setupCLIConfig(t)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	logPath := filepath.Join(env.cfg.Paths.LogDir, "sendtoonenote-test.log")
	if err := os.WriteFile(logPath, []byte("level=INFO job=job-1-1 staged\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := logging.NewNop()
	stager := ingest.NewStager(env.layout, okRunner{})
	w := watcher.New(env.layout.Incoming(), stager, watcher.WithDebounce(env.cfg.DebounceWindow()))
	d, err := daemon.New(env.cfg, stager, w, logger, daemon.WithLogPath(logPath), daemon.WithTarget("section section-test"))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI daemon test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
queue_root = %q
state_dir = %q
log_dir = %q

[onenote]
section_id = %q

[auth]
client_id = %q
interactive = "none"

[watcher]
debounce_ms = %d
poll_interval_seconds = %d
initial_delay_ms = %d
`,
		cfg.Paths.QueueRoot,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.OneNote.SectionID,
		cfg.Auth.ClientID,
		cfg.Watcher.DebounceMS,
		cfg.Watcher.PollIntervalSeconds,
		cfg.Watcher.InitialDelayMS,
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}
