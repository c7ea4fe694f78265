package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "sendtoonenote-1.log")
	second := filepath.Join(dir, "sendtoonenote-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, logPointerName))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "sendtoonenote-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
	if err := ensureCurrentLogPointer("", second); err != nil {
		t.Fatalf("expected empty dir to be ignored: %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}
}

func TestRunLeavesRuntimeFilesAloneWhileLockIsHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Logging.RetentionDays = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	holder := flock.New(cfg.LockPath())
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer holder.Unlock()

	runningLog := filepath.Join(cfg.Paths.LogDir, "sendtoonenote-20200101T000000.000Z.log")
	if err := os.WriteFile(runningLog, []byte("running instance"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(runningLog, stale, stale); err != nil {
		t.Fatal(err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, runningLog); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err = Run(context.Background(), cfg, Options{LogLevel: "error"})
	if err == nil || !strings.Contains(err.Error(), "another daemon instance") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	pid, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("pid file removed: %v", err)
	}
	if string(pid) != "4242\n" {
		t.Fatalf("pid file overwritten with %q", pid)
	}
	pointer, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logPointerName))
	if err != nil {
		t.Fatalf("read log pointer: %v", err)
	}
	if string(pointer) != "running instance" {
		t.Fatalf("log pointer moved to %q", pointer)
	}
	if _, err := os.Stat(runningLog); err != nil {
		t.Fatalf("running instance log pruned: %v", err)
	}
}

func TestClaimRuntimeFilesWritesAndReleasesPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "sendtoonenote-1.log")
	if err := os.WriteFile(logPath, []byte("current"), 0o644); err != nil {
		t.Fatal(err)
	}

	release, err := claimRuntimeFiles(cfg, logging.NewNop(), logPath)
	if err != nil {
		t.Fatalf("claimRuntimeFiles: %v", err)
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("pid file missing: %v", err)
	}
	pointer, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logPointerName))
	if err != nil || string(pointer) != "current" {
		t.Fatalf("log pointer = %q, %v", pointer, err)
	}
	release()
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file still present: %v", err)
	}
}
