package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	if pid, err := ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("expected zero pid for missing file, got %d err=%v", pid, err)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d err=%v", pid, err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, _ := ReadPID(path); pid != 0 {
		t.Fatalf("expected zero for garbage, got %d", pid)
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	if _, err := ForceKillProcess(filepath.Join(t.TempDir(), "none.pid"), os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill current process")
	}
	if _, err := ForceKillProcess(filepath.Join(t.TempDir(), "none.pid"), 0); err == nil {
		t.Fatal("expected error without pid")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := StopAndTerminate(filepath.Join(t.TempDir(), "missing.sock"), cfg, time.Second); err != ErrDaemonNotRunning {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestOfflineStatusSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	layout := ingest.Layout{Root: cfg.Paths.QueueRoot}
	if err := layout.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.pdf", "a.json", "b.ps"} {
		if err := os.WriteFile(filepath.Join(layout.Failed(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	status, err := BuildStatusSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("expected offline snapshot")
	}
	if status.Queue["Failed"] != 2 || status.Queue["Incoming"] != 0 {
		t.Fatalf("unexpected queue counts %v", status.Queue)
	}
	if len(status.Dependencies) != 1 || !status.Dependencies[0].Available {
		t.Fatalf("unexpected dependencies %#v", status.Dependencies)
	}
}

func TestOfflineHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := filepath.Join(t.TempDir(), "missing.sock")

	resp, err := ReadHistory(context.Background(), socket, cfg, 10)
	if err != nil || len(resp.Entries) != 0 {
		t.Fatalf("expected empty history without database, got %#v err=%v", resp, err)
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record(context.Background(), history.Entry{Stem: "job-1-1", Status: history.StatusFailed, ErrorKind: "upload"}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	resp, err = ReadHistory(context.Background(), socket, cfg, 10)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].ErrorKind != "upload" || resp.Counts["failed"] != 1 {
		t.Fatalf("unexpected history %#v", resp)
	}
}

func TestOfflineRequeue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := ingest.Layout{Root: cfg.Paths.QueueRoot}
	if err := layout.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"job-7-1.pdf", "job-7-1.json", "job-8-1.ps"} {
		if err := os.WriteFile(filepath.Join(layout.Failed(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	socket := filepath.Join(t.TempDir(), "missing.sock")

	if _, err := Requeue(socket, cfg, nil, false); err == nil {
		t.Fatal("expected error without stems")
	}
	moved, err := Requeue(socket, cfg, []string{"job-7-1"}, false)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if len(moved) != 1 || moved[0] != "job-7-1" {
		t.Fatalf("unexpected moved %v", moved)
	}
	for _, name := range []string{"job-7-1.pdf", "job-7-1.json"} {
		if _, err := os.Stat(filepath.Join(layout.Incoming(), name)); err != nil {
			t.Fatalf("expected %s in Incoming: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(layout.Failed(), "job-8-1.ps")); err != nil {
		t.Fatalf("expected job-8-1 to stay in Failed: %v", err)
	}
}
