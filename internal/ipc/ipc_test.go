package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lad75020/SendToOneNote/internal/daemon"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/ipc"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
	"github.com/lad75020/SendToOneNote/internal/watcher"
)

type okRunner struct{}

func (okRunner) Run(context.Context, ingest.Job) (ingest.Outcome, error) {
	return ingest.Outcome{PageID: "page"}, nil
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "ipc-test.log")
	if err := os.WriteFile(logPath, []byte("level=INFO job=job-1-1 staged\nlevel=INFO other\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := logging.NewNop()
	layout := ingest.Layout{Root: cfg.Paths.QueueRoot}
	stager := ingest.NewStager(layout, okRunner{})
	w := watcher.New(layout.Incoming(), stager, watcher.WithDebounce(cfg.DebounceWindow()))
	d, err := daemon.New(cfg, stager, w, logger, daemon.WithLogPath(logPath))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	var shutdowns atomic.Int32
	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger, ipc.WithShutdown(func() { shutdowns.Add(1) }))
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.QueueRoot != cfg.Paths.QueueRoot {
		t.Fatalf("unexpected queue root %q", status.QueueRoot)
	}

	if _, err := client.Rescan(); err != nil {
		t.Fatalf("Rescan RPC failed: %v", err)
	}

	restart, err := client.RestartWatcher()
	if err != nil || !restart.Restarted {
		t.Fatalf("RestartWatcher RPC failed: resp=%#v err=%v", restart, err)
	}

	// A failed pair requeued over the socket flows to Done.
	doc := filepath.Join(layout.Failed(), "job-9-9.pdf")
	if err := os.WriteFile(doc, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	sidecar := `{"file":"` + doc + `","title":"","user":"","job":"9"}`
	if err := os.WriteFile(filepath.Join(layout.Failed(), "job-9-9.json"), []byte(sidecar), 0o644); err != nil {
		t.Fatal(err)
	}
	requeue, err := client.Requeue([]string{"job-9-9"}, false)
	if err != nil {
		t.Fatalf("Requeue RPC failed: %v", err)
	}
	if len(requeue.Moved) != 1 || requeue.Moved[0] != "job-9-9" {
		t.Fatalf("unexpected requeue response: %#v", requeue)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(layout.Done(), "job-9-9.json")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("requeued job never reached Done")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := client.Requeue([]string{"missing"}, false); err == nil {
		t.Fatal("expected requeue error for unknown stem")
	}

	history, err := client.History(5)
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(history.Entries) != 0 {
		t.Fatalf("expected no history without a store, got %#v", history.Entries)
	}

	tail, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 10, Match: "job-1-1"})
	if err != nil {
		t.Fatalf("LogTail RPC failed: %v", err)
	}
	if len(tail.Lines) != 1 || !strings.Contains(tail.Lines[0], "staged") {
		t.Fatalf("unexpected tail lines: %#v", tail.Lines)
	}

	notify, err := client.TestNotification()
	if err != nil || notify.Sent {
		t.Fatalf("expected unsent notification without topic: resp=%#v err=%v", notify, err)
	}

	stop, err := client.Stop()
	if err != nil || !stop.Stopped {
		t.Fatalf("Stop RPC failed: resp=%#v err=%v", stop, err)
	}
	deadline = time.Now().Add(5 * time.Second)
	for shutdowns.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("shutdown callback never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if d.Running() {
		t.Fatal("expected daemon stopped after Stop RPC")
	}
}

func TestServerCloseDisconnectsIdleClients(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	layout := ingest.Layout{Root: cfg.Paths.QueueRoot}
	stager := ingest.NewStager(layout, okRunner{})
	d, err := daemon.New(cfg, stager, watcher.New(layout.Incoming(), stager), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(context.Background(), socket, d, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	info, err := os.Stat(socket)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("socket mode = %o, want 600", perm)
	}

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	defer client.Close()
	if _, err := client.Status(); err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on an attached client")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err=%v", err)
	}
}
