package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	click    string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			click:    r.Header.Get("Click"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func configFor(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.OnFailure = true
	cfg.Notifications.OnSuccess = true
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFailed(context.Background(), notifications.Job{Stem: "job-1-1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNotifyJobFailedFormatsPayload(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(server.URL))

	err := svc.NotifyJobFailed(context.Background(), notifications.Job{
		Stem:      "job-7-1700",
		Title:     "Invoice",
		ErrorKind: "upload",
		Err:       errors.New("status 403"),
	})
	if err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if got.title != "SendToOneNote - Failed" || got.priority != "high" || got.tags != "sendtoonenote,failed,upload" {
		t.Fatalf("unexpected headers: %#v", got)
	}
	for _, want := range []string{"Job failed (upload): Invoice (job-7-1700)", "status 403", "sendtoonenote requeue job-7-1700"} {
		if !strings.Contains(got.body, want) {
			t.Fatalf("expected %q in body %q", want, got.body)
		}
	}
}

func TestNotifyJobUploadedSetsClickURL(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(server.URL))

	if err := svc.NotifyJobUploaded(context.Background(), notifications.Job{Stem: "job-1-1", Title: "Notes", User: "alice", WebURL: "https://example.test/page"}); err != nil {
		t.Fatalf("NotifyJobUploaded: %v", err)
	}
	got := (*requests)[0]
	if got.click != "https://example.test/page" || !strings.Contains(got.body, "Printed by: alice") {
		t.Fatalf("unexpected payload: %#v", got)
	}
}

func TestToggleSuppressesNotices(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	cfg := configFor(server.URL)
	cfg.Notifications.OnSuccess = false
	cfg.Notifications.OnFailure = false
	svc := notifications.NewService(cfg)

	_ = svc.NotifyJobUploaded(context.Background(), notifications.Job{Stem: "a"})
	_ = svc.NotifyJobFailed(context.Background(), notifications.Job{Stem: "a"})
	if len(*requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(*requests))
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected test notification to bypass toggles")
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusInternalServerError)
	svc := notifications.NewService(configFor(server.URL))
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "watcher"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
