package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lad75020/SendToOneNote/internal/config"
)

const userAgent = "SendToOneNote/0.1.0"

// Job describes a finished print job for a notification.
type Job struct {
	Stem      string
	Title     string
	User      string
	ErrorKind string
	Err       error
	WebURL    string
}

// Service defines the notification surface used by the ingest pipeline.
type Service interface {
	NotifyJobUploaded(ctx context.Context, job Job) error
	NotifyJobFailed(ctx context.Context, job Job) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onFailure: cfg.Notifications.OnFailure,
		onSuccess: cfg.Notifications.OnSuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onFailure bool
	onSuccess bool
}

func jobLabel(job Job) string {
	title := strings.TrimSpace(job.Title)
	stem := strings.TrimSpace(job.Stem)
	switch {
	case title != "" && stem != "":
		return fmt.Sprintf("%s (%s)", title, stem)
	case title != "":
		return title
	default:
		return stem
	}
}

func (n *ntfyService) NotifyJobUploaded(ctx context.Context, job Job) error {
	if !n.onSuccess {
		return nil
	}
	message := fmt.Sprintf("📄 Uploaded: %s", jobLabel(job))
	if user := strings.TrimSpace(job.User); user != "" {
		message += "\nPrinted by: " + user
	}
	return n.send(ctx, payload{
		title:   "SendToOneNote - Uploaded",
		message: message,
		tags:    []string{"sendtoonenote", "upload", "completed"},
		click:   strings.TrimSpace(job.WebURL),
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job Job) error {
	if !n.onFailure {
		return nil
	}
	kind := strings.TrimSpace(job.ErrorKind)
	if kind == "" {
		kind = "unknown"
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "❌ Job failed (%s): %s", kind, jobLabel(job))
	if job.Err != nil {
		builder.WriteString("\n")
		builder.WriteString(strings.TrimSpace(job.Err.Error()))
	}
	builder.WriteString("\nRequeue with: sendtoonenote requeue ")
	builder.WriteString(strings.TrimSpace(job.Stem))
	return n.send(ctx, payload{
		title:    "SendToOneNote - Failed",
		message:  builder.String(),
		tags:     []string{"sendtoonenote", "failed", kind},
		priority: "high",
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "SendToOneNote - Error",
		message:  builder.String(),
		tags:     []string{"sendtoonenote", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "SendToOneNote - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"sendtoonenote", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobUploaded(context.Context, Job) error     { return nil }
func (noopService) NotifyJobFailed(context.Context, Job) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
