package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/lad75020/SendToOneNote/internal/services"
)

// Structured keys shared by every component. Consoles lift component, job
// and stage into the record header; everything else renders as a body line.
const (
	FieldComponent     = "component"
	FieldJob           = "job"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"

	// FieldEventType names the kind of event a warning or error describes.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact states what the operator loses because of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries the failure classification label.
	FieldErrorKind = "error_kind"
	// FieldStatusCode and FieldResponseBody describe a remote API reply.
	FieldStatusCode   = "status_code"
	FieldResponseBody = "response_body"
)

const (
	defaultHint   = "check logs for details"
	defaultImpact = "operation completed with warnings"
)

type Attr = slog.Attr

func Any(key string, value any) Attr                { return slog.Any(key, value) }
func Bool(key string, value bool) Attr              { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Int(key string, value int) Attr                { return slog.Int(key, value) }
func Int64(key string, value int64) Attr            { return slog.Int64(key, value) }
func String(key string, value string) Attr          { return slog.String(key, value) }

// Error records err under the "error" key; a nil error is still visible.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// NewNop returns a logger that drops every record.
func NewNop() *slog.Logger {
	return slog.New(discardHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a tagged no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(FieldComponent, component)
}

// WithContext returns logger annotated with the job, stage and correlation
// id carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if job, ok := services.JobFromContext(ctx); ok {
		args = append(args, FieldJob, job)
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, FieldStage, stage)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, FieldCorrelationID, id)
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}

// WarnWithContext logs a warning that always carries an event type, a hint
// and an impact. Explicit attrs win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, defaultHint)
	attrs = withDefault(attrs, FieldImpact, defaultImpact)
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

// ErrorWithContext logs an error that always carries an event type and a hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, defaultHint)
	logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func withDefault(attrs []Attr, key, value string) []Attr {
	for _, attr := range attrs {
		if attr.Key == key {
			return attrs
		}
	}
	return append(attrs, slog.String(key, value))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }
