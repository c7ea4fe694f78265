package services

import "context"

// Each annotation gets its own key type so values cannot collide with keys
// from other packages.
type (
	jobKey       struct{}
	stageKey     struct{}
	requestIDKey struct{}
)

// WithJob records the stem of the print job being processed. Blank stems
// leave ctx unchanged.
func WithJob(ctx context.Context, stem string) context.Context {
	return withString(ctx, jobKey{}, stem)
}

func JobFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, jobKey{})
}

// WithStage records the pipeline stage (extract, upload, ...).
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey{}, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey{})
}

// WithRequestID records the correlation id shared by every log line and
// history row of one dispatch.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey{})
}

func withString(ctx context.Context, key any, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}
