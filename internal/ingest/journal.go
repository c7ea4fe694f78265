package ingest

import (
	"context"
	"log/slog"

	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/notifications"
	"github.com/lad75020/SendToOneNote/internal/services"
)

// HistoryRecorder persists terminal outcomes.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) (int64, error)
}

// Journal records terminal outcomes in the history ledger and pushes
// notifications. Both sinks are optional and their failures only log.
type Journal struct {
	history  HistoryRecorder
	notifier notifications.Service
	logger   *slog.Logger
}

// NewJournal constructs a Journal. Nil sinks are skipped.
func NewJournal(recorder HistoryRecorder, notifier notifications.Service, logger *slog.Logger) *Journal {
	return &Journal{
		history:  recorder,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "journal"),
	}
}

// Report implements Reporter.
func (j *Journal) Report(ctx context.Context, job Job, outcome Outcome, err error) {
	logger := logging.WithContext(ctx, j.logger)
	entry := history.Entry{
		Stem:          job.Stem,
		Title:         job.Meta.Title,
		User:          job.Meta.User,
		Job:           job.Meta.Job,
		Status:        history.StatusDone,
		PageID:        outcome.PageID,
		WebURL:        outcome.WebURL,
		CorrelationID: outcome.CorrelationID,
		StartedAt:     outcome.StartedAt,
		FinishedAt:    outcome.FinishedAt,
	}
	if err != nil {
		entry.Status = history.StatusFailed
		entry.ErrorKind = services.FailureKind(err)
		entry.ErrorMessage = err.Error()
	}

	if j.history != nil {
		if _, recErr := j.history.Record(ctx, entry); recErr != nil {
			logging.WarnWithContext(logger, "history record failed", "history_record_failed",
				logging.Error(recErr),
				logging.String(logging.FieldErrorHint, "check state_dir permissions or delete history.db"),
				logging.String(logging.FieldImpact, "job outcome missing from history"),
			)
		}
	}

	if j.notifier == nil {
		return
	}
	notice := notifications.Job{
		Stem:      job.Stem,
		Title:     job.Meta.Title,
		User:      job.Meta.User,
		ErrorKind: entry.ErrorKind,
		Err:       err,
		WebURL:    outcome.WebURL,
	}
	var notifyErr error
	if err != nil {
		notifyErr = j.notifier.NotifyJobFailed(ctx, notice)
	} else {
		notifyErr = j.notifier.NotifyJobUploaded(ctx, notice)
	}
	if notifyErr != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(notifyErr),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator not notified"),
		)
	}
}
