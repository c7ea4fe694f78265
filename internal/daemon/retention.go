package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lad75020/SendToOneNote/internal/archive"
	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/logging"
)

const retentionSchedule = "@every 6h"

// retention prunes the Done directory and history rows older than
// retention.done_days.
type retention struct {
	dir     string
	maxAge  time.Duration
	history *history.Store
	logger  *slog.Logger

	mu    sync.Mutex
	sched *cron.Cron
	wg    sync.WaitGroup
}

func newRetention(cfg *config.Config, doneDir string, store *history.Store, logger *slog.Logger) *retention {
	return &retention{
		dir:     doneDir,
		maxAge:  time.Duration(cfg.Retention.DoneDays) * 24 * time.Hour,
		history: store,
		logger:  logger,
	}
}

func (r *retention) start(ctx context.Context) {
	if r == nil || r.maxAge <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()

	sched := cron.New()
	if _, err := sched.AddFunc(retentionSchedule, func() { r.run(ctx) }); err != nil {
		logging.WarnWithContext(r.logger, "retention schedule rejected", "retention_schedule_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "Done is pruned only at startup"),
		)
		return
	}
	sched.Start()
	r.mu.Lock()
	r.sched = sched
	r.mu.Unlock()
}

func (r *retention) stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	sched := r.sched
	r.sched = nil
	r.mu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
	r.wg.Wait()
}

// run performs one prune pass.
func (r *retention) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result := archive.PruneOlderThan(ctx, r.dir, r.maxAge, r.logger)
	var rows int64
	if r.history != nil {
		var err error
		rows, err = r.history.Prune(ctx, time.Now().Add(-r.maxAge))
		if err != nil {
			logging.WarnWithContext(r.logger, "history prune failed", "history_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old history rows kept"),
			)
		}
	}
	if len(result.Removed) > 0 || rows > 0 || len(result.Errors) > 0 {
		r.logger.Info("retention pass complete",
			logging.String(logging.FieldEventType, "retention_pass"),
			logging.Int("files_removed", len(result.Removed)),
			logging.Int("file_errors", len(result.Errors)),
			logging.Int64("history_rows_removed", rows),
		)
	}
}
