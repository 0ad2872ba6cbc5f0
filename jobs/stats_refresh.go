package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/hr-analytics/internal/jobs"
)

// StatsRefresher bumps the dashboard cache version.
type StatsRefresher interface {
	RefreshStats(ctx context.Context) (int64, error)
}

// Enqueuer schedules follow-up tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StatsRefreshJob invalidates cached aggregates, which makes every open
// dashboard reload through the cache bump broadcast, then queues a warmup.
type StatsRefreshJob struct {
	Refresher StatsRefresher
	Warmups   Enqueuer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskHRStatsRefresh tasks.
func (j *StatsRefreshJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Refresher == nil {
		return errors.New("hr stats refresh: handler not configured")
	}
	var payload StatsRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskHRStatsRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskHRStatsRefresh), slog.String("reason", payload.Reason))

	version, err := j.Refresher.RefreshStats(ctx)
	if err != nil {
		logger.Error("bump cache version", slog.Any("error", err))
		return err
	}
	logger.Info("hr cache version bumped", slog.Int64("version", version))

	if j.Warmups == nil {
		return nil
	}
	task, err := NewWarmupTask(WarmupPayload{})
	if err != nil {
		return err
	}
	if _, err := j.Warmups.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		logger.Warn("enqueue warmup after refresh", slog.Any("error", err))
	}
	return nil
}
