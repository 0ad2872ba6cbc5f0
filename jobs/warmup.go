package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	jobmetrics "github.com/odyssey-erp/hr-analytics/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// WarmupService is the slice of hranalytics.Service the warmup drives.
type WarmupService interface {
	Departments(ctx context.Context) ([]hranalytics.Department, error)
	Dashboard(ctx context.Context, filters hranalytics.Filters) (hranalytics.DashboardData, error)
	Stats(ctx context.Context, filters hranalytics.Filters) (hranalytics.Stats, error)
}

// WarmupJob fills the dashboard cache for the ranges users open first:
// month to date and the trailing default window.
type WarmupJob struct {
	Service WarmupService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(service WarmupService, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{Service: service, Logger: logger, Metrics: metrics, clock: time.Now}
}

// WithClock overrides the job clock.
func (j *WarmupJob) WithClock(clock func() time.Time) {
	j.clock = clock
}

// Handle processes TaskHRWarmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("hr warmup: handler not configured")
	}
	var payload WarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("hr warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskHRWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	scopes, err := j.scopes(ctx, payload)
	if err != nil {
		logger.Error("load warmup scopes", slog.Any("error", err))
		return err
	}

	started := time.Now()
	now := j.now()
	for _, scope := range scopes {
		if err := j.warmScope(ctx, scope, now); err != nil {
			logger.Error("warm scope", slog.Int64("department_id", deptValue(scope)), slog.Any("error", err))
			return err
		}
	}
	j.metrics().AddWarmedScopes(len(scopes))
	logger.Info("completed hr warmup", slog.Int("scopes", len(scopes)), slog.Duration("duration", time.Since(started)))
	return nil
}

// scopes always includes the company-wide view (nil department).
func (j *WarmupJob) scopes(ctx context.Context, payload WarmupPayload) ([]*int64, error) {
	scopes := []*int64{nil}
	ids := payload.DepartmentIDs
	if len(ids) == 0 {
		departments, err := j.Service.Departments(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range departments {
			ids = append(ids, d.ID)
		}
	}
	for _, id := range ids {
		id := id
		scopes = append(scopes, &id)
	}
	return scopes, nil
}

func (j *WarmupJob) warmScope(ctx context.Context, department *int64, now time.Time) error {
	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	for _, f := range WarmupRanges(now) {
		f.DepartmentID = department
		if _, err := j.Service.Dashboard(scopeCtx, f); err != nil {
			return err
		}
		if _, err := j.Service.Stats(scopeCtx, f); err != nil {
			return err
		}
	}
	return nil
}

// WarmupRanges returns the month-to-date window and the trailing default window.
func WarmupRanges(now time.Time) []hranalytics.Filters {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	return []hranalytics.Filters{
		{StartDate: monthStart, EndDate: today},
		{StartDate: today.AddDate(0, 0, -hranalytics.DefaultRangeDays), EndDate: today},
	}
}

func deptValue(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskHRWarmup))
	}
	return slog.Default().With(slog.String("job", TaskHRWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
