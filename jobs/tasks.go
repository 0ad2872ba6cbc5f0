package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every dashboard job runs on.
	QueueDefault = "default"
	// TaskHRWarmup rebuilds cached dashboard aggregates per department.
	TaskHRWarmup = "hr:warmup"
	// TaskHRStatsRefresh bumps the cache version so live sessions reload.
	TaskHRStatsRefresh = "hr:stats_refresh"
)

// WarmupPayload selects the departments to warm. Empty means all of them.
type WarmupPayload struct {
	DepartmentIDs []int64 `json:"department_ids,omitempty"`
}

// StatsRefreshPayload records why a refresh was requested.
type StatsRefreshPayload struct {
	Reason string `json:"reason"`
}

// NewWarmupTask builds a TaskHRWarmup task.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHRWarmup, data), nil
}

// NewStatsRefreshTask builds a TaskHRStatsRefresh task.
func NewStatsRefreshTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(StatsRefreshPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHRStatsRefresh, data, asynq.Unique(5*time.Minute)), nil
}
