package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
)

const (
	defaultStaleThreshold = 30 * time.Minute
	defaultReapBatchSize  = 100
)

// ExecutionReaper 滞留执行回收入口
type ExecutionReaper interface {
	// ReapStaleExecutions 回收滞留超过 olderThan 的非终态执行
	ReapStaleExecutions(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// StaleExecutionJob 滞留执行回收任务
type StaleExecutionJob struct {
	scheduler.BaseJob
	reaper    ExecutionReaper
	olderThan time.Duration
	batchSize int
}

// NewStaleExecutionJob 创建滞留执行回收任务
func NewStaleExecutionJob(reaper ExecutionReaper, olderThan time.Duration, batchSize int) *StaleExecutionJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameStaleExecution]

	if olderThan <= 0 {
		olderThan = defaultStaleThreshold
	}
	if batchSize <= 0 {
		batchSize = defaultReapBatchSize
	}

	return &StaleExecutionJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameStaleExecution,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		reaper:    reaper,
		olderThan: olderThan,
		batchSize: batchSize,
	}
}

// Execute 回收滞留执行
func (j *StaleExecutionJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	result := &scheduler.JobResult{
		Details: make(map[string]interface{}),
	}

	reaped, err := j.reaper.ReapStaleExecutions(ctx, j.olderThan, j.batchSize)
	if err != nil {
		return result, fmt.Errorf("stale execution reap failed: %w", err)
	}

	result.ProcessedCount = reaped
	result.AffectedCount = reaped
	result.Details["older_than_minutes"] = int(j.olderThan.Minutes())

	return result, nil
}
