// Package jobs 分配引擎的后台定时任务
// 每个任务是对服务层入口的薄封装，由调度器按 cron 驱动并记录执行流水
package jobs

import (
	"context"
	"fmt"

	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
	"github.com/almoner-platform/almoner-allocation/internal/service"
)

// BatchRunner 批量分配入口
type BatchRunner interface {
	// RunBatchCycle 加载待处理请求与资金池并跑一轮批量分配
	RunBatchCycle(ctx context.Context) (*service.BatchReport, error)
}

// BatchAllocationJob 批量分配任务
type BatchAllocationJob struct {
	scheduler.BaseJob
	runner BatchRunner
}

// NewBatchAllocationJob 创建批量分配任务
func NewBatchAllocationJob(runner BatchRunner) *BatchAllocationJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameBatchAllocation]

	return &BatchAllocationJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameBatchAllocation,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		runner: runner,
	}
}

// Execute 跑一轮批量分配
func (j *BatchAllocationJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	result := &scheduler.JobResult{
		Details: make(map[string]interface{}),
	}

	report, err := j.runner.RunBatchCycle(ctx)
	if err != nil {
		return result, fmt.Errorf("batch allocation cycle failed: %w", err)
	}

	result.ProcessedCount = len(report.Decisions)
	result.AffectedCount = report.Approved
	result.Details["batch_id"] = report.BatchID
	result.Details["approved"] = report.Approved
	result.Details["rejected"] = report.Rejected
	result.Details["deferred"] = report.Deferred
	result.Details["total_approved"] = report.TotalApproved.String()
	result.Details["pool_before"] = report.PoolBefore.String()
	result.Details["pool_after"] = report.PoolAfter.String()

	return result, nil
}
