package jobs

import (
	"context"
	"fmt"

	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
)

const defaultRefreshBatchLimit = 200

// AssessmentRefresher 合规评估刷新入口
type AssessmentRefresher interface {
	// RefreshDueAssessments 重评到期的机构，返回实际刷新数
	RefreshDueAssessments(ctx context.Context, limit int) (int, error)
}

// AssessmentRefreshJob 到期合规评估刷新任务
type AssessmentRefreshJob struct {
	scheduler.BaseJob
	refresher  AssessmentRefresher
	batchLimit int
}

// NewAssessmentRefreshJob 创建评估刷新任务
func NewAssessmentRefreshJob(refresher AssessmentRefresher, batchLimit int) *AssessmentRefreshJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameAssessmentRefresh]

	if batchLimit <= 0 {
		batchLimit = defaultRefreshBatchLimit
	}

	return &AssessmentRefreshJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameAssessmentRefresh,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		refresher:  refresher,
		batchLimit: batchLimit,
	}
}

// Execute 刷新复审到期的合规评估
func (j *AssessmentRefreshJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	result := &scheduler.JobResult{
		Details: make(map[string]interface{}),
	}

	refreshed, err := j.refresher.RefreshDueAssessments(ctx, j.batchLimit)
	if err != nil {
		return result, fmt.Errorf("assessment refresh failed: %w", err)
	}

	result.ProcessedCount = refreshed
	result.AffectedCount = refreshed
	result.Details["batch_limit"] = j.batchLimit

	return result, nil
}
