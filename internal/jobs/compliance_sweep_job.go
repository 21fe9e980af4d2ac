package jobs

import (
	"context"
	"fmt"

	"github.com/almoner-platform/almoner-allocation/internal/compliance"
	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
)

// ComplianceSweeper 合规巡检入口
type ComplianceSweeper interface {
	// MonitorSweep 巡检全部活跃机构，maxAlerts 传 0 使用配置上限
	MonitorSweep(ctx context.Context, maxAlerts int) (*compliance.MonitoringReport, error)
}

// ComplianceSweepJob 合规巡检任务
type ComplianceSweepJob struct {
	scheduler.BaseJob
	sweeper ComplianceSweeper
}

// NewComplianceSweepJob 创建合规巡检任务
func NewComplianceSweepJob(sweeper ComplianceSweeper) *ComplianceSweepJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameComplianceSweep]

	return &ComplianceSweepJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameComplianceSweep,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		sweeper: sweeper,
	}
}

// Execute 巡检全部活跃机构
func (j *ComplianceSweepJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	result := &scheduler.JobResult{
		Details: make(map[string]interface{}),
	}

	report, err := j.sweeper.MonitorSweep(ctx, 0)
	if err != nil {
		return result, fmt.Errorf("compliance sweep failed: %w", err)
	}

	result.ProcessedCount = report.SweptOrganizations
	result.AffectedCount = report.AlertsRaised
	result.Details["alerts_by_type"] = report.AlertsByType
	result.Details["truncated"] = report.Truncated

	return result, nil
}
