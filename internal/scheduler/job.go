package scheduler

import (
	"context"
	"time"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// Job 任务接口
type Job interface {
	// Name 任务名称
	Name() string
	// Execute 执行任务
	Execute(ctx context.Context) (*JobResult, error)
	// Timeout 任务超时时间
	Timeout() time.Duration
	// RequiresLock 是否需要分布式锁
	RequiresLock() bool
	// LockTTL 锁的TTL (仅在 RequiresLock() 返回 true 时有效)
	LockTTL() time.Duration
	// UseWatchdog 是否使用 Watchdog 锁续期 (长时间运行任务)
	UseWatchdog() bool
}

// JobResult 任务执行结果
type JobResult struct {
	// ProcessedCount 处理的记录数
	ProcessedCount int
	// AffectedCount 影响的记录数
	AffectedCount int
	// ErrorCount 错误数
	ErrorCount int
	// Details 详细信息
	Details map[string]interface{}
}

// ToJSONResult 转换为 JSONResult
func (r *JobResult) ToJSONResult() model.JSONResult {
	if r == nil {
		return nil
	}
	result := model.JSONResult{
		"processed_count": r.ProcessedCount,
		"affected_count":  r.AffectedCount,
		"error_count":     r.ErrorCount,
	}
	for k, v := range r.Details {
		result[k] = v
	}
	return result
}

// BaseJob 基础任务实现
type BaseJob struct {
	name        string
	timeout     time.Duration
	lockTTL     time.Duration
	useWatchdog bool
}

// NewBaseJob 创建基础任务
func NewBaseJob(name string, timeout, lockTTL time.Duration, useWatchdog bool) BaseJob {
	return BaseJob{
		name:        name,
		timeout:     timeout,
		lockTTL:     lockTTL,
		useWatchdog: useWatchdog,
	}
}

// Name 任务名称
func (j BaseJob) Name() string {
	return j.name
}

// Timeout 任务超时时间
func (j BaseJob) Timeout() time.Duration {
	return j.timeout
}

// RequiresLock 是否需要分布式锁
func (j BaseJob) RequiresLock() bool {
	return j.lockTTL > 0
}

// LockTTL 锁的TTL
func (j BaseJob) LockTTL() time.Duration {
	return j.lockTTL
}

// UseWatchdog 是否使用 Watchdog 锁续期
func (j BaseJob) UseWatchdog() bool {
	return j.useWatchdog
}

// JobNames 任务名称常量
const (
	JobNameBatchAllocation   = "batch_allocation"
	JobNameComplianceSweep   = "compliance_sweep"
	JobNameAssessmentRefresh = "assessment_refresh"
	JobNameAuditVerify       = "audit_verify"
	JobNameStaleExecution    = "stale_execution"
)

// DefaultJobConfigs 默认任务配置
var DefaultJobConfigs = map[string]struct {
	Cron        string
	Timeout     time.Duration
	LockTTL     time.Duration
	UseWatchdog bool
}{
	JobNameBatchAllocation: {
		Cron:        "0 0 2 * * *", // 每日凌晨2点
		Timeout:     10 * time.Minute,
		LockTTL:     15 * time.Minute,
		UseWatchdog: true,
	},
	JobNameComplianceSweep: {
		Cron:        "0 0 3 * * *", // 每日凌晨3点
		Timeout:     10 * time.Minute,
		LockTTL:     15 * time.Minute,
		UseWatchdog: true,
	},
	JobNameAssessmentRefresh: {
		Cron:        "0 0 4 * * 1", // 每周一凌晨4点
		Timeout:     15 * time.Minute,
		LockTTL:     20 * time.Minute,
		UseWatchdog: true,
	},
	JobNameAuditVerify: {
		Cron:        "0 30 1 * * *", // 每日凌晨1点30
		Timeout:     5 * time.Minute,
		LockTTL:     6 * time.Minute,
		UseWatchdog: false,
	},
	JobNameStaleExecution: {
		Cron:        "0 */10 * * * *", // 每10分钟
		Timeout:     2 * time.Minute,
		LockTTL:     3 * time.Minute,
		UseWatchdog: false,
	},
}
