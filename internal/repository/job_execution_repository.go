package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// JobExecutionRepository 定时任务执行记录仓储
type JobExecutionRepository struct {
	*Repository
}

// NewJobExecutionRepository 创建任务执行记录仓储
func NewJobExecutionRepository(db *gorm.DB) *JobExecutionRepository {
	return &JobExecutionRepository{Repository: NewRepository(db)}
}

// Create 创建执行记录
func (r *JobExecutionRepository) Create(ctx context.Context, exec *model.JobExecution) error {
	if exec.StartedAt == 0 {
		exec.StartedAt = time.Now().UnixMilli()
	}
	return r.DB(ctx).Create(exec).Error
}

// Update 更新执行记录
func (r *JobExecutionRepository) Update(ctx context.Context, exec *model.JobExecution) error {
	return r.DB(ctx).Save(exec).Error
}

// FindByID 根据ID查找执行记录，不存在返回 (nil, nil)
func (r *JobExecutionRepository) FindByID(ctx context.Context, id int64) (*model.JobExecution, error) {
	var exec model.JobExecution
	err := r.DB(ctx).Where("id = ?", id).First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// FindLatestByJobName 查找任务最新执行记录，从未执行返回 (nil, nil)
func (r *JobExecutionRepository) FindLatestByJobName(ctx context.Context, jobName string) (*model.JobExecution, error) {
	var exec model.JobExecution
	err := r.DB(ctx).
		Where("job_name = ?", jobName).
		Order("started_at DESC").
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// FindRunningByJobName 查找正在运行的任务，没有返回 (nil, nil)
func (r *JobExecutionRepository) FindRunningByJobName(ctx context.Context, jobName string) (*model.JobExecution, error) {
	var exec model.JobExecution
	err := r.DB(ctx).
		Where("job_name = ? AND status = ?", jobName, model.JobStatusRunning).
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// ListByJobName 查询任务执行历史
func (r *JobExecutionRepository) ListByJobName(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	var execs []*model.JobExecution
	err := r.DB(ctx).
		Where("job_name = ?", jobName).
		Order("started_at DESC").
		Limit(limit).
		Find(&execs).Error
	return execs, err
}

// CountByJobNameAndStatus 统计任务执行次数
func (r *JobExecutionRepository) CountByJobNameAndStatus(ctx context.Context, jobName string, status model.JobStatus) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.JobExecution{}).
		Where("job_name = ? AND status = ?", jobName, status).
		Count(&count).Error
	return count, err
}

// GetLastSuccessTime 获取任务上次成功执行时间，从未成功返回 0
func (r *JobExecutionRepository) GetLastSuccessTime(ctx context.Context, jobName string) (int64, error) {
	var exec model.JobExecution
	err := r.DB(ctx).
		Where("job_name = ? AND status = ?", jobName, model.JobStatusSuccess).
		Order("finished_at DESC").
		First(&exec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if exec.FinishedAt != nil {
		return *exec.FinishedAt, nil
	}
	return exec.StartedAt, nil
}

// CleanupOldRecords 清理旧的执行记录
func (r *JobExecutionRepository) CleanupOldRecords(ctx context.Context, beforeTime int64, batchSize int) (int64, error) {
	result := r.DB(ctx).
		Where("started_at < ?", beforeTime).
		Limit(batchSize).
		Delete(&model.JobExecution{})
	return result.RowsAffected, result.Error
}

// MarkStaleRunningAsFailed 标记卡住的任务为失败
func (r *JobExecutionRepository) MarkStaleRunningAsFailed(ctx context.Context, threshold time.Duration) (int64, error) {
	staleTime := time.Now().Add(-threshold).UnixMilli()
	errorMsg := "task timed out (marked as failed by cleanup job)"

	result := r.DB(ctx).
		Model(&model.JobExecution{}).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, staleTime).
		Updates(map[string]interface{}{
			"status":        model.JobStatusFailed,
			"finished_at":   time.Now().UnixMilli(),
			"error_message": errorMsg,
		})
	return result.RowsAffected, result.Error
}
