package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var ErrPerformanceNotFound = errors.New("performance snapshot not found")

// PerformanceRepository 绩效快照仓储
type PerformanceRepository struct {
	*Repository
}

// NewPerformanceRepository 创建绩效快照仓储
func NewPerformanceRepository(db *gorm.DB) *PerformanceRepository {
	return &PerformanceRepository{Repository: NewRepository(db)}
}

// Create 追加一条绩效快照，历史快照不覆盖
func (r *PerformanceRepository) Create(ctx context.Context, snapshot *model.PerformanceSnapshot) error {
	if snapshot.RecordedAt == 0 {
		snapshot.RecordedAt = time.Now().UnixMilli()
	}
	return r.DB(ctx).Create(snapshot).Error
}

// GetLatestByOrgID 获取机构最新绩效快照
func (r *PerformanceRepository) GetLatestByOrgID(ctx context.Context, orgID string) (*model.PerformanceSnapshot, error) {
	var snapshot model.PerformanceSnapshot
	err := r.DB(ctx).
		Where("org_id = ?", orgID).
		Order("recorded_at DESC, id DESC").
		First(&snapshot).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPerformanceNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// FindLatestByOrgID 查找机构最新绩效快照，从未记录返回 (nil, nil)
// 评分端对缺失快照按中性分处理，不视为错误
func (r *PerformanceRepository) FindLatestByOrgID(ctx context.Context, orgID string) (*model.PerformanceSnapshot, error) {
	snapshot, err := r.GetLatestByOrgID(ctx, orgID)
	if errors.Is(err, ErrPerformanceNotFound) {
		return nil, nil
	}
	return snapshot, err
}

// ListByOrg 查询机构绩效快照历史，按记录时间倒序
func (r *PerformanceRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*model.PerformanceSnapshot, error) {
	var snapshots []*model.PerformanceSnapshot
	err := r.DB(ctx).
		Where("org_id = ?", orgID).
		Order("recorded_at DESC, id DESC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}

// CleanupOldSnapshots 清理指定时间之前的历史快照
func (r *PerformanceRepository) CleanupOldSnapshots(ctx context.Context, beforeTime int64, batchSize int) (int64, error) {
	result := r.DB(ctx).
		Where("recorded_at < ?", beforeTime).
		Limit(batchSize).
		Delete(&model.PerformanceSnapshot{})
	return result.RowsAffected, result.Error
}
