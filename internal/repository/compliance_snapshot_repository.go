package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var ErrComplianceSnapshotNotFound = errors.New("compliance snapshot not found")

// ComplianceSnapshotRepository 合规指标快照仓储，每机构一行
type ComplianceSnapshotRepository struct {
	*Repository
}

// NewComplianceSnapshotRepository 创建合规指标快照仓储
func NewComplianceSnapshotRepository(db *gorm.DB) *ComplianceSnapshotRepository {
	return &ComplianceSnapshotRepository{Repository: NewRepository(db)}
}

// Upsert 写入机构指标快照，已存在则整体覆盖指标与采集时间
func (r *ComplianceSnapshotRepository) Upsert(ctx context.Context, snapshot *model.ComplianceSnapshot) error {
	if snapshot.CollectedAt == 0 {
		snapshot.CollectedAt = time.Now().UnixMilli()
	}
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"metrics", "collected_at", "updated_at"}),
	}).Create(snapshot).Error
}

// GetByOrgID 获取机构指标快照
func (r *ComplianceSnapshotRepository) GetByOrgID(ctx context.Context, orgID string) (*model.ComplianceSnapshot, error) {
	var snapshot model.ComplianceSnapshot
	err := r.DB(ctx).
		Where("org_id = ?", orgID).
		First(&snapshot).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrComplianceSnapshotNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// FindByOrgID 查找机构指标快照，从未采集返回 (nil, nil)
// 评估端对缺失快照按全指标缺失处理
func (r *ComplianceSnapshotRepository) FindByOrgID(ctx context.Context, orgID string) (*model.ComplianceSnapshot, error) {
	snapshot, err := r.GetByOrgID(ctx, orgID)
	if errors.Is(err, ErrComplianceSnapshotNotFound) {
		return nil, nil
	}
	return snapshot, err
}

// ListStale 查询采集时间早于给定时刻的快照，按采集时间升序
// 供指标采集任务优先刷新最陈旧的机构
func (r *ComplianceSnapshotRepository) ListStale(ctx context.Context, collectedBefore int64, limit int) ([]*model.ComplianceSnapshot, error) {
	var snapshots []*model.ComplianceSnapshot
	err := r.DB(ctx).
		Where("collected_at < ?", collectedBefore).
		Order("collected_at ASC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}
