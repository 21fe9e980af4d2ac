package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var (
	ErrAlertNotFound    = errors.New("compliance alert not found")
	ErrAlertDuplicate   = errors.New("compliance alert already exists")
	ErrAlertStatusStale = errors.New("compliance alert status stale")
)

// ComplianceAlertRepository 合规告警仓储
type ComplianceAlertRepository struct {
	*Repository
}

// NewComplianceAlertRepository 创建合规告警仓储
func NewComplianceAlertRepository(db *gorm.DB) *ComplianceAlertRepository {
	return &ComplianceAlertRepository{Repository: NewRepository(db)}
}

// Create 创建告警
func (r *ComplianceAlertRepository) Create(ctx context.Context, alert *model.ComplianceAlert) error {
	if alert.Status == "" {
		alert.Status = model.AlertStatusOpen
	}
	result := r.DB(ctx).Create(alert)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrAlertDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByAlertID 根据告警ID获取
func (r *ComplianceAlertRepository) GetByAlertID(ctx context.Context, alertID string) (*model.ComplianceAlert, error) {
	var alert model.ComplianceAlert
	err := r.DB(ctx).
		Where("alert_id = ?", alertID).
		First(&alert).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// FindOpenByType 查找机构同类型的未处理告警，不存在返回 (nil, nil)
// 巡检端据此去重，同一机构同一类型只保留一条待处理告警
func (r *ComplianceAlertRepository) FindOpenByType(ctx context.Context, orgID string, alertType model.AlertType) (*model.ComplianceAlert, error) {
	var alert model.ComplianceAlert
	err := r.DB(ctx).
		Where("org_id = ? AND type = ? AND status = ?", orgID, alertType, model.AlertStatusOpen).
		Order("created_at DESC, id DESC").
		First(&alert).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

// ListOpen 分页查询待处理告警，按创建时间倒序
func (r *ComplianceAlertRepository) ListOpen(ctx context.Context, page *Pagination) ([]*model.ComplianceAlert, int64, error) {
	var (
		alerts []*model.ComplianceAlert
		total  int64
	)

	query := r.DB(ctx).Model(&model.ComplianceAlert{}).Where("status = ?", model.AlertStatusOpen)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&alerts).Error
	return alerts, total, err
}

// ListByOrg 分页查询机构告警历史
func (r *ComplianceAlertRepository) ListByOrg(ctx context.Context, orgID string, page *Pagination) ([]*model.ComplianceAlert, int64, error) {
	var (
		alerts []*model.ComplianceAlert
		total  int64
	)

	query := r.DB(ctx).Model(&model.ComplianceAlert{}).Where("org_id = ?", orgID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&alerts).Error
	return alerts, total, err
}

// Acknowledge 确认告警，仅允许 open -> acknowledged
func (r *ComplianceAlertRepository) Acknowledge(ctx context.Context, alertID, acknowledgedBy string) error {
	result := r.DB(ctx).
		Model(&model.ComplianceAlert{}).
		Where("alert_id = ? AND status = ?", alertID, model.AlertStatusOpen).
		Updates(map[string]interface{}{
			"status":          model.AlertStatusAcknowledged,
			"acknowledged_by": acknowledgedBy,
			"acknowledged_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByAlertID(ctx, alertID); err != nil {
			return err
		}
		return ErrAlertStatusStale
	}
	return nil
}

// Resolve 关闭告警，open 与 acknowledged 均可直接关闭
func (r *ComplianceAlertRepository) Resolve(ctx context.Context, alertID, resolvedBy string) error {
	result := r.DB(ctx).
		Model(&model.ComplianceAlert{}).
		Where("alert_id = ? AND status IN ?", alertID, []model.AlertStatus{model.AlertStatusOpen, model.AlertStatusAcknowledged}).
		Updates(map[string]interface{}{
			"status":      model.AlertStatusResolved,
			"resolved_by": resolvedBy,
			"resolved_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByAlertID(ctx, alertID); err != nil {
			return err
		}
		return ErrAlertStatusStale
	}
	return nil
}

// CountOpenByType 按类型统计待处理告警数量
func (r *ComplianceAlertRepository) CountOpenByType(ctx context.Context) (map[model.AlertType]int64, error) {
	var rows []struct {
		Type  model.AlertType
		Count int64
	}

	err := r.DB(ctx).
		Model(&model.ComplianceAlert{}).
		Select("type, COUNT(*) as count").
		Where("status = ?", model.AlertStatusOpen).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.AlertType]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}
