package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var (
	ErrOrganizationNotFound  = errors.New("organization not found")
	ErrOrganizationDuplicate = errors.New("organization already exists")
)

// OrganizationRepository 受助机构仓储
type OrganizationRepository struct {
	*Repository
}

// NewOrganizationRepository 创建机构仓储
func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{Repository: NewRepository(db)}
}

// Create 创建机构
func (r *OrganizationRepository) Create(ctx context.Context, org *model.Organization) error {
	result := r.DB(ctx).Create(org)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrOrganizationDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByOrgID 根据机构ID获取
func (r *OrganizationRepository) GetByOrgID(ctx context.Context, orgID string) (*model.Organization, error) {
	var org model.Organization
	err := r.DB(ctx).
		Where("org_id = ?", orgID).
		First(&org).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

// FindByOrgID 根据机构ID查找，不存在返回 (nil, nil)
func (r *OrganizationRepository) FindByOrgID(ctx context.Context, orgID string) (*model.Organization, error) {
	org, err := r.GetByOrgID(ctx, orgID)
	if errors.Is(err, ErrOrganizationNotFound) {
		return nil, nil
	}
	return org, err
}

// ListActive 查询全部处于 active 状态的机构
// limit <= 0 表示不限制
func (r *OrganizationRepository) ListActive(ctx context.Context, limit int) ([]*model.Organization, error) {
	var orgs []*model.Organization
	query := r.DB(ctx).
		Where("status = ?", model.OrganizationStatusActive).
		Order("org_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

// List 分页查询机构
func (r *OrganizationRepository) List(ctx context.Context, pagination *Pagination) ([]*model.Organization, int64, error) {
	var orgs []*model.Organization
	var total int64

	query := r.DB(ctx).Model(&model.Organization{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("created_at DESC").
		Find(&orgs).Error

	if err != nil {
		return nil, 0, err
	}
	return orgs, total, nil
}

// UpdateFinancials 更新财务快照字段
func (r *OrganizationRepository) UpdateFinancials(ctx context.Context, orgID string, available, monthly, pending decimal.Decimal) error {
	result := r.DB(ctx).
		Model(&model.Organization{}).
		Where("org_id = ?", orgID).
		Updates(map[string]interface{}{
			"available_funds":  available,
			"monthly_expenses": monthly,
			"pending_income":   pending,
			"updated_at":       time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// CreditFunds 入账可用资金 (分配执行成功后)
func (r *OrganizationRepository) CreditFunds(ctx context.Context, orgID string, amount decimal.Decimal) error {
	result := r.DB(ctx).
		Model(&model.Organization{}).
		Where("org_id = ?", orgID).
		Updates(map[string]interface{}{
			"available_funds": gorm.Expr("available_funds + ?", amount),
			"updated_at":      time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// UpdateComplianceStatus 更新合规状态 (合规监控专用)
func (r *OrganizationRepository) UpdateComplianceStatus(ctx context.Context, orgID string, status model.OrgComplianceStatus) error {
	result := r.DB(ctx).
		Model(&model.Organization{}).
		Where("org_id = ?", orgID).
		Updates(map[string]interface{}{
			"compliance_status": status,
			"updated_at":        time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// SetBankVerified 更新收款渠道验证标记
func (r *OrganizationRepository) SetBankVerified(ctx context.Context, orgID string, verified bool) error {
	result := r.DB(ctx).
		Model(&model.Organization{}).
		Where("org_id = ?", orgID).
		Updates(map[string]interface{}{
			"bank_verified": verified,
			"updated_at":    time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// CountByStatus 按状态统计机构数
func (r *OrganizationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row

	err := r.DB(ctx).
		Model(&model.Organization{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error

	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
