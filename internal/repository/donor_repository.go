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
	ErrDonorNotFound  = errors.New("donor not found")
	ErrDonorDuplicate = errors.New("donor already exists")
)

// DonorRepository 捐赠人仓储
// AvailableBalance 列是落库镜像，执行期以 Redis 余额为准
type DonorRepository struct {
	*Repository
}

// NewDonorRepository 创建捐赠人仓储
func NewDonorRepository(db *gorm.DB) *DonorRepository {
	return &DonorRepository{Repository: NewRepository(db)}
}

// Create 创建捐赠人
func (r *DonorRepository) Create(ctx context.Context, donor *model.Donor) error {
	result := r.DB(ctx).Create(donor)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDonorDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByDonorID 根据捐赠人ID获取
func (r *DonorRepository) GetByDonorID(ctx context.Context, donorID string) (*model.Donor, error) {
	var donor model.Donor
	err := r.DB(ctx).
		Where("donor_id = ?", donorID).
		First(&donor).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonorNotFound
		}
		return nil, err
	}
	return &donor, nil
}

// FindByDonorID 根据捐赠人ID查找，不存在返回 (nil, nil)
func (r *DonorRepository) FindByDonorID(ctx context.Context, donorID string) (*model.Donor, error) {
	donor, err := r.GetByDonorID(ctx, donorID)
	if errors.Is(err, ErrDonorNotFound) {
		return nil, nil
	}
	return donor, err
}

// ListActive 查询全部 active 捐赠人 (拨款资金池)
func (r *DonorRepository) ListActive(ctx context.Context) ([]*model.Donor, error) {
	var donors []*model.Donor
	err := r.DB(ctx).
		Where("status = ?", model.DonorStatusActive).
		Order("donor_id ASC").
		Find(&donors).Error

	if err != nil {
		return nil, err
	}
	return donors, nil
}

// List 分页查询捐赠人
func (r *DonorRepository) List(ctx context.Context, pagination *Pagination) ([]*model.Donor, int64, error) {
	var donors []*model.Donor
	var total int64

	query := r.DB(ctx).Model(&model.Donor{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("created_at DESC").
		Find(&donors).Error

	if err != nil {
		return nil, 0, err
	}
	return donors, total, nil
}

// SetBalance 覆写余额镜像 (缓存回写)
func (r *DonorRepository) SetBalance(ctx context.Context, donorID string, balance decimal.Decimal) error {
	result := r.DB(ctx).
		Model(&model.Donor{}).
		Where("donor_id = ?", donorID).
		Updates(map[string]interface{}{
			"available_balance": balance,
			"updated_at":        time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonorNotFound
	}
	return nil
}

// AdjustBalance 增量调整余额镜像 (入金结算)
func (r *DonorRepository) AdjustBalance(ctx context.Context, donorID string, delta decimal.Decimal) error {
	result := r.DB(ctx).
		Model(&model.Donor{}).
		Where("donor_id = ?", donorID).
		Updates(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance + ?", delta),
			"updated_at":        time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonorNotFound
	}
	return nil
}

// UpdatePreferences 更新捐赠偏好
func (r *DonorRepository) UpdatePreferences(ctx context.Context, donorID string, prefs *model.DonorPreferences) error {
	donor := &model.Donor{}
	if err := donor.SetPreferences(prefs); err != nil {
		return err
	}

	result := r.DB(ctx).
		Model(&model.Donor{}).
		Where("donor_id = ?", donorID).
		Updates(map[string]interface{}{
			"preferences": donor.Preferences,
			"updated_at":  time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonorNotFound
	}
	return nil
}
