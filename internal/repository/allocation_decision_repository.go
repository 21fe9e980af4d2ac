package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var (
	ErrDecisionNotFound  = errors.New("allocation decision not found")
	ErrDecisionDuplicate = errors.New("allocation decision already exists")
)

// AllocationDecisionRepository 分配决策仓储，决策只追加不改写
type AllocationDecisionRepository struct {
	*Repository
}

// NewAllocationDecisionRepository 创建决策仓储
func NewAllocationDecisionRepository(db *gorm.DB) *AllocationDecisionRepository {
	return &AllocationDecisionRepository{Repository: NewRepository(db)}
}

// Create 落库一条决策
func (r *AllocationDecisionRepository) Create(ctx context.Context, decision *model.AllocationDecision) error {
	if decision.DecidedAt == 0 {
		decision.DecidedAt = time.Now().UnixMilli()
	}

	result := r.DB(ctx).Create(decision)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDecisionDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByDecisionID 根据决策ID获取
func (r *AllocationDecisionRepository) GetByDecisionID(ctx context.Context, decisionID string) (*model.AllocationDecision, error) {
	var decision model.AllocationDecision
	err := r.DB(ctx).
		Where("decision_id = ?", decisionID).
		First(&decision).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDecisionNotFound
		}
		return nil, err
	}
	return &decision, nil
}

// GetLatestByRequestID 获取请求最近一条决策
func (r *AllocationDecisionRepository) GetLatestByRequestID(ctx context.Context, requestID string) (*model.AllocationDecision, error) {
	var decision model.AllocationDecision
	err := r.DB(ctx).
		Where("request_id = ?", requestID).
		Order("decided_at DESC, id DESC").
		First(&decision).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDecisionNotFound
		}
		return nil, err
	}
	return &decision, nil
}

// FindLatestByRequestID 获取请求最近一条决策，无记录返回 (nil, nil)
func (r *AllocationDecisionRepository) FindLatestByRequestID(ctx context.Context, requestID string) (*model.AllocationDecision, error) {
	decision, err := r.GetLatestByRequestID(ctx, requestID)
	if errors.Is(err, ErrDecisionNotFound) {
		return nil, nil
	}
	return decision, err
}

// ListByRequestID 查询请求的全部决策历史
func (r *AllocationDecisionRepository) ListByRequestID(ctx context.Context, requestID string) ([]*model.AllocationDecision, error) {
	var decisions []*model.AllocationDecision
	err := r.DB(ctx).
		Where("request_id = ?", requestID).
		Order("decided_at ASC").
		Find(&decisions).Error

	if err != nil {
		return nil, err
	}
	return decisions, nil
}

// ListByOutcome 按决策结论分页查询
func (r *AllocationDecisionRepository) ListByOutcome(ctx context.Context, outcome model.DecisionOutcome, pagination *Pagination) ([]*model.AllocationDecision, int64, error) {
	var decisions []*model.AllocationDecision
	var total int64

	query := r.DB(ctx).
		Model(&model.AllocationDecision{}).
		Where("decision = ?", outcome)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("decided_at DESC").
		Find(&decisions).Error

	if err != nil {
		return nil, 0, err
	}
	return decisions, total, nil
}

// ListByOrg 按机构分页查询决策
func (r *AllocationDecisionRepository) ListByOrg(ctx context.Context, orgID string, pagination *Pagination) ([]*model.AllocationDecision, int64, error) {
	var decisions []*model.AllocationDecision
	var total int64

	query := r.DB(ctx).
		Model(&model.AllocationDecision{}).
		Where("org_id = ?", orgID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("decided_at DESC").
		Find(&decisions).Error

	if err != nil {
		return nil, 0, err
	}
	return decisions, total, nil
}

// CountByOutcome 按结论统计决策数
func (r *AllocationDecisionRepository) CountByOutcome(ctx context.Context, since int64) (map[string]int64, error) {
	type row struct {
		Decision string
		Count    int64
	}
	var rows []row

	err := r.DB(ctx).
		Model(&model.AllocationDecision{}).
		Select("decision, COUNT(*) as count").
		Where("decided_at >= ?", since).
		Group("decision").
		Scan(&rows).Error

	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, row := range rows {
		counts[row.Decision] = row.Count
	}
	return counts, nil
}
