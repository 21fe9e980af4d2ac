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
	ErrResultNotFound  = errors.New("allocation result not found")
	ErrResultDuplicate = errors.New("allocation result already exists for decision")
)

// AllocationResultRepository 分配执行结果仓储
// decision_id 唯一约束保证每个批准决策至多执行一次
type AllocationResultRepository struct {
	*Repository
}

// NewAllocationResultRepository 创建执行结果仓储
func NewAllocationResultRepository(db *gorm.DB) *AllocationResultRepository {
	return &AllocationResultRepository{Repository: NewRepository(db)}
}

// Create 创建执行结果占位记录
// 同一决策重复创建返回 ErrResultDuplicate，调用方以此实现幂等执行
func (r *AllocationResultRepository) Create(ctx context.Context, result *model.AllocationResult) error {
	if result.StartedAt == 0 {
		result.StartedAt = time.Now().UnixMilli()
	}
	if result.ExecutionStatus == "" {
		result.ExecutionStatus = model.ExecutionStatusPending
	}

	res := r.DB(ctx).Create(result)
	if res.Error != nil {
		if isDuplicateKeyError(res.Error) {
			return ErrResultDuplicate
		}
		return res.Error
	}
	return nil
}

// GetByResultID 根据结果ID获取
func (r *AllocationResultRepository) GetByResultID(ctx context.Context, resultID string) (*model.AllocationResult, error) {
	var result model.AllocationResult
	err := r.DB(ctx).
		Where("result_id = ?", resultID).
		First(&result).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return &result, nil
}

// FindByDecisionID 根据决策ID查找，未执行过返回 (nil, nil)
func (r *AllocationResultRepository) FindByDecisionID(ctx context.Context, decisionID string) (*model.AllocationResult, error) {
	var result model.AllocationResult
	err := r.DB(ctx).
		Where("decision_id = ?", decisionID).
		First(&result).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// FindByRequestID 根据请求ID查找最近一次执行，无记录返回 (nil, nil)
func (r *AllocationResultRepository) FindByRequestID(ctx context.Context, requestID string) (*model.AllocationResult, error) {
	var result model.AllocationResult
	err := r.DB(ctx).
		Where("request_id = ?", requestID).
		Order("started_at DESC, id DESC").
		First(&result).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// MarkInProgress 标记执行开始
func (r *AllocationResultRepository) MarkInProgress(ctx context.Context, resultID string) error {
	result := r.DB(ctx).
		Model(&model.AllocationResult{}).
		Where("result_id = ?", resultID).
		Where("execution_status = ?", model.ExecutionStatusPending).
		Updates(map[string]interface{}{
			"execution_status": model.ExecutionStatusInProgress,
			"updated_at":       time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrResultNotFound
	}
	return nil
}

// Finish 落库执行终态
// 仅允许从 in_progress 收敛，幂等重放不会改写既有终态
// allocated_amount 同步覆写为实际划拨成功的金额，部分完成时小于计划总额
func (r *AllocationResultRepository) Finish(ctx context.Context, resultID string, status model.ExecutionStatus, allocatedAmount decimal.Decimal, failureReason string, executedAt int64) error {
	if !status.IsTerminal() {
		return errors.New("finish requires a terminal execution status")
	}
	if executedAt == 0 {
		executedAt = time.Now().UnixMilli()
	}

	result := r.DB(ctx).
		Model(&model.AllocationResult{}).
		Where("result_id = ?", resultID).
		Where("execution_status = ?", model.ExecutionStatusInProgress).
		Updates(map[string]interface{}{
			"execution_status": status,
			"allocated_amount": allocatedAmount,
			"failure_reason":   failureReason,
			"executed_at":      executedAt,
			"updated_at":       time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrResultNotFound
	}
	return nil
}

// ListStaleInProgress 查询超时未终态的执行 (看门狗回收)
func (r *AllocationResultRepository) ListStaleInProgress(ctx context.Context, olderThan int64, limit int) ([]*model.AllocationResult, error) {
	var results []*model.AllocationResult
	err := r.DB(ctx).
		Where("execution_status IN ?", []model.ExecutionStatus{
			model.ExecutionStatusPending,
			model.ExecutionStatusInProgress,
		}).
		Where("started_at < ?", olderThan).
		Order("started_at ASC").
		Limit(limit).
		Find(&results).Error

	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListByOrg 按机构分页查询执行结果
func (r *AllocationResultRepository) ListByOrg(ctx context.Context, orgID string, pagination *Pagination) ([]*model.AllocationResult, int64, error) {
	var results []*model.AllocationResult
	var total int64

	query := r.DB(ctx).
		Model(&model.AllocationResult{}).
		Where("org_id = ?", orgID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("started_at DESC").
		Find(&results).Error

	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// SaveTransactions 批量落库单笔划拨明细
func (r *AllocationResultRepository) SaveTransactions(ctx context.Context, txns []*model.DonationTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	result := r.DB(ctx).CreateInBatches(txns, 100)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// ListTransactions 查询一次执行的全部划拨明细 (按计划顺序)
func (r *AllocationResultRepository) ListTransactions(ctx context.Context, resultID string) ([]*model.DonationTransaction, error) {
	var txns []*model.DonationTransaction
	err := r.DB(ctx).
		Where("result_id = ?", resultID).
		Order("plan_order ASC").
		Find(&txns).Error

	if err != nil {
		return nil, err
	}
	return txns, nil
}
