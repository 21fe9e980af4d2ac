package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var (
	ErrRequestNotFound      = errors.New("allocation request not found")
	ErrRequestDuplicate     = errors.New("allocation request already exists")
	ErrRequestStatusStale   = errors.New("allocation request status changed concurrently")
	ErrInvalidStateChange   = errors.New("invalid allocation request state change")
)

// AllocationRequestRepository 拨款请求仓储
type AllocationRequestRepository struct {
	*Repository
}

// NewAllocationRequestRepository 创建拨款请求仓储
func NewAllocationRequestRepository(db *gorm.DB) *AllocationRequestRepository {
	return &AllocationRequestRepository{Repository: NewRepository(db)}
}

// Create 创建拨款请求
func (r *AllocationRequestRepository) Create(ctx context.Context, req *model.AllocationRequest) error {
	if req.SubmittedAt == 0 {
		req.SubmittedAt = time.Now().UnixMilli()
	}
	if req.Status == "" {
		req.Status = model.RequestStatusSubmitted
	}

	result := r.DB(ctx).Create(req)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrRequestDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByRequestID 根据请求ID获取
func (r *AllocationRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*model.AllocationRequest, error) {
	var req model.AllocationRequest
	err := r.DB(ctx).
		Where("request_id = ?", requestID).
		First(&req).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// TransitionStatus 带前置状态守卫的状态迁移
// 当前状态非 from 时不落库并返回 ErrRequestStatusStale，保证并发下状态机单向前进
func (r *AllocationRequestRepository) TransitionStatus(ctx context.Context, requestID string, from, to model.RequestStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidStateChange
	}

	result := r.DB(ctx).
		Model(&model.AllocationRequest{}).
		Where("request_id = ?", requestID).
		Where("status = ?", from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UnixMilli(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 区分不存在与状态已被并发改动
		if _, err := r.GetByRequestID(ctx, requestID); err != nil {
			return err
		}
		return ErrRequestStatusStale
	}
	return nil
}

// ListByStatus 按状态分页查询
func (r *AllocationRequestRepository) ListByStatus(ctx context.Context, status model.RequestStatus, pagination *Pagination) ([]*model.AllocationRequest, int64, error) {
	var reqs []*model.AllocationRequest
	var total int64

	query := r.DB(ctx).
		Model(&model.AllocationRequest{}).
		Where("status = ?", status)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("submitted_at ASC").
		Find(&reqs).Error

	if err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// ListForBatch 取一批待批量决策的请求
// 含新提交与被延迟的请求，先到先处理，上限 batchSize
func (r *AllocationRequestRepository) ListForBatch(ctx context.Context, batchSize int) ([]*model.AllocationRequest, error) {
	var reqs []*model.AllocationRequest
	err := r.DB(ctx).
		Where("status IN ?", []model.RequestStatus{
			model.RequestStatusSubmitted,
			model.RequestStatusDeferred,
		}).
		Order("submitted_at ASC").
		Limit(batchSize).
		Find(&reqs).Error

	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// ListByOrg 按机构分页查询
func (r *AllocationRequestRepository) ListByOrg(ctx context.Context, orgID string, pagination *Pagination) ([]*model.AllocationRequest, int64, error) {
	var reqs []*model.AllocationRequest
	var total int64

	query := r.DB(ctx).
		Model(&model.AllocationRequest{}).
		Where("org_id = ?", orgID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("submitted_at DESC").
		Find(&reqs).Error

	if err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// CountRecentByOrg 统计机构自 since 起提交的请求数 (可疑模式巡检)
func (r *AllocationRequestRepository) CountRecentByOrg(ctx context.Context, orgID string, since int64) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&model.AllocationRequest{}).
		Where("org_id = ?", orgID).
		Where("submitted_at >= ?", since).
		Count(&count).Error

	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus 按状态统计
func (r *AllocationRequestRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row

	err := r.DB(ctx).
		Model(&model.AllocationRequest{}).
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
