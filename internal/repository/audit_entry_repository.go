package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var (
	ErrAuditEntryNotFound    = errors.New("audit entry not found")
	ErrAuditSequenceConflict = errors.New("audit sequence already taken")
)

// AuditEntryRepository 审计账本仓储，只追加不更新
// sequence_number 唯一索引兜底并发追加，冲突即写入方需重读链尾重试
type AuditEntryRepository struct {
	*Repository
}

// NewAuditEntryRepository 创建审计账本仓储
func NewAuditEntryRepository(db *gorm.DB) *AuditEntryRepository {
	return &AuditEntryRepository{Repository: NewRepository(db)}
}

// Create 追加账本条目
func (r *AuditEntryRepository) Create(ctx context.Context, entry *model.AuditEntry) error {
	result := r.DB(ctx).Create(entry)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrAuditSequenceConflict
		}
		return result.Error
	}
	return nil
}

// GetBySequence 根据序号获取条目
func (r *AuditEntryRepository) GetBySequence(ctx context.Context, sequenceNumber int64) (*model.AuditEntry, error) {
	var entry model.AuditEntry
	err := r.DB(ctx).
		Where("sequence_number = ?", sequenceNumber).
		First(&entry).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuditEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindTail 查找链尾条目，空链返回 (nil, nil)
func (r *AuditEntryRepository) FindTail(ctx context.Context) (*model.AuditEntry, error) {
	var entry model.AuditEntry
	err := r.DB(ctx).
		Order("sequence_number DESC").
		First(&entry).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// MaxSequence 获取当前最大序号，空链返回 0
func (r *AuditEntryRepository) MaxSequence(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := r.DB(ctx).
		Model(&model.AuditEntry{}).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&maxSeq).Error
	return maxSeq, err
}

// ListRange 按序号区间查询条目，闭区间，升序返回
func (r *AuditEntryRepository) ListRange(ctx context.Context, startSequence, endSequence int64) ([]*model.AuditEntry, error) {
	var entries []*model.AuditEntry
	err := r.DB(ctx).
		Where("sequence_number >= ? AND sequence_number <= ?", startSequence, endSequence).
		Order("sequence_number ASC").
		Find(&entries).Error
	return entries, err
}

// ListByEntity 分页查询某实体的审计轨迹，按序号倒序
func (r *AuditEntryRepository) ListByEntity(ctx context.Context, entityType, entityID string, page *Pagination) ([]*model.AuditEntry, int64, error) {
	var (
		entries []*model.AuditEntry
		total   int64
	)

	query := r.DB(ctx).Model(&model.AuditEntry{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("sequence_number DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&entries).Error
	return entries, total, err
}

// ListByAction 分页查询某动作类型的条目，按序号倒序
func (r *AuditEntryRepository) ListByAction(ctx context.Context, actionType model.AuditActionType, page *Pagination) ([]*model.AuditEntry, int64, error) {
	var (
		entries []*model.AuditEntry
		total   int64
	)

	query := r.DB(ctx).Model(&model.AuditEntry{}).Where("action_type = ?", actionType)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("sequence_number DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&entries).Error
	return entries, total, err
}

// CountByAction 按动作类型统计条目数量
func (r *AuditEntryRepository) CountByAction(ctx context.Context) (map[model.AuditActionType]int64, error) {
	var rows []struct {
		ActionType model.AuditActionType
		Count      int64
	}

	err := r.DB(ctx).
		Model(&model.AuditEntry{}).
		Select("action_type, COUNT(*) as count").
		Group("action_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.AuditActionType]int64, len(rows))
	for _, row := range rows {
		counts[row.ActionType] = row.Count
	}
	return counts, nil
}
