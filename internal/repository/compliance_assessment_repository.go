package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

var (
	ErrAssessmentNotFound  = errors.New("compliance assessment not found")
	ErrAssessmentDuplicate = errors.New("compliance assessment already exists")
)

// ComplianceAssessmentRepository 合规评估仓储，评估记录只追加
type ComplianceAssessmentRepository struct {
	*Repository
}

// NewComplianceAssessmentRepository 创建合规评估仓储
func NewComplianceAssessmentRepository(db *gorm.DB) *ComplianceAssessmentRepository {
	return &ComplianceAssessmentRepository{Repository: NewRepository(db)}
}

// Create 追加一条评估记录
func (r *ComplianceAssessmentRepository) Create(ctx context.Context, assessment *model.ComplianceAssessment) error {
	if assessment.AssessedAt == 0 {
		assessment.AssessedAt = time.Now().UnixMilli()
	}
	result := r.DB(ctx).Create(assessment)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrAssessmentDuplicate
		}
		return result.Error
	}
	return nil
}

// GetByAssessmentID 根据评估ID获取
func (r *ComplianceAssessmentRepository) GetByAssessmentID(ctx context.Context, assessmentID string) (*model.ComplianceAssessment, error) {
	var assessment model.ComplianceAssessment
	err := r.DB(ctx).
		Where("assessment_id = ?", assessmentID).
		First(&assessment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	return &assessment, nil
}

// GetLatestByOrgID 获取机构最新评估
func (r *ComplianceAssessmentRepository) GetLatestByOrgID(ctx context.Context, orgID string) (*model.ComplianceAssessment, error) {
	var assessment model.ComplianceAssessment
	err := r.DB(ctx).
		Where("org_id = ?", orgID).
		Order("assessed_at DESC, id DESC").
		First(&assessment).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	return &assessment, nil
}

// FindLatestByOrgID 查找机构最新评估，从未评估返回 (nil, nil)
// 准入门控按从未评估拒绝，不视为错误
func (r *ComplianceAssessmentRepository) FindLatestByOrgID(ctx context.Context, orgID string) (*model.ComplianceAssessment, error) {
	assessment, err := r.GetLatestByOrgID(ctx, orgID)
	if errors.Is(err, ErrAssessmentNotFound) {
		return nil, nil
	}
	return assessment, err
}

// ListByOrg 分页查询机构评估历史，按评估时间倒序
func (r *ComplianceAssessmentRepository) ListByOrg(ctx context.Context, orgID string, page *Pagination) ([]*model.ComplianceAssessment, int64, error) {
	var (
		assessments []*model.ComplianceAssessment
		total       int64
	)

	query := r.DB(ctx).Model(&model.ComplianceAssessment{}).Where("org_id = ?", orgID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("assessed_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit()).
		Find(&assessments).Error
	return assessments, total, err
}

// ListDueForReview 查询复审已到期的机构最新评估，按到期时间升序
// 每机构只取最新一条，历史评估的到期时间不再有意义
func (r *ComplianceAssessmentRepository) ListDueForReview(ctx context.Context, now int64, limit int) ([]*model.ComplianceAssessment, error) {
	var assessments []*model.ComplianceAssessment
	err := r.DB(ctx).Raw(`
		SELECT a.*
		FROM compliance_assessments a
		JOIN (
			SELECT org_id, MAX(assessed_at) AS latest_assessed_at
			FROM compliance_assessments
			GROUP BY org_id
		) latest ON latest.org_id = a.org_id AND latest.latest_assessed_at = a.assessed_at
		WHERE a.next_review_due < ?
		ORDER BY a.next_review_due ASC
		LIMIT ?
	`, now, limit).Scan(&assessments).Error
	return assessments, err
}

// CountByRiskLevel 按风险等级统计最新评估分布
func (r *ComplianceAssessmentRepository) CountByRiskLevel(ctx context.Context) (map[model.RiskLevel]int64, error) {
	var rows []struct {
		RiskLevel model.RiskLevel
		Count     int64
	}

	err := r.DB(ctx).Raw(`
		SELECT a.risk_level AS risk_level, COUNT(*) AS count
		FROM compliance_assessments a
		JOIN (
			SELECT org_id, MAX(assessed_at) AS latest_assessed_at
			FROM compliance_assessments
			GROUP BY org_id
		) latest ON latest.org_id = a.org_id AND latest.latest_assessed_at = a.assessed_at
		GROUP BY a.risk_level
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.RiskLevel]int64, len(rows))
	for _, row := range rows {
		counts[row.RiskLevel] = row.Count
	}
	return counts, nil
}
