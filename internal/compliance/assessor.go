package compliance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/config"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
	"github.com/almoner-platform/almoner-allocation/pkg/id"
)

const dayMillis = int64(24 * 60 * 60 * 1000)

// Assessor 按配置权重生成合规评估
type Assessor struct {
	weights         map[string]decimal.Decimal
	reviewIntervals map[model.RiskLevel]int
}

// NewAssessor 创建评估器
func NewAssessor(cfg *config.ComplianceConfig) *Assessor {
	return &Assessor{
		weights: map[string]decimal.Decimal{
			model.ComplianceCategoryFinancialTransparency: cfg.Weights.GetFinancialTransparencyWeight(),
			model.ComplianceCategoryRegulatoryCompliance:  cfg.Weights.GetRegulatoryComplianceWeight(),
			model.ComplianceCategoryOperationalStandards:  cfg.Weights.GetOperationalStandardsWeight(),
			model.ComplianceCategoryGovernance:            cfg.Weights.GetGovernanceWeight(),
			model.ComplianceCategoryImpact:                cfg.Weights.GetImpactReportingWeight(),
			model.ComplianceCategoryStakeholder:           cfg.Weights.GetStakeholderFeedbackWeight(),
		},
		reviewIntervals: map[model.RiskLevel]int{
			model.RiskLevelLow:      cfg.ReviewIntervals.Low,
			model.RiskLevelMedium:   cfg.ReviewIntervals.Medium,
			model.RiskLevelHigh:     cfg.ReviewIntervals.High,
			model.RiskLevelCritical: cfg.ReviewIntervals.Critical,
		},
	}
}

// Assess 根据指标快照生成一条新评估记录
// 历史评估只追加不覆盖，nowMillis 为 0 时取当前时间
func (a *Assessor) Assess(orgID string, metrics map[string]float64, nowMillis int64) (*model.ComplianceAssessment, error) {
	if orgID == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("organization id is empty")
	}
	if nowMillis == 0 {
		nowMillis = time.Now().UnixMilli()
	}
	if metrics == nil {
		metrics = map[string]float64{}
	}

	categoryScores := ScoreAllCategories(metrics)

	overall := decimal.Zero
	for name, score := range categoryScores {
		weight, ok := a.weights[name]
		if !ok {
			continue
		}
		overall = overall.Add(decimal.NewFromFloat(score).Mul(weight))
	}
	overall = overall.Round(2)

	riskLevel := model.RiskLevelFromScore(overall)

	assessment := &model.ComplianceAssessment{
		AssessmentID:  id.NextReference("CA"),
		OrgID:         orgID,
		OverallScore:  overall,
		RiskLevel:     riskLevel,
		AssessedAt:    nowMillis,
		NextReviewDue: nowMillis + int64(a.reviewIntervals[riskLevel])*dayMillis,
	}
	if err := assessment.SetCategoryScores(categoryScores); err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "serialize category scores")
	}
	return assessment, nil
}

// ReviewIntervalDays 返回风险等级对应的复审间隔
func (a *Assessor) ReviewIntervalDays(level model.RiskLevel) int {
	return a.reviewIntervals[level]
}
