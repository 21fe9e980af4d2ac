package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// RiskLevel 风险等级，由合规总分推导
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"      // ≥85
	RiskLevelMedium   RiskLevel = "medium"   // ≥70
	RiskLevelHigh     RiskLevel = "high"     // ≥50
	RiskLevelCritical RiskLevel = "critical" // <50
)

// RiskLevelFromScore 按固定阈值推导风险等级
func RiskLevelFromScore(overall decimal.Decimal) RiskLevel {
	switch {
	case overall.GreaterThanOrEqual(decimal.NewFromInt(85)):
		return RiskLevelLow
	case overall.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return RiskLevelMedium
	case overall.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// 合规评分类目
const (
	ComplianceCategoryFinancialTransparency = "financial_transparency"
	ComplianceCategoryRegulatoryCompliance  = "regulatory_compliance"
	ComplianceCategoryOperationalStandards  = "operational_efficiency"
	ComplianceCategoryGovernance            = "governance_quality"
	ComplianceCategoryImpact                = "impact_effectiveness"
	ComplianceCategoryStakeholder           = "stakeholder_engagement"
)

// ComplianceSnapshot 机构合规指标快照，类目评分的原始输入
// Metrics 为指标名到 0-100 取值的 JSON 映射，缺失指标按 50 处理
type ComplianceSnapshot struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID       string `gorm:"column:org_id;type:varchar(64);uniqueIndex;not null" json:"org_id"`
	Metrics     string `gorm:"column:metrics;type:jsonb;not null" json:"metrics"`
	CollectedAt int64  `gorm:"column:collected_at;type:bigint;not null" json:"collected_at"`
	CreatedAt   int64  `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt   int64  `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (ComplianceSnapshot) TableName() string {
	return "compliance_snapshots"
}

// GetMetrics 解析指标映射
func (s *ComplianceSnapshot) GetMetrics() (map[string]float64, error) {
	metrics := map[string]float64{}
	if s.Metrics == "" {
		return metrics, nil
	}
	if err := json.Unmarshal([]byte(s.Metrics), &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// SetMetrics 序列化指标映射
func (s *ComplianceSnapshot) SetMetrics(metrics map[string]float64) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	s.Metrics = string(data)
	return nil
}

// ComplianceAssessment 合规评估记录，新评估只追加不覆盖
type ComplianceAssessment struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AssessmentID   string          `gorm:"column:assessment_id;type:varchar(64);uniqueIndex;not null" json:"assessment_id"`
	OrgID          string          `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	CategoryScores string          `gorm:"column:category_scores;type:jsonb;not null" json:"category_scores"` // 类目名到分数的 JSON 映射
	OverallScore   decimal.Decimal `gorm:"column:overall_score;type:decimal(10,2);not null" json:"overall_score"`
	RiskLevel      RiskLevel       `gorm:"column:risk_level;type:varchar(20);index;not null" json:"risk_level"`
	AssessedAt     int64           `gorm:"column:assessed_at;type:bigint;not null;index" json:"assessed_at"`
	NextReviewDue  int64           `gorm:"column:next_review_due;type:bigint;not null;index" json:"next_review_due"`
	CreatedAt      int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (ComplianceAssessment) TableName() string {
	return "compliance_assessments"
}

// GetCategoryScores 解析类目分数映射
func (a *ComplianceAssessment) GetCategoryScores() (map[string]float64, error) {
	scores := map[string]float64{}
	if a.CategoryScores == "" {
		return scores, nil
	}
	if err := json.Unmarshal([]byte(a.CategoryScores), &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// SetCategoryScores 序列化类目分数映射
func (a *ComplianceAssessment) SetCategoryScores(scores map[string]float64) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	a.CategoryScores = string(data)
	return nil
}

// IsReviewOverdue 检查是否已过复审期限
func (a *ComplianceAssessment) IsReviewOverdue(now int64) bool {
	return now > a.NextReviewDue
}

// MeetsEligibilityFloor 检查总分是否达到准入下限
func (a *ComplianceAssessment) MeetsEligibilityFloor(floor decimal.Decimal) bool {
	return a.OverallScore.GreaterThanOrEqual(floor)
}
