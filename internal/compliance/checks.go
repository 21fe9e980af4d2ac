package compliance

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 巡检检查名称
const (
	SweepCheckReviewDue         = "review_due"
	SweepCheckThresholdBreach   = "threshold_breach"
	SweepCheckFinancialAnomaly  = "financial_anomaly"
	SweepCheckSuspiciousPattern = "suspicious_pattern"
)

const (
	// 类目分跌破此线触发预警
	categoryBreachThreshold = 50.0
	// 跌破此线预警升级
	categoryCriticalThreshold = 30.0
	// 巡检窗口内提交超过此数量视为可疑
	requestBurstThreshold = 5
)

// SweepInput 单机构一次巡检的输入快照
type SweepInput struct {
	Org                *model.Organization
	Assessment         *model.ComplianceAssessment // nil 表示从未评估
	PreviousFinancial  *model.FinancialSnapshot    // 上次巡检记录的财务状态，nil 表示无历史
	RecentRequestCount int                         // 巡检窗口内提交的拨款请求数
	NowMillis          int64
}

// AlertDraft 待落库的预警草稿
type AlertDraft struct {
	Type      model.AlertType
	RiskLevel model.RiskLevel
	Message   string
	Details   map[string]interface{}
}

// AlertCheck 巡检检查项，各检查独立运行互不短路
type AlertCheck interface {
	Name() string
	Inspect(input *SweepInput) []*AlertDraft
}

var riskRanks = map[model.RiskLevel]int{
	model.RiskLevelLow:      0,
	model.RiskLevelMedium:   1,
	model.RiskLevelHigh:     2,
	model.RiskLevelCritical: 3,
}

// escalate 取机构当前评估风险与检查自身紧迫度中更严重的一档
func escalate(input *SweepInput, urgency model.RiskLevel) model.RiskLevel {
	if input.Assessment == nil {
		return urgency
	}
	if riskRanks[input.Assessment.RiskLevel] > riskRanks[urgency] {
		return input.Assessment.RiskLevel
	}
	return urgency
}

// ReviewDueCheck 复审到期检查
type ReviewDueCheck struct{}

// Name 返回检查名称
func (c *ReviewDueCheck) Name() string { return SweepCheckReviewDue }

// Inspect 执行巡检
func (c *ReviewDueCheck) Inspect(input *SweepInput) []*AlertDraft {
	if input.Assessment == nil {
		return []*AlertDraft{{
			Type:      model.AlertTypeReviewDue,
			RiskLevel: model.RiskLevelHigh,
			Message:   fmt.Sprintf("organization %s has no compliance assessment on record", input.Org.OrgID),
			Details:   map[string]interface{}{"assessed": false},
		}}
	}
	if !input.Assessment.IsReviewOverdue(input.NowMillis) {
		return nil
	}

	overdueDays := (input.NowMillis - input.Assessment.NextReviewDue) / dayMillis
	return []*AlertDraft{{
		Type:      model.AlertTypeReviewDue,
		RiskLevel: escalate(input, model.RiskLevelMedium),
		Message:   fmt.Sprintf("compliance review overdue by %d days", overdueDays),
		Details: map[string]interface{}{
			"next_review_due": input.Assessment.NextReviewDue,
			"overdue_days":    overdueDays,
		},
	}}
}

// ThresholdBreachCheck 类目分数跌破阈值检查
type ThresholdBreachCheck struct{}

// Name 返回检查名称
func (c *ThresholdBreachCheck) Name() string { return SweepCheckThresholdBreach }

// Inspect 执行巡检
func (c *ThresholdBreachCheck) Inspect(input *SweepInput) []*AlertDraft {
	if input.Assessment == nil {
		return nil
	}
	scores, err := input.Assessment.GetCategoryScores()
	if err != nil || len(scores) == 0 {
		return nil
	}

	breached := make([]string, 0)
	worst := 100.0
	for category, score := range scores {
		if score < categoryBreachThreshold {
			breached = append(breached, category)
			if score < worst {
				worst = score
			}
		}
	}
	if len(breached) == 0 {
		return nil
	}
	sort.Strings(breached)

	urgency := model.RiskLevelMedium
	if worst < categoryCriticalThreshold {
		urgency = model.RiskLevelHigh
	}
	return []*AlertDraft{{
		Type:      model.AlertTypeThresholdBreach,
		RiskLevel: escalate(input, urgency),
		Message:   fmt.Sprintf("%d compliance categories below threshold", len(breached)),
		Details: map[string]interface{}{
			"categories":  breached,
			"threshold":   categoryBreachThreshold,
			"worst_score": worst,
		},
	}}
}

// FinancialAnomalyCheck 财务异常检查
// 负余额、跑道不足一个月、余额骤降三类信号
type FinancialAnomalyCheck struct{}

// Name 返回检查名称
func (c *FinancialAnomalyCheck) Name() string { return SweepCheckFinancialAnomaly }

// Inspect 执行巡检
func (c *FinancialAnomalyCheck) Inspect(input *SweepInput) []*AlertDraft {
	org := input.Org
	drafts := make([]*AlertDraft, 0)

	if org.AvailableFunds.IsNegative() {
		drafts = append(drafts, &AlertDraft{
			Type:      model.AlertTypeFinancialAnomaly,
			RiskLevel: escalate(input, model.RiskLevelHigh),
			Message:   "available funds balance is negative",
			Details:   map[string]interface{}{"available_funds": org.AvailableFunds.String()},
		})
	}

	if org.MonthlyExpenses.IsPositive() {
		runway := org.AvailableFunds.Add(org.PendingIncome)
		if runway.LessThan(org.MonthlyExpenses) {
			drafts = append(drafts, &AlertDraft{
				Type:      model.AlertTypeFinancialAnomaly,
				RiskLevel: escalate(input, model.RiskLevelMedium),
				Message:   "funding runway below one month of expenses",
				Details: map[string]interface{}{
					"available_funds":  org.AvailableFunds.String(),
					"pending_income":   org.PendingIncome.String(),
					"monthly_expenses": org.MonthlyExpenses.String(),
				},
			})
		}
	}

	if input.PreviousFinancial != nil && input.PreviousFinancial.AvailableFunds.IsPositive() {
		half := input.PreviousFinancial.AvailableFunds.Div(decimal.NewFromInt(2))
		if org.AvailableFunds.LessThan(half) {
			drafts = append(drafts, &AlertDraft{
				Type:      model.AlertTypeFinancialAnomaly,
				RiskLevel: escalate(input, model.RiskLevelHigh),
				Message:   "available funds dropped more than half since last sweep",
				Details: map[string]interface{}{
					"previous_available": input.PreviousFinancial.AvailableFunds.String(),
					"current_available":  org.AvailableFunds.String(),
				},
			})
		}
	}

	if len(drafts) == 0 {
		return nil
	}
	return drafts
}

// SuspiciousPatternCheck 可疑申请模式检查
type SuspiciousPatternCheck struct{}

// Name 返回检查名称
func (c *SuspiciousPatternCheck) Name() string { return SweepCheckSuspiciousPattern }

// Inspect 执行巡检
func (c *SuspiciousPatternCheck) Inspect(input *SweepInput) []*AlertDraft {
	if input.RecentRequestCount < requestBurstThreshold {
		return nil
	}
	return []*AlertDraft{{
		Type:      model.AlertTypeSuspiciousPattern,
		RiskLevel: escalate(input, model.RiskLevelHigh),
		Message:   fmt.Sprintf("%d allocation requests submitted within the sweep window", input.RecentRequestCount),
		Details: map[string]interface{}{
			"recent_request_count": input.RecentRequestCount,
			"burst_threshold":      requestBurstThreshold,
		},
	}}
}

var (
	_ AlertCheck = (*ReviewDueCheck)(nil)
	_ AlertCheck = (*ThresholdBreachCheck)(nil)
	_ AlertCheck = (*FinancialAnomalyCheck)(nil)
	_ AlertCheck = (*SuspiciousPatternCheck)(nil)
)
