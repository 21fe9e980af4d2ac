// Package compliance 实现合规评估与实时监控
// 六大类目得分为快照指标的加权混合，整体分推导风险等级
package compliance

import (
	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 快照指标键，取值均为 [0,100] 分
const (
	MetricReportTimeliness          = "report_timeliness"
	MetricDocumentationCompleteness = "documentation_completeness"
	MetricPublicAccessibility       = "public_accessibility"
	MetricReportingQuality          = "reporting_quality"
	MetricExternalAudits            = "external_audits"

	MetricRegistrationValidity = "registration_validity"
	MetricTaxFilingsCurrent    = "tax_filings_current"
	MetricSanctionsScreening   = "sanctions_screening"

	MetricProgramExpenseRatio = "program_expense_ratio"
	MetricAdminCostRatio      = "admin_cost_ratio"
	MetricFundUtilization     = "fund_utilization"

	MetricBoardIndependence  = "board_independence"
	MetricPolicyCoverage     = "policy_coverage"
	MetricOversightFrequency = "oversight_frequency"

	MetricOutcomeReporting    = "outcome_reporting"
	MetricBeneficiaryFeedback = "beneficiary_feedback"
	MetricGoalAttainment      = "goal_attainment"

	MetricDonorCommunication  = "donor_communication"
	MetricPublicDisclosure    = "public_disclosure"
	MetricComplaintResolution = "complaint_resolution"
)

// 指标缺失时的中性分
const neutralMetricScore = 50.0

type subCheck struct {
	metric string
	weight float64
}

// 每类目的子项混合，子项权重之和为 1
var categoryBlends = map[string][]subCheck{
	model.ComplianceCategoryFinancialTransparency: {
		{MetricReportTimeliness, 0.30},
		{MetricDocumentationCompleteness, 0.25},
		{MetricPublicAccessibility, 0.20},
		{MetricReportingQuality, 0.15},
		{MetricExternalAudits, 0.10},
	},
	model.ComplianceCategoryRegulatoryCompliance: {
		{MetricRegistrationValidity, 0.40},
		{MetricTaxFilingsCurrent, 0.35},
		{MetricSanctionsScreening, 0.25},
	},
	model.ComplianceCategoryOperationalStandards: {
		{MetricProgramExpenseRatio, 0.50},
		{MetricAdminCostRatio, 0.30},
		{MetricFundUtilization, 0.20},
	},
	model.ComplianceCategoryGovernance: {
		{MetricBoardIndependence, 0.40},
		{MetricPolicyCoverage, 0.30},
		{MetricOversightFrequency, 0.30},
	},
	model.ComplianceCategoryImpact: {
		{MetricOutcomeReporting, 0.40},
		{MetricBeneficiaryFeedback, 0.30},
		{MetricGoalAttainment, 0.30},
	},
	model.ComplianceCategoryStakeholder: {
		{MetricDonorCommunication, 0.40},
		{MetricPublicDisclosure, 0.30},
		{MetricComplaintResolution, 0.30},
	},
}

// CategoryNames 返回全部类目名 (固定顺序)
func CategoryNames() []string {
	return []string{
		model.ComplianceCategoryFinancialTransparency,
		model.ComplianceCategoryRegulatoryCompliance,
		model.ComplianceCategoryOperationalStandards,
		model.ComplianceCategoryGovernance,
		model.ComplianceCategoryImpact,
		model.ComplianceCategoryStakeholder,
	}
}

// ScoreCategory 计算单类目得分，指标缺失取中性分
func ScoreCategory(category string, metrics map[string]float64) float64 {
	blend, ok := categoryBlends[category]
	if !ok {
		return neutralMetricScore
	}

	score := 0.0
	for _, sc := range blend {
		value, ok := metrics[sc.metric]
		if !ok {
			value = neutralMetricScore
		}
		score += clampScore(value) * sc.weight
	}
	return clampScore(score)
}

// ScoreAllCategories 计算全部六类目得分
func ScoreAllCategories(metrics map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(categoryBlends))
	for _, name := range CategoryNames() {
		scores[name] = ScoreCategory(name, metrics)
	}
	return scores
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
