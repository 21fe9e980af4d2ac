package compliance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func healthySweepInput(t *testing.T) *SweepInput {
	t.Helper()

	assessment := &model.ComplianceAssessment{
		OrgID:         "org-1",
		OverallScore:  decimal.NewFromInt(80),
		RiskLevel:     model.RiskLevelMedium,
		AssessedAt:    1767225600000,
		NextReviewDue: 1775001600000,
	}
	require.NoError(t, assessment.SetCategoryScores(map[string]float64{
		model.ComplianceCategoryFinancialTransparency: 80,
		model.ComplianceCategoryRegulatoryCompliance:  85,
		model.ComplianceCategoryOperationalStandards:  75,
		model.ComplianceCategoryGovernance:            80,
		model.ComplianceCategoryImpact:                78,
		model.ComplianceCategoryStakeholder:           82,
	}))

	return &SweepInput{
		Org: &model.Organization{
			OrgID:           "org-1",
			Status:          model.OrganizationStatusActive,
			AvailableFunds:  decimal.NewFromInt(50000),
			MonthlyExpenses: decimal.NewFromInt(8000),
			PendingIncome:   decimal.NewFromInt(12000),
		},
		Assessment:         assessment,
		RecentRequestCount: 1,
		NowMillis:          1770000000000,
	}
}

func TestReviewDueCheck_NeverAssessed(t *testing.T) {
	input := healthySweepInput(t)
	input.Assessment = nil

	drafts := (&ReviewDueCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.AlertTypeReviewDue, drafts[0].Type)
	assert.Equal(t, model.RiskLevelHigh, drafts[0].RiskLevel)
}

func TestReviewDueCheck_Overdue(t *testing.T) {
	input := healthySweepInput(t)
	input.Assessment.NextReviewDue = input.NowMillis - 10*dayMillis

	drafts := (&ReviewDueCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.AlertTypeReviewDue, drafts[0].Type)
	assert.Equal(t, model.RiskLevelMedium, drafts[0].RiskLevel)
	assert.Equal(t, int64(10), drafts[0].Details["overdue_days"])
}

func TestReviewDueCheck_NotDue(t *testing.T) {
	input := healthySweepInput(t)
	assert.Nil(t, (&ReviewDueCheck{}).Inspect(input))
}

// 预警等级取评估风险与检查紧迫度中更严重者
func TestReviewDueCheck_EscalatedByAssessmentRisk(t *testing.T) {
	input := healthySweepInput(t)
	input.Assessment.RiskLevel = model.RiskLevelCritical
	input.Assessment.NextReviewDue = input.NowMillis - dayMillis

	drafts := (&ReviewDueCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.RiskLevelCritical, drafts[0].RiskLevel)
}

func TestThresholdBreachCheck_NoBreach(t *testing.T) {
	input := healthySweepInput(t)
	assert.Nil(t, (&ThresholdBreachCheck{}).Inspect(input))
}

func TestThresholdBreachCheck_SingleBreach(t *testing.T) {
	input := healthySweepInput(t)
	require.NoError(t, input.Assessment.SetCategoryScores(map[string]float64{
		model.ComplianceCategoryFinancialTransparency: 45,
		model.ComplianceCategoryRegulatoryCompliance:  85,
	}))

	drafts := (&ThresholdBreachCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.AlertTypeThresholdBreach, drafts[0].Type)
	assert.Equal(t, model.RiskLevelMedium, drafts[0].RiskLevel)
	assert.Equal(t, []string{model.ComplianceCategoryFinancialTransparency},
		drafts[0].Details["categories"])
}

func TestThresholdBreachCheck_DeepBreachEscalates(t *testing.T) {
	input := healthySweepInput(t)
	require.NoError(t, input.Assessment.SetCategoryScores(map[string]float64{
		model.ComplianceCategoryGovernance:  25,
		model.ComplianceCategoryStakeholder: 48,
	}))

	drafts := (&ThresholdBreachCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.RiskLevelHigh, drafts[0].RiskLevel)
	assert.Equal(t, []string{
		model.ComplianceCategoryGovernance,
		model.ComplianceCategoryStakeholder,
	}, drafts[0].Details["categories"])
	assert.Equal(t, 25.0, drafts[0].Details["worst_score"])
}

func TestFinancialAnomalyCheck_Healthy(t *testing.T) {
	input := healthySweepInput(t)
	assert.Nil(t, (&FinancialAnomalyCheck{}).Inspect(input))
}

func TestFinancialAnomalyCheck_NegativeBalance(t *testing.T) {
	input := healthySweepInput(t)
	input.Org.AvailableFunds = decimal.NewFromInt(-100)
	input.Org.MonthlyExpenses = decimal.Zero

	drafts := (&FinancialAnomalyCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.AlertTypeFinancialAnomaly, drafts[0].Type)
	assert.Equal(t, model.RiskLevelHigh, drafts[0].RiskLevel)
}

func TestFinancialAnomalyCheck_ShortRunway(t *testing.T) {
	input := healthySweepInput(t)
	input.Org.AvailableFunds = decimal.NewFromInt(3000)
	input.Org.PendingIncome = decimal.NewFromInt(2000)
	input.Org.MonthlyExpenses = decimal.NewFromInt(8000)

	drafts := (&FinancialAnomalyCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.RiskLevelMedium, drafts[0].RiskLevel)
}

func TestFinancialAnomalyCheck_SharpDrop(t *testing.T) {
	input := healthySweepInput(t)
	input.PreviousFinancial = &model.FinancialSnapshot{
		AvailableFunds: decimal.NewFromInt(120000),
	}

	drafts := (&FinancialAnomalyCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.RiskLevelHigh, drafts[0].RiskLevel)
	assert.Equal(t, "120000", drafts[0].Details["previous_available"])
}

func TestFinancialAnomalyCheck_MultipleSignals(t *testing.T) {
	input := healthySweepInput(t)
	input.Org.AvailableFunds = decimal.NewFromInt(-500)
	input.Org.PendingIncome = decimal.Zero
	input.PreviousFinancial = &model.FinancialSnapshot{
		AvailableFunds: decimal.NewFromInt(60000),
	}

	drafts := (&FinancialAnomalyCheck{}).Inspect(input)
	assert.Len(t, drafts, 3)
}

func TestSuspiciousPatternCheck_BelowBurst(t *testing.T) {
	input := healthySweepInput(t)
	input.RecentRequestCount = requestBurstThreshold - 1
	assert.Nil(t, (&SuspiciousPatternCheck{}).Inspect(input))
}

func TestSuspiciousPatternCheck_Burst(t *testing.T) {
	input := healthySweepInput(t)
	input.RecentRequestCount = requestBurstThreshold

	drafts := (&SuspiciousPatternCheck{}).Inspect(input)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.AlertTypeSuspiciousPattern, drafts[0].Type)
	assert.Equal(t, model.RiskLevelHigh, drafts[0].RiskLevel)
}

func TestMonitor_InspectOrganization_AllChecksRun(t *testing.T) {
	input := healthySweepInput(t)
	input.Assessment.NextReviewDue = input.NowMillis - dayMillis
	require.NoError(t, input.Assessment.SetCategoryScores(map[string]float64{
		model.ComplianceCategoryGovernance: 20,
	}))
	input.Org.AvailableFunds = decimal.NewFromInt(-100)
	input.Org.MonthlyExpenses = decimal.Zero
	input.RecentRequestCount = 10

	drafts := NewMonitor().InspectOrganization(input)

	types := map[model.AlertType]int{}
	for _, d := range drafts {
		types[d.Type]++
	}
	assert.Equal(t, 1, types[model.AlertTypeReviewDue])
	assert.Equal(t, 1, types[model.AlertTypeThresholdBreach])
	assert.Equal(t, 1, types[model.AlertTypeFinancialAnomaly])
	assert.Equal(t, 1, types[model.AlertTypeSuspiciousPattern])
}

func TestMonitor_InspectOrganization_Healthy(t *testing.T) {
	drafts := NewMonitor().InspectOrganization(healthySweepInput(t))
	assert.Empty(t, drafts)
}

func TestMonitor_InspectOrganization_NilInput(t *testing.T) {
	assert.Nil(t, NewMonitor().InspectOrganization(nil))
}

func TestMonitor_CheckNames(t *testing.T) {
	assert.Equal(t, []string{
		SweepCheckReviewDue,
		SweepCheckThresholdBreach,
		SweepCheckFinancialAnomaly,
		SweepCheckSuspiciousPattern,
	}, NewMonitor().CheckNames())
}
