package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func TestScoreCategory_FullBlend(t *testing.T) {
	metrics := map[string]float64{
		MetricReportTimeliness:          90,
		MetricDocumentationCompleteness: 80,
		MetricPublicAccessibility:       70,
		MetricReportingQuality:          60,
		MetricExternalAudits:            50,
	}

	// 90*0.30 + 80*0.25 + 70*0.20 + 60*0.15 + 50*0.10 = 75
	score := ScoreCategory(model.ComplianceCategoryFinancialTransparency, metrics)
	assert.InDelta(t, 75.0, score, 0.0001)
}

func TestScoreCategory_MissingMetricsNeutral(t *testing.T) {
	for _, name := range CategoryNames() {
		score := ScoreCategory(name, map[string]float64{})
		assert.InDelta(t, 50.0, score, 0.0001, "category %s", name)
	}
}

func TestScoreCategory_PartialMetrics(t *testing.T) {
	metrics := map[string]float64{
		MetricRegistrationValidity: 100,
	}

	// 100*0.40 + 50*0.35 + 50*0.25 = 70
	score := ScoreCategory(model.ComplianceCategoryRegulatoryCompliance, metrics)
	assert.InDelta(t, 70.0, score, 0.0001)
}

func TestScoreCategory_UnknownCategory(t *testing.T) {
	score := ScoreCategory("unknown_category", map[string]float64{MetricReportTimeliness: 90})
	assert.InDelta(t, 50.0, score, 0.0001)
}

func TestScoreCategory_ClampsOutOfRange(t *testing.T) {
	metrics := map[string]float64{
		MetricProgramExpenseRatio: 180,
		MetricAdminCostRatio:      -40,
		MetricFundUtilization:     50,
	}

	// 100*0.50 + 0*0.30 + 50*0.20 = 60
	score := ScoreCategory(model.ComplianceCategoryOperationalStandards, metrics)
	assert.InDelta(t, 60.0, score, 0.0001)
}

func TestScoreAllCategories_CoversAllSix(t *testing.T) {
	scores := ScoreAllCategories(map[string]float64{})
	require.Len(t, scores, 6)
	for _, name := range CategoryNames() {
		assert.Contains(t, scores, name)
	}
}

func TestCategoryBlendWeightsSumToOne(t *testing.T) {
	for category, blend := range categoryBlends {
		sum := 0.0
		for _, sc := range blend {
			sum += sc.weight
		}
		assert.InDelta(t, 1.0, sum, 0.0001, "category %s", category)
	}
}
