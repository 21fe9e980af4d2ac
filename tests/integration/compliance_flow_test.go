//go:build integration

package integration

import (
	"net/http"

	"github.com/almoner-platform/almoner-allocation/internal/compliance"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/rules"
)

// fullMetrics 覆盖全部二十项指标的快照输入
func fullMetrics(v float64) map[string]float64 {
	values := map[string]float64{}
	for _, name := range []string{
		compliance.MetricReportTimeliness,
		compliance.MetricDocumentationCompleteness,
		compliance.MetricPublicAccessibility,
		compliance.MetricReportingQuality,
		compliance.MetricExternalAudits,
		compliance.MetricRegistrationValidity,
		compliance.MetricTaxFilingsCurrent,
		compliance.MetricSanctionsScreening,
		compliance.MetricProgramExpenseRatio,
		compliance.MetricAdminCostRatio,
		compliance.MetricFundUtilization,
		compliance.MetricBoardIndependence,
		compliance.MetricPolicyCoverage,
		compliance.MetricOversightFrequency,
		compliance.MetricOutcomeReporting,
		compliance.MetricBeneficiaryFeedback,
		compliance.MetricGoalAttainment,
		compliance.MetricDonorCommunication,
		compliance.MetricPublicDisclosure,
		compliance.MetricComplaintResolution,
	} {
		values[name] = v
	}
	return values
}

// TestComplianceAssessmentFlow 指标上报 → 评估 → 历史查询
func (s *AdminAPISuite) TestComplianceAssessmentFlow() {
	s.seedOrg("ORG-600", 10000)

	s.decode(s.do(http.MethodPost, "/admin/v1/organizations/ORG-600/compliance/metrics",
		map[string]interface{}{"metrics": fullMetrics(90)}), nil)

	var assessment model.ComplianceAssessment
	s.decode(s.do(http.MethodPost, "/admin/v1/organizations/ORG-600/compliance/assess",
		map[string]string{"actor_id": "auditor-1"}), &assessment)
	s.Equal("90", assessment.OverallScore.String())
	s.Equal(model.RiskLevelLow, assessment.RiskLevel)
	s.NotZero(assessment.NextReviewDue)

	var latest model.ComplianceAssessment
	s.decode(s.do(http.MethodGet, "/admin/v1/organizations/ORG-600/compliance/assessment", nil), &latest)
	s.Equal(assessment.AssessmentID, latest.AssessmentID)

	// 种子评估 + 本次评估, 历史只追加
	var history []*model.ComplianceAssessment
	s.decode(s.do(http.MethodGet, "/admin/v1/organizations/ORG-600/compliance/assessments", nil), &history)
	s.Len(history, 2)
}

// TestLowAssessmentFlipsEligibility 低分评估把机构压到资格线下
func (s *AdminAPISuite) TestLowAssessmentFlipsEligibility() {
	s.seedOrg("ORG-610", 10000)

	var before rules.EligibilityResult
	s.decode(s.do(http.MethodGet, "/admin/v1/organizations/ORG-610/eligibility", nil), &before)
	s.True(before.Eligible)

	s.decode(s.do(http.MethodPost, "/admin/v1/organizations/ORG-610/compliance/metrics",
		map[string]interface{}{"metrics": fullMetrics(40)}), nil)

	var assessment model.ComplianceAssessment
	s.decode(s.do(http.MethodPost, "/admin/v1/organizations/ORG-610/compliance/assess", nil), &assessment)
	s.Equal("40", assessment.OverallScore.String())
	s.Equal(model.RiskLevelCritical, assessment.RiskLevel)

	var after rules.EligibilityResult
	s.decode(s.do(http.MethodGet, "/admin/v1/organizations/ORG-610/eligibility", nil), &after)
	s.False(after.Eligible)
	s.Equal(rules.CodeComplianceScoreLow, after.ReasonCode)
}

// TestSweepAndAlertLifecycle 巡检产生告警并走完 open → acknowledged → resolved
func (s *AdminAPISuite) TestSweepAndAlertLifecycle() {
	// 余额仅够十分之一个月支出, 命中财务异常检查
	s.seedOrg("ORG-620", 100)

	var report compliance.MonitoringReport
	s.decode(s.do(http.MethodPost, "/admin/v1/compliance/sweep", nil), &report)
	s.Equal(1, report.SweptOrganizations)
	s.Equal(1, report.AlertsRaised)
	s.Equal(1, report.AlertsByType[compliance.SweepCheckFinancialAnomaly])

	var alerts []*model.ComplianceAlert
	s.decode(s.do(http.MethodGet, "/admin/v1/alerts", nil), &alerts)
	s.Require().Len(alerts, 1)
	alertID := alerts[0].AlertID
	s.Equal(model.AlertStatusOpen, alerts[0].Status)
	s.Equal("ORG-620", alerts[0].OrgID)

	// 未关闭告警同类型去重
	var repeat compliance.MonitoringReport
	s.decode(s.do(http.MethodPost, "/admin/v1/compliance/sweep", nil), &repeat)
	s.Equal(0, repeat.AlertsRaised)

	s.decode(s.do(http.MethodPost, "/admin/v1/alerts/"+alertID+"/acknowledge",
		map[string]string{"actor_id": "ops-1"}), nil)

	var acked model.ComplianceAlert
	s.decode(s.do(http.MethodGet, "/admin/v1/alerts/"+alertID, nil), &acked)
	s.Equal(model.AlertStatusAcknowledged, acked.Status)
	s.Equal("ops-1", acked.AcknowledgedBy)

	s.decode(s.do(http.MethodPost, "/admin/v1/alerts/"+alertID+"/resolve",
		map[string]string{"actor_id": "ops-1"}), nil)

	// 终态告警不可重复处置
	rec := s.do(http.MethodPost, "/admin/v1/alerts/"+alertID+"/resolve", nil)
	s.NotEqual(http.StatusOK, rec.Code, rec.Body.String())

	// 关闭后同检查可再次触发
	var again compliance.MonitoringReport
	s.decode(s.do(http.MethodPost, "/admin/v1/compliance/sweep", nil), &again)
	s.Equal(1, again.AlertsRaised)

	var stats map[model.AlertType]int64
	s.decode(s.do(http.MethodGet, "/admin/v1/alerts/stats", nil), &stats)
	s.Equal(int64(1), stats[model.AlertType(compliance.SweepCheckFinancialAnomaly)])
}
