//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/ledger"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/rules"
	"github.com/almoner-platform/almoner-allocation/internal/scoring"
)

// TestStandardAllocationLifecycle 标准模式全链路:
// 提交 → 批准 → 执行 → 结果/审计查询 → 链校验
func (s *AdminAPISuite) TestStandardAllocationLifecycle() {
	s.seedOrg("ORG-500", 0)
	s.seedDonor("DNR-501", 2000)
	s.seedDonor("DNR-502", 1000)

	var decision model.AllocationDecision
	s.decode(s.do(http.MethodPost, "/admin/v1/requests", highScorePayload("ORG-500")), &decision)
	s.Equal(model.DecisionApproved, decision.Decision)
	s.Equal(model.ModeStandard, decision.Mode)
	s.Equal("it-admin", decision.Reviewer)
	s.True(decision.CompositeScore.GreaterThanOrEqual(decimal.NewFromInt(70)))

	var req model.AllocationRequest
	s.decode(s.do(http.MethodGet, "/admin/v1/requests/"+decision.RequestID, nil), &req)
	s.Equal(model.RequestStatusApproved, req.Status)
	s.Equal("ORG-500", req.OrgID)

	// 评分预览不推进状态
	var score scoring.CompositeScore
	s.decode(s.do(http.MethodGet, "/admin/v1/requests/"+decision.RequestID+"/score", nil), &score)
	s.Len(score.FactorBreakdown, 6)
	s.True(score.Total.GreaterThanOrEqual(decimal.NewFromInt(70)))

	var result model.AllocationResult
	s.decode(s.do(http.MethodPost, "/admin/v1/decisions/"+decision.DecisionID+"/execute",
		map[string]string{"actor_id": "it-admin"}), &result)
	s.Equal(model.ExecutionStatusCompleted, result.ExecutionStatus)
	s.Equal("3000", result.AllocatedAmount.String())
	s.NotZero(result.ExecutedAt)

	// 终态决策重复执行幂等返回同一结果
	var replay model.AllocationResult
	s.decode(s.do(http.MethodPost, "/admin/v1/decisions/"+decision.DecisionID+"/execute", nil), &replay)
	s.Equal(result.ResultID, replay.ResultID)

	var fetched model.AllocationResult
	s.decode(s.do(http.MethodGet, "/admin/v1/results/"+result.ResultID, nil), &fetched)
	s.Equal(result.ResultID, fetched.ResultID)
	s.Equal("ORG-500", fetched.OrgID)

	// 评分/决策/执行均入审计, 链体校验通过
	var entries []*model.AuditEntry
	s.decode(s.do(http.MethodGet, "/admin/v1/audit/entries?"+url.Values{
		"entity_type": {model.AuditEntityDecision},
		"entity_id":   {decision.DecisionID},
	}.Encode(), nil), &entries)
	s.Require().Len(entries, 1)
	s.Equal(model.AuditActionDecisionMade, entries[0].ActionType)

	var report ledger.IntegrityReport
	s.decode(s.do(http.MethodPost, "/admin/v1/audit/verify", nil), &report)
	s.Equal(ledger.StatusVerified, report.Status)
	s.Empty(report.IntegrityViolations)
	s.Empty(report.ChainBreaks)
	s.GreaterOrEqual(report.EntriesChecked, 5)
}

// TestEmergencyModeLowersThreshold 紧急模式走 50 分线批准标准线下请求
func (s *AdminAPISuite) TestEmergencyModeLowersThreshold() {
	s.seedOrg("ORG-510", 10000)

	payload := highScorePayload("ORG-510")
	payload.RequestedAmount = "5000"
	payload.PriorityLevel = string(model.PriorityEmergency)
	payload.ExpectedBeneficiaries = 1
	payload.DurationMonths = 1
	payload.Mode = string(model.ModeEmergency)

	var decision model.AllocationDecision
	s.decode(s.do(http.MethodPost, "/admin/v1/requests", payload), &decision)
	s.Equal(model.DecisionApproved, decision.Decision)
	s.Equal(model.ModeEmergency, decision.Mode)
	s.Equal("50", decision.Threshold.String())
	s.True(decision.CompositeScore.LessThan(decimal.NewFromInt(70)))
}

// TestStandardModeRejectsMidScore 同一中分请求在标准模式被拒
func (s *AdminAPISuite) TestStandardModeRejectsMidScore() {
	s.seedOrg("ORG-511", 10000)

	payload := highScorePayload("ORG-511")
	payload.RequestedAmount = "5000"
	payload.PriorityLevel = string(model.PriorityEmergency)
	payload.ExpectedBeneficiaries = 1
	payload.DurationMonths = 1

	var decision model.AllocationDecision
	s.decode(s.do(http.MethodPost, "/admin/v1/requests", payload), &decision)
	s.Equal(model.DecisionRejected, decision.Decision)

	var req model.AllocationRequest
	s.decode(s.do(http.MethodGet, "/admin/v1/requests/"+decision.RequestID, nil), &req)
	s.Equal(model.RequestStatusRejected, req.Status)
}

// TestEligibilityGateRejectsSuspendedOrg 合规暂停机构在入口被门控拒绝
func (s *AdminAPISuite) TestEligibilityGateRejectsSuspendedOrg() {
	s.seedOrg("ORG-520", 0)
	s.Require().NoError(s.orgs.UpdateComplianceStatus(context.Background(), "ORG-520", model.OrgComplianceStatusSuspended))

	var result rules.EligibilityResult
	s.decode(s.do(http.MethodGet, "/admin/v1/organizations/ORG-520/eligibility", nil), &result)
	s.False(result.Eligible)
	s.Equal(rules.CodeComplianceSuspended, result.ReasonCode)

	var decision model.AllocationDecision
	s.decode(s.do(http.MethodPost, "/admin/v1/requests", highScorePayload("ORG-520")), &decision)
	s.Equal(model.DecisionRejected, decision.Decision)
	s.Equal(rules.CodeComplianceSuspended, decision.ReasonCode)
}

// TestExecuteUnknownDecision 未知决策返回业务错误
func (s *AdminAPISuite) TestExecuteUnknownDecision() {
	rec := s.do(http.MethodPost, "/admin/v1/decisions/AD-404/execute", nil)
	s.Equal(http.StatusNotFound, rec.Code, rec.Body.String())
}
