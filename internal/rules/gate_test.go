package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

type fakeOrgSource struct {
	org *model.Organization
	err error
}

func (f *fakeOrgSource) FindByOrgID(_ context.Context, _ string) (*model.Organization, error) {
	return f.org, f.err
}

type fakeAssessmentSource struct {
	assessment *model.ComplianceAssessment
	err        error
	calls      int
}

func (f *fakeAssessmentSource) FindLatestByOrgID(_ context.Context, _ string) (*model.ComplianceAssessment, error) {
	f.calls++
	return f.assessment, f.err
}

func eligibleOrg() *model.Organization {
	return &model.Organization{
		OrgID:            "org-1",
		Name:             "Mensa di Comunità",
		Status:           model.OrganizationStatusActive,
		ComplianceStatus: model.OrgComplianceStatusCompliant,
		BankVerified:     true,
	}
}

func assessmentWithScore(score string) *model.ComplianceAssessment {
	return &model.ComplianceAssessment{
		OrgID:        "org-1",
		OverallScore: decimal.RequireFromString(score),
	}
}

func newTestGate(org *model.Organization, assessment *model.ComplianceAssessment) *Gate {
	return NewGate(
		&fakeOrgSource{org: org},
		&fakeAssessmentSource{assessment: assessment},
		decimal.NewFromInt(60),
	)
}

func TestGate_CheckEligibility_AllChecksPass(t *testing.T) {
	gate := newTestGate(eligibleOrg(), assessmentWithScore("75"))

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Empty(t, result.FailedChecks)
	assert.Empty(t, result.ReasonCode)
}

func TestGate_CheckEligibility_OrgNotFound(t *testing.T) {
	gate := newTestGate(nil, nil)

	result, err := gate.CheckEligibility(context.Background(), "org-missing")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{CheckOrganizationStatus}, result.FailedChecks)
	assert.Equal(t, CodeOrgNotFound, result.ReasonCode)
}

func TestGate_CheckEligibility_OrgInactive(t *testing.T) {
	org := eligibleOrg()
	org.Status = model.OrganizationStatusInactive
	gate := newTestGate(org, assessmentWithScore("90"))

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{CheckOrganizationStatus}, result.FailedChecks)
	assert.Equal(t, CodeOrgNotActive, result.ReasonCode)
}

// 合规挂起一票否决，与最近评估分数高低无关
func TestGate_CheckEligibility_SuspendedOverridesHighScore(t *testing.T) {
	org := eligibleOrg()
	org.ComplianceStatus = model.OrgComplianceStatusSuspended
	gate := newTestGate(org, assessmentWithScore("92"))

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{CheckComplianceStatus}, result.FailedChecks)
	assert.Equal(t, CodeComplianceSuspended, result.ReasonCode)
}

func TestGate_CheckEligibility_NoAssessment(t *testing.T) {
	gate := newTestGate(eligibleOrg(), nil)

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{CheckComplianceScore}, result.FailedChecks)
	assert.Equal(t, CodeComplianceUnassessed, result.ReasonCode)
}

func TestGate_CheckEligibility_ScoreBelowFloor(t *testing.T) {
	gate := newTestGate(eligibleOrg(), assessmentWithScore("59.99"))

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{CheckComplianceScore}, result.FailedChecks)
	assert.Equal(t, CodeComplianceScoreLow, result.ReasonCode)
}

func TestGate_CheckEligibility_ScoreAtFloor(t *testing.T) {
	gate := newTestGate(eligibleOrg(), assessmentWithScore("60"))

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
}

func TestGate_CheckEligibility_BankUnverified(t *testing.T) {
	org := eligibleOrg()
	org.BankVerified = false
	gate := newTestGate(org, assessmentWithScore("80"))

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, []string{CheckPayoutChannel}, result.FailedChecks)
	assert.Equal(t, CodePayoutUnverified, result.ReasonCode)
}

func TestGate_CheckEligibility_SourceError(t *testing.T) {
	srcErr := errors.New("connection refused")
	gate := NewGate(
		&fakeOrgSource{err: srcErr},
		&fakeAssessmentSource{},
		decimal.NewFromInt(60),
	)

	result, err := gate.CheckEligibility(context.Background(), "org-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, srcErr)
	assert.Nil(t, result)
}

// 机构不存在时不再查询评估数据源
func TestGate_CheckEligibility_SkipsAssessmentLoadWhenOrgMissing(t *testing.T) {
	assessments := &fakeAssessmentSource{}
	gate := NewGate(&fakeOrgSource{}, assessments, decimal.NewFromInt(60))

	result, err := gate.CheckEligibility(context.Background(), "org-missing")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Zero(t, assessments.calls)
}

func TestGate_CheckerNames(t *testing.T) {
	gate := newTestGate(eligibleOrg(), assessmentWithScore("75"))
	assert.Equal(t, []string{
		CheckOrganizationStatus,
		CheckComplianceStatus,
		CheckComplianceScore,
		CheckPayoutChannel,
	}, gate.CheckerNames())
}
