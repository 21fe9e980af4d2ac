package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrganizationStatusChecker 机构必须存在且处于 active 状态
type OrganizationStatusChecker struct{}

// NewOrganizationStatusChecker 创建机构状态检查器
func NewOrganizationStatusChecker() *OrganizationStatusChecker {
	return &OrganizationStatusChecker{}
}

// Name 返回检查器名称
func (c *OrganizationStatusChecker) Name() string {
	return CheckOrganizationStatus
}

// Check 执行检查
func (c *OrganizationStatusChecker) Check(_ context.Context, req *CheckRequest) *CheckResult {
	if req.Organization == nil {
		return NewRejectResult(c.Name(),
			fmt.Sprintf("organization %s not found", req.OrgID),
			CodeOrgNotFound)
	}
	if !req.Organization.IsActive() {
		return NewRejectResult(c.Name(),
			fmt.Sprintf("organization status is %s", req.Organization.Status),
			CodeOrgNotActive)
	}
	return NewPassResult(c.Name())
}

// ComplianceStatusChecker 合规状态不得为 suspended
// 与合规分数无关，挂起即一票否决
type ComplianceStatusChecker struct{}

// NewComplianceStatusChecker 创建合规状态检查器
func NewComplianceStatusChecker() *ComplianceStatusChecker {
	return &ComplianceStatusChecker{}
}

// Name 返回检查器名称
func (c *ComplianceStatusChecker) Name() string {
	return CheckComplianceStatus
}

// Check 执行检查
func (c *ComplianceStatusChecker) Check(_ context.Context, req *CheckRequest) *CheckResult {
	if req.Organization == nil {
		return NewRejectResult(c.Name(),
			fmt.Sprintf("organization %s not found", req.OrgID),
			CodeOrgNotFound)
	}
	if req.Organization.IsComplianceSuspended() {
		return NewRejectResult(c.Name(),
			"compliance status is suspended",
			CodeComplianceSuspended)
	}
	return NewPassResult(c.Name())
}

// ComplianceScoreChecker 最近一次合规评估分数必须达到准入线
// 无评估记录按不达标处理
type ComplianceScoreChecker struct {
	floor decimal.Decimal
}

// NewComplianceScoreChecker 创建合规分数检查器
func NewComplianceScoreChecker(floor decimal.Decimal) *ComplianceScoreChecker {
	return &ComplianceScoreChecker{floor: floor}
}

// Name 返回检查器名称
func (c *ComplianceScoreChecker) Name() string {
	return CheckComplianceScore
}

// Check 执行检查
func (c *ComplianceScoreChecker) Check(_ context.Context, req *CheckRequest) *CheckResult {
	if req.LatestAssessment == nil {
		return NewRejectResult(c.Name(),
			"no compliance assessment on record",
			CodeComplianceUnassessed)
	}
	if !req.LatestAssessment.MeetsEligibilityFloor(c.floor) {
		return NewRejectResult(c.Name(),
			fmt.Sprintf("compliance score %s below floor %s",
				req.LatestAssessment.OverallScore.String(), c.floor.String()),
			CodeComplianceScoreLow)
	}
	return NewPassResult(c.Name())
}

// PayoutChannelChecker 收款账户必须已通过银行验证
type PayoutChannelChecker struct{}

// NewPayoutChannelChecker 创建收款渠道检查器
func NewPayoutChannelChecker() *PayoutChannelChecker {
	return &PayoutChannelChecker{}
}

// Name 返回检查器名称
func (c *PayoutChannelChecker) Name() string {
	return CheckPayoutChannel
}

// Check 执行检查
func (c *PayoutChannelChecker) Check(_ context.Context, req *CheckRequest) *CheckResult {
	if req.Organization == nil {
		return NewRejectResult(c.Name(),
			fmt.Sprintf("organization %s not found", req.OrgID),
			CodeOrgNotFound)
	}
	if !req.Organization.BankVerified {
		return NewRejectResult(c.Name(),
			"payout account not bank verified",
			CodePayoutUnverified)
	}
	return NewPassResult(c.Name())
}

var (
	_ EligibilityChecker = (*OrganizationStatusChecker)(nil)
	_ EligibilityChecker = (*ComplianceStatusChecker)(nil)
	_ EligibilityChecker = (*ComplianceScoreChecker)(nil)
	_ EligibilityChecker = (*PayoutChannelChecker)(nil)
)
