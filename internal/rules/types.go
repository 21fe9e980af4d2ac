// Package rules 实现分配准入的硬门控检查链
// 任一检查失败即不可获配，与评分高低无关
package rules

import (
	"context"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 门控检查名称
const (
	CheckOrganizationStatus = "organization_status"
	CheckComplianceStatus   = "compliance_status"
	CheckComplianceScore    = "compliance_score"
	CheckPayoutChannel      = "payout_channel"
)

// 失败原因码
const (
	CodeOrgNotFound          = "ORG_NOT_FOUND"
	CodeOrgNotActive         = "ORG_NOT_ACTIVE"
	CodeComplianceSuspended  = "COMPLIANCE_SUSPENDED"
	CodeComplianceUnassessed = "COMPLIANCE_UNASSESSED"
	CodeComplianceScoreLow   = "COMPLIANCE_SCORE_LOW"
	CodePayoutUnverified     = "PAYOUT_UNVERIFIED"
)

// CheckRequest 单次门控评估的输入快照
// Organization 为 nil 表示机构不存在，LatestAssessment 为 nil 表示从未评估
type CheckRequest struct {
	OrgID            string
	Organization     *model.Organization
	LatestAssessment *model.ComplianceAssessment
}

// CheckResult 单检查结果
type CheckResult struct {
	Passed    bool
	CheckName string
	Reason    string
	Code      string
}

// NewPassResult 创建通过结果
func NewPassResult(checkName string) *CheckResult {
	return &CheckResult{Passed: true, CheckName: checkName}
}

// NewRejectResult 创建拒绝结果
func NewRejectResult(checkName, reason, code string) *CheckResult {
	return &CheckResult{
		Passed:    false,
		CheckName: checkName,
		Reason:    reason,
		Code:      code,
	}
}

// EligibilityResult 门控评估结论
// 每次分配尝试重新评估，跨请求不缓存
type EligibilityResult struct {
	OrgID        string   `json:"organization_id"`
	Eligible     bool     `json:"eligible"`
	FailedChecks []string `json:"failed_checks"` // 失败检查名，短路后至多一个
	ReasonCode   string   `json:"reason_code,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	EvaluatedAt  int64    `json:"evaluated_at"`
}

// EligibilityChecker 门控检查器接口
type EligibilityChecker interface {
	// Name 返回检查名称
	Name() string
	// Check 执行检查
	Check(ctx context.Context, req *CheckRequest) *CheckResult
}

// CheckerPriority 检查优先级 (数字越小越先执行)
type CheckerPriority int

const (
	PriorityHighest CheckerPriority = 1   // 机构状态
	PriorityHigh    CheckerPriority = 10  // 合规状态
	PriorityNormal  CheckerPriority = 50  // 合规分数
	PriorityLow     CheckerPriority = 100 // 收款渠道
)
