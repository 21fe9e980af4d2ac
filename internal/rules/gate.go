package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// OrganizationSource 机构读取接口
// 不存在时返回 (nil, nil)
type OrganizationSource interface {
	FindByOrgID(ctx context.Context, orgID string) (*model.Organization, error)
}

// AssessmentSource 合规评估读取接口
// 无记录时返回 (nil, nil)
type AssessmentSource interface {
	FindLatestByOrgID(ctx context.Context, orgID string) (*model.ComplianceAssessment, error)
}

// Gate 分配准入门控
// 每次评估都重新拉取机构与评估快照，结果不跨请求缓存
type Gate struct {
	engine      *Engine
	orgs        OrganizationSource
	assessments AssessmentSource
}

// NewGate 创建门控并按固定顺序注册四项检查
func NewGate(orgs OrganizationSource, assessments AssessmentSource, eligibilityFloor decimal.Decimal) *Gate {
	engine := NewEngine()
	engine.RegisterChecker(NewOrganizationStatusChecker(), PriorityHighest)
	engine.RegisterChecker(NewComplianceStatusChecker(), PriorityHigh)
	engine.RegisterChecker(NewComplianceScoreChecker(eligibilityFloor), PriorityNormal)
	engine.RegisterChecker(NewPayoutChannelChecker(), PriorityLow)

	return &Gate{
		engine:      engine,
		orgs:        orgs,
		assessments: assessments,
	}
}

// CheckEligibility 评估机构当前的分配资格
// 返回 error 仅代表数据源故障，业务性不合格通过 EligibilityResult 表达
func (g *Gate) CheckEligibility(ctx context.Context, orgID string) (*EligibilityResult, error) {
	org, err := g.orgs.FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization %s: %w", orgID, err)
	}

	var assessment *model.ComplianceAssessment
	if org != nil {
		assessment, err = g.assessments.FindLatestByOrgID(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("load latest assessment for %s: %w", orgID, err)
		}
	}

	req := &CheckRequest{
		OrgID:            orgID,
		Organization:     org,
		LatestAssessment: assessment,
	}
	return g.engine.Evaluate(ctx, req), nil
}

// CheckerNames 返回门控内检查器的执行顺序
func (g *Gate) CheckerNames() []string {
	return g.engine.CheckerNames()
}
