package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// costThresholds 类目成本档位 (欧元/受益人/月)
type costThresholds struct {
	Excellent  decimal.Decimal
	Good       decimal.Decimal
	Acceptable decimal.Decimal
}

var categoryCostThresholds = map[string]costThresholds{
	model.CategoryHealthcare: {
		Excellent:  decimal.NewFromInt(50),
		Good:       decimal.NewFromInt(150),
		Acceptable: decimal.NewFromInt(400),
	},
	model.CategoryEducation: {
		Excellent:  decimal.NewFromInt(30),
		Good:       decimal.NewFromInt(100),
		Acceptable: decimal.NewFromInt(250),
	},
	model.CategoryEnvironment: {
		Excellent:  decimal.NewFromInt(40),
		Good:       decimal.NewFromInt(120),
		Acceptable: decimal.NewFromInt(300),
	},
	model.CategoryHumanitarian: {
		Excellent:  decimal.NewFromInt(25),
		Good:       decimal.NewFromInt(80),
		Acceptable: decimal.NewFromInt(200),
	},
	model.CategoryAnimalWelfare: {
		Excellent:  decimal.NewFromInt(20),
		Good:       decimal.NewFromInt(60),
		Acceptable: decimal.NewFromInt(150),
	},
	model.CategoryCommunity: {
		Excellent:  decimal.NewFromInt(35),
		Good:       decimal.NewFromInt(100),
		Acceptable: decimal.NewFromInt(250),
	},
}

// 未收录类目的兜底档位
var defaultCostThresholds = costThresholds{
	Excellent:  decimal.NewFromInt(30),
	Good:       decimal.NewFromInt(100),
	Acceptable: decimal.NewFromInt(250),
}

// CostEfficiencyScore 成本效率因子
// 人月成本 = 申请额 / (受益人数 × 项目月数)，对照类目档位取 90/70/40/20，
// 规模加成：受益人 >1000 加 10，>100 加 5
func CostEfficiencyScore(req *model.AllocationRequest) float64 {
	if req.ExpectedBeneficiaries < 1 || req.DurationMonths < 1 {
		return neutralScore
	}

	personMonths := decimal.NewFromInt(int64(req.ExpectedBeneficiaries) * int64(req.DurationMonths))
	cost := req.RequestedAmount.Div(personMonths)

	thresholds, ok := categoryCostThresholds[req.Category]
	if !ok {
		thresholds = defaultCostThresholds
	}

	var score float64
	switch {
	case cost.LessThanOrEqual(thresholds.Excellent):
		score = 90
	case cost.LessThanOrEqual(thresholds.Good):
		score = 70
	case cost.LessThanOrEqual(thresholds.Acceptable):
		score = 40
	default:
		score = 20
	}

	switch {
	case req.ExpectedBeneficiaries > 1000:
		score += 10
	case req.ExpectedBeneficiaries > 100:
		score += 5
	}

	return clamp(score)
}
