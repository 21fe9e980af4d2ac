// Package scoring 实现分配请求的六因子评分
// 六个因子均为纯函数：任意合法输入产出 [0,100]，缺失上下文取各自的中性默认值
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 因子名称，与权重配置一一对应
const (
	FactorFundingGap     = "funding_gap"
	FactorUrgency        = "urgency"
	FactorPerformance    = "historical_performance"
	FactorDonorAlignment = "donor_alignment"
	FactorCostEfficiency = "cost_efficiency"
	FactorSeasonality    = "seasonality"
)

// 缺失上下文时的中性默认分
const neutralScore = 50.0

// FactorScore 单因子得分
type FactorScore struct {
	FactorName string          `json:"factor_name"`
	Value      float64         `json:"value"`
	Weight     decimal.Decimal `json:"weight"`
}

// CompositeScore 加权综合分
// Total = Σ(value_i × weight_i)，四舍五入保留两位
type CompositeScore struct {
	RequestID       string          `json:"request_id"`
	FactorBreakdown []FactorScore   `json:"factor_breakdown"`
	Total           decimal.Decimal `json:"total"`
	ComputedAt      int64           `json:"computed_at"`
}

// DonorSnapshot 参与偏好评分的捐赠人快照
type DonorSnapshot struct {
	DonorID          string                  `json:"donor_id"`
	AvailableBalance decimal.Decimal         `json:"available_balance"`
	Preferences      *model.DonorPreferences `json:"preferences,omitempty"`
}

// EmergencyContext 活跃应急事件上下文 (seasonality 因子输入)
type EmergencyContext struct {
	Active     bool     `json:"active"`
	Multiplier float64  `json:"multiplier"` // 紧迫系数 ≥ 1
	Categories []string `json:"categories"` // 受影响类目，空表示全部
}

// Context 评分所需的只读上下文快照
// 字段为 nil/空时各因子落到中性默认，不报错
type Context struct {
	Financial   *model.FinancialSnapshot
	Performance *model.PerformanceSnapshot
	DonorPool   []DonorSnapshot
	Emergency   *EmergencyContext
	NowMillis   int64 // 评分时刻，截止/季节因子的基准
}

// clamp 将得分收敛到 [0,100]
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
