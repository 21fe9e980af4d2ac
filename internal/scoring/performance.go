package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 子指标归一化基准：每欧元 2.0 影响力单位记满分
var impactFullMark = decimal.NewFromInt(2)

// PerformanceScore 历史绩效因子
// 四个子指标归一化到 [0,100] 后按 30/25/25/20 混合；
// 综合 ≥85 加 10，<30 减 10；无历史记录的新机构取 50
func PerformanceScore(perf *model.PerformanceSnapshot) float64 {
	if perf == nil {
		return neutralScore
	}

	completion := normalizeRatio(perf.CompletionRate) * 100
	impact := normalizeAgainst(perf.ImpactPerEuro, impactFullMark) * 100
	rating := normalizeRatio(perf.AvgDonorRating.Div(decimal.NewFromInt(5))) * 100
	transparency := clamp(toFloat(perf.TransparencyRating))

	composite := 0.30*completion + 0.25*impact + 0.25*rating + 0.20*transparency

	switch {
	case composite >= 85:
		composite += 10
	case composite < 30:
		composite -= 10
	}

	return clamp(composite)
}

// normalizeRatio 收敛到 [0,1]
func normalizeRatio(d decimal.Decimal) float64 {
	v := toFloat(d)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeAgainst 按满分基准归一化到 [0,1]
func normalizeAgainst(d, fullMark decimal.Decimal) float64 {
	if !fullMark.IsPositive() {
		return 0
	}
	return normalizeRatio(d.Div(fullMark))
}

func toFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
