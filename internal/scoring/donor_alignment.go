package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 偏好匹配分值：类目 40 + 地区 30 + 金额区间 30
// 未声明某维度偏好时取该维度的一半作为中性部分分
const (
	categoryMatchPoints = 40.0
	locationMatchPoints = 30.0
	amountMatchPoints   = 30.0
)

// DonorAlignmentScore 捐赠人偏好契合因子
// 逐人计算 0-100 匹配度，按余额加权平均；单人权重受 weightCap 封顶，
// 避免大额捐赠人独占偏好信号；空捐赠池取 50
func DonorAlignmentScore(req *model.AllocationRequest, pool []DonorSnapshot, weightCap decimal.Decimal) float64 {
	if len(pool) == 0 {
		return neutralScore
	}

	weightedSum := decimal.Zero
	totalWeight := decimal.Zero

	for _, donor := range pool {
		weight := donor.AvailableBalance
		if weight.IsNegative() {
			continue
		}
		if weightCap.IsPositive() && weight.GreaterThan(weightCap) {
			weight = weightCap
		}
		if weight.IsZero() {
			continue
		}

		match := donorMatchScore(req, donor.Preferences)
		weightedSum = weightedSum.Add(weight.Mul(decimal.NewFromFloat(match)))
		totalWeight = totalWeight.Add(weight)
	}

	if totalWeight.IsZero() {
		return neutralScore
	}

	avg, _ := weightedSum.Div(totalWeight).Float64()
	return clamp(avg)
}

// donorMatchScore 单个捐赠人对请求的匹配度
func donorMatchScore(req *model.AllocationRequest, prefs *model.DonorPreferences) float64 {
	if prefs == nil {
		prefs = &model.DonorPreferences{}
	}

	score := 0.0

	if prefs.HasCategoryPreference() {
		if containsString(prefs.Categories, req.Category) {
			score += categoryMatchPoints
		}
	} else {
		score += categoryMatchPoints / 2
	}

	if prefs.HasLocationPreference() {
		if containsString(prefs.Locations, req.Location) {
			score += locationMatchPoints
		}
	} else {
		score += locationMatchPoints / 2
	}

	if prefs.HasAmountPreference() {
		if amountInRange(req.RequestedAmount, prefs.MinAmount, prefs.MaxAmount) {
			score += amountMatchPoints
		}
	} else {
		score += amountMatchPoints / 2
	}

	return score
}

// amountInRange 金额区间判断，零值边界表示开区间
func amountInRange(amount, min, max decimal.Decimal) bool {
	if min.IsPositive() && amount.LessThan(min) {
		return false
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return false
	}
	return true
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
