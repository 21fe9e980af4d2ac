package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// 三个月运营支出为缺口基准
var gapHorizonMonths = decimal.NewFromInt(3)

// FundingGapScore 资金缺口因子
// gap = max(0, 3×月支出 − (可用资金 + 在途收入))
// 无缺口得 30，有缺口按申请额对缺口的覆盖率线性升至 100
func FundingGapScore(req *model.AllocationRequest, fin *model.FinancialSnapshot) float64 {
	if fin == nil {
		return neutralScore
	}

	need := fin.MonthlyExpenses.Mul(gapHorizonMonths)
	covered := fin.AvailableFunds.Add(fin.PendingIncome)
	gap := need.Sub(covered)

	if !gap.IsPositive() {
		return 30
	}

	ratio, _ := req.RequestedAmount.Div(gap).Float64()
	if ratio > 1 {
		ratio = 1
	}
	return clamp(30 + 70*ratio)
}
