package scoring

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/config"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
)

// Scorer 组合六因子产出加权综合分
type Scorer struct {
	weights        map[string]decimal.Decimal
	factorOrder    []string
	donorWeightCap decimal.Decimal
}

// NewScorer 创建评分器，权重来自启动期已校验的配置
func NewScorer(cfg *config.AllocationConfig) *Scorer {
	return &Scorer{
		weights: map[string]decimal.Decimal{
			FactorFundingGap:     cfg.Weights.GetFundingGapWeight(),
			FactorUrgency:        cfg.Weights.GetUrgencyWeight(),
			FactorPerformance:    cfg.Weights.GetPerformanceWeight(),
			FactorDonorAlignment: cfg.Weights.GetDonorAlignmentWeight(),
			FactorCostEfficiency: cfg.Weights.GetCostEfficiencyWeight(),
			FactorSeasonality:    cfg.Weights.GetSeasonalityWeight(),
		},
		factorOrder: []string{
			FactorFundingGap,
			FactorUrgency,
			FactorPerformance,
			FactorDonorAlignment,
			FactorCostEfficiency,
			FactorSeasonality,
		},
		donorWeightCap: cfg.GetDonorWeightCap(),
	}
}

// Score 计算综合分
// 六因子相互独立且为纯函数，并发求值；缺失上下文由各因子自行取默认，
// 仅请求本身结构非法时返回错误
func (s *Scorer) Score(req *model.AllocationRequest, sctx *Context) (*CompositeScore, error) {
	if req == nil {
		return nil, errors.ErrInvalidRequest.WithMessage("allocation request is nil")
	}
	if !req.StructurallyValid() {
		return nil, errors.ErrInvalidRequest.WithMessage("allocation request is structurally invalid").
			WithDetail("request_id", req.RequestID)
	}
	if sctx == nil {
		sctx = &Context{}
	}
	nowMillis := sctx.NowMillis
	if nowMillis == 0 {
		nowMillis = time.Now().UnixMilli()
	}

	values := make([]float64, len(s.factorOrder))
	var wg sync.WaitGroup
	wg.Add(len(s.factorOrder))
	go func() {
		defer wg.Done()
		values[0] = FundingGapScore(req, sctx.Financial)
	}()
	go func() {
		defer wg.Done()
		values[1] = UrgencyScore(req, nowMillis)
	}()
	go func() {
		defer wg.Done()
		values[2] = PerformanceScore(sctx.Performance)
	}()
	go func() {
		defer wg.Done()
		values[3] = DonorAlignmentScore(req, sctx.DonorPool, s.donorWeightCap)
	}()
	go func() {
		defer wg.Done()
		values[4] = CostEfficiencyScore(req)
	}()
	go func() {
		defer wg.Done()
		values[5] = SeasonalityScore(req, nowMillis, sctx.Emergency)
	}()
	wg.Wait()

	breakdown := make([]FactorScore, 0, len(s.factorOrder))
	total := decimal.Zero
	for i, name := range s.factorOrder {
		weight := s.weights[name]
		breakdown = append(breakdown, FactorScore{
			FactorName: name,
			Value:      values[i],
			Weight:     weight,
		})
		total = total.Add(decimal.NewFromFloat(values[i]).Mul(weight))
	}

	return &CompositeScore{
		RequestID:       req.RequestID,
		FactorBreakdown: breakdown,
		Total:           total.Round(2),
		ComputedAt:      nowMillis,
	}, nil
}

// Weights 返回当前权重表 (只读用途)
func (s *Scorer) Weights() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.weights))
	for name, w := range s.weights {
		out[name] = w
	}
	return out
}
