package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

// Engine 门控检查引擎
// 按优先级顺序执行已注册的检查器，遇到第一个失败即短路返回
type Engine struct {
	mu       sync.RWMutex
	checkers []registeredChecker
}

type registeredChecker struct {
	checker  EligibilityChecker
	priority CheckerPriority
}

// NewEngine 创建门控引擎
func NewEngine() *Engine {
	return &Engine{
		checkers: make([]registeredChecker, 0),
	}
}

// RegisterChecker 注册检查器并按优先级排序
func (e *Engine) RegisterChecker(checker EligibilityChecker, priority CheckerPriority) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkers = append(e.checkers, registeredChecker{
		checker:  checker,
		priority: priority,
	})

	sort.SliceStable(e.checkers, func(i, j int) bool {
		return e.checkers[i].priority < e.checkers[j].priority
	})

	logger.Info("eligibility checker registered",
		zap.String("checker", checker.Name()),
		zap.Int("priority", int(priority)),
	)
}

// Evaluate 依序执行全部检查，首个失败即短路
func (e *Engine) Evaluate(ctx context.Context, req *CheckRequest) *EligibilityResult {
	e.mu.RLock()
	checkers := make([]registeredChecker, len(e.checkers))
	copy(checkers, e.checkers)
	e.mu.RUnlock()

	result := &EligibilityResult{
		OrgID:        req.OrgID,
		Eligible:     true,
		FailedChecks: []string{},
		EvaluatedAt:  time.Now().UnixMilli(),
	}

	for _, rc := range checkers {
		cr := rc.checker.Check(ctx, req)
		if cr == nil {
			continue
		}
		if !cr.Passed {
			result.Eligible = false
			result.FailedChecks = append(result.FailedChecks, cr.CheckName)
			result.ReasonCode = cr.Code
			result.Reason = cr.Reason

			logger.Info("eligibility check failed",
				zap.String("org_id", req.OrgID),
				zap.String("check", cr.CheckName),
				zap.String("code", cr.Code),
			)
			return result
		}
	}

	return result
}

// CheckerNames 返回已注册检查器名称 (按执行顺序)
func (e *Engine) CheckerNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.checkers))
	for _, rc := range e.checkers {
		names = append(names, rc.checker.Name())
	}
	return names
}
