// Package service 提供资金分配核心的业务逻辑
//
// ========================================
// AllocationService 分配服务对接说明
// ========================================
//
// ## 功能概述
// AllocationService 承接 ONLUS 资金申请的评分、准入、审批与执行，
// 是捐赠资金池到机构账户的唯一划拨路径。
//
// ## 调用方
// - internal/handler: 管理 API 透传八个核心操作
// - internal/scheduler: 批量分配周期、滞留执行清理
//
// ## 消息输出 (Kafka Producer)
// - Topic: allocation-events
// - 消息类型: AllocationEventMessage
// - 触发条件: 决策落库、执行收尾、批次完成
//
// ## 状态机
// submitted → scored → (approved | rejected | deferred) → executing →
// (completed | partially_completed | failed)
// deferred 非终态，下个批量周期重新评分
//
// ## 并发约束
// - 准入门控每次分配尝试重新评估，不跨调用缓存
// - 同一机构的执行经 Redis 分布式锁 (alloc:exec:<org_id>) 串行化
// - 审计条目统一经 AuditService 单写者落链
// ========================================
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/cache"
	"github.com/almoner-platform/almoner-allocation/internal/client"
	"github.com/almoner-platform/almoner-allocation/internal/config"
	"github.com/almoner-platform/almoner-allocation/internal/metrics"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/internal/rules"
	"github.com/almoner-platform/almoner-allocation/internal/scoring"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
	"github.com/almoner-platform/almoner-allocation/pkg/id"
	"github.com/almoner-platform/almoner-allocation/pkg/lock"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

// 决策原因码 (门控拒绝沿用 rules 包的原因码)
const (
	ReasonScoreBelowThreshold     = "SCORE_BELOW_THRESHOLD"
	ReasonEmergencyCriteriaNotMet = "EMERGENCY_CRITERIA_NOT_MET"
	ReasonPoolExhausted           = "POOL_EXHAUSTED"
)

// 执行失败原因
const (
	FailureReasonEmptyDonorPool = "DONOR_POOL_EMPTY"
	FailureReasonAllFailed      = "ALL_TRANSFERS_FAILED"
	FailureReasonTimedOut       = "EXECUTION_TIMED_OUT"
)

// 分配事件类型
const (
	EventTypeDecisionMade      = "DECISION_MADE"
	EventTypeExecutionFinished = "EXECUTION_FINISHED"
	EventTypeBatchCompleted    = "BATCH_COMPLETED"
)

// execLockPrefix 同机构执行互斥的锁键前缀
const execLockPrefix = "exec:"

// AllocationEventMessage 分配生命周期事件消息
type AllocationEventMessage struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	RequestID  string `json:"request_id,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	ResultID   string `json:"result_id,omitempty"`
	BatchID    string `json:"batch_id,omitempty"`
	OrgID      string `json:"org_id,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Score      string `json:"score,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Status     string `json:"status,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// DonorPlanEntry 执行计划中的单个捐赠人份额
type DonorPlanEntry struct {
	DonorID string          `json:"donor_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// BatchReport 一轮批量分配的汇总
type BatchReport struct {
	BatchID       string                      `json:"batch_id"`
	Decisions     []*model.AllocationDecision `json:"decisions"`
	Approved      int                         `json:"approved"`
	Rejected      int                         `json:"rejected"`
	Deferred      int                         `json:"deferred"`
	TotalApproved decimal.Decimal             `json:"total_approved"`
	PoolBefore    decimal.Decimal             `json:"pool_before"`
	PoolAfter     decimal.Decimal             `json:"pool_after"`
	StartedAt     int64                       `json:"started_at"`
	FinishedAt    int64                       `json:"finished_at"`
}

// AllocationService 分配服务
type AllocationService struct {
	cfg          *config.AllocationConfig
	requestRepo  *repository.AllocationRequestRepository
	decisionRepo *repository.AllocationDecisionRepository
	resultRepo   *repository.AllocationResultRepository
	orgRepo      *repository.OrganizationRepository
	donorRepo    *repository.DonorRepository
	perfRepo     *repository.PerformanceRepository
	funds        cache.DonorFundRedisRepository
	executor     *client.DonationExecutor
	audit        *AuditService
	scorer       *scoring.Scorer
	gate         *rules.Gate
	locker       *lock.RedisLocker

	onEvent func(ctx context.Context, event *AllocationEventMessage) error
}

// NewAllocationService 创建分配服务
func NewAllocationService(
	cfg *config.AllocationConfig,
	requestRepo *repository.AllocationRequestRepository,
	decisionRepo *repository.AllocationDecisionRepository,
	resultRepo *repository.AllocationResultRepository,
	orgRepo *repository.OrganizationRepository,
	donorRepo *repository.DonorRepository,
	perfRepo *repository.PerformanceRepository,
	funds cache.DonorFundRedisRepository,
	executor *client.DonationExecutor,
	audit *AuditService,
	scorer *scoring.Scorer,
	gate *rules.Gate,
	locker *lock.RedisLocker,
) *AllocationService {
	return &AllocationService{
		cfg:          cfg,
		requestRepo:  requestRepo,
		decisionRepo: decisionRepo,
		resultRepo:   resultRepo,
		orgRepo:      orgRepo,
		donorRepo:    donorRepo,
		perfRepo:     perfRepo,
		funds:        funds,
		executor:     executor,
		audit:        audit,
		scorer:       scorer,
		gate:         gate,
		locker:       locker,
	}
}

// SetOnEvent 注入分配事件回调 (由 app 接到 Kafka 生产者)
func (s *AllocationService) SetOnEvent(fn func(ctx context.Context, event *AllocationEventMessage) error) {
	s.onEvent = fn
}

// ScoreRequest 计算请求的综合评分 (只读预览，不推进状态机)
func (s *AllocationService) ScoreRequest(ctx context.Context, requestID string) (*scoring.CompositeScore, error) {
	req, err := s.requestRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		if stderrors.Is(err, repository.ErrRequestNotFound) {
			return nil, errors.ErrRequestNotFound.WithDetail("request_id", requestID)
		}
		return nil, err
	}
	return s.scoreOne(ctx, req)
}

// CheckEligibility 评估机构准入资格
// 每次分配尝试重新评估，合规状态可能随巡检随时变化
func (s *AllocationService) CheckEligibility(ctx context.Context, orgID string) (*rules.EligibilityResult, error) {
	result, err := s.gate.CheckEligibility(ctx, orgID)
	if err != nil {
		return nil, err
	}

	failedCheck := ""
	if len(result.FailedChecks) > 0 {
		failedCheck = result.FailedChecks[0]
	}
	metrics.RecordEligibilityCheck(result.Eligible, failedCheck)
	return result, nil
}

// SubmitRequest 受理资金申请并即时决策
// 流程: 落库 → 门控 → 评分 → 按模式过线判定；拒绝也产出决策记录并审计
func (s *AllocationService) SubmitRequest(ctx context.Context, req *model.AllocationRequest, mode model.ProcessingMode, actorID string) (*model.AllocationDecision, error) {
	if req == nil || !req.StructurallyValid() {
		return nil, errors.ErrInvalidRequest.WithMessage("allocation request is structurally invalid")
	}
	if mode != model.ModeStandard && mode != model.ModeEmergency {
		return nil, errors.ErrInvalidRequest.WithMessage("unknown processing mode").WithDetail("mode", string(mode))
	}

	if req.RequestID == "" {
		req.RequestID = id.NextReference("AR")
	}
	req.Status = model.RequestStatusSubmitted
	if err := s.requestRepo.Create(ctx, req); err != nil {
		if stderrors.Is(err, repository.ErrRequestDuplicate) {
			return nil, errors.ErrConflict.WithMessage("allocation request already submitted").WithDetail("request_id", req.RequestID)
		}
		return nil, err
	}

	eligibility, err := s.CheckEligibility(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	score, err := s.scoreOne(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.requestRepo.TransitionStatus(ctx, req.RequestID, model.RequestStatusSubmitted, model.RequestStatusScored); err != nil {
		return nil, err
	}

	nowMillis := time.Now().UnixMilli()
	outcome, reasonCode, threshold := s.decide(req, score.Total, mode, eligibility, nowMillis)

	decision, err := s.persistDecision(ctx, req, score, outcome, mode, threshold, reasonCode, 0, actorID, nowMillis)
	if err != nil {
		return nil, err
	}

	if err := s.requestRepo.TransitionStatus(ctx, req.RequestID, model.RequestStatusScored, outcomeRequestStatus(outcome)); err != nil {
		return nil, err
	}

	logger.Info("allocation request decided",
		"request_id", req.RequestID,
		"org_id", req.OrgID,
		"decision", decision.Decision,
		"mode", mode,
		"score", score.Total,
		"reason_code", reasonCode)
	return decision, nil
}

// ExecuteAllocation 执行已批准的分配决策
// 幂等: 已有终态结果直接返回存量；同机构执行经分布式锁串行化
func (s *AllocationService) ExecuteAllocation(ctx context.Context, decisionID, actorID string) (*model.AllocationResult, error) {
	decision, err := s.decisionRepo.GetByDecisionID(ctx, decisionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrDecisionNotFound) {
			return nil, errors.ErrNotFound.WithMessage("allocation decision not found").WithDetail("decision_id", decisionID)
		}
		return nil, err
	}
	if decision.Decision != model.DecisionApproved {
		return nil, errors.ErrRequestNotApproved.WithDetail("decision_id", decisionID)
	}

	if existing, err := s.resultRepo.FindByDecisionID(ctx, decisionID); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.ExecutionStatus.IsTerminal() {
			return existing, nil
		}
		return nil, errors.ErrDuplicateExecution.WithDetail("result_id", existing.ResultID)
	}

	var result *model.AllocationResult
	lockErr := s.locker.WithLock(ctx, execLockPrefix+decision.OrgID, func(ctx context.Context) error {
		var execErr error
		result, execErr = s.executeLocked(ctx, decision, actorID)
		return execErr
	})
	if lockErr != nil {
		if stderrors.Is(lockErr, lock.ErrLockAcquireFailed) {
			return nil, errors.ErrConflict.WithMessage("another execution in progress for organization").WithDetail("org_id", decision.OrgID)
		}
		return nil, lockErr
	}
	return result, nil
}

// executeLocked 持有机构级执行锁之后的执行主体
func (s *AllocationService) executeLocked(ctx context.Context, decision *model.AllocationDecision, actorID string) (*model.AllocationResult, error) {
	startTime := time.Now()

	// 锁内复查，拿锁前的并发调用可能已经落下结果
	if existing, err := s.resultRepo.FindByDecisionID(ctx, decision.DecisionID); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.ExecutionStatus.IsTerminal() {
			return existing, nil
		}
		return nil, errors.ErrDuplicateExecution.WithDetail("result_id", existing.ResultID)
	}
	if processed, err := s.funds.CheckExecutionProcessed(ctx, decision.DecisionID); err != nil {
		return nil, err
	} else if processed {
		return nil, errors.ErrDuplicateExecution.WithDetail("decision_id", decision.DecisionID)
	}

	// 门控按次重评，审批后合规状态可能已经恶化
	eligibility, err := s.CheckEligibility(ctx, decision.OrgID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		logger.Warn("execution blocked by eligibility gate",
			"decision_id", decision.DecisionID,
			"org_id", decision.OrgID,
			"reason_code", eligibility.ReasonCode)
		return nil, errors.ErrEligibilityRejected.
			WithDetail("org_id", decision.OrgID).
			WithDetail("reason_code", eligibility.ReasonCode)
	}

	req, err := s.requestRepo.GetByRequestID(ctx, decision.RequestID)
	if err != nil {
		return nil, err
	}

	_, donorFunds, err := s.activeDonorFunds(ctx)
	if err != nil {
		return nil, err
	}
	plan, planTotal := buildDonorPlan(req.RequestedAmount, donorFunds)

	result := &model.AllocationResult{
		ResultID:        id.NextReference("RES"),
		DecisionID:      decision.DecisionID,
		RequestID:       decision.RequestID,
		OrgID:           decision.OrgID,
		AllocatedAmount: planTotal,
		ExecutionStatus: model.ExecutionStatusPending,
		StartedAt:       startTime.UnixMilli(),
	}
	if err := s.resultRepo.Create(ctx, result); err != nil {
		if stderrors.Is(err, repository.ErrResultDuplicate) {
			return nil, errors.ErrDuplicateExecution.WithDetail("decision_id", decision.DecisionID)
		}
		return nil, err
	}

	if err := s.requestRepo.TransitionStatus(ctx, decision.RequestID, model.RequestStatusApproved, model.RequestStatusExecuting); err != nil {
		return nil, err
	}
	if err := s.resultRepo.MarkInProgress(ctx, result.ResultID); err != nil {
		return nil, err
	}
	result.ExecutionStatus = model.ExecutionStatusInProgress

	if err := s.audit.LogExecutionStarted(ctx, result, len(plan), actorID); err != nil {
		logger.Error("audit execution started failed", "result_id", result.ResultID, "error", err)
	}

	if len(plan) == 0 {
		return s.finishExecution(ctx, result, 0, 0, decimal.Zero, FailureReasonEmptyDonorPool, startTime)
	}

	succeeded, failed, moved := s.runDonorPlan(ctx, result, plan)

	failureReason := ""
	if succeeded == 0 {
		failureReason = FailureReasonAllFailed
	}
	return s.finishExecution(ctx, result, succeeded, failed, moved, failureReason, startTime)
}

// runDonorPlan 按计划顺序逐个捐赠人划拨，单笔失败不中断整体
// moved 累计成功划拨的金额，是最终回填 allocated_amount 的依据
func (s *AllocationService) runDonorPlan(ctx context.Context, result *model.AllocationResult, plan []DonorPlanEntry) (succeeded, failed int, moved decimal.Decimal) {
	txns := make([]*model.DonationTransaction, 0, len(plan))
	moved = decimal.Zero

	for i, entry := range plan {
		outcome := s.executor.Execute(ctx, &client.DonationRequest{
			ExecutionID: result.ResultID,
			DonorID:     entry.DonorID,
			OrgID:       result.OrgID,
			Amount:      entry.Amount,
		})

		txn := &model.DonationTransaction{
			ResultID:      result.ResultID,
			DonorID:       entry.DonorID,
			OrgID:         result.OrgID,
			Amount:        entry.Amount,
			Status:        outcome.Status,
			TransactionID: outcome.TransactionID,
			FailureCode:   outcome.FailureCode,
			PlanOrder:     i + 1,
		}
		txns = append(txns, txn)

		if outcome.Succeeded() {
			succeeded++
			moved = moved.Add(entry.Amount)
			metrics.RecordDonation(true)
			if err := s.audit.LogDonationExecuted(ctx, result, txn); err != nil {
				logger.Error("audit donation executed failed", "result_id", result.ResultID, "donor_id", entry.DonorID, "error", err)
			}
		} else {
			failed++
			metrics.RecordDonation(false)
			if err := s.audit.LogDonationFailed(ctx, result, txn); err != nil {
				logger.Error("audit donation failed failed", "result_id", result.ResultID, "donor_id", entry.DonorID, "error", err)
			}
		}
	}

	if err := s.resultRepo.SaveTransactions(ctx, txns); err != nil {
		logger.Error("save donation transactions failed", "result_id", result.ResultID, "error", err)
	}
	return succeeded, failed, moved
}

// finishExecution 收尾: 终态落库、请求状态推进、幂等标记、审计与事件
// allocated_amount 以实际成功划拨的 moved 为准，部分完成时不再沿用计划总额
func (s *AllocationService) finishExecution(ctx context.Context, result *model.AllocationResult, succeeded, failed int, moved decimal.Decimal, failureReason string, startTime time.Time) (*model.AllocationResult, error) {
	status := model.ExecutionStatusCompleted
	switch {
	case succeeded == 0:
		status = model.ExecutionStatusFailed
	case failed > 0:
		status = model.ExecutionStatusPartiallyCompleted
	}

	executedAt := time.Now().UnixMilli()
	if err := s.resultRepo.Finish(ctx, result.ResultID, status, moved, failureReason, executedAt); err != nil {
		return nil, err
	}
	result.ExecutionStatus = status
	result.AllocatedAmount = moved
	result.FailureReason = failureReason
	result.ExecutedAt = executedAt

	if err := s.requestRepo.TransitionStatus(ctx, result.RequestID, model.RequestStatusExecuting, executionRequestStatus(status)); err != nil {
		logger.Error("advance request after execution failed", "request_id", result.RequestID, "error", err)
	}
	if err := s.funds.MarkExecutionProcessed(ctx, result.DecisionID, 0); err != nil {
		logger.Error("mark execution processed failed", "decision_id", result.DecisionID, "error", err)
	}

	if err := s.audit.LogExecutionFinished(ctx, result, succeeded, failed); err != nil {
		logger.Error("audit execution finished failed", "result_id", result.ResultID, "error", err)
	}

	s.sendEvent(ctx, &AllocationEventMessage{
		EventID:   uuid.New().String(),
		EventType: EventTypeExecutionFinished,
		RequestID: result.RequestID,
		ResultID:  result.ResultID,
		OrgID:     result.OrgID,
		Amount:    result.AllocatedAmount.String(),
		Status:    string(status),
		CreatedAt: executedAt,
	})
	metrics.RecordExecution(string(status), succeeded+failed, time.Since(startTime).Seconds())

	logger.Info("allocation execution finished",
		"result_id", result.ResultID,
		"org_id", result.OrgID,
		"status", status,
		"succeeded", succeeded,
		"failed", failed,
		"allocated", result.AllocatedAmount)
	return result, nil
}

// RunBatchCycle 加载待处理请求与当前资金池并跑一轮批量分配
func (s *AllocationService) RunBatchCycle(ctx context.Context) (*BatchReport, error) {
	requests, err := s.requestRepo.ListForBatch(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	_, donorFunds, err := s.activeDonorFunds(ctx)
	if err != nil {
		return nil, err
	}
	pool := decimal.Zero
	for _, fund := range donorFunds {
		pool = pool.Add(fund.Available)
	}

	return s.RunBatchAllocation(ctx, requests, pool)
}

// RunBatchAllocation 批量分配
// 全量评分后按分数降序 (同分先提交者优先) 贪心审批，池耗尽后延期而非拒绝；
// 相同输入产出相同排序与审批集合
func (s *AllocationService) RunBatchAllocation(ctx context.Context, requests []*model.AllocationRequest, pool decimal.Decimal) (*BatchReport, error) {
	startTime := time.Now()
	report := &BatchReport{
		BatchID:       id.NextReference("BAT"),
		Decisions:     make([]*model.AllocationDecision, 0, len(requests)),
		TotalApproved: decimal.Zero,
		PoolBefore:    pool,
		PoolAfter:     pool,
		StartedAt:     startTime.UnixMilli(),
	}
	if len(requests) == 0 {
		report.FinishedAt = time.Now().UnixMilli()
		return report, nil
	}

	type scoredRequest struct {
		req         *model.AllocationRequest
		score       *scoring.CompositeScore
		eligibility *rules.EligibilityResult
	}

	scored := make([]*scoredRequest, 0, len(requests))
	for _, req := range requests {
		eligibility, err := s.CheckEligibility(ctx, req.OrgID)
		if err != nil {
			return nil, err
		}
		score, err := s.scoreOne(ctx, req)
		if err != nil {
			logger.Warn("skip unscorable request in batch", "request_id", req.RequestID, "error", err)
			continue
		}
		if err := s.requestRepo.TransitionStatus(ctx, req.RequestID, req.Status, model.RequestStatusScored); err != nil {
			logger.Warn("skip request with stale status in batch", "request_id", req.RequestID, "error", err)
			continue
		}
		scored = append(scored, &scoredRequest{req: req, score: score, eligibility: eligibility})
	}

	// 分数降序，同分先提交者优先，再以请求号定序兜底
	sort.SliceStable(scored, func(i, j int) bool {
		if !scored[i].score.Total.Equal(scored[j].score.Total) {
			return scored[i].score.Total.GreaterThan(scored[j].score.Total)
		}
		if scored[i].req.SubmittedAt != scored[j].req.SubmittedAt {
			return scored[i].req.SubmittedAt < scored[j].req.SubmittedAt
		}
		return scored[i].req.RequestID < scored[j].req.RequestID
	})

	threshold := s.cfg.GetApprovalThreshold()
	remaining := pool
	nowMillis := time.Now().UnixMilli()

	for rank, sr := range scored {
		outcome := model.DecisionApproved
		reasonCode := ""
		switch {
		case !sr.eligibility.Eligible:
			outcome = model.DecisionRejected
			reasonCode = sr.eligibility.ReasonCode
		case sr.score.Total.LessThan(threshold):
			outcome = model.DecisionRejected
			reasonCode = ReasonScoreBelowThreshold
		case sr.req.RequestedAmount.GreaterThan(remaining):
			outcome = model.DecisionDeferred
			reasonCode = ReasonPoolExhausted
		}

		decision, err := s.persistDecision(ctx, sr.req, sr.score, outcome, model.ModeStandard, threshold, reasonCode, rank+1, ActorSystem, nowMillis)
		if err != nil {
			return nil, err
		}
		if err := s.requestRepo.TransitionStatus(ctx, sr.req.RequestID, model.RequestStatusScored, outcomeRequestStatus(outcome)); err != nil {
			return nil, err
		}

		report.Decisions = append(report.Decisions, decision)
		switch outcome {
		case model.DecisionApproved:
			report.Approved++
			report.TotalApproved = report.TotalApproved.Add(sr.req.RequestedAmount)
			remaining = remaining.Sub(sr.req.RequestedAmount)
		case model.DecisionRejected:
			report.Rejected++
		case model.DecisionDeferred:
			report.Deferred++
		}
	}

	report.PoolAfter = remaining
	report.FinishedAt = time.Now().UnixMilli()

	if err := s.audit.LogBatchCompleted(ctx, report.BatchID, report.Approved, report.Rejected, report.Deferred, report.TotalApproved); err != nil {
		logger.Error("audit batch completed failed", "batch_id", report.BatchID, "error", err)
	}
	s.sendEvent(ctx, &AllocationEventMessage{
		EventID:   uuid.New().String(),
		EventType: EventTypeBatchCompleted,
		BatchID:   report.BatchID,
		Amount:    report.TotalApproved.String(),
		Status:    "completed",
		CreatedAt: report.FinishedAt,
	})
	metrics.RecordBatchRun("completed", len(report.Decisions), time.Since(startTime).Seconds())

	logger.Info("batch allocation completed",
		"batch_id", report.BatchID,
		"requests", len(report.Decisions),
		"approved", report.Approved,
		"rejected", report.Rejected,
		"deferred", report.Deferred,
		"total_approved", report.TotalApproved,
		"pool_before", report.PoolBefore,
		"pool_after", report.PoolAfter)
	return report, nil
}

// ReapStaleExecutions 回收滞留在非终态的执行
// 进程崩溃会把结果留在 pending/in_progress，未消费的预留资金随之冻结；
// 终态按已落库流水判定，有成功划拨收敛为 partially_completed，否则 failed
func (s *AllocationService) ReapStaleExecutions(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	stale, err := s.resultRepo.ListStaleInProgress(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, result := range stale {
		if err := s.funds.ReleaseExecution(ctx, result.ResultID); err != nil {
			logger.Error("release stale reservations failed", "result_id", result.ResultID, "error", err)
			continue
		}

		txns, err := s.resultRepo.ListTransactions(ctx, result.ResultID)
		if err != nil {
			logger.Error("list stale transactions failed", "result_id", result.ResultID, "error", err)
			continue
		}
		succeeded, failed := 0, 0
		moved := decimal.Zero
		for _, txn := range txns {
			if txn.Status == model.TransactionStatusSucceeded {
				succeeded++
				moved = moved.Add(txn.Amount)
			} else {
				failed++
			}
		}

		status := model.ExecutionStatusFailed
		if succeeded > 0 {
			status = model.ExecutionStatusPartiallyCompleted
		}

		if result.ExecutionStatus == model.ExecutionStatusPending {
			if err := s.resultRepo.MarkInProgress(ctx, result.ResultID); err != nil {
				logger.Error("mark stale execution in progress failed", "result_id", result.ResultID, "error", err)
				continue
			}
		}
		if err := s.resultRepo.Finish(ctx, result.ResultID, status, moved, FailureReasonTimedOut, time.Now().UnixMilli()); err != nil {
			logger.Error("finish stale execution failed", "result_id", result.ResultID, "error", err)
			continue
		}
		result.ExecutionStatus = status
		result.AllocatedAmount = moved
		result.FailureReason = FailureReasonTimedOut

		// 请求可能已被别处推进，失败只告警不回滚
		if err := s.requestRepo.TransitionStatus(ctx, result.RequestID, model.RequestStatusExecuting, executionRequestStatus(status)); err != nil {
			logger.Warn("advance request after stale reap failed", "request_id", result.RequestID, "error", err)
		}
		if err := s.audit.LogExecutionFinished(ctx, result, succeeded, failed); err != nil {
			logger.Error("audit stale reap failed", "result_id", result.ResultID, "error", err)
		}
		metrics.RecordExecution(string(status), succeeded+failed, 0)

		reaped++
		logger.Warn("stale execution reaped",
			"result_id", result.ResultID,
			"org_id", result.OrgID,
			"status", status,
			"started_at", result.StartedAt)
	}
	return reaped, nil
}

// GetRequest 查询请求
func (s *AllocationService) GetRequest(ctx context.Context, requestID string) (*model.AllocationRequest, error) {
	return s.requestRepo.GetByRequestID(ctx, requestID)
}

// GetDecision 查询决策
func (s *AllocationService) GetDecision(ctx context.Context, decisionID string) (*model.AllocationDecision, error) {
	return s.decisionRepo.GetByDecisionID(ctx, decisionID)
}

// GetResult 查询执行结果及其逐捐赠人流水
func (s *AllocationService) GetResult(ctx context.Context, resultID string) (*model.AllocationResult, []*model.DonationTransaction, error) {
	result, err := s.resultRepo.GetByResultID(ctx, resultID)
	if err != nil {
		return nil, nil, err
	}
	txns, err := s.resultRepo.ListTransactions(ctx, resultID)
	if err != nil {
		return nil, nil, err
	}
	return result, txns, nil
}

// ListRequestsByStatus 按状态分页查询请求
func (s *AllocationService) ListRequestsByStatus(ctx context.Context, status model.RequestStatus, page *repository.Pagination) ([]*model.AllocationRequest, int64, error) {
	return s.requestRepo.ListByStatus(ctx, status, page)
}

// ListDecisionsByOrg 按机构分页查询决策
func (s *AllocationService) ListDecisionsByOrg(ctx context.Context, orgID string, page *repository.Pagination) ([]*model.AllocationDecision, int64, error) {
	return s.decisionRepo.ListByOrg(ctx, orgID, page)
}

// scoreOne 构建上下文并评分
func (s *AllocationService) scoreOne(ctx context.Context, req *model.AllocationRequest) (*scoring.CompositeScore, error) {
	startTime := time.Now()

	sctx, err := s.buildScoringContext(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	score, err := s.scorer.Score(req, sctx)
	if err != nil {
		return nil, err
	}

	total, _ := score.Total.Float64()
	metrics.RecordScore(req.Category, total, time.Since(startTime).Seconds())
	for _, factor := range score.FactorBreakdown {
		metrics.RecordFactorScore(factor.FactorName, factor.Value)
	}
	return score, nil
}

// buildScoringContext 汇集评分所需的只读快照
// 任一快照缺失不阻断评分，对应因子回退默认值
func (s *AllocationService) buildScoringContext(ctx context.Context, orgID string) (*scoring.Context, error) {
	sctx := &scoring.Context{NowMillis: time.Now().UnixMilli()}

	org, err := s.orgRepo.FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org != nil {
		sctx.Financial = org.Snapshot()
	}

	perf, err := s.perfRepo.FindLatestByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	sctx.Performance = perf

	donors, donorFunds, err := s.activeDonorFunds(ctx)
	if err != nil {
		return nil, err
	}
	sctx.DonorPool = donorSnapshots(donors, donorFunds)
	return sctx, nil
}

// activeDonorFunds 活跃捐赠人及其资金池实时余额
func (s *AllocationService) activeDonorFunds(ctx context.Context) ([]*model.Donor, []*cache.RedisDonorFund, error) {
	donors, err := s.donorRepo.ListActive(ctx)
	if err != nil {
		return nil, nil, err
	}

	donorIDs := make([]string, 0, len(donors))
	for _, donor := range donors {
		donorIDs = append(donorIDs, donor.DonorID)
	}
	donorFunds, err := s.funds.GetFundsBatch(ctx, donorIDs)
	if err != nil {
		return nil, nil, err
	}
	return donors, donorFunds, nil
}

// decide 单笔提交的过线判定
func (s *AllocationService) decide(req *model.AllocationRequest, total decimal.Decimal, mode model.ProcessingMode, eligibility *rules.EligibilityResult, nowMillis int64) (model.DecisionOutcome, string, decimal.Decimal) {
	threshold := s.cfg.GetApprovalThreshold()
	if mode == model.ModeEmergency {
		threshold = s.cfg.GetEmergencyThreshold()
	}

	switch {
	case !eligibility.Eligible:
		return model.DecisionRejected, eligibility.ReasonCode, threshold
	case mode == model.ModeEmergency && !s.emergencyEligible(req, nowMillis):
		return model.DecisionRejected, ReasonEmergencyCriteriaNotMet, threshold
	case total.LessThan(threshold):
		return model.DecisionRejected, ReasonScoreBelowThreshold, threshold
	default:
		return model.DecisionApproved, "", threshold
	}
}

// emergencyEligible 紧急通道资格: 优先级 urgent/emergency 且截止在窗口内
func (s *AllocationService) emergencyEligible(req *model.AllocationRequest, nowMillis int64) bool {
	if !req.IsUrgentPriority() || !req.HasDeadline() {
		return false
	}
	windowMillis := int64(s.cfg.EmergencyWindowDays) * 24 * 60 * 60 * 1000
	return req.Deadline-nowMillis <= windowMillis
}

// persistDecision 落库决策并审计、发事件
func (s *AllocationService) persistDecision(ctx context.Context, req *model.AllocationRequest, score *scoring.CompositeScore, outcome model.DecisionOutcome, mode model.ProcessingMode, threshold decimal.Decimal, reasonCode string, rank int, actorID string, nowMillis int64) (*model.AllocationDecision, error) {
	breakdown, err := json.Marshal(score.FactorBreakdown)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "serialize factor breakdown")
	}

	reviewer := actorID
	if reviewer == "" {
		reviewer = ActorSystem
	}
	decision := &model.AllocationDecision{
		DecisionID:      id.NextReference("AD"),
		RequestID:       req.RequestID,
		OrgID:           req.OrgID,
		CompositeScore:  score.Total,
		FactorBreakdown: string(breakdown),
		Decision:        outcome,
		Mode:            mode,
		Threshold:       threshold,
		Rank:            rank,
		Reviewer:        reviewer,
		ReasonCode:      reasonCode,
		DecidedAt:       nowMillis,
	}
	if err := s.decisionRepo.Create(ctx, decision); err != nil {
		return nil, err
	}

	factors := make(map[string]float64, len(score.FactorBreakdown))
	for _, factor := range score.FactorBreakdown {
		factors[factor.FactorName] = factor.Value
	}
	if err := s.audit.LogRequestScored(ctx, req, score.Total, factors, actorID); err != nil {
		logger.Error("audit request scored failed", "request_id", req.RequestID, "error", err)
	}
	if err := s.audit.LogDecisionMade(ctx, decision, actorID); err != nil {
		logger.Error("audit decision made failed", "decision_id", decision.DecisionID, "error", err)
	}

	s.sendEvent(ctx, &AllocationEventMessage{
		EventID:    uuid.New().String(),
		EventType:  EventTypeDecisionMade,
		RequestID:  req.RequestID,
		DecisionID: decision.DecisionID,
		OrgID:      req.OrgID,
		Decision:   string(outcome),
		Mode:       string(mode),
		Score:      score.Total.String(),
		Amount:     req.RequestedAmount.String(),
		CreatedAt:  nowMillis,
	})
	metrics.RecordDecision(string(outcome), string(mode))
	return decision, nil
}

// sendEvent 发送分配事件
func (s *AllocationService) sendEvent(ctx context.Context, event *AllocationEventMessage) {
	if s.onEvent != nil {
		if err := s.onEvent(ctx, event); err != nil {
			logger.Error("failed to send allocation event",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err)
		}
	}
}

// outcomeRequestStatus 决策结论对应的请求状态
func outcomeRequestStatus(outcome model.DecisionOutcome) model.RequestStatus {
	switch outcome {
	case model.DecisionApproved:
		return model.RequestStatusApproved
	case model.DecisionDeferred:
		return model.RequestStatusDeferred
	default:
		return model.RequestStatusRejected
	}
}

// executionRequestStatus 执行终态对应的请求状态
func executionRequestStatus(status model.ExecutionStatus) model.RequestStatus {
	switch status {
	case model.ExecutionStatusCompleted:
		return model.RequestStatusCompleted
	case model.ExecutionStatusPartiallyCompleted:
		return model.RequestStatusPartiallyCompleted
	default:
		return model.RequestStatusFailed
	}
}

// buildDonorPlan 构建比例分担的捐赠人执行计划
// 按余额降序 (同额按捐赠人号) 定序；池不足以覆盖请求额时全额抽干，
// 否则按余额占比取整两位小数，差额由队首捐赠人在余额上限内吸收
func buildDonorPlan(requested decimal.Decimal, donorFunds []*cache.RedisDonorFund) ([]DonorPlanEntry, decimal.Decimal) {
	available := make([]*cache.RedisDonorFund, 0, len(donorFunds))
	totalPool := decimal.Zero
	for _, fund := range donorFunds {
		if fund.Available.IsPositive() {
			available = append(available, fund)
			totalPool = totalPool.Add(fund.Available)
		}
	}
	if len(available) == 0 || !requested.IsPositive() {
		return nil, decimal.Zero
	}

	sort.Slice(available, func(i, j int) bool {
		if !available[i].Available.Equal(available[j].Available) {
			return available[i].Available.GreaterThan(available[j].Available)
		}
		return available[i].DonorID < available[j].DonorID
	})

	// 池不足: 每人出全部余额
	if totalPool.LessThanOrEqual(requested) {
		plan := make([]DonorPlanEntry, 0, len(available))
		for _, fund := range available {
			plan = append(plan, DonorPlanEntry{DonorID: fund.DonorID, Amount: fund.Available})
		}
		return plan, totalPool
	}

	plan := make([]DonorPlanEntry, 0, len(available))
	allocated := decimal.Zero
	for _, fund := range available {
		share := requested.Mul(fund.Available).Div(totalPool).RoundDown(2)
		plan = append(plan, DonorPlanEntry{DonorID: fund.DonorID, Amount: share})
		allocated = allocated.Add(share)
	}

	// 取整差额从队首起在各自余额上限内补齐
	remainder := requested.Sub(allocated)
	for i := range plan {
		if !remainder.IsPositive() {
			break
		}
		headroom := available[i].Available.Sub(plan[i].Amount)
		if !headroom.IsPositive() {
			continue
		}
		bump := decimal.Min(remainder, headroom)
		plan[i].Amount = plan[i].Amount.Add(bump)
		remainder = remainder.Sub(bump)
	}

	// 零额份额剔除 (极小余额占比取整后可能为零)
	compact := plan[:0]
	for _, entry := range plan {
		if entry.Amount.IsPositive() {
			compact = append(compact, entry)
		}
	}
	return compact, requested.Sub(remainder)
}

// donorSnapshots 组装评分用的捐赠人快照，余额以资金池实时值为准
func donorSnapshots(donors []*model.Donor, donorFunds []*cache.RedisDonorFund) []scoring.DonorSnapshot {
	fundsByID := make(map[string]*cache.RedisDonorFund, len(donorFunds))
	for _, fund := range donorFunds {
		fundsByID[fund.DonorID] = fund
	}

	snapshots := make([]scoring.DonorSnapshot, 0, len(donors))
	for _, donor := range donors {
		fund, ok := fundsByID[donor.DonorID]
		if !ok || !fund.Available.IsPositive() {
			continue
		}
		prefs, err := donor.GetPreferences()
		if err != nil {
			logger.Warn("skip malformed donor preferences", "donor_id", donor.DonorID, "error", err)
			prefs = nil
		}
		snapshots = append(snapshots, scoring.DonorSnapshot{
			DonorID:          donor.DonorID,
			AvailableBalance: fund.Available,
			Preferences:      prefs,
		})
	}
	return snapshots
}
