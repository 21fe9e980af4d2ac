package service

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/ledger"
	"github.com/almoner-platform/almoner-allocation/internal/metrics"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

const (
	// ActorSystem 自动流程的默认操作者标识
	ActorSystem = "system:allocation"

	// appendMaxRetries 序号冲突重试上限
	// 单进程下互斥锁已保证串行，冲突只会来自多实例部署时的唯一索引兜底
	appendMaxRetries = 3
)

// AuditService 审计链服务
// 条目按序号严格连续且哈希前后勾连，追加必须串行化；
// 进程内用互斥锁保证单写者，跨进程由序号唯一索引兜底并重试
type AuditService struct {
	mu   sync.Mutex
	repo *repository.AuditEntryRepository
}

// NewAuditService 创建审计链服务
func NewAuditService(repo *repository.AuditEntryRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Append 在链尾追加一条审计记录
func (s *AuditService) Append(ctx context.Context, spec ledger.EntrySpec) (*model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < appendMaxRetries; attempt++ {
		tail, err := s.repo.FindTail(ctx)
		if err != nil {
			return nil, errors.WrapWithCause(errors.ErrAuditAppend, err, "read chain tail")
		}

		entry, err := ledger.BuildEntry(tail, spec, 0)
		if err != nil {
			return nil, err
		}

		if err := s.repo.Create(ctx, entry); err != nil {
			if stderrors.Is(err, repository.ErrAuditSequenceConflict) {
				// 其他写者抢到了该序号，重读链尾再试
				lastErr = err
				continue
			}
			return nil, errors.WrapWithCause(errors.ErrAuditAppend, err, "persist entry")
		}

		metrics.RecordAuditEntry(string(entry.ActionType), entry.SequenceNumber)
		return entry, nil
	}

	return nil, errors.WrapWithCause(errors.ErrAuditAppend, lastErr, "sequence contention after %d attempts", appendMaxRetries)
}

// VerifyChain 重放校验一段审计链
// endSeq 为 0 表示校验到当前链尾；先定格终点再读取，校验中追加的新条目不进入本次窗口
func (s *AuditService) VerifyChain(ctx context.Context, startSeq, endSeq int64) (*ledger.IntegrityReport, error) {
	if startSeq <= 0 {
		startSeq = 1
	}
	if endSeq == 0 {
		max, err := s.repo.MaxSequence(ctx)
		if err != nil {
			return nil, errors.WrapWithCause(errors.ErrChainNotVerified, err, "resolve chain tail")
		}
		endSeq = max
	}
	if endSeq < startSeq {
		return nil, errors.ErrInvalidRequest.WithMessage("verification window is empty")
	}

	entries, err := s.repo.ListRange(ctx, startSeq, endSeq)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrChainNotVerified, err, "load entries %d-%d", startSeq, endSeq)
	}

	report := ledger.VerifyEntries(entries, startSeq, endSeq)
	metrics.RecordChainVerification(string(report.Status), !report.HasIssues())

	if report.HasIssues() {
		logger.Error("audit chain verification found issues",
			"status", report.Status,
			"start_sequence", startSeq,
			"end_sequence", endSeq,
			"integrity_violations", len(report.IntegrityViolations),
			"chain_breaks", len(report.ChainBreaks))
	}
	return report, nil
}

// GetEntry 按序号查询单条记录
func (s *AuditService) GetEntry(ctx context.Context, sequenceNumber int64) (*model.AuditEntry, error) {
	return s.repo.GetBySequence(ctx, sequenceNumber)
}

// ListByEntity 查询某实体的全部审计记录
func (s *AuditService) ListByEntity(ctx context.Context, entityType, entityID string, page *repository.Pagination) ([]*model.AuditEntry, int64, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID, page)
}

// ListByAction 按动作类型查询审计记录
func (s *AuditService) ListByAction(ctx context.Context, actionType model.AuditActionType, page *repository.Pagination) ([]*model.AuditEntry, int64, error) {
	return s.repo.ListByAction(ctx, actionType, page)
}

// GetStats 统计各动作类型的条目数
func (s *AuditService) GetStats(ctx context.Context) (map[model.AuditActionType]int64, error) {
	return s.repo.CountByAction(ctx)
}

// LogRequestScored 记录申请完成评分
func (s *AuditService) LogRequestScored(ctx context.Context, req *model.AllocationRequest, composite decimal.Decimal, factors map[string]float64, actorID string) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionRequestScored,
		EntityType: model.AuditEntityRequest,
		EntityID:   req.RequestID,
		ActorID:    actorID,
		ActionData: map[string]interface{}{
			"org_id":           req.OrgID,
			"requested_amount": req.RequestedAmount.String(),
			"composite_score":  composite.String(),
			"factors":          factors,
		},
	})
}

// LogDecisionMade 记录分配决策
func (s *AuditService) LogDecisionMade(ctx context.Context, decision *model.AllocationDecision, actorID string) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionDecisionMade,
		EntityType: model.AuditEntityDecision,
		EntityID:   decision.DecisionID,
		ActorID:    actorID,
		ActionData: map[string]interface{}{
			"request_id":      decision.RequestID,
			"org_id":          decision.OrgID,
			"decision":        string(decision.Decision),
			"mode":            string(decision.Mode),
			"composite_score": decision.CompositeScore.String(),
			"threshold":       decision.Threshold.String(),
			"reason_code":     decision.ReasonCode,
		},
	})
}

// LogExecutionStarted 记录执行开始
func (s *AuditService) LogExecutionStarted(ctx context.Context, result *model.AllocationResult, planSize int, actorID string) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionExecutionStarted,
		EntityType: model.AuditEntityResult,
		EntityID:   result.ResultID,
		ActorID:    actorID,
		ActionData: map[string]interface{}{
			"decision_id":      result.DecisionID,
			"request_id":       result.RequestID,
			"org_id":           result.OrgID,
			"allocated_amount": result.AllocatedAmount.String(),
			"plan_size":        planSize,
		},
	})
}

// LogDonationExecuted 记录单笔捐款划拨成功
func (s *AuditService) LogDonationExecuted(ctx context.Context, result *model.AllocationResult, txn *model.DonationTransaction) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionDonationExecuted,
		EntityType: model.AuditEntityResult,
		EntityID:   result.ResultID,
		ActorID:    ActorSystem,
		ActionData: map[string]interface{}{
			"transaction_id": txn.TransactionID,
			"donor_id":       txn.DonorID,
			"org_id":         txn.OrgID,
			"amount":         txn.Amount.String(),
		},
	})
}

// LogDonationFailed 记录单笔捐款划拨失败
func (s *AuditService) LogDonationFailed(ctx context.Context, result *model.AllocationResult, txn *model.DonationTransaction) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionDonationFailed,
		EntityType: model.AuditEntityResult,
		EntityID:   result.ResultID,
		ActorID:    ActorSystem,
		ActionData: map[string]interface{}{
			"donor_id":     txn.DonorID,
			"org_id":       txn.OrgID,
			"amount":       txn.Amount.String(),
			"failure_code": txn.FailureCode,
		},
	})
}

// LogExecutionFinished 记录执行收尾
func (s *AuditService) LogExecutionFinished(ctx context.Context, result *model.AllocationResult, succeeded, failed int) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionExecutionFinished,
		EntityType: model.AuditEntityResult,
		EntityID:   result.ResultID,
		ActorID:    ActorSystem,
		ActionData: map[string]interface{}{
			"org_id":           result.OrgID,
			"execution_status": string(result.ExecutionStatus),
			"succeeded":        succeeded,
			"failed":           failed,
			"failure_reason":   result.FailureReason,
		},
	})
}

// LogComplianceAssessed 记录合规评估
func (s *AuditService) LogComplianceAssessed(ctx context.Context, assessment *model.ComplianceAssessment, actorID string) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionComplianceAssessed,
		EntityType: model.AuditEntityAssessment,
		EntityID:   assessment.AssessmentID,
		ActorID:    actorID,
		ActionData: map[string]interface{}{
			"org_id":          assessment.OrgID,
			"overall_score":   assessment.OverallScore.String(),
			"risk_level":      string(assessment.RiskLevel),
			"next_review_due": assessment.NextReviewDue,
		},
	})
}

// LogAlertRaised 记录合规告警触发
func (s *AuditService) LogAlertRaised(ctx context.Context, alert *model.ComplianceAlert) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionAlertRaised,
		EntityType: model.AuditEntityAlert,
		EntityID:   alert.AlertID,
		ActorID:    ActorSystem,
		ActionData: map[string]interface{}{
			"org_id":     alert.OrgID,
			"type":       string(alert.Type),
			"risk_level": string(alert.RiskLevel),
			"message":    alert.Message,
		},
	})
}

// LogBatchCompleted 记录批量分配收官
func (s *AuditService) LogBatchCompleted(ctx context.Context, batchID string, approved, rejected, deferred int, totalApproved decimal.Decimal) error {
	return s.log(ctx, ledger.EntrySpec{
		ActionType: model.AuditActionBatchCompleted,
		EntityType: model.AuditEntityBatch,
		EntityID:   batchID,
		ActorID:    ActorSystem,
		ActionData: map[string]interface{}{
			"approved":       approved,
			"rejected":       rejected,
			"deferred":       deferred,
			"total_approved": totalApproved.String(),
		},
	})
}

func (s *AuditService) log(ctx context.Context, spec ledger.EntrySpec) error {
	if spec.ActorID == "" {
		spec.ActorID = ActorSystem
	}
	_, err := s.Append(ctx, spec)
	if err != nil {
		logger.Error("append audit entry failed",
			"action_type", spec.ActionType,
			"entity_type", spec.EntityType,
			"entity_id", spec.EntityID,
			"error", err)
	}
	return err
}
