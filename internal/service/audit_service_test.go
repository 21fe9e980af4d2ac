package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/ledger"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
)

func newAuditService(t *testing.T) (*AuditService, *repository.AuditEntryRepository) {
	t.Helper()
	repo := repository.NewAuditEntryRepository(newTestDB(t))
	return NewAuditService(repo), repo
}

func auditSpec(entityID string) ledger.EntrySpec {
	return ledger.EntrySpec{
		ActionType: model.AuditActionDecisionMade,
		EntityType: model.AuditEntityDecision,
		EntityID:   entityID,
		ActorID:    ActorSystem,
		ActionData: map[string]interface{}{"decision": "approved"},
	}
}

func TestAuditService_AppendBuildsChain(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	first, err := svc.Append(ctx, auditSpec("AD-001"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SequenceNumber)
	assert.Empty(t, first.PreviousEntryHash)
	assert.NotEmpty(t, first.IntegrityHash)

	second, err := svc.Append(ctx, auditSpec("AD-002"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SequenceNumber)
	assert.Equal(t, first.IntegrityHash, second.PreviousEntryHash)

	third, err := svc.Append(ctx, auditSpec("AD-003"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.SequenceNumber)
	assert.Equal(t, second.IntegrityHash, third.PreviousEntryHash)
}

func TestAuditService_AppendRejectsIncompleteSpec(t *testing.T) {
	svc, _ := newAuditService(t)

	_, err := svc.Append(context.Background(), ledger.EntrySpec{
		ActionType: model.AuditActionDecisionMade,
	})
	require.Error(t, err)
}

func TestAuditService_LogHelpersDefaultActor(t *testing.T) {
	svc, repo := newAuditService(t)
	ctx := context.Background()

	req := &model.AllocationRequest{
		RequestID:       "AR-001",
		OrgID:           "ORG-001",
		RequestedAmount: decimal.NewFromInt(5000),
	}
	require.NoError(t, svc.LogRequestScored(ctx, req, decimal.NewFromFloat(72.5), map[string]float64{"urgency": 80}, ""))

	entry, err := repo.GetBySequence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ActorSystem, entry.ActorID)
	assert.Equal(t, model.AuditActionRequestScored, entry.ActionType)
	assert.Equal(t, "AR-001", entry.EntityID)
	assert.Contains(t, entry.ActionData, `"composite_score":"72.5"`)
}

func TestAuditService_TypedHelpersCoverAllActions(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	req := &model.AllocationRequest{RequestID: "AR-010", OrgID: "ORG-010", RequestedAmount: decimal.NewFromInt(1200)}
	decision := &model.AllocationDecision{
		DecisionID:     "AD-010",
		RequestID:      "AR-010",
		OrgID:          "ORG-010",
		CompositeScore: decimal.NewFromFloat(81.2),
		Decision:       model.DecisionApproved,
		Mode:           model.ModeStandard,
		Threshold:      decimal.NewFromInt(70),
	}
	result := &model.AllocationResult{
		ResultID:        "RES-010",
		DecisionID:      "AD-010",
		RequestID:       "AR-010",
		OrgID:           "ORG-010",
		AllocatedAmount: decimal.NewFromInt(1200),
		ExecutionStatus: model.ExecutionStatusCompleted,
	}
	txn := &model.DonationTransaction{
		TransactionID: "TXN-010",
		DonorID:       "DNR-010",
		OrgID:         "ORG-010",
		Amount:        decimal.NewFromInt(600),
	}
	assessment := &model.ComplianceAssessment{
		AssessmentID: "CA-010",
		OrgID:        "ORG-010",
		OverallScore: decimal.NewFromFloat(88.4),
		RiskLevel:    model.RiskLevelLow,
	}
	alert := &model.ComplianceAlert{
		AlertID:   "AL-010",
		OrgID:     "ORG-010",
		Type:      model.AlertTypeReviewDue,
		RiskLevel: model.RiskLevelMedium,
		Message:   "review overdue",
	}

	require.NoError(t, svc.LogRequestScored(ctx, req, decimal.NewFromFloat(81.2), nil, "admin-1"))
	require.NoError(t, svc.LogDecisionMade(ctx, decision, "admin-1"))
	require.NoError(t, svc.LogExecutionStarted(ctx, result, 2, "admin-1"))
	require.NoError(t, svc.LogDonationExecuted(ctx, result, txn))
	require.NoError(t, svc.LogDonationFailed(ctx, result, txn))
	require.NoError(t, svc.LogExecutionFinished(ctx, result, 1, 1))
	require.NoError(t, svc.LogComplianceAssessed(ctx, assessment, ""))
	require.NoError(t, svc.LogAlertRaised(ctx, alert))
	require.NoError(t, svc.LogBatchCompleted(ctx, "BATCH-010", 3, 1, 2, decimal.NewFromInt(9000)))

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 9)
	for action, count := range stats {
		assert.Equal(t, int64(1), count, "action %s", action)
	}

	report, err := svc.VerifyChain(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVerified, report.Status)
	assert.Equal(t, 9, report.EntriesChecked)
}

func TestAuditService_VerifyChainDetectsTamper(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewAuditEntryRepository(db)
	svc := NewAuditService(repo)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.Append(ctx, auditSpec(fmt.Sprintf("AD-%03d", i)))
		require.NoError(t, err)
	}

	// 直接改库模拟篡改，哈希与存量不再一致
	err := db.Exec(`UPDATE almoner_allocation_audit_entries SET action_data = '{"decision":"rejected"}' WHERE sequence_number = 3`).Error
	require.NoError(t, err)

	report, err := svc.VerifyChain(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompromised, report.Status)
	assert.Equal(t, []int64{3}, report.IntegrityViolations)
	assert.True(t, report.HasIssues())
}

func TestAuditService_VerifyChainDetectsGap(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewAuditEntryRepository(db)
	svc := NewAuditService(repo)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.Append(ctx, auditSpec(fmt.Sprintf("AD-%03d", i)))
		require.NoError(t, err)
	}

	err := db.Exec(`DELETE FROM almoner_allocation_audit_entries WHERE sequence_number = 3`).Error
	require.NoError(t, err)

	report, err := svc.VerifyChain(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusWarning, report.Status)
	assert.Contains(t, report.ChainBreaks, int64(4))
}

// 删掉创世条目后全链走查仍须告警，边界删除不能静默通过
func TestAuditService_VerifyChainDetectsDeletedGenesis(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewAuditEntryRepository(db)
	svc := NewAuditService(repo)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.Append(ctx, auditSpec(fmt.Sprintf("AD-%03d", i)))
		require.NoError(t, err)
	}

	err := db.Exec(`DELETE FROM almoner_allocation_audit_entries WHERE sequence_number = 1`).Error
	require.NoError(t, err)

	// endSeq 0 解析到链尾, 默认全链路径
	report, err := svc.VerifyChain(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusWarning, report.Status)
	assert.Equal(t, []int64{1}, report.ChainBreaks)
	assert.True(t, report.HasIssues())
}

func TestAuditService_VerifyChainEmptyWindow(t *testing.T) {
	svc, _ := newAuditService(t)

	_, err := svc.VerifyChain(context.Background(), 5, 2)
	require.Error(t, err)
}

func TestAuditService_ConcurrentAppendStaysSequential(t *testing.T) {
	svc, repo := newAuditService(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := svc.Append(ctx, auditSpec(fmt.Sprintf("AD-%d-%d", w, i)))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	maxSeq, err := repo.MaxSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), maxSeq)

	report, err := svc.VerifyChain(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVerified, report.Status)
	assert.Equal(t, writers*perWriter, report.EntriesChecked)
}

func TestAuditService_ListByEntity(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := svc.Append(ctx, auditSpec("AD-SAME"))
		require.NoError(t, err)
	}
	_, err := svc.Append(ctx, auditSpec("AD-OTHER"))
	require.NoError(t, err)

	entries, total, err := svc.ListByEntity(ctx, model.AuditEntityDecision, "AD-SAME", repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, entries, 3)
}
