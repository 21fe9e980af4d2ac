package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func testResult(resultID, decisionID string) *model.AllocationResult {
	return &model.AllocationResult{
		ResultID:        resultID,
		DecisionID:      decisionID,
		RequestID:       "AR-001",
		OrgID:           "ORG-001",
		AllocatedAmount: decimal.NewFromInt(15000),
	}
}

func TestAllocationResultRepository_CreateDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	result := testResult("EX-001", "AD-001")
	require.NoError(t, repo.Create(ctx, result))

	got, err := repo.GetByResultID(ctx, "EX-001")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusPending, got.ExecutionStatus)
	assert.Greater(t, got.StartedAt, int64(0))
	assert.Zero(t, got.ExecutedAt)
}

func TestAllocationResultRepository_CreateIdempotentPerDecision(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testResult("EX-001", "AD-001")))

	// 同一决策的重复执行被唯一约束拦下
	err := repo.Create(ctx, testResult("EX-002", "AD-001"))
	assert.ErrorIs(t, err, ErrResultDuplicate)

	existing, err := repo.FindByDecisionID(ctx, "AD-001")
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "EX-001", existing.ResultID)
}

func TestAllocationResultRepository_MarkInProgressAndFinish(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testResult("EX-001", "AD-001")))
	require.NoError(t, repo.MarkInProgress(ctx, "EX-001"))

	got, err := repo.GetByResultID(ctx, "EX-001")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusInProgress, got.ExecutionStatus)

	err = repo.Finish(ctx, "EX-001", model.ExecutionStatusCompleted, decimal.NewFromInt(12000), "", 1770000000000)
	require.NoError(t, err)

	got, err = repo.GetByResultID(ctx, "EX-001")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusCompleted, got.ExecutionStatus)
	// 计划金额 15000 被实际划拨金额覆写
	assert.Equal(t, "12000", got.AllocatedAmount.String())
	assert.Equal(t, int64(1770000000000), got.ExecutedAt)
	assert.True(t, got.IsTerminal())
}

func TestAllocationResultRepository_FinishRequiresTerminalStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testResult("EX-001", "AD-001")))
	require.NoError(t, repo.MarkInProgress(ctx, "EX-001"))

	err := repo.Finish(ctx, "EX-001", model.ExecutionStatusInProgress, decimal.Zero, "", 0)
	assert.Error(t, err)
}

func TestAllocationResultRepository_FinishGuardsCurrentStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testResult("EX-001", "AD-001")))

	// 未进入 in_progress 不允许直接收敛
	err := repo.Finish(ctx, "EX-001", model.ExecutionStatusFailed, decimal.Zero, "pool_exhausted", 0)
	assert.ErrorIs(t, err, ErrResultNotFound)

	require.NoError(t, repo.MarkInProgress(ctx, "EX-001"))
	require.NoError(t, repo.Finish(ctx, "EX-001", model.ExecutionStatusFailed, decimal.Zero, "pool_exhausted", 0))

	// 终态不可再次改写
	err = repo.Finish(ctx, "EX-001", model.ExecutionStatusCompleted, decimal.NewFromInt(15000), "", 0)
	assert.ErrorIs(t, err, ErrResultNotFound)

	got, err := repo.GetByResultID(ctx, "EX-001")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusFailed, got.ExecutionStatus)
	assert.Equal(t, "pool_exhausted", got.FailureReason)
}

func TestAllocationResultRepository_ListStaleInProgress(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	stalePending := testResult("EX-001", "AD-001")
	stalePending.StartedAt = 1000
	require.NoError(t, repo.Create(ctx, stalePending))

	staleRunning := testResult("EX-002", "AD-002")
	staleRunning.StartedAt = 1200
	require.NoError(t, repo.Create(ctx, staleRunning))
	require.NoError(t, repo.MarkInProgress(ctx, "EX-002"))

	finished := testResult("EX-003", "AD-003")
	finished.StartedAt = 800
	require.NoError(t, repo.Create(ctx, finished))
	require.NoError(t, repo.MarkInProgress(ctx, "EX-003"))
	require.NoError(t, repo.Finish(ctx, "EX-003", model.ExecutionStatusCompleted, decimal.NewFromInt(15000), "", 900))

	fresh := testResult("EX-004", "AD-004")
	fresh.StartedAt = 5000
	require.NoError(t, repo.Create(ctx, fresh))

	stale, err := repo.ListStaleInProgress(ctx, 2000, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "EX-001", stale[0].ResultID)
	assert.Equal(t, "EX-002", stale[1].ResultID)
}

func TestAllocationResultRepository_Transactions(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testResult("EX-001", "AD-001")))

	txns := []*model.DonationTransaction{
		{
			ResultID:      "EX-001",
			DonorID:       "DNR-002",
			OrgID:         "ORG-001",
			Amount:        decimal.NewFromInt(5000),
			Status:        model.TransactionStatusSucceeded,
			TransactionID: "TXN-002",
			PlanOrder:     1,
		},
		{
			ResultID:      "EX-001",
			DonorID:       "DNR-001",
			OrgID:         "ORG-001",
			Amount:        decimal.NewFromInt(10000),
			Status:        model.TransactionStatusSucceeded,
			TransactionID: "TXN-001",
			PlanOrder:     0,
		},
		{
			ResultID:    "EX-001",
			DonorID:     "DNR-003",
			OrgID:       "ORG-001",
			Amount:      decimal.NewFromInt(2000),
			Status:      model.TransactionStatusFailed,
			FailureCode: "insufficient_balance",
			PlanOrder:   2,
		},
	}
	require.NoError(t, repo.SaveTransactions(ctx, txns))

	got, err := repo.ListTransactions(ctx, "EX-001")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "DNR-001", got[0].DonorID, "按计划顺序返回")
	assert.Equal(t, "DNR-002", got[1].DonorID)
	assert.Equal(t, "DNR-003", got[2].DonorID)
}

func TestAllocationResultRepository_FindByRequestID(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationResultRepository(db)
	ctx := context.Background()

	missing, err := repo.FindByRequestID(ctx, "AR-MISSING")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first := testResult("EX-001", "AD-001")
	first.StartedAt = 1000
	require.NoError(t, repo.Create(ctx, first))

	second := testResult("EX-002", "AD-002")
	second.StartedAt = 2000
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.FindByRequestID(ctx, "AR-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "EX-002", got.ResultID, "返回最近一次执行")
}
