package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func testRequest(requestID, orgID string, submittedAt int64) *model.AllocationRequest {
	return &model.AllocationRequest{
		RequestID:             requestID,
		OrgID:                 orgID,
		RequestedAmount:       decimal.NewFromInt(15000),
		Category:              model.CategoryHealthcare,
		ProjectType:           model.ProjectTypeStandard,
		PriorityLevel:         model.PriorityHigh,
		ExpectedBeneficiaries: 120,
		DurationMonths:        6,
		Location:              "Roma",
		SubmittedAt:           submittedAt,
	}
}

func TestAllocationRequestRepository_CreateDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	req := testRequest("AR-001", "ORG-001", 0)
	require.NoError(t, repo.Create(ctx, req))

	got, err := repo.GetByRequestID(ctx, "AR-001")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusSubmitted, got.Status)
	assert.Greater(t, got.SubmittedAt, int64(0))
	assert.True(t, got.RequestedAmount.Equal(decimal.NewFromInt(15000)))
}

func TestAllocationRequestRepository_CreateDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 1000)))

	err := repo.Create(ctx, testRequest("AR-001", "ORG-002", 2000))
	assert.ErrorIs(t, err, ErrRequestDuplicate)
}

func TestAllocationRequestRepository_TransitionStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 1000)))

	err := repo.TransitionStatus(ctx, "AR-001", model.RequestStatusSubmitted, model.RequestStatusScored)
	require.NoError(t, err)

	got, err := repo.GetByRequestID(ctx, "AR-001")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusScored, got.Status)
}

func TestAllocationRequestRepository_TransitionStatusInvalidChange(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 1000)))

	// submitted 不能直接跳到 completed
	err := repo.TransitionStatus(ctx, "AR-001", model.RequestStatusSubmitted, model.RequestStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidStateChange)

	got, err := repo.GetByRequestID(ctx, "AR-001")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusSubmitted, got.Status)
}

func TestAllocationRequestRepository_TransitionStatusStale(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 1000)))
	require.NoError(t, repo.TransitionStatus(ctx, "AR-001", model.RequestStatusSubmitted, model.RequestStatusScored))

	// 前置状态已不是 submitted，守卫更新不命中任何行
	err := repo.TransitionStatus(ctx, "AR-001", model.RequestStatusSubmitted, model.RequestStatusScored)
	assert.ErrorIs(t, err, ErrRequestStatusStale)
}

func TestAllocationRequestRepository_TransitionStatusMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	err := repo.TransitionStatus(ctx, "AR-MISSING", model.RequestStatusSubmitted, model.RequestStatusScored)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestAllocationRequestRepository_ListForBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	deferred := testRequest("AR-DEF", "ORG-001", 1000)
	deferred.Status = model.RequestStatusDeferred
	require.NoError(t, repo.Create(ctx, deferred))

	require.NoError(t, repo.Create(ctx, testRequest("AR-002", "ORG-002", 2000)))
	require.NoError(t, repo.Create(ctx, testRequest("AR-003", "ORG-003", 3000)))

	approved := testRequest("AR-APPROVED", "ORG-004", 500)
	approved.Status = model.RequestStatusApproved
	require.NoError(t, repo.Create(ctx, approved))

	done := testRequest("AR-DONE", "ORG-005", 100)
	done.Status = model.RequestStatusCompleted
	require.NoError(t, repo.Create(ctx, done))

	reqs, err := repo.ListForBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 3, "只取 submitted 与 deferred")
	assert.Equal(t, "AR-DEF", reqs[0].RequestID)
	assert.Equal(t, "AR-002", reqs[1].RequestID)
	assert.Equal(t, "AR-003", reqs[2].RequestID)

	limited, err := repo.ListForBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "AR-DEF", limited[0].RequestID)
}

func TestAllocationRequestRepository_ListByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 3000)))
	require.NoError(t, repo.Create(ctx, testRequest("AR-002", "ORG-001", 1000)))
	require.NoError(t, repo.Create(ctx, testRequest("AR-003", "ORG-002", 2000)))

	reqs, total, err := repo.ListByStatus(ctx, model.RequestStatusSubmitted, NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, reqs, 2)
	assert.Equal(t, "AR-002", reqs[0].RequestID, "先提交的排前面")
	assert.Equal(t, "AR-003", reqs[1].RequestID)
}

func TestAllocationRequestRepository_CountRecentByOrg(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 1000)))
	require.NoError(t, repo.Create(ctx, testRequest("AR-002", "ORG-001", 2000)))
	require.NoError(t, repo.Create(ctx, testRequest("AR-003", "ORG-001", 3000)))
	require.NoError(t, repo.Create(ctx, testRequest("AR-004", "ORG-002", 3000)))

	count, err := repo.CountRecentByOrg(ctx, "ORG-001", 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAllocationRequestRepository_CountByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRequestRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testRequest("AR-001", "ORG-001", 1000)))

	rejected := testRequest("AR-002", "ORG-002", 2000)
	rejected.Status = model.RequestStatusRejected
	require.NoError(t, repo.Create(ctx, rejected))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[string(model.RequestStatusSubmitted)])
	assert.Equal(t, int64(1), counts[string(model.RequestStatusRejected)])
}
