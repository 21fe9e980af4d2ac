package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func testOrganization(orgID string) *model.Organization {
	return &model.Organization{
		OrgID:            orgID,
		Name:             "Mensa di Comunità " + orgID,
		Category:         model.CategoryCommunity,
		Location:         "Milano",
		Status:           model.OrganizationStatusActive,
		ComplianceStatus: model.OrgComplianceStatusCompliant,
		BankVerified:     true,
		AvailableFunds:   decimal.NewFromInt(50000),
		MonthlyExpenses:  decimal.NewFromInt(8000),
		PendingIncome:    decimal.NewFromInt(12000),
	}
}

func TestOrganizationRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	org := testOrganization("ORG-001")
	require.NoError(t, repo.Create(ctx, org))

	got, err := repo.GetByOrgID(ctx, "ORG-001")
	require.NoError(t, err)
	assert.Equal(t, org.Name, got.Name)
	assert.Equal(t, model.OrganizationStatusActive, got.Status)
	assert.True(t, got.AvailableFunds.Equal(decimal.NewFromInt(50000)))
	assert.True(t, got.BankVerified)
	assert.Greater(t, got.CreatedAt, int64(0))
}

func TestOrganizationRepository_CreateDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testOrganization("ORG-001")))

	err := repo.Create(ctx, testOrganization("ORG-001"))
	assert.ErrorIs(t, err, ErrOrganizationDuplicate)
}

func TestOrganizationRepository_GetMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	_, err := repo.GetByOrgID(ctx, "ORG-MISSING")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)

	org, err := repo.FindByOrgID(ctx, "ORG-MISSING")
	assert.NoError(t, err)
	assert.Nil(t, org)
}

func TestOrganizationRepository_ListActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testOrganization("ORG-002")))
	require.NoError(t, repo.Create(ctx, testOrganization("ORG-001")))

	suspended := testOrganization("ORG-003")
	suspended.Status = model.OrganizationStatusSuspended
	require.NoError(t, repo.Create(ctx, suspended))

	orgs, err := repo.ListActive(ctx, 0)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "ORG-001", orgs[0].OrgID)
	assert.Equal(t, "ORG-002", orgs[1].OrgID)

	limited, err := repo.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "ORG-001", limited[0].OrgID)
}

func TestOrganizationRepository_CreditFunds(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	org := testOrganization("ORG-001")
	org.AvailableFunds = decimal.RequireFromString("100.5")
	require.NoError(t, repo.Create(ctx, org))

	require.NoError(t, repo.CreditFunds(ctx, "ORG-001", decimal.RequireFromString("49.5")))

	got, err := repo.GetByOrgID(ctx, "ORG-001")
	require.NoError(t, err)
	assert.True(t, got.AvailableFunds.Equal(decimal.NewFromInt(150)),
		"入账后余额应为 150，实际 %s", got.AvailableFunds)
}

func TestOrganizationRepository_CreditFundsMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	err := repo.CreditFunds(ctx, "ORG-MISSING", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestOrganizationRepository_UpdateFinancials(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testOrganization("ORG-001")))

	err := repo.UpdateFinancials(ctx, "ORG-001",
		decimal.NewFromInt(20000), decimal.NewFromInt(9000), decimal.NewFromInt(500))
	require.NoError(t, err)

	got, err := repo.GetByOrgID(ctx, "ORG-001")
	require.NoError(t, err)
	assert.True(t, got.AvailableFunds.Equal(decimal.NewFromInt(20000)))
	assert.True(t, got.MonthlyExpenses.Equal(decimal.NewFromInt(9000)))
	assert.True(t, got.PendingIncome.Equal(decimal.NewFromInt(500)))
}

func TestOrganizationRepository_UpdateComplianceStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testOrganization("ORG-001")))

	require.NoError(t, repo.UpdateComplianceStatus(ctx, "ORG-001", model.OrgComplianceStatusSuspended))

	got, err := repo.GetByOrgID(ctx, "ORG-001")
	require.NoError(t, err)
	assert.Equal(t, model.OrgComplianceStatusSuspended, got.ComplianceStatus)
	assert.True(t, got.IsComplianceSuspended())

	err = repo.UpdateComplianceStatus(ctx, "ORG-MISSING", model.OrgComplianceStatusCompliant)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestOrganizationRepository_SetBankVerified(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	org := testOrganization("ORG-001")
	org.BankVerified = false
	require.NoError(t, repo.Create(ctx, org))

	require.NoError(t, repo.SetBankVerified(ctx, "ORG-001", true))

	got, err := repo.GetByOrgID(ctx, "ORG-001")
	require.NoError(t, err)
	assert.True(t, got.BankVerified)
}

func TestOrganizationRepository_CountByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testOrganization("ORG-001")))
	require.NoError(t, repo.Create(ctx, testOrganization("ORG-002")))

	inactive := testOrganization("ORG-003")
	inactive.Status = model.OrganizationStatusInactive
	require.NoError(t, repo.Create(ctx, inactive))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[string(model.OrganizationStatusActive)])
	assert.Equal(t, int64(1), counts[string(model.OrganizationStatusInactive)])
}
