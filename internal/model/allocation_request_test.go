package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{RequestStatusSubmitted, RequestStatusScored, true},
		{RequestStatusSubmitted, RequestStatusApproved, false},
		{RequestStatusScored, RequestStatusApproved, true},
		{RequestStatusScored, RequestStatusRejected, true},
		{RequestStatusScored, RequestStatusDeferred, true},
		{RequestStatusScored, RequestStatusExecuting, false},
		{RequestStatusDeferred, RequestStatusScored, true},
		{RequestStatusDeferred, RequestStatusApproved, false},
		{RequestStatusApproved, RequestStatusExecuting, true},
		{RequestStatusExecuting, RequestStatusCompleted, true},
		{RequestStatusExecuting, RequestStatusPartiallyCompleted, true},
		{RequestStatusExecuting, RequestStatusFailed, true},
		{RequestStatusRejected, RequestStatusScored, false},
		{RequestStatusCompleted, RequestStatusExecuting, false},
		{RequestStatusFailed, RequestStatusScored, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.True(t, RequestStatusRejected.IsTerminal())
	assert.True(t, RequestStatusCompleted.IsTerminal())
	assert.True(t, RequestStatusPartiallyCompleted.IsTerminal())
	assert.True(t, RequestStatusFailed.IsTerminal())

	assert.False(t, RequestStatusSubmitted.IsTerminal())
	assert.False(t, RequestStatusScored.IsTerminal())
	assert.False(t, RequestStatusDeferred.IsTerminal())
	assert.False(t, RequestStatusExecuting.IsTerminal())
}

func TestStructurallyValid(t *testing.T) {
	valid := &AllocationRequest{
		OrgID:                 "org-1",
		RequestedAmount:       decimal.NewFromInt(500),
		Category:              CategoryHealthcare,
		PriorityLevel:         PriorityMedium,
		ExpectedBeneficiaries: 10,
		DurationMonths:        6,
	}
	assert.True(t, valid.StructurallyValid())

	missing := *valid
	missing.OrgID = ""
	assert.False(t, missing.StructurallyValid())

	negative := *valid
	negative.RequestedAmount = decimal.NewFromInt(-1)
	assert.False(t, negative.StructurallyValid())

	zeroBenef := *valid
	zeroBenef.ExpectedBeneficiaries = 0
	assert.False(t, zeroBenef.StructurallyValid())

	badPriority := *valid
	badPriority.PriorityLevel = PriorityLevel("extreme")
	assert.False(t, badPriority.StructurallyValid())
}

func TestRiskLevelFromScore(t *testing.T) {
	assert.Equal(t, RiskLevelLow, RiskLevelFromScore(decimal.NewFromInt(92)))
	assert.Equal(t, RiskLevelLow, RiskLevelFromScore(decimal.NewFromInt(85)))
	assert.Equal(t, RiskLevelMedium, RiskLevelFromScore(decimal.NewFromFloat(84.99)))
	assert.Equal(t, RiskLevelMedium, RiskLevelFromScore(decimal.NewFromInt(70)))
	assert.Equal(t, RiskLevelHigh, RiskLevelFromScore(decimal.NewFromInt(69)))
	assert.Equal(t, RiskLevelHigh, RiskLevelFromScore(decimal.NewFromInt(50)))
	assert.Equal(t, RiskLevelCritical, RiskLevelFromScore(decimal.NewFromInt(49)))
	assert.Equal(t, RiskLevelCritical, RiskLevelFromScore(decimal.Zero))
}

func TestDonorPreferencesRoundTrip(t *testing.T) {
	donor := &Donor{DonorID: "donor-1"}
	prefs := &DonorPreferences{
		Categories: []string{CategoryEducation, CategoryHealthcare},
		Locations:  []string{"IT", "FR"},
		MinAmount:  decimal.NewFromInt(5),
		MaxAmount:  decimal.NewFromInt(200),
	}
	require.NoError(t, donor.SetPreferences(prefs))

	parsed, err := donor.GetPreferences()
	require.NoError(t, err)
	assert.Equal(t, prefs.Categories, parsed.Categories)
	assert.Equal(t, prefs.Locations, parsed.Locations)
	assert.True(t, prefs.MinAmount.Equal(parsed.MinAmount))
	assert.True(t, prefs.MaxAmount.Equal(parsed.MaxAmount))
	assert.True(t, parsed.HasCategoryPreference())
	assert.True(t, parsed.HasLocationPreference())
	assert.True(t, parsed.HasAmountPreference())

	empty := &Donor{DonorID: "donor-2"}
	parsed, err = empty.GetPreferences()
	require.NoError(t, err)
	assert.False(t, parsed.HasCategoryPreference())
	assert.False(t, parsed.HasLocationPreference())
	assert.False(t, parsed.HasAmountPreference())
}
