package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

func buildChain(t *testing.T, n int) []*model.AuditEntry {
	t.Helper()

	entries := make([]*model.AuditEntry, 0, n)
	var tail *model.AuditEntry
	for i := 0; i < n; i++ {
		entry, err := BuildEntry(tail, EntrySpec{
			ActionType: model.AuditActionDecisionMade,
			EntityType: model.AuditEntityDecision,
			EntityID:   "dec-1",
			ActorID:    "system",
			ActionData: map[string]interface{}{"step": i},
		}, int64(1767225600000+i*1000))
		require.NoError(t, err)
		entries = append(entries, entry)
		tail = entry
	}
	return entries
}

func TestComputeHash_Deterministic(t *testing.T) {
	entries := buildChain(t, 1)
	entry := entries[0]

	first := ComputeHash(entry)
	second := ComputeHash(entry)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeHash_SensitiveToEveryBusinessField(t *testing.T) {
	base := buildChain(t, 1)[0]
	baseline := ComputeHash(base)

	mutations := map[string]func(e *model.AuditEntry){
		"entry_id":        func(e *model.AuditEntry) { e.EntryID = "AE-other" },
		"sequence_number": func(e *model.AuditEntry) { e.SequenceNumber = 99 },
		"action_type":     func(e *model.AuditEntry) { e.ActionType = model.AuditActionAlertRaised },
		"entity_type":     func(e *model.AuditEntry) { e.EntityType = model.AuditEntityAlert },
		"entity_id":       func(e *model.AuditEntry) { e.EntityID = "other" },
		"actor_id":        func(e *model.AuditEntry) { e.ActorID = "intruder" },
		"action_data":     func(e *model.AuditEntry) { e.ActionData = `{"step":999}` },
		"timestamp":       func(e *model.AuditEntry) { e.Timestamp = 1 },
	}

	for field, mutate := range mutations {
		copied := *base
		mutate(&copied)
		assert.NotEqual(t, baseline, ComputeHash(&copied), "field %s", field)
	}
}

func TestComputeHash_IgnoresHashAndStorageFields(t *testing.T) {
	base := buildChain(t, 2)[1]
	baseline := ComputeHash(base)

	copied := *base
	copied.ID = 12345
	copied.CreatedAt = 1
	copied.IntegrityHash = "tampered"
	copied.PreviousEntryHash = "tampered"
	assert.Equal(t, baseline, ComputeHash(&copied))
}

func TestBuildEntry_Genesis(t *testing.T) {
	entry, err := BuildEntry(nil, EntrySpec{
		ActionType: model.AuditActionRequestScored,
		EntityType: model.AuditEntityRequest,
		EntityID:   "req-1",
		ActorID:    "system",
	}, 1767225600000)
	require.NoError(t, err)

	assert.Equal(t, int64(1), entry.SequenceNumber)
	assert.True(t, entry.IsGenesis())
	assert.Empty(t, entry.PreviousEntryHash)
	assert.Equal(t, "{}", entry.ActionData)
	assert.Equal(t, ComputeHash(entry), entry.IntegrityHash)
	assert.NotEmpty(t, entry.EntryID)
}

func TestBuildEntry_ChainsFromTail(t *testing.T) {
	entries := buildChain(t, 3)

	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].SequenceNumber+1, entries[i].SequenceNumber)
		assert.Equal(t, entries[i-1].IntegrityHash, entries[i].PreviousEntryHash)
	}
}

func TestBuildEntry_MissingFields(t *testing.T) {
	_, err := BuildEntry(nil, EntrySpec{ActionType: model.AuditActionDecisionMade}, 0)
	require.Error(t, err)
}

func TestVerifyEntries_IntactChain(t *testing.T) {
	entries := buildChain(t, 5)

	report := VerifyEntries(entries, 1, 5)
	assert.Equal(t, StatusVerified, report.Status)
	assert.Empty(t, report.IntegrityViolations)
	assert.Empty(t, report.ChainBreaks)
	assert.Equal(t, 5, report.EntriesChecked)
	assert.False(t, report.HasIssues())
}

// 篡改已落库条目的负载：该条哈希不符，但后继条目指向的
// 仍是它落库时的存量哈希，链接本身不断
func TestVerifyEntries_TamperedEntryFlagsThatEntryOnly(t *testing.T) {
	entries := buildChain(t, 4)
	entries[1].ActionData = `{"step":1,"amount":"99999"}`

	report := VerifyEntries(entries, 1, 4)
	assert.Equal(t, StatusCompromised, report.Status)
	assert.Equal(t, []int64{2}, report.IntegrityViolations)
	assert.Empty(t, report.ChainBreaks)
}

func TestVerifyEntries_MissingEntryBreaksChain(t *testing.T) {
	entries := buildChain(t, 4)
	withGap := []*model.AuditEntry{entries[0], entries[2], entries[3]}

	report := VerifyEntries(withGap, 1, 4)
	assert.Equal(t, StatusWarning, report.Status)
	assert.Empty(t, report.IntegrityViolations)
	assert.Equal(t, []int64{3}, report.ChainBreaks)
}

// 删掉窗口首条 (创世条目) 后剩余链体自洽，靠边界核对抓出来
func TestVerifyEntries_DeletedHeadBreaksChain(t *testing.T) {
	entries := buildChain(t, 3)

	report := VerifyEntries(entries[1:], 1, 3)
	assert.Equal(t, StatusWarning, report.Status)
	assert.Empty(t, report.IntegrityViolations)
	assert.Equal(t, []int64{1}, report.ChainBreaks)
	assert.Equal(t, 2, report.EntriesChecked)
}

func TestVerifyEntries_DeletedTailBreaksChain(t *testing.T) {
	entries := buildChain(t, 3)

	report := VerifyEntries(entries[:2], 1, 3)
	assert.Equal(t, StatusWarning, report.Status)
	assert.Empty(t, report.IntegrityViolations)
	assert.Equal(t, []int64{3}, report.ChainBreaks)
}

func TestVerifyEntries_NothingLoadedForNonEmptyWindow(t *testing.T) {
	report := VerifyEntries(nil, 1, 3)
	assert.Equal(t, StatusWarning, report.Status)
	assert.Equal(t, []int64{1}, report.ChainBreaks)
	assert.Zero(t, report.EntriesChecked)
}

// 前驱哈希被改不影响本条完整性哈希，只断链接
func TestVerifyEntries_RewrittenLinkIsBreakNotViolation(t *testing.T) {
	entries := buildChain(t, 3)
	entries[2].PreviousEntryHash = "0000000000000000000000000000000000000000000000000000000000000000"

	report := VerifyEntries(entries, 1, 3)
	assert.Equal(t, StatusWarning, report.Status)
	assert.Empty(t, report.IntegrityViolations)
	assert.Equal(t, []int64{3}, report.ChainBreaks)
}

func TestVerifyEntries_TamperAndBreakIsCompromised(t *testing.T) {
	entries := buildChain(t, 4)
	entries[1].ActionData = `{"forged":true}`
	entries[3].PreviousEntryHash = "forged"

	report := VerifyEntries(entries, 1, 4)
	assert.Equal(t, StatusCompromised, report.Status)
	assert.Equal(t, []int64{2}, report.IntegrityViolations)
	assert.Equal(t, []int64{4}, report.ChainBreaks)
}

func TestVerifyEntries_GenesisPrevMustBeEmpty(t *testing.T) {
	entries := buildChain(t, 2)
	entries[0].PreviousEntryHash = "abc"

	report := VerifyEntries(entries, 1, 2)
	assert.Equal(t, StatusWarning, report.Status)
	assert.Empty(t, report.IntegrityViolations)
	assert.Equal(t, []int64{1}, report.ChainBreaks)
}

func TestVerifyEntries_WindowNotStartingAtGenesis(t *testing.T) {
	entries := buildChain(t, 5)

	report := VerifyEntries(entries[2:], 3, 5)
	assert.Equal(t, StatusVerified, report.Status)
	assert.Equal(t, 3, report.EntriesChecked)
}

func TestVerifyEntries_Empty(t *testing.T) {
	report := VerifyEntries(nil, 1, 0)
	assert.Equal(t, StatusVerified, report.Status)
	assert.Zero(t, report.EntriesChecked)
}
