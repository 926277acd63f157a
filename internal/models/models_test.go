package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to string }{
		{SessionStatusDraft, SessionStatusInProgress},
		{SessionStatusInProgress, SessionStatusPaused},
		{SessionStatusPaused, SessionStatusInProgress},
		{SessionStatusInProgress, SessionStatusCompleted},
		{SessionStatusPaused, SessionStatusCompleted},
		{SessionStatusCompleted, SessionStatusApproved},
		{SessionStatusCompleted, SessionStatusFlagged},
	}

	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	statuses := []string{
		SessionStatusDraft, SessionStatusInProgress, SessionStatusPaused,
		SessionStatusCompleted, SessionStatusApproved, SessionStatusFlagged,
	}

	isLegal := func(from, to string) bool {
		for _, tc := range legal {
			if tc.from == from && tc.to == to {
				return true
			}
		}
		return false
	}

	// Everything outside the table is illegal.
	for _, from := range statuses {
		for _, to := range statuses {
			if !isLegal(from, to) {
				assert.False(t, CanTransition(from, to), "%s -> %s should be illegal", from, to)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	assert.True(t, IsTerminalStatus(SessionStatusApproved))
	assert.True(t, IsTerminalStatus(SessionStatusFlagged))
	assert.False(t, IsTerminalStatus(SessionStatusDraft))
	assert.False(t, IsTerminalStatus(SessionStatusCompleted))
}

func TestScopeFilterValidate(t *testing.T) {
	assert.NoError(t, AllProducts().Validate())
	assert.NoError(t, ScopeFilter{Kind: ScopeKindCategory, CategoryIDs: []int64{1}}.Validate())
	assert.NoError(t, ScopeFilter{Kind: ScopeKindLocation, Location: "cellar"}.Validate())
	assert.NoError(t, ScopeFilter{Kind: ScopeKindProducts, ProductIDs: []int64{1, 2}}.Validate())

	assert.Error(t, ScopeFilter{Kind: ScopeKindCategory}.Validate())
	assert.Error(t, ScopeFilter{Kind: ScopeKindLocation}.Validate())
	assert.Error(t, ScopeFilter{Kind: ScopeKindProducts}.Validate())
	assert.Error(t, ScopeFilter{Kind: "SOMETHING_ELSE"}.Validate())
}

func TestScopeFilterRoundTrip(t *testing.T) {
	original := ScopeFilter{Kind: ScopeKindCategory, CategoryIDs: []int64{3, 7}}

	raw, err := original.Marshal()
	require.NoError(t, err)

	parsed, err := ParseScopeFilter(raw)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	// Empty input means unrestricted.
	parsed, err = ParseScopeFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, ScopeKindAll, parsed.Kind)
}
