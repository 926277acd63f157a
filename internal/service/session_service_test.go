package service

import (
	"context"
	"testing"

	"count-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionRejectsEmptyName(t *testing.T) {
	ss := &SessionService{}

	_, err := ss.CreateSession(context.Background(), &CreateSessionRequest{
		Name:        "   ",
		SessionType: models.SessionTypeFull,
		StartedBy:   1,
	})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCreateSessionRejectsUnknownType(t *testing.T) {
	ss := &SessionService{}

	_, err := ss.CreateSession(context.Background(), &CreateSessionRequest{
		Name:        "Friday cellar count",
		SessionType: "WEEKLY",
		StartedBy:   1,
	})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCreateSessionRejectsBadScope(t *testing.T) {
	ss := &SessionService{}

	_, err := ss.CreateSession(context.Background(), &CreateSessionRequest{
		Name:        "Friday cellar count",
		SessionType: models.SessionTypeSpot,
		StartedBy:   1,
		Scope:       &models.ScopeFilter{Kind: models.ScopeKindCategory},
	})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestFlagSessionRejectsBlankReason(t *testing.T) {
	ss := &SessionService{}

	_, err := ss.FlagSession(context.Background(), 1, 42, "  ")
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestAllowedSourcePinsOperations(t *testing.T) {
	// DRAFT→IN_PROGRESS is a legal edge in the status graph, but only start
	// may take it; resuming a draft must be rejected.
	require.True(t, models.CanTransition(models.SessionStatusDraft, models.SessionStatusInProgress))
	assert.False(t, allowedSource("resume", models.SessionStatusDraft))
	assert.True(t, allowedSource("resume", models.SessionStatusPaused))

	assert.True(t, allowedSource("start", models.SessionStatusDraft))
	assert.False(t, allowedSource("start", models.SessionStatusPaused))

	assert.True(t, allowedSource("pause", models.SessionStatusInProgress))
	assert.False(t, allowedSource("pause", models.SessionStatusPaused))

	assert.True(t, allowedSource("complete", models.SessionStatusInProgress))
	assert.True(t, allowedSource("complete", models.SessionStatusPaused))
	assert.False(t, allowedSource("complete", models.SessionStatusDraft))

	assert.True(t, allowedSource("approve", models.SessionStatusCompleted))
	assert.True(t, allowedSource("flag", models.SessionStatusCompleted))
	assert.False(t, allowedSource("approve", models.SessionStatusApproved))
	assert.False(t, allowedSource("flag", models.SessionStatusFlagged))
}

func TestTransitionSourcesAgreeWithStatusGraph(t *testing.T) {
	// Every source an operation allows must also be a legal edge to the
	// operation's target status.
	targets := map[string]string{
		"start":    models.SessionStatusInProgress,
		"pause":    models.SessionStatusPaused,
		"resume":   models.SessionStatusInProgress,
		"complete": models.SessionStatusCompleted,
		"approve":  models.SessionStatusApproved,
		"flag":     models.SessionStatusFlagged,
	}
	for op, to := range targets {
		for _, from := range transitionSources[op] {
			assert.True(t, models.CanTransition(from, to),
				"%s allows source %s but %s→%s is not a legal edge", op, from, from, to)
		}
	}
}
