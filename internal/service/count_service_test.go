package service

import (
	"context"
	"encoding/json"
	"testing"

	"count-service/config"
	"count-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedLiters(t *testing.T) {
	// 4 bottles of 0.75l
	assert.InDelta(t, 3.0, DerivedLiters(4, 0.75, nil), 1e-9)

	// 2 bottles of 0.75l plus 350ml left in an open bottle
	open := 350.0
	assert.InDelta(t, 1.85, DerivedLiters(2, 0.75, &open), 1e-9)

	// open container only
	assert.InDelta(t, 0.35, DerivedLiters(0, 0.75, &open), 1e-9)

	// correction entry subtracts
	assert.InDelta(t, -1.5, DerivedLiters(-2, 0.75, nil), 1e-9)
}

func TestCountable(t *testing.T) {
	defaultPolicy := config.CountingConfig{}

	ok, late := Countable(models.SessionStatusInProgress, defaultPolicy)
	assert.True(t, ok)
	assert.False(t, late)

	ok, _ = Countable(models.SessionStatusPaused, defaultPolicy)
	assert.False(t, ok)

	ok, _ = Countable(models.SessionStatusCompleted, defaultPolicy)
	assert.False(t, ok)

	ok, _ = Countable(models.SessionStatusDraft, defaultPolicy)
	assert.False(t, ok)

	ok, _ = Countable(models.SessionStatusApproved, defaultPolicy)
	assert.False(t, ok)

	pausedAllowed := config.CountingConfig{AllowCountWhilePaused: true}
	ok, late = Countable(models.SessionStatusPaused, pausedAllowed)
	assert.True(t, ok)
	assert.False(t, late)

	lateAllowed := config.CountingConfig{AllowCountAfterComplete: true}
	ok, late = Countable(models.SessionStatusCompleted, lateAllowed)
	assert.True(t, ok)
	assert.True(t, late)

	// Terminal review states never accept counts, policy or not.
	ok, _ = Countable(models.SessionStatusApproved, lateAllowed)
	assert.False(t, ok)
	ok, _ = Countable(models.SessionStatusFlagged, lateAllowed)
	assert.False(t, ok)
}

func TestRecordCountRequestIgnoresBodySessionID(t *testing.T) {
	// The session is addressed by the URL; a session_id in the body must not
	// redirect the count somewhere else.
	var req RecordCountRequest
	err := json.Unmarshal(
		[]byte(`{"session_id": 999, "product_id": 4, "operator_id": 7, "bottle_qty": 3, "source": "MANUAL"}`),
		&req)
	require.NoError(t, err)

	assert.Zero(t, req.SessionID)
	assert.Equal(t, int64(4), req.ProductID)
	assert.Equal(t, int64(7), req.OperatorID)
}

func TestRecordCountRejectsNegativeQtyWithoutCorrections(t *testing.T) {
	cs := &CountService{policy: config.CountingConfig{}}

	_, err := cs.RecordCount(context.Background(), &RecordCountRequest{
		SessionID:  1,
		ProductID:  1,
		OperatorID: 1,
		BottleQty:  -1,
		Source:     models.CountSourceManual,
	})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRecordCountRejectsUnknownSource(t *testing.T) {
	cs := &CountService{policy: config.CountingConfig{}}

	_, err := cs.RecordCount(context.Background(), &RecordCountRequest{
		SessionID:  1,
		ProductID:  1,
		OperatorID: 1,
		BottleQty:  2,
		Source:     "GUESSWORK",
	})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRecordCountRejectsOutOfRangeConfidence(t *testing.T) {
	cs := &CountService{policy: config.CountingConfig{}}

	confidence := 1.2
	_, err := cs.RecordCount(context.Background(), &RecordCountRequest{
		SessionID:  1,
		ProductID:  1,
		OperatorID: 1,
		BottleQty:  1,
		Source:     models.CountSourceImage,
		Confidence: &confidence,
	})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
