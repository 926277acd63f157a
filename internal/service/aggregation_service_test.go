package service

import (
	"database/sql"
	"math/rand"
	"testing"

	"count-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countEvent(sessionID, productID, variantID, operatorID int64, qty int, liters float64) models.CountEvent {
	ev := models.CountEvent{
		SessionID:     sessionID,
		ProductID:     productID,
		OperatorID:    operatorID,
		BottleQty:     qty,
		DerivedLiters: liters,
	}
	if variantID != 0 {
		ev.VariantID = sql.NullInt64{Int64: variantID, Valid: true}
	}
	return ev
}

func TestFoldEventsSumInvariant(t *testing.T) {
	// Two operators counting the same product concurrently.
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 4, 3.0),
		countEvent(1, 100, 0, 11, 5, 3.75),
	}

	aggs := FoldEvents(events)
	require.Len(t, aggs, 1)

	agg := aggs[models.AggregateKey{ProductID: 100}]
	assert.Equal(t, 9, agg.CountedQty)
	assert.Equal(t, 2, agg.EventCount)
	assert.InDelta(t, 6.75, agg.CountedLiters, 1e-9)
}

func TestFoldEventsOrderIndependent(t *testing.T) {
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 4, 3.0),
		countEvent(1, 100, 0, 11, 5, 3.75),
		countEvent(1, 100, 7, 10, 2, 1.5),
		countEvent(1, 200, 0, 11, 12, 9.0),
		countEvent(1, 100, 0, 10, -1, -0.75),
	}

	expected := FoldEvents(events)

	for i := 0; i < 10; i++ {
		shuffled := make([]models.CountEvent, len(events))
		copy(shuffled, events)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := FoldEvents(shuffled)
		require.Len(t, got, len(expected))
		for key, want := range expected {
			assert.Equal(t, want.CountedQty, got[key].CountedQty)
			assert.Equal(t, want.EventCount, got[key].EventCount)
			assert.InDelta(t, want.CountedLiters, got[key].CountedLiters, 1e-9)
		}
	}
}

func TestFoldEventsIdempotent(t *testing.T) {
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 3, 2.25),
		countEvent(1, 100, 7, 10, 1, 0.75),
	}

	first := FoldEvents(events)
	second := FoldEvents(events)
	assert.Equal(t, first, second)
}

func TestFoldEventsSeparatesVariants(t *testing.T) {
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 4, 3.0),
		countEvent(1, 100, 7, 10, 2, 1.5),
	}

	aggs := FoldEvents(events)
	require.Len(t, aggs, 2)
	assert.Equal(t, 4, aggs[models.AggregateKey{ProductID: 100}].CountedQty)
	assert.Equal(t, 2, aggs[models.AggregateKey{ProductID: 100, VariantID: 7}].CountedQty)
}

func TestFoldEventsCorrectionsSubtract(t *testing.T) {
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 5, 3.75),
		countEvent(1, 100, 0, 10, -1, -0.75),
	}

	aggs := FoldEvents(events)
	agg := aggs[models.AggregateKey{ProductID: 100}]
	assert.Equal(t, 4, agg.CountedQty)
	assert.Equal(t, 2, agg.EventCount)
	assert.InDelta(t, 3.0, agg.CountedLiters, 1e-9)
}

func TestAggregatesEqualToleratesFloatNoise(t *testing.T) {
	a := models.ProductAggregate{CountedQty: 3, EventCount: 2, CountedLiters: 2.25}
	b := models.ProductAggregate{CountedQty: 3, EventCount: 2, CountedLiters: 2.2500000001}
	assert.True(t, aggregatesEqual(a, b))

	b.CountedQty = 4
	assert.False(t, aggregatesEqual(a, b))
}
