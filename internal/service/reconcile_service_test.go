package service

import (
	"database/sql"
	"testing"

	"count-service/config"
	"count-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultPolicy = config.CountingConfig{VarianceMinorUnits: 2}

func baseline(sessionID, productID, variantID int64, qty int, liters float64) models.BaselineItem {
	item := models.BaselineItem{
		SessionID:      sessionID,
		ProductID:      productID,
		ExpectedQty:    qty,
		ExpectedLiters: liters,
	}
	if variantID != 0 {
		item.VariantID = sql.NullInt64{Int64: variantID, Valid: true}
	}
	return item
}

func aggregate(sessionID, productID, variantID int64, qty int, liters float64, events int) models.ProductAggregate {
	return models.ProductAggregate{
		SessionID:     sessionID,
		ProductID:     productID,
		VariantID:     variantID,
		CountedQty:    qty,
		CountedLiters: liters,
		EventCount:    events,
	}
}

func TestClassifySeverity(t *testing.T) {
	assert.Equal(t, models.SeverityMatch, ClassifySeverity(0, 0, defaultPolicy))
	assert.Equal(t, models.SeverityMinor, ClassifySeverity(1, 0.75, defaultPolicy))
	assert.Equal(t, models.SeverityMinor, ClassifySeverity(-2, -1.5, defaultPolicy))
	assert.Equal(t, models.SeverityMajor, ClassifySeverity(3, 2.25, defaultPolicy))
	assert.Equal(t, models.SeverityMajor, ClassifySeverity(-7, -5.25, defaultPolicy))
}

func TestClassifySeverityLitersEscalation(t *testing.T) {
	policy := config.CountingConfig{VarianceMinorUnits: 2, VarianceMinorLiters: 1.0}

	// One magnum bottle within the unit threshold but over a litre of volume.
	assert.Equal(t, models.SeverityMajor, ClassifySeverity(-1, -1.5, policy))

	// Small volume discrepancy stays within the unit classification.
	assert.Equal(t, models.SeverityMinor, ClassifySeverity(-1, -0.75, policy))

	// Zero threshold disables the volume check.
	assert.Equal(t, models.SeverityMinor, ClassifySeverity(-1, -1.5, defaultPolicy))
}

func TestBuildDiffRowsExampleScenario(t *testing.T) {
	// Baseline 10, operator A counts 4, operator B counts 5.
	baselines := []models.BaselineItem{baseline(1, 100, 0, 10, 7.5)}
	aggregates := []models.ProductAggregate{aggregate(1, 100, 0, 9, 6.75, 2)}

	rows := BuildDiffRows(baselines, aggregates, defaultPolicy)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, int64(100), row.ProductID)
	assert.Equal(t, 10, row.ExpectedQty)
	assert.Equal(t, 9, row.CountedQty)
	assert.Equal(t, -1, row.VarianceQty)
	assert.Equal(t, 2, row.EventCount)
	assert.Equal(t, models.SeverityMinor, row.Severity)
}

func TestBuildDiffRowsSignConvention(t *testing.T) {
	baselines := []models.BaselineItem{
		baseline(1, 100, 0, 10, 7.5),
		baseline(1, 200, 0, 5, 3.75),
	}
	aggregates := []models.ProductAggregate{
		aggregate(1, 100, 0, 13, 9.75, 3), // over-count
		aggregate(1, 200, 0, 2, 1.5, 1),   // under-count
	}

	rows := BuildDiffRows(baselines, aggregates, defaultPolicy)
	require.Len(t, rows, 2)

	byProduct := map[int64]models.DiffRow{}
	for _, row := range rows {
		byProduct[row.ProductID] = row
	}
	assert.Equal(t, 3, byProduct[100].VarianceQty)
	assert.Equal(t, -3, byProduct[200].VarianceQty)
}

func TestBuildDiffRowsDefaultsMissingSides(t *testing.T) {
	// Product 100 was expected but never counted; product 200 was counted but
	// never in the baseline.
	baselines := []models.BaselineItem{baseline(1, 100, 0, 6, 4.5)}
	aggregates := []models.ProductAggregate{aggregate(1, 200, 0, 4, 3.0, 2)}

	rows := BuildDiffRows(baselines, aggregates, defaultPolicy)
	require.Len(t, rows, 2)

	byProduct := map[int64]models.DiffRow{}
	for _, row := range rows {
		byProduct[row.ProductID] = row
	}

	assert.Equal(t, -6, byProduct[100].VarianceQty)
	assert.Equal(t, 0, byProduct[100].CountedQty)
	assert.Equal(t, 4, byProduct[200].VarianceQty)
	assert.Equal(t, 0, byProduct[200].ExpectedQty)
}

func TestBuildDiffRowsSortedByAbsVariance(t *testing.T) {
	baselines := []models.BaselineItem{
		baseline(1, 100, 0, 10, 7.5),
		baseline(1, 200, 0, 10, 7.5),
		baseline(1, 300, 0, 10, 7.5),
		baseline(1, 400, 0, 10, 7.5),
	}
	aggregates := []models.ProductAggregate{
		aggregate(1, 100, 0, 9, 6.75, 1),  // -1
		aggregate(1, 200, 0, 2, 1.5, 1),   // -8
		aggregate(1, 300, 0, 10, 7.5, 1),  // 0
		aggregate(1, 400, 0, 14, 10.5, 1), // +4
	}

	rows := BuildDiffRows(baselines, aggregates, defaultPolicy)
	require.Len(t, rows, 4)

	assert.Equal(t, int64(200), rows[0].ProductID)
	assert.Equal(t, int64(400), rows[1].ProductID)
	assert.Equal(t, int64(100), rows[2].ProductID)
	assert.Equal(t, int64(300), rows[3].ProductID)
}

func TestBuildDiffRowsVariantsDistinct(t *testing.T) {
	baselines := []models.BaselineItem{
		baseline(1, 100, 0, 5, 3.75),
		baseline(1, 100, 7, 3, 4.5),
	}
	aggregates := []models.ProductAggregate{
		aggregate(1, 100, 0, 5, 3.75, 1),
		aggregate(1, 100, 7, 1, 1.5, 1),
	}

	rows := BuildDiffRows(baselines, aggregates, defaultPolicy)
	require.Len(t, rows, 2)

	// The variant with the discrepancy sorts first.
	assert.Equal(t, int64(7), rows[0].VariantID)
	assert.Equal(t, -2, rows[0].VarianceQty)
	assert.Equal(t, models.SeverityMatch, rows[1].Severity)
}

func TestSummarizeDiff(t *testing.T) {
	baselines := []models.BaselineItem{
		baseline(1, 100, 0, 10, 7.5),
		baseline(1, 200, 0, 5, 3.75),
		baseline(1, 300, 0, 8, 6.0),
	}
	aggregates := []models.ProductAggregate{
		aggregate(1, 100, 0, 9, 6.75, 2),
		aggregate(1, 200, 0, 5, 3.75, 1),
		aggregate(1, 300, 0, 12, 9.0, 3),
	}

	rows := BuildDiffRows(baselines, aggregates, defaultPolicy)
	sum := SummarizeDiff(rows)

	assert.Equal(t, 23, sum.TotalExpected)
	assert.Equal(t, 26, sum.TotalCounted)
	assert.Equal(t, 3, sum.TotalVariance)
	assert.Equal(t, 2, sum.RowsWithVariance)
	assert.Equal(t, 1, sum.MatchRows)
	assert.Equal(t, 1, sum.MinorRows)
	assert.Equal(t, 1, sum.MajorRows)
}

func TestSummaryMatchesFullRecompute(t *testing.T) {
	// The same totals must come out whether aggregates arrive from the cache
	// or from a fold over the raw event log.
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 4, 3.0),
		countEvent(1, 100, 0, 11, 5, 3.75),
		countEvent(1, 200, 0, 10, 5, 3.75),
	}
	baselines := []models.BaselineItem{
		baseline(1, 100, 0, 10, 7.5),
		baseline(1, 200, 0, 5, 3.75),
	}

	folded := FoldEvents(events)
	recomputed := make([]models.ProductAggregate, 0, len(folded))
	for _, agg := range folded {
		recomputed = append(recomputed, agg)
	}

	cached := []models.ProductAggregate{
		aggregate(1, 100, 0, 9, 6.75, 2),
		aggregate(1, 200, 0, 5, 3.75, 1),
	}

	fromCache := SummarizeDiff(BuildDiffRows(baselines, cached, defaultPolicy))
	fromLog := SummarizeDiff(BuildDiffRows(baselines, recomputed, defaultPolicy))
	assert.Equal(t, fromCache, fromLog)
}

func TestGroupByOperator(t *testing.T) {
	events := []models.CountEvent{
		countEvent(1, 100, 0, 10, 4, 3.0),
		countEvent(1, 100, 0, 11, 5, 3.75),
		countEvent(1, 200, 0, 10, 2, 1.5),
	}

	breakdown := GroupByOperator(events)
	require.Len(t, breakdown, 2)

	opA := breakdown[10]
	require.Len(t, opA, 2)
	assert.Equal(t, 4, opA[models.AggregateKey{ProductID: 100}].Qty)
	assert.Equal(t, 2, opA[models.AggregateKey{ProductID: 200}].Qty)

	opB := breakdown[11]
	require.Len(t, opB, 1)
	assert.Equal(t, 5, opB[models.AggregateKey{ProductID: 100}].Qty)
	assert.Equal(t, 1, opB[models.AggregateKey{ProductID: 100}].Count)
	assert.InDelta(t, 3.75, opB[models.AggregateKey{ProductID: 100}].Liters, 1e-9)
}
