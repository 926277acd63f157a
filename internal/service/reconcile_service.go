package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"count-service/config"
	"count-service/internal/models"
	"count-service/internal/store"
	"count-service/internal/util"

	"go.uber.org/zap"
)

// ReconcileService diffs the baseline snapshot against the counted totals for
// manager review: the variance table, its severity classification, per
// operator breakdowns, and summary statistics.
type ReconcileService struct {
	store  *store.Store
	policy config.CountingConfig
	logger *zap.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(store *store.Store, policy config.CountingConfig) *ReconcileService {
	return &ReconcileService{
		store:  store,
		policy: policy,
		logger: util.GetLogger(),
	}
}

// ClassifySeverity maps a variance to MATCH, MINOR, or MAJOR. Two thresholds
// apply: the unit threshold, and an optional litres threshold that escalates
// a row to MAJOR when the volume discrepancy alone is large enough.
func ClassifySeverity(varianceQty int, varianceLiters float64, policy config.CountingConfig) string {
	if policy.VarianceMinorLiters > 0 && math.Abs(varianceLiters) > policy.VarianceMinorLiters {
		return models.SeverityMajor
	}
	if varianceQty == 0 {
		return models.SeverityMatch
	}
	abs := varianceQty
	if abs < 0 {
		abs = -abs
	}
	if abs <= policy.VarianceMinorUnits {
		return models.SeverityMinor
	}
	return models.SeverityMajor
}

// BuildDiffRows joins baselines and aggregates on (product, variant), missing
// sides defaulting to zero, and sorts by |variance| descending so reviewers
// see the worst discrepancies first.
func BuildDiffRows(baselines []models.BaselineItem, aggregates []models.ProductAggregate, policy config.CountingConfig) []models.DiffRow {
	rows := make(map[models.AggregateKey]*models.DiffRow)

	for _, item := range baselines {
		key := models.AggregateKey{ProductID: item.ProductID}
		if item.VariantID.Valid {
			key.VariantID = item.VariantID.Int64
		}
		rows[key] = &models.DiffRow{
			ProductID:      key.ProductID,
			VariantID:      key.VariantID,
			ExpectedQty:    item.ExpectedQty,
			ExpectedLiters: item.ExpectedLiters,
		}
	}

	for _, agg := range aggregates {
		key := agg.Key()
		row, ok := rows[key]
		if !ok {
			row = &models.DiffRow{ProductID: key.ProductID, VariantID: key.VariantID}
			rows[key] = row
		}
		row.CountedQty = agg.CountedQty
		row.CountedLiters = agg.CountedLiters
		row.EventCount = agg.EventCount
	}

	out := make([]models.DiffRow, 0, len(rows))
	for _, row := range rows {
		// Sign convention: counting more than expected is positive.
		row.VarianceQty = row.CountedQty - row.ExpectedQty
		row.VarianceLiters = row.CountedLiters - row.ExpectedLiters
		row.Severity = ClassifySeverity(row.VarianceQty, row.VarianceLiters, policy)
		out = append(out, *row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := abs(out[i].VarianceQty), abs(out[j].VarianceQty)
		if vi != vj {
			return vi > vj
		}
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].VariantID < out[j].VariantID
	})

	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SummarizeDiff folds diff rows into session-level totals.
func SummarizeDiff(rows []models.DiffRow) models.Summary {
	var sum models.Summary
	for _, row := range rows {
		sum.TotalExpected += row.ExpectedQty
		sum.TotalCounted += row.CountedQty
		sum.TotalVariance += row.VarianceQty
		sum.VarianceLiters += row.VarianceLiters
		if row.VarianceQty != 0 {
			sum.RowsWithVariance++
		}
		switch row.Severity {
		case models.SeverityMatch:
			sum.MatchRows++
		case models.SeverityMinor:
			sum.MinorRows++
		case models.SeverityMajor:
			sum.MajorRows++
		}
	}
	return sum
}

// GroupByOperator regroups the event log per operator for productivity and
// accuracy review. No new data: purely a re-grouping of the same events.
func GroupByOperator(events []models.CountEvent) map[int64]map[models.AggregateKey]models.OperatorTally {
	breakdown := make(map[int64]map[models.AggregateKey]models.OperatorTally)

	for _, ev := range events {
		key := models.AggregateKey{ProductID: ev.ProductID}
		if ev.VariantID.Valid {
			key.VariantID = ev.VariantID.Int64
		}

		byKey, ok := breakdown[ev.OperatorID]
		if !ok {
			byKey = make(map[models.AggregateKey]models.OperatorTally)
			breakdown[ev.OperatorID] = byKey
		}

		tally := byKey[key]
		tally.Qty += ev.BottleQty
		tally.Liters += ev.DerivedLiters
		tally.Count++
		byKey[key] = tally
	}

	return breakdown
}

// BuildDiff produces the reconciliation table for a session. The reconciler
// reads a snapshot of the aggregate cache; auditors repair the cache from the
// log when the two disagree.
func (s *ReconcileService) BuildDiff(ctx context.Context, sessionID int64) ([]models.DiffRow, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.BuildDiff")
	defer span.End()

	if _, err := s.store.GetSessionByID(ctx, sessionID); err != nil {
		return nil, err
	}

	baselines, err := s.store.GetBaselineItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline items: %w", err)
	}

	aggregates, err := s.store.GetAggregates(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read aggregates: %w", err)
	}

	return BuildDiffRows(baselines, aggregates, s.policy), nil
}

// BuildUserBreakdown groups the session's count events by operator.
func (s *ReconcileService) BuildUserBreakdown(ctx context.Context, sessionID int64) (map[int64]map[models.AggregateKey]models.OperatorTally, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.BuildUserBreakdown")
	defer span.End()

	if _, err := s.store.GetSessionByID(ctx, sessionID); err != nil {
		return nil, err
	}

	events, err := s.store.ListCountEvents(ctx, sessionID, store.CountEventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list count events: %w", err)
	}

	return GroupByOperator(events), nil
}

// Summarize computes session-level reconciliation statistics.
func (s *ReconcileService) Summarize(ctx context.Context, sessionID int64) (*models.Summary, error) {
	rows, err := s.BuildDiff(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sum := SummarizeDiff(rows)
	s.logger.Debug("Session summarized",
		zap.Int64("session_id", sessionID),
		zap.Int("total_variance", sum.TotalVariance),
		zap.Int("rows_with_variance", sum.RowsWithVariance))

	return &sum, nil
}
