package service

import (
	"context"
	"fmt"
	"math"

	"count-service/internal/models"
	"count-service/internal/redisclient"
	"count-service/internal/store"
	"count-service/internal/util"

	"go.uber.org/zap"
)

// AggregationService maintains the derived per-(session, product, variant)
// totals. The count event log is the source of truth; both the Postgres cache
// and the Redis live counters are rebuildable projections of it.
type AggregationService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(store *store.Store, redis *redisclient.Client) *AggregationService {
	return &AggregationService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// FoldEvents folds count events into per-key aggregates. Pure accumulation:
// sums are commutative and associative, so the result is independent of event
// order.
func FoldEvents(events []models.CountEvent) map[models.AggregateKey]models.ProductAggregate {
	aggs := make(map[models.AggregateKey]models.ProductAggregate)

	for _, ev := range events {
		key := models.AggregateKey{ProductID: ev.ProductID}
		if ev.VariantID.Valid {
			key.VariantID = ev.VariantID.Int64
		}

		agg := aggs[key]
		agg.SessionID = ev.SessionID
		agg.ProductID = key.ProductID
		agg.VariantID = key.VariantID
		agg.CountedQty += ev.BottleQty
		agg.CountedLiters += ev.DerivedLiters
		agg.EventCount++
		if ev.CreatedAt.After(agg.UpdatedAt) {
			agg.UpdatedAt = ev.CreatedAt
		}
		aggs[key] = agg
	}

	return aggs
}

// ApplyEvent folds one already-persisted count event into the Redis live
// counters. The Postgres cache is updated transactionally at record time;
// this is the dashboard fast path, applied by the projector worker.
func (s *AggregationService) ApplyEvent(ctx context.Context, sessionID int64, key models.AggregateKey, bottleQty int, derivedLiters float64) error {
	ctx, span := util.StartSpan(ctx, "AggregationService.ApplyEvent")
	defer span.End()

	return s.redis.ApplyCount(ctx, sessionID, key, bottleQty, derivedLiters)
}

// RecomputeFromLog rebuilds aggregates for a session straight from the event
// log. Idempotent and order-independent: the same event set always produces
// the same totals.
func (s *AggregationService) RecomputeFromLog(ctx context.Context, sessionID int64) (map[models.AggregateKey]models.ProductAggregate, error) {
	ctx, span := util.StartSpan(ctx, "AggregationService.RecomputeFromLog")
	defer span.End()

	events, err := s.store.ListCountEvents(ctx, sessionID, store.CountEventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list count events: %w", err)
	}

	return FoldEvents(events), nil
}

// RepairAggregates overwrites the cached aggregates (Postgres and Redis) with
// a fresh recompute from the log.
func (s *AggregationService) RepairAggregates(ctx context.Context, sessionID int64) ([]models.ProductAggregate, error) {
	ctx, span := util.StartSpan(ctx, "AggregationService.RepairAggregates")
	defer span.End()

	recomputed, err := s.RecomputeFromLog(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows := make([]models.ProductAggregate, 0, len(recomputed))
	for _, agg := range recomputed {
		rows = append(rows, agg)
	}

	if err := s.store.ReplaceAggregates(ctx, sessionID, rows); err != nil {
		return nil, fmt.Errorf("failed to replace aggregates: %w", err)
	}

	if err := s.redis.ResetSession(ctx, sessionID); err != nil {
		s.logger.Error("Failed to reset Redis aggregates", zap.Int64("session_id", sessionID), zap.Error(err))
	} else {
		for i := range rows {
			if err := s.redis.SeedAggregate(ctx, &rows[i]); err != nil {
				s.logger.Error("Failed to seed Redis aggregate",
					zap.Int64("session_id", sessionID),
					zap.Int64("product_id", rows[i].ProductID),
					zap.Error(err))
			}
		}
	}

	util.AggregateRepairsTotal.Inc()
	s.logger.Info("Aggregates repaired from log",
		zap.Int64("session_id", sessionID),
		zap.Int("rows", len(rows)))

	return rows, nil
}

// VerifyAggregates compares the cached aggregates against a recompute from
// the log and returns the keys that drifted.
func (s *AggregationService) VerifyAggregates(ctx context.Context, sessionID int64) ([]models.AggregateKey, error) {
	ctx, span := util.StartSpan(ctx, "AggregationService.VerifyAggregates")
	defer span.End()

	cached, err := s.store.GetAggregates(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached aggregates: %w", err)
	}

	recomputed, err := s.RecomputeFromLog(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var drifted []models.AggregateKey

	seen := make(map[models.AggregateKey]bool, len(cached))
	for _, agg := range cached {
		key := agg.Key()
		seen[key] = true
		want, ok := recomputed[key]
		if !ok || !aggregatesEqual(agg, want) {
			drifted = append(drifted, key)
		}
	}
	for key := range recomputed {
		if !seen[key] {
			drifted = append(drifted, key)
		}
	}

	if len(drifted) > 0 {
		util.AggregateDriftTotal.Inc()
		s.logger.Warn("Aggregate cache drift detected",
			zap.Int64("session_id", sessionID),
			zap.Int("drifted_keys", len(drifted)))
	}

	return drifted, nil
}

// GetAggregates retrieves the cached totals for a session.
func (s *AggregationService) GetAggregates(ctx context.Context, sessionID int64) ([]models.ProductAggregate, error) {
	return s.store.GetAggregates(ctx, sessionID)
}

// aggregatesEqual compares the accumulated fields, tolerating float rounding
// on litres.
func aggregatesEqual(a, b models.ProductAggregate) bool {
	return a.CountedQty == b.CountedQty &&
		a.EventCount == b.EventCount &&
		math.Abs(a.CountedLiters-b.CountedLiters) < 1e-6
}
