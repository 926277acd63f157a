package service

import (
	"context"
	"fmt"

	"count-service/internal/models"
	"count-service/internal/store"
	"count-service/internal/util"

	"go.uber.org/zap"
)

// Projector consumes the count event stream and maintains the Redis live
// counters for dashboards. The Postgres cache is written transactionally at
// record time; this projection may lag it briefly, which consumers of the
// live view tolerate.
type Projector struct {
	store       *store.Store
	aggregation *AggregationService
	logger      *zap.Logger
}

// NewProjector creates a new projector
func NewProjector(store *store.Store, aggregation *AggregationService) *Projector {
	return &Projector{
		store:       store,
		aggregation: aggregation,
		logger:      util.GetLogger(),
	}
}

// HandleCountRecorded applies one count observation to the live counters.
// processed_events makes redelivery harmless despite the non-idempotent
// increment.
func (p *Projector) HandleCountRecorded(ctx context.Context, event *models.CountRecordedEvent) error {
	ctx, span := util.StartSpan(ctx, "Projector.HandleCountRecorded")
	defer span.End()

	processed, err := p.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	key := models.AggregateKey{ProductID: event.ProductID, VariantID: event.VariantID}
	if err := p.aggregation.ApplyEvent(ctx, event.SessionID, key, event.BottleQty, event.DerivedLiters); err != nil {
		return fmt.Errorf("failed to apply count to live counters: %w", err)
	}

	if err := p.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		p.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}

// HandleSessionCompleted audits a finished session: the cached aggregates are
// checked against a recompute from the log, and drift is repaired so the
// manager reviews correct numbers.
func (p *Projector) HandleSessionCompleted(ctx context.Context, event *models.SessionCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "Projector.HandleSessionCompleted")
	defer span.End()

	processed, err := p.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	drifted, err := p.aggregation.VerifyAggregates(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("failed to verify aggregates: %w", err)
	}

	if len(drifted) > 0 {
		p.logger.Warn("Repairing drifted aggregates after completion",
			zap.Int64("session_id", event.SessionID),
			zap.Int("drifted_keys", len(drifted)))
		if _, err := p.aggregation.RepairAggregates(ctx, event.SessionID); err != nil {
			return fmt.Errorf("failed to repair aggregates: %w", err)
		}
	}

	if err := p.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		p.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	p.logger.Info("Completed session audited", zap.Int64("session_id", event.SessionID))
	return nil
}
