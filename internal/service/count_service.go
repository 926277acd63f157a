package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"count-service/config"
	"count-service/internal/broker"
	"count-service/internal/models"
	"count-service/internal/store"
	"count-service/internal/util"

	"go.uber.org/zap"
)

// CountService appends count observations to the session's event log and
// keeps the authoritative aggregate in step, in one transaction.
type CountService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	policy         config.CountingConfig
	logger         *zap.Logger
}

// NewCountService creates a new count service
func NewCountService(store *store.Store, eventPublisher *broker.EventPublisher, policy config.CountingConfig) *CountService {
	return &CountService{
		store:          store,
		eventPublisher: eventPublisher,
		policy:         policy,
		logger:         util.GetLogger(),
	}
}

// RecordCountRequest represents one count observation. SessionID comes from
// the URL path, never the body: a body cannot record into a different session
// than the one it was posted to.
type RecordCountRequest struct {
	SessionID  int64    `json:"-"`
	ProductID  int64    `json:"product_id" binding:"required"`
	VariantID  int64    `json:"variant_id,omitempty"`
	OperatorID int64    `json:"operator_id" binding:"required"`
	BottleQty  int      `json:"bottle_qty"`
	OpenML     *float64 `json:"open_ml,omitempty"`
	Source     string   `json:"source" binding:"required"`
	Confidence *float64 `json:"confidence,omitempty"`
	PhotoURL   string   `json:"photo_url,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// DerivedLiters computes the volume one observation represents: full bottles
// at the product's unit volume plus the partial open-container remainder.
// Count-time and review-time figures must come from this exact formula.
func DerivedLiters(bottleQty int, unitVolumeLiters float64, openML *float64) float64 {
	liters := float64(bottleQty) * unitVolumeLiters
	if openML != nil {
		liters += *openML / 1000
	}
	return liters
}

// Countable reports whether a session in the given status accepts count
// events under the policy. The second return marks the count as late
// (accepted after completion).
func Countable(status string, policy config.CountingConfig) (ok, late bool) {
	switch status {
	case models.SessionStatusInProgress:
		return true, false
	case models.SessionStatusPaused:
		return policy.AllowCountWhilePaused, false
	case models.SessionStatusCompleted:
		return policy.AllowCountAfterComplete, true
	default:
		return false, false
	}
}

// RecordCount appends one immutable count event. The event insert and the
// aggregate increment commit together; a failure records nothing.
func (s *CountService) RecordCount(ctx context.Context, req *RecordCountRequest) (*models.CountEvent, error) {
	ctx, span := util.StartSpan(ctx, "CountService.RecordCount")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CountRecordLatency.Observe(time.Since(start).Seconds())
	}()

	if req.BottleQty < 0 && !s.policy.AllowCorrections {
		util.CountsRejectedTotal.WithLabelValues("negative_qty").Inc()
		return nil, models.NewValidationError("bottle_qty", "must not be negative")
	}
	if !models.ValidCountSource(req.Source) {
		util.CountsRejectedTotal.WithLabelValues("bad_source").Inc()
		return nil, models.NewValidationError("source", fmt.Sprintf("unknown source %q", req.Source))
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		util.CountsRejectedTotal.WithLabelValues("bad_confidence").Inc()
		return nil, models.NewValidationError("confidence", "must be between 0 and 1")
	}
	if req.OpenML != nil && *req.OpenML < 0 {
		util.CountsRejectedTotal.WithLabelValues("negative_open_ml").Inc()
		return nil, models.NewValidationError("open_ml", "must not be negative")
	}

	sess, err := s.store.GetSessionByID(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ok, late := Countable(sess.Status, s.policy)
	if !ok {
		util.CountsRejectedTotal.WithLabelValues("not_countable").Inc()
		return nil, models.NewInvalidStateError(req.SessionID, sess.Status, "record count")
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	event := &models.CountEvent{
		SessionID:     req.SessionID,
		ProductID:     req.ProductID,
		OperatorID:    req.OperatorID,
		BottleQty:     req.BottleQty,
		DerivedLiters: DerivedLiters(req.BottleQty, product.UnitVolumeLiters, req.OpenML),
		Source:        req.Source,
	}
	if req.VariantID != 0 {
		event.VariantID = sql.NullInt64{Int64: req.VariantID, Valid: true}
	}
	if req.OpenML != nil {
		event.OpenML = sql.NullFloat64{Float64: *req.OpenML, Valid: true}
	}
	if req.Confidence != nil {
		event.Confidence = sql.NullFloat64{Float64: *req.Confidence, Valid: true}
	}
	if req.PhotoURL != "" {
		event.PhotoURL = sql.NullString{String: req.PhotoURL, Valid: true}
	}
	if req.Note != "" {
		event.Note = sql.NullString{String: req.Note, Valid: true}
	}

	if err := s.store.RecordCountTx(ctx, event); err != nil {
		util.CountsRejectedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to record count: %w", err)
	}

	util.CountsRecordedTotal.WithLabelValues(req.Source).Inc()
	if late {
		// Late counts are aggregated but the finalized session total stands.
		util.LateCountsTotal.Inc()
		s.logger.Warn("Count recorded after session completion",
			zap.Int64("session_id", req.SessionID),
			zap.Int64("count_id", event.ID))
	}

	published := &models.CountRecordedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeCountRecorded),
		CountID:       event.ID,
		SessionID:     event.SessionID,
		ProductID:     event.ProductID,
		VariantID:     req.VariantID,
		OperatorID:    event.OperatorID,
		BottleQty:     event.BottleQty,
		DerivedLiters: event.DerivedLiters,
		Source:        event.Source,
		LateCount:     late,
	}
	if err := s.eventPublisher.PublishCountRecorded(ctx, published); err != nil {
		s.logger.Error("Failed to publish CountRecorded event", zap.Error(err))
	}

	return event, nil
}

// ListEvents retrieves count events for a session, optionally filtered by
// product or operator.
func (s *CountService) ListEvents(ctx context.Context, sessionID int64, filter store.CountEventFilter) ([]models.CountEvent, error) {
	if _, err := s.store.GetSessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return s.store.ListCountEvents(ctx, sessionID, filter)
}
