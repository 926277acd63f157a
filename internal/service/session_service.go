package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"count-service/internal/broker"
	"count-service/internal/models"
	"count-service/internal/store"
	"count-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService owns the counting session lifecycle: the status state
// machine, its timestamps, and the baseline snapshot taken when counting
// starts.
type SessionService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	baselineClient *BaselineClient
	logger         *zap.Logger
}

// NewSessionService creates a new session service
func NewSessionService(
	store *store.Store,
	eventPublisher *broker.EventPublisher,
	baselineClient *BaselineClient,
) *SessionService {
	return &SessionService{
		store:          store,
		eventPublisher: eventPublisher,
		baselineClient: baselineClient,
		logger:         util.GetLogger(),
	}
}

// CreateSessionRequest represents a request to create a counting session
type CreateSessionRequest struct {
	Name             string              `json:"name" binding:"required"`
	SessionType      string              `json:"session_type" binding:"required"`
	StartedBy        int64               `json:"started_by" binding:"required"`
	Description      string              `json:"description,omitempty"`
	Location         string              `json:"location,omitempty"`
	Scope            *models.ScopeFilter `json:"scope,omitempty"`
	StartImmediately bool                `json:"start_immediately"`
}

// CreateSession creates a session in DRAFT, or directly in IN_PROGRESS when
// the caller starts counting immediately. The baseline snapshot is captured
// the moment counting starts.
func (s *SessionService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.CreateSession")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	if !models.ValidSessionType(req.SessionType) {
		return nil, models.NewValidationError("session_type", fmt.Sprintf("unknown type %q", req.SessionType))
	}

	scope := models.AllProducts()
	if req.Scope != nil {
		scope = *req.Scope
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	scopeRaw, err := scope.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize scope: %w", err)
	}

	sess := &models.Session{
		Name:        req.Name,
		SessionType: req.SessionType,
		Status:      models.SessionStatusDraft,
		StartedBy:   req.StartedBy,
		ScopeFilter: scopeRaw,
	}
	if req.Description != "" {
		sess.Description = sql.NullString{String: req.Description, Valid: true}
	}
	if req.Location != "" {
		sess.LocationFilter = sql.NullString{String: req.Location, Valid: true}
	}
	if req.StartImmediately {
		sess.Status = models.SessionStatusInProgress
		sess.StartedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	util.SessionsCreatedTotal.Inc()
	s.logger.Info("Session created",
		zap.Int64("session_id", sess.ID),
		zap.String("status", sess.Status),
		zap.String("type", sess.SessionType))

	if req.StartImmediately {
		if err := s.baselineClient.CaptureBaseline(ctx, sess.ID, scope); err != nil {
			s.logger.Error("Failed to capture baseline", zap.Int64("session_id", sess.ID), zap.Error(err))
		}
		s.publishStarted(ctx, sess)
	}

	return sess, nil
}

// StartSession transitions a DRAFT session to IN_PROGRESS and captures the
// baseline snapshot.
func (s *SessionService) StartSession(ctx context.Context, id int64) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.StartSession")
	defer span.End()

	sess, err := s.transition(ctx, id, "start", models.SessionStatusInProgress,
		func(sess *models.Session) error {
			return s.store.StartSession(ctx, sess.ID, sess.Version, time.Now())
		})
	if err != nil {
		return nil, err
	}

	scope, err := models.ParseScopeFilter(sess.ScopeFilter)
	if err != nil {
		s.logger.Error("Stored scope filter unreadable, using full scope",
			zap.Int64("session_id", id), zap.Error(err))
		scope = models.AllProducts()
	}
	if err := s.baselineClient.CaptureBaseline(ctx, id, scope); err != nil {
		s.logger.Error("Failed to capture baseline", zap.Int64("session_id", id), zap.Error(err))
	}

	s.publishStarted(ctx, sess)
	return sess, nil
}

// PauseSession suspends counting on an IN_PROGRESS session.
func (s *SessionService) PauseSession(ctx context.Context, id int64) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.PauseSession")
	defer span.End()

	sess, err := s.transition(ctx, id, "pause", models.SessionStatusPaused,
		func(sess *models.Session) error {
			return s.store.SetSessionStatus(ctx, sess.ID, sess.Version, sess.Status, models.SessionStatusPaused)
		})
	if err != nil {
		return nil, err
	}

	event := &models.SessionPausedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSessionPaused),
		SessionID: sess.ID,
	}
	if err := s.eventPublisher.PublishSessionPaused(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionPaused event", zap.Error(err))
	}
	return sess, nil
}

// ResumeSession returns a PAUSED session to IN_PROGRESS.
func (s *SessionService) ResumeSession(ctx context.Context, id int64) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.ResumeSession")
	defer span.End()

	sess, err := s.transition(ctx, id, "resume", models.SessionStatusInProgress,
		func(sess *models.Session) error {
			return s.store.SetSessionStatus(ctx, sess.ID, sess.Version, sess.Status, models.SessionStatusInProgress)
		})
	if err != nil {
		return nil, err
	}

	event := &models.SessionResumedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSessionResumed),
		SessionID: sess.ID,
	}
	if err := s.eventPublisher.PublishSessionResumed(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionResumed event", zap.Error(err))
	}
	return sess, nil
}

// CompleteSessionRequest carries the completion payload.
type CompleteSessionRequest struct {
	CompletedBy     int64 `json:"completed_by" binding:"required"`
	DurationSeconds int64 `json:"duration_seconds"`
	TotalCounted    int   `json:"total_counted"`
}

// CompleteSession closes the counting window. Valid from IN_PROGRESS or
// PAUSED; completed_at is set exactly once, here.
func (s *SessionService) CompleteSession(ctx context.Context, id int64, req *CompleteSessionRequest) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.CompleteSession")
	defer span.End()

	sess, err := s.transition(ctx, id, "complete", models.SessionStatusCompleted,
		func(sess *models.Session) error {
			return s.store.CompleteSession(ctx, sess.ID, sess.Version, sess.Status,
				req.CompletedBy, req.DurationSeconds, req.TotalCounted, time.Now())
		})
	if err != nil {
		return nil, err
	}

	util.SessionsCompletedTotal.Inc()
	s.logger.Info("Session completed",
		zap.Int64("session_id", id),
		zap.Int64("completed_by", req.CompletedBy),
		zap.Int("total_counted", req.TotalCounted))

	event := &models.SessionCompletedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeSessionCompleted),
		SessionID:       sess.ID,
		CompletedBy:     req.CompletedBy,
		DurationSeconds: req.DurationSeconds,
		TotalCounted:    req.TotalCounted,
	}
	if err := s.eventPublisher.PublishSessionCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionCompleted event", zap.Error(err))
	}
	return sess, nil
}

// ApproveSession signs off a COMPLETED session. A second approval attempt
// finds the session already APPROVED and fails.
func (s *SessionService) ApproveSession(ctx context.Context, id, approvedBy int64, notes string) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.ApproveSession")
	defer span.End()

	var approvalNotes sql.NullString
	if notes != "" {
		approvalNotes = sql.NullString{String: notes, Valid: true}
	}

	sess, err := s.transition(ctx, id, "approve", models.SessionStatusApproved,
		func(sess *models.Session) error {
			return s.store.ApproveSession(ctx, sess.ID, sess.Version, approvedBy, approvalNotes, time.Now())
		})
	if err != nil {
		return nil, err
	}

	util.SessionsApprovedTotal.Inc()
	s.logger.Info("Session approved",
		zap.Int64("session_id", id),
		zap.Int64("approved_by", approvedBy))

	event := &models.SessionApprovedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeSessionApproved),
		SessionID:  sess.ID,
		ApprovedBy: approvedBy,
	}
	if err := s.eventPublisher.PublishSessionApproved(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionApproved event", zap.Error(err))
	}
	return sess, nil
}

// FlagSession rejects a COMPLETED session with a non-empty reason, recording
// who flagged it.
func (s *SessionService) FlagSession(ctx context.Context, id, flaggedBy int64, reason string) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.FlagSession")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, models.NewValidationError("reason", "must not be blank")
	}

	sess, err := s.transition(ctx, id, "flag", models.SessionStatusFlagged,
		func(sess *models.Session) error {
			return s.store.FlagSession(ctx, sess.ID, sess.Version, flaggedBy, reason)
		})
	if err != nil {
		return nil, err
	}

	util.SessionsFlaggedTotal.Inc()
	s.logger.Warn("Session flagged",
		zap.Int64("session_id", id),
		zap.Int64("flagged_by", flaggedBy),
		zap.String("reason", reason))

	event := &models.SessionFlaggedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSessionFlagged),
		SessionID: sess.ID,
		FlaggedBy: flaggedBy,
		Reason:    reason,
	}
	if err := s.eventPublisher.PublishSessionFlagged(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionFlagged event", zap.Error(err))
	}
	return sess, nil
}

// JoinSession attaches an additional operator to an active session. Read-only:
// the operator counts into the same event log.
func (s *SessionService) JoinSession(ctx context.Context, id int64) (*models.Session, error) {
	sess, err := s.store.GetSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusInProgress {
		return nil, models.NewInvalidStateError(id, sess.Status, "join")
	}
	return sess, nil
}

// GetSession retrieves a session by ID
func (s *SessionService) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	return s.store.GetSessionByID(ctx, id)
}

// ListSessions retrieves sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, status string, limit, offset int) ([]models.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListSessions(ctx, status, limit, offset)
}

// transitionSources pins each lifecycle operation to its legal source
// statuses. Tighter than the status graph alone: start and resume both land
// in IN_PROGRESS, but only start may take a DRAFT there.
var transitionSources = map[string][]string{
	"start":    {models.SessionStatusDraft},
	"pause":    {models.SessionStatusInProgress},
	"resume":   {models.SessionStatusPaused},
	"complete": {models.SessionStatusInProgress, models.SessionStatusPaused},
	"approve":  {models.SessionStatusCompleted},
	"flag":     {models.SessionStatusCompleted},
}

// allowedSource reports whether op may be applied to a session in status.
func allowedSource(op, status string) bool {
	for _, from := range transitionSources[op] {
		if from == status {
			return true
		}
	}
	return false
}

// transition runs one optimistic status update: read, validate against the
// state machine and the operation's source set, conditionally write. A lost
// race is retried once against the re-read state; a move that is no longer
// legal surfaces as InvalidStateError, while a second lost race surfaces the
// conflict itself.
func (s *SessionService) transition(ctx context.Context, id int64, op, to string, write func(*models.Session) error) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := s.store.GetSessionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if !allowedSource(op, sess.Status) || !models.CanTransition(sess.Status, to) {
			util.SessionTransitionsRejected.WithLabelValues(op).Inc()
			return nil, models.NewInvalidStateError(id, sess.Status, op)
		}

		err = write(sess)
		if err == nil {
			return s.store.GetSessionByID(ctx, id)
		}
		if !store.IsConflict(err) {
			return nil, fmt.Errorf("failed to %s session %d: %w", op, id, err)
		}

		lastErr = err
		util.SessionTransitionConflicts.Inc()
		s.logger.Warn("Session transition lost optimistic race, retrying",
			zap.Int64("session_id", id),
			zap.String("op", op))
	}

	return nil, lastErr
}

func (s *SessionService) publishStarted(ctx context.Context, sess *models.Session) {
	event := &models.SessionStartedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSessionStarted),
		SessionID:   sess.ID,
		SessionType: sess.SessionType,
		StartedBy:   sess.StartedBy,
	}
	if err := s.eventPublisher.PublishSessionStarted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SessionStarted event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
