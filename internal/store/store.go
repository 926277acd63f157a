package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"count-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateSession inserts a new counting session and fills in the generated
// id, version, and timestamps.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	query := `
		INSERT INTO count_sessions
			(name, session_type, status, description, location_filter, scope_filter,
			 started_by, started_at, total_expected, total_counted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at, updated_at`

	return s.db.GetContext(ctx, sess, query,
		sess.Name, sess.SessionType, sess.Status, sess.Description,
		sess.LocationFilter, sess.ScopeFilter, sess.StartedBy, sess.StartedAt,
		sess.TotalExpected, sess.TotalCounted)
}

// GetSessionByID retrieves a session by ID
func (s *Store) GetSessionByID(ctx context.Context, id int64) (*models.Session, error) {
	var sess models.Session
	err := s.db.GetContext(ctx, &sess, "SELECT * FROM count_sessions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions retrieves sessions, newest first, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, status string, limit, offset int) ([]models.Session, error) {
	var sessions []models.Session
	if status != "" {
		err := s.db.SelectContext(ctx, &sessions,
			"SELECT * FROM count_sessions WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			status, limit, offset)
		return sessions, err
	}
	err := s.db.SelectContext(ctx, &sessions,
		"SELECT * FROM count_sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2",
		limit, offset)
	return sessions, err
}

// sessionTransition is the shared optimistic-concurrency update: the write
// lands only if the session is still in the expected status at the version
// the caller read. Zero rows affected means another writer got there first.
func (s *Store) sessionTransition(ctx context.Context, id int64, expected, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NewConcurrencyConflict(id, expected)
	}
	return nil
}

// IsConflict reports whether err is the optimistic-update precondition failure.
func IsConflict(err error) bool {
	var conflict *models.ConcurrencyConflict
	return errors.As(err, &conflict)
}

// StartSession transitions a DRAFT session to IN_PROGRESS.
func (s *Store) StartSession(ctx context.Context, id, version int64, startedAt time.Time) error {
	return s.sessionTransition(ctx, id, models.SessionStatusDraft, `
		UPDATE count_sessions
		SET status = $1, started_at = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND version = $5`,
		models.SessionStatusInProgress, startedAt, id, models.SessionStatusDraft, version)
}

// SetSessionStatus performs a plain status move (pause/resume) with the
// optimistic precondition.
func (s *Store) SetSessionStatus(ctx context.Context, id, version int64, from, to string) error {
	return s.sessionTransition(ctx, id, from, `
		UPDATE count_sessions
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND version = $4`,
		to, id, from, version)
}

// CompleteSession finalizes the counting window.
func (s *Store) CompleteSession(ctx context.Context, id, version int64, from string, completedBy, durationSeconds int64, totalCounted int, completedAt time.Time) error {
	return s.sessionTransition(ctx, id, from, `
		UPDATE count_sessions
		SET status = $1, completed_by = $2, completed_at = $3, duration_seconds = $4,
		    total_counted = $5, version = version + 1, updated_at = NOW()
		WHERE id = $6 AND status = $7 AND version = $8`,
		models.SessionStatusCompleted, completedBy, completedAt, durationSeconds,
		totalCounted, id, from, version)
}

// ApproveSession marks a completed session approved.
func (s *Store) ApproveSession(ctx context.Context, id, version, approvedBy int64, notes sql.NullString, approvedAt time.Time) error {
	return s.sessionTransition(ctx, id, models.SessionStatusCompleted, `
		UPDATE count_sessions
		SET status = $1, approved_by = $2, approved_at = $3, approval_notes = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND status = $6 AND version = $7`,
		models.SessionStatusApproved, approvedBy, approvedAt, notes,
		id, models.SessionStatusCompleted, version)
}

// FlagSession marks a completed session flagged, recording who flagged it
// and why.
func (s *Store) FlagSession(ctx context.Context, id, version, flaggedBy int64, reason string) error {
	return s.sessionTransition(ctx, id, models.SessionStatusCompleted, `
		UPDATE count_sessions
		SET status = $1, flagged_by = $2, flagged_reason = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND status = $5 AND version = $6`,
		models.SessionStatusFlagged, flaggedBy, reason, id, models.SessionStatusCompleted, version)
}

// SetSessionTotalExpected records the baseline's expected-unit total.
func (s *Store) SetSessionTotalExpected(ctx context.Context, id int64, total int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE count_sessions SET total_expected = $1, updated_at = NOW() WHERE id = $2",
		total, id)
	return err
}

// GetProductByID retrieves a catalog product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("product", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// IsEventProcessed checks if a broker event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a broker event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
