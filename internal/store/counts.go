package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"count-service/internal/models"
)

// nullVariant maps a nullable variant column to the key space used by
// aggregates and baselines, where "no variant" is 0.
func nullVariant(v sql.NullInt64) int64 {
	if v.Valid {
		return v.Int64
	}
	return 0
}

// RecordCountTx appends a count event and folds it into the product aggregate
// in a single transaction. Either both land or neither does; there is no state
// where an event exists but aggregation was skipped.
func (s *Store) RecordCountTx(ctx context.Context, ev *models.CountEvent) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insertEvent := `
		INSERT INTO count_events
			(session_id, product_id, variant_id, operator_id, bottle_qty, open_ml,
			 derived_liters, source, confidence, photo_url, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	if err := tx.GetContext(ctx, ev, insertEvent,
		ev.SessionID, ev.ProductID, ev.VariantID, ev.OperatorID, ev.BottleQty,
		ev.OpenML, ev.DerivedLiters, ev.Source, ev.Confidence, ev.PhotoURL, ev.Note); err != nil {
		return fmt.Errorf("failed to insert count event: %w", err)
	}

	// Atomic keyed increment: commutative, so concurrent operators never
	// conflict regardless of apply order.
	upsert := `
		INSERT INTO product_aggregates
			(session_id, product_id, variant_id, counted_qty, counted_liters, event_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW())
		ON CONFLICT (session_id, product_id, variant_id) DO UPDATE SET
			counted_qty    = product_aggregates.counted_qty + EXCLUDED.counted_qty,
			counted_liters = product_aggregates.counted_liters + EXCLUDED.counted_liters,
			event_count    = product_aggregates.event_count + 1,
			updated_at     = NOW()`

	if _, err := tx.ExecContext(ctx, upsert,
		ev.SessionID, ev.ProductID, nullVariant(ev.VariantID), ev.BottleQty, ev.DerivedLiters); err != nil {
		return fmt.Errorf("failed to upsert aggregate: %w", err)
	}

	return tx.Commit()
}

// CountEventFilter narrows ListCountEvents output.
type CountEventFilter struct {
	ProductID  int64
	OperatorID int64
	Limit      int
	Offset     int
}

// ListCountEvents retrieves count events for a session in creation order.
func (s *Store) ListCountEvents(ctx context.Context, sessionID int64, filter CountEventFilter) ([]models.CountEvent, error) {
	query := "SELECT * FROM count_events WHERE session_id = $1"
	args := []interface{}{sessionID}

	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += " AND product_id = $" + strconv.Itoa(len(args))
	}
	if filter.OperatorID != 0 {
		args = append(args, filter.OperatorID)
		query += " AND operator_id = $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY created_at, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	var events []models.CountEvent
	err := s.db.SelectContext(ctx, &events, query, args...)
	return events, err
}

// GetAggregates retrieves the cached per-product totals for a session.
func (s *Store) GetAggregates(ctx context.Context, sessionID int64) ([]models.ProductAggregate, error) {
	var aggs []models.ProductAggregate
	err := s.db.SelectContext(ctx, &aggs,
		"SELECT * FROM product_aggregates WHERE session_id = $1 ORDER BY product_id, variant_id",
		sessionID)
	return aggs, err
}

// RecomputeAggregates rebuilds per-product totals straight from the event log,
// bypassing the cache.
func (s *Store) RecomputeAggregates(ctx context.Context, sessionID int64) ([]models.ProductAggregate, error) {
	var aggs []models.ProductAggregate
	err := s.db.SelectContext(ctx, &aggs, `
		SELECT session_id, product_id, COALESCE(variant_id, 0) AS variant_id,
		       SUM(bottle_qty) AS counted_qty,
		       SUM(derived_liters) AS counted_liters,
		       COUNT(*) AS event_count,
		       MAX(created_at) AS updated_at
		FROM count_events
		WHERE session_id = $1
		GROUP BY session_id, product_id, COALESCE(variant_id, 0)
		ORDER BY product_id, variant_id`,
		sessionID)
	return aggs, err
}

// ReplaceAggregates overwrites the cached aggregates for a session with the
// given rows (cache repair path).
func (s *Store) ReplaceAggregates(ctx context.Context, sessionID int64, aggs []models.ProductAggregate) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM product_aggregates WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}

	insert := `
		INSERT INTO product_aggregates
			(session_id, product_id, variant_id, counted_qty, counted_liters, event_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	for _, agg := range aggs {
		if _, err := tx.ExecContext(ctx, insert,
			sessionID, agg.ProductID, agg.VariantID,
			agg.CountedQty, agg.CountedLiters, agg.EventCount); err != nil {
			return fmt.Errorf("failed to insert aggregate: %w", err)
		}
	}

	return tx.Commit()
}
