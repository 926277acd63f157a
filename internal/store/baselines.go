package store

import (
	"context"
	"fmt"

	"count-service/internal/models"
)

// InsertBaselineItems bulk-inserts the baseline snapshot for a session.
// ON CONFLICT DO NOTHING enforces at most one row per (session, product,
// variant): joining an already-started session never duplicates the snapshot.
func (s *Store) InsertBaselineItems(ctx context.Context, items []models.BaselineItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO baseline_items
			(session_id, product_id, variant_id, expected_qty, expected_liters, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, product_id, variant_id) DO NOTHING`

	for _, item := range items {
		// variant_id is NOT NULL; a variant-less item stores 0, matching the
		// aggregate key space.
		if _, err := tx.ExecContext(ctx, insert,
			item.SessionID, item.ProductID, nullVariant(item.VariantID),
			item.ExpectedQty, item.ExpectedLiters, item.RawPayload); err != nil {
			return fmt.Errorf("failed to insert baseline item: %w", err)
		}
	}

	return tx.Commit()
}

// GetBaselineItems retrieves the baseline snapshot for a session.
func (s *Store) GetBaselineItems(ctx context.Context, sessionID int64) ([]models.BaselineItem, error) {
	var items []models.BaselineItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM baseline_items WHERE session_id = $1 ORDER BY product_id, variant_id",
		sessionID)
	return items, err
}

// posStockRow is one line of the POS-maintained stock level table.
type posStockRow struct {
	ProductID  int64   `db:"product_id"`
	VariantID  int64   `db:"variant_id"`
	Qty        int     `db:"qty"`
	Liters     float64 `db:"liters"`
	RawPayload []byte  `db:"raw_payload"`
}

// GetPOSStockLevels reads the stock levels the external POS sync job
// maintains, filtered by the session scope.
func (s *Store) GetPOSStockLevels(ctx context.Context, scope models.ScopeFilter) ([]models.BaselineItem, error) {
	query := `
		SELECT p.product_id, p.variant_id, p.qty, p.liters, p.raw_payload
		FROM pos_stock_levels p`
	var args []interface{}

	switch scope.Kind {
	case models.ScopeKindCategory:
		in := ""
		for i, id := range scope.CategoryIDs {
			if i > 0 {
				in += ", "
			}
			args = append(args, id)
			in += fmt.Sprintf("$%d", len(args))
		}
		query += " WHERE p.category_id IN (" + in + ")"
	case models.ScopeKindLocation:
		args = append(args, scope.Location)
		query += " WHERE p.location = $1"
	case models.ScopeKindProducts:
		in := ""
		for i, id := range scope.ProductIDs {
			if i > 0 {
				in += ", "
			}
			args = append(args, id)
			in += fmt.Sprintf("$%d", len(args))
		}
		query += " WHERE p.product_id IN (" + in + ")"
	}

	var rows []posStockRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	items := make([]models.BaselineItem, 0, len(rows))
	for _, r := range rows {
		item := models.BaselineItem{
			ProductID:      r.ProductID,
			ExpectedQty:    r.Qty,
			ExpectedLiters: r.Liters,
			RawPayload:     r.RawPayload,
		}
		if r.VariantID != 0 {
			item.VariantID.Valid = true
			item.VariantID.Int64 = r.VariantID
		}
		items = append(items, item)
	}
	return items, nil
}
