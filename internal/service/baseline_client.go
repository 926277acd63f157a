package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"count-service/internal/models"
	"count-service/internal/store"
	"count-service/internal/util"

	"go.uber.org/zap"
)

// BaselineProvider supplies the expected quantity per product for a session
// scope. The snapshot is pulled once, at session start; the core never calls
// back into the provider afterward.
type BaselineProvider interface {
	Snapshot(ctx context.Context, scope models.ScopeFilter) ([]models.BaselineItem, error)
}

// POSBaselineProvider reads the stock levels the external POS sync job
// maintains.
type POSBaselineProvider struct {
	store *store.Store
}

// NewPOSBaselineProvider creates a POS-backed baseline provider
func NewPOSBaselineProvider(store *store.Store) *POSBaselineProvider {
	return &POSBaselineProvider{store: store}
}

// Snapshot reads the current POS stock levels for the scope.
func (p *POSBaselineProvider) Snapshot(ctx context.Context, scope models.ScopeFilter) ([]models.BaselineItem, error) {
	return p.store.GetPOSStockLevels(ctx, scope)
}

// PriorSessionBaselineProvider uses a finished session's counted totals as
// the expected quantities for a new session.
type PriorSessionBaselineProvider struct {
	store          *store.Store
	priorSessionID int64
}

// NewPriorSessionBaselineProvider creates a provider backed by an earlier
// session's aggregates.
func NewPriorSessionBaselineProvider(store *store.Store, priorSessionID int64) *PriorSessionBaselineProvider {
	return &PriorSessionBaselineProvider{store: store, priorSessionID: priorSessionID}
}

// Snapshot converts the prior session's aggregates into baseline rows. The
// scope filter is ignored: the prior session already bounded its products.
func (p *PriorSessionBaselineProvider) Snapshot(ctx context.Context, _ models.ScopeFilter) ([]models.BaselineItem, error) {
	prior, err := p.store.GetSessionByID(ctx, p.priorSessionID)
	if err != nil {
		return nil, err
	}
	if prior.Status != models.SessionStatusApproved && prior.Status != models.SessionStatusCompleted {
		return nil, models.NewInvalidStateError(p.priorSessionID, prior.Status, "use as baseline")
	}

	aggs, err := p.store.GetAggregates(ctx, p.priorSessionID)
	if err != nil {
		return nil, err
	}

	items := make([]models.BaselineItem, 0, len(aggs))
	for _, agg := range aggs {
		raw, _ := json.Marshal(map[string]int64{"prior_session_id": p.priorSessionID})
		item := models.BaselineItem{
			ProductID:      agg.ProductID,
			ExpectedQty:    agg.CountedQty,
			ExpectedLiters: agg.CountedLiters,
			RawPayload:     raw,
		}
		if agg.VariantID != 0 {
			item.VariantID = sql.NullInt64{Int64: agg.VariantID, Valid: true}
		}
		items = append(items, item)
	}
	return items, nil
}

// BaselineClient captures the baseline snapshot for a session and records the
// expected-unit total on the session row.
type BaselineClient struct {
	provider BaselineProvider
	store    *store.Store
	logger   *zap.Logger
}

// NewBaselineClient creates a new baseline client
func NewBaselineClient(provider BaselineProvider, store *store.Store) *BaselineClient {
	return &BaselineClient{
		provider: provider,
		store:    store,
		logger:   util.GetLogger(),
	}
}

// CaptureBaseline pulls a snapshot for the scope and bulk-inserts it. The
// unique (session, product, variant) constraint makes a second capture (a
// late joiner) a no-op.
func (c *BaselineClient) CaptureBaseline(ctx context.Context, sessionID int64, scope models.ScopeFilter) error {
	ctx, span := util.StartSpan(ctx, "BaselineClient.CaptureBaseline")
	defer span.End()

	items, err := c.provider.Snapshot(ctx, scope)
	if err != nil {
		return fmt.Errorf("baseline snapshot failed: %w", err)
	}

	totalExpected := 0
	for i := range items {
		items[i].SessionID = sessionID
		totalExpected += items[i].ExpectedQty
	}

	if err := c.store.InsertBaselineItems(ctx, items); err != nil {
		return fmt.Errorf("failed to store baseline items: %w", err)
	}

	if err := c.store.SetSessionTotalExpected(ctx, sessionID, totalExpected); err != nil {
		return fmt.Errorf("failed to set expected total: %w", err)
	}

	util.BaselineItemsCaptured.Add(float64(len(items)))
	c.logger.Info("Baseline captured",
		zap.Int64("session_id", sessionID),
		zap.Int("items", len(items)),
		zap.Int("total_expected", totalExpected))

	return nil
}
