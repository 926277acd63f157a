package models

import (
	"database/sql"
	"time"
)

// Session statuses
const (
	SessionStatusDraft      = "DRAFT"
	SessionStatusInProgress = "IN_PROGRESS"
	SessionStatusPaused     = "PAUSED"
	SessionStatusCompleted  = "COMPLETED"
	SessionStatusApproved   = "APPROVED"
	SessionStatusFlagged    = "FLAGGED"
)

// Session types
const (
	SessionTypeFull    = "FULL"
	SessionTypePartial = "PARTIAL"
	SessionTypeSpot    = "SPOT"
)

// Count event sources
const (
	CountSourceManual  = "MANUAL"
	CountSourceBarcode = "BARCODE"
	CountSourceImage   = "IMAGE"
)

// Variance severities
const (
	SeverityMatch = "MATCH"
	SeverityMinor = "MINOR"
	SeverityMajor = "MAJOR"
)

// sessionTransitions holds the legal status transitions. Terminal states
// (APPROVED, FLAGGED) have no outgoing edges.
var sessionTransitions = map[string][]string{
	SessionStatusDraft:      {SessionStatusInProgress},
	SessionStatusInProgress: {SessionStatusPaused, SessionStatusCompleted},
	SessionStatusPaused:     {SessionStatusInProgress, SessionStatusCompleted},
	SessionStatusCompleted:  {SessionStatusApproved, SessionStatusFlagged},
}

// CanTransition reports whether moving a session from one status to another
// is legal.
func CanTransition(from, to string) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a session status has no outgoing transitions.
func IsTerminalStatus(status string) bool {
	return len(sessionTransitions[status]) == 0 && (status == SessionStatusApproved || status == SessionStatusFlagged)
}

// ValidSessionType reports whether t is a known session type.
func ValidSessionType(t string) bool {
	return t == SessionTypeFull || t == SessionTypePartial || t == SessionTypeSpot
}

// ValidCountSource reports whether s is a known count source.
func ValidCountSource(s string) bool {
	return s == CountSourceManual || s == CountSourceBarcode || s == CountSourceImage
}

// Session represents one bounded inventory counting exercise.
type Session struct {
	ID              int64           `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	SessionType     string          `db:"session_type" json:"session_type"`
	Status          string          `db:"status" json:"status"`
	Description     sql.NullString  `db:"description" json:"description,omitempty"`
	LocationFilter  sql.NullString  `db:"location_filter" json:"location_filter,omitempty"`
	ScopeFilter     []byte          `db:"scope_filter" json:"scope_filter,omitempty"`
	StartedBy       int64           `db:"started_by" json:"started_by"`
	CompletedBy     sql.NullInt64   `db:"completed_by" json:"completed_by,omitempty"`
	ApprovedBy      sql.NullInt64   `db:"approved_by" json:"approved_by,omitempty"`
	StartedAt       sql.NullTime    `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     sql.NullTime    `db:"completed_at" json:"completed_at,omitempty"`
	ApprovedAt      sql.NullTime    `db:"approved_at" json:"approved_at,omitempty"`
	DurationSeconds sql.NullInt64   `db:"duration_seconds" json:"duration_seconds,omitempty"`
	TotalExpected   int             `db:"total_expected" json:"total_expected"`
	TotalCounted    int             `db:"total_counted" json:"total_counted"`
	FlaggedBy       sql.NullInt64   `db:"flagged_by" json:"flagged_by,omitempty"`
	FlaggedReason   sql.NullString  `db:"flagged_reason" json:"flagged_reason,omitempty"`
	ApprovalNotes   sql.NullString  `db:"approval_notes" json:"approval_notes,omitempty"`
	Version         int64           `db:"version" json:"version"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// BaselineItem is the expected quantity for one (product, variant) pair,
// snapshotted once when a session starts. Immutable afterward.
type BaselineItem struct {
	ID             int64         `db:"id" json:"id"`
	SessionID      int64         `db:"session_id" json:"session_id"`
	ProductID      int64         `db:"product_id" json:"product_id"`
	VariantID      sql.NullInt64 `db:"variant_id" json:"variant_id,omitempty"`
	ExpectedQty    int           `db:"expected_qty" json:"expected_qty"`
	ExpectedLiters float64       `db:"expected_liters" json:"expected_liters"`
	RawPayload     []byte        `db:"raw_payload" json:"raw_payload,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// CountEvent is a single immutable count observation. Corrections are new
// events, never mutations.
type CountEvent struct {
	ID            int64           `db:"id" json:"id"`
	SessionID     int64           `db:"session_id" json:"session_id"`
	ProductID     int64           `db:"product_id" json:"product_id"`
	VariantID     sql.NullInt64   `db:"variant_id" json:"variant_id,omitempty"`
	OperatorID    int64           `db:"operator_id" json:"operator_id"`
	BottleQty     int             `db:"bottle_qty" json:"bottle_qty"`
	OpenML        sql.NullFloat64 `db:"open_ml" json:"open_ml,omitempty"`
	DerivedLiters float64         `db:"derived_liters" json:"derived_liters"`
	Source        string          `db:"source" json:"source"`
	Confidence    sql.NullFloat64 `db:"confidence" json:"confidence,omitempty"`
	PhotoURL      sql.NullString  `db:"photo_url" json:"photo_url,omitempty"`
	Note          sql.NullString  `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// AggregateKey identifies one running total within a session. VariantID is 0
// for products counted without a variant.
type AggregateKey struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
}

// ProductAggregate is the materialized running total for one
// (session, product, variant). Derived cache: always re-derivable from the
// count event log.
type ProductAggregate struct {
	SessionID     int64     `db:"session_id" json:"session_id"`
	ProductID     int64     `db:"product_id" json:"product_id"`
	VariantID     int64     `db:"variant_id" json:"variant_id"`
	CountedQty    int       `db:"counted_qty" json:"counted_qty"`
	CountedLiters float64   `db:"counted_liters" json:"counted_liters"`
	EventCount    int       `db:"event_count" json:"event_count"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the aggregate's map key.
func (a ProductAggregate) Key() AggregateKey {
	return AggregateKey{ProductID: a.ProductID, VariantID: a.VariantID}
}

// Product is the catalog entry counts are recorded against. UnitVolumeLiters
// is the full-bottle volume used for derived-liters computation.
type Product struct {
	ID               int64     `db:"id" json:"id"`
	SKU              string    `db:"sku" json:"sku"`
	Name             string    `db:"name" json:"name"`
	CategoryID       int64     `db:"category_id" json:"category_id"`
	UnitVolumeLiters float64   `db:"unit_volume_liters" json:"unit_volume_liters"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// DiffRow is one line of the baseline-vs-counted reconciliation table.
type DiffRow struct {
	ProductID      int64   `json:"product_id"`
	VariantID      int64   `json:"variant_id"`
	ExpectedQty    int     `json:"expected_qty"`
	CountedQty     int     `json:"counted_qty"`
	VarianceQty    int     `json:"variance_qty"`
	ExpectedLiters float64 `json:"expected_liters"`
	CountedLiters  float64 `json:"counted_liters"`
	VarianceLiters float64 `json:"variance_liters"`
	EventCount     int     `json:"event_count"`
	Severity       string  `json:"severity"`
}

// OperatorTally is one operator's totals for a single (product, variant).
type OperatorTally struct {
	Qty    int     `json:"qty"`
	Liters float64 `json:"liters"`
	Count  int     `json:"count"`
}

// Summary holds session-level reconciliation statistics.
type Summary struct {
	TotalExpected    int     `json:"total_expected"`
	TotalCounted     int     `json:"total_counted"`
	TotalVariance    int     `json:"total_variance"`
	RowsWithVariance int     `json:"rows_with_variance"`
	MatchRows        int     `json:"match_rows"`
	MinorRows        int     `json:"minor_rows"`
	MajorRows        int     `json:"major_rows"`
	VarianceLiters   float64 `json:"variance_liters"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
