package models

import "time"

// Event types
const (
	EventTypeSessionStarted   = "SESSION_STARTED"
	EventTypeSessionPaused    = "SESSION_PAUSED"
	EventTypeSessionResumed   = "SESSION_RESUMED"
	EventTypeSessionCompleted = "SESSION_COMPLETED"
	EventTypeSessionApproved  = "SESSION_APPROVED"
	EventTypeSessionFlagged   = "SESSION_FLAGGED"
	EventTypeCountRecorded    = "COUNT_RECORDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStartedEvent published when counting begins
type SessionStartedEvent struct {
	BaseEvent
	SessionID   int64  `json:"session_id"`
	SessionType string `json:"session_type"`
	StartedBy   int64  `json:"started_by"`
}

// SessionPausedEvent published when counting is suspended
type SessionPausedEvent struct {
	BaseEvent
	SessionID int64 `json:"session_id"`
}

// SessionResumedEvent published when counting resumes after a pause
type SessionResumedEvent struct {
	BaseEvent
	SessionID int64 `json:"session_id"`
}

// SessionCompletedEvent published when the counting window closes
type SessionCompletedEvent struct {
	BaseEvent
	SessionID       int64 `json:"session_id"`
	CompletedBy     int64 `json:"completed_by"`
	DurationSeconds int64 `json:"duration_seconds"`
	TotalCounted    int   `json:"total_counted"`
}

// SessionApprovedEvent published when a manager signs off a completed session
type SessionApprovedEvent struct {
	BaseEvent
	SessionID  int64 `json:"session_id"`
	ApprovedBy int64 `json:"approved_by"`
}

// SessionFlaggedEvent published when a manager rejects a completed session
type SessionFlaggedEvent struct {
	BaseEvent
	SessionID int64  `json:"session_id"`
	FlaggedBy int64  `json:"flagged_by"`
	Reason    string `json:"reason"`
}

// CountRecordedEvent published for every appended count observation
type CountRecordedEvent struct {
	BaseEvent
	CountID       int64   `json:"count_id"`
	SessionID     int64   `json:"session_id"`
	ProductID     int64   `json:"product_id"`
	VariantID     int64   `json:"variant_id"`
	OperatorID    int64   `json:"operator_id"`
	BottleQty     int     `json:"bottle_qty"`
	DerivedLiters float64 `json:"derived_liters"`
	Source        string  `json:"source"`
	LateCount     bool    `json:"late_count"`
}
