package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "count_sessions_created_total",
		Help: "Total number of counting sessions created",
	})

	SessionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "count_sessions_completed_total",
		Help: "Total number of counting sessions completed",
	})

	SessionsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "count_sessions_approved_total",
		Help: "Total number of counting sessions approved",
	})

	SessionsFlaggedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "count_sessions_flagged_total",
		Help: "Total number of counting sessions flagged",
	})

	SessionTransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "count_session_transition_conflicts_total",
		Help: "Total number of optimistic session status updates that lost the race",
	})

	SessionTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "count_session_transitions_rejected_total",
		Help: "Total number of illegal session transitions rejected",
	}, []string{"op"})

	CountsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "count_events_recorded_total",
		Help: "Total number of count events appended",
	}, []string{"source"})

	CountsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "count_events_rejected_total",
		Help: "Total number of count events rejected",
	}, []string{"reason"})

	CountRecordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "count_record_latency_seconds",
		Help:    "Latency of recording and aggregating one count event",
		Buckets: prometheus.DefBuckets,
	})

	AggregateDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregate_drift_detected_total",
		Help: "Total number of cached aggregates that disagreed with the event log",
	})

	AggregateRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregate_repairs_total",
		Help: "Total number of aggregate cache rebuilds from the event log",
	})

	BaselineItemsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "baseline_items_captured_total",
		Help: "Total number of baseline items snapshotted at session start",
	})

	LateCountsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "late_counts_total",
		Help: "Total number of count events accepted after session completion",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
