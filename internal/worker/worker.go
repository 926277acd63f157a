package worker

import (
	"context"
	"log"

	"count-service/internal/broker"
	"count-service/internal/service"
)

// ProjectionWorker feeds the count event stream into the live-counter
// projection.
type ProjectionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	projector    *service.Projector
}

// NewProjectionWorker creates a new projection worker
func NewProjectionWorker(consumer *broker.Consumer, projector *service.Projector) *ProjectionWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnCountRecorded(projector.HandleCountRecorded)

	return &ProjectionWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		projector:    projector,
	}
}

// Start starts the worker
func (w *ProjectionWorker) Start(ctx context.Context) error {
	log.Println("Starting projection worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProjectionWorker) Stop() error {
	log.Println("Stopping projection worker...")
	return w.consumer.Close()
}

// AuditWorker verifies completed sessions' aggregates against the event log.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	projector    *service.Projector
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, projector *service.Projector) *AuditWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSessionCompleted(projector.HandleSessionCompleted)

	return &AuditWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		projector:    projector,
	}
}

// Start starts the audit worker
func (w *AuditWorker) Start(ctx context.Context) error {
	log.Println("Starting audit worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the audit worker
func (w *AuditWorker) Stop() error {
	log.Println("Stopping audit worker...")
	return w.consumer.Close()
}
