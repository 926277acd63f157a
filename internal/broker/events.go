package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"count-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func sessionKey(sessionID int64) string {
	return fmt.Sprintf("session-%d", sessionID)
}

// PublishSessionStarted publishes SessionStarted event
func (ep *EventPublisher) PublishSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionPaused publishes SessionPaused event
func (ep *EventPublisher) PublishSessionPaused(ctx context.Context, event *models.SessionPausedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionResumed publishes SessionResumed event
func (ep *EventPublisher) PublishSessionResumed(ctx context.Context, event *models.SessionResumedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionCompleted publishes SessionCompleted event
func (ep *EventPublisher) PublishSessionCompleted(ctx context.Context, event *models.SessionCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionApproved publishes SessionApproved event
func (ep *EventPublisher) PublishSessionApproved(ctx context.Context, event *models.SessionApprovedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionFlagged publishes SessionFlagged event
func (ep *EventPublisher) PublishSessionFlagged(ctx context.Context, event *models.SessionFlaggedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishCountRecorded publishes CountRecorded event
func (ep *EventPublisher) PublishCountRecorded(ctx context.Context, event *models.CountRecordedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onCountRecorded    func(context.Context, *models.CountRecordedEvent) error
	onSessionCompleted func(context.Context, *models.SessionCompletedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnCountRecorded registers a handler for CountRecorded events
func (eh *EventHandler) OnCountRecorded(handler func(context.Context, *models.CountRecordedEvent) error) {
	eh.onCountRecorded = handler
}

// OnSessionCompleted registers a handler for SessionCompleted events
func (eh *EventHandler) OnSessionCompleted(handler func(context.Context, *models.SessionCompletedEvent) error) {
	eh.onSessionCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeCountRecorded:
		if eh.onCountRecorded != nil {
			var event models.CountRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CountRecorded event: %w", err)
			}
			return eh.onCountRecorded(ctx, &event)
		}

	case models.EventTypeSessionCompleted:
		if eh.onSessionCompleted != nil {
			var event models.SessionCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SessionCompleted event: %w", err)
			}
			return eh.onSessionCompleted(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
