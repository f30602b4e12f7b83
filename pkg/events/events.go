// Package events defines the event types published on the engine's bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadmill/leadmill/pkg/models"
)

type EventType string

// Topic carries every engine event.
const Topic = "leadmill.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// TriggerReceivedEvent is published when a producer (API, cart
	// detector, external emitter) hands a trigger event to the engine.
	TriggerReceivedEvent EventType = "trigger.received"

	// Enrollment lifecycle events, published best effort for external
	// reporting consumers.
	EnrollmentCreatedEvent   EventType = "enrollment.created"
	EnrollmentCompletedEvent EventType = "enrollment.completed"
	EnrollmentExitedEvent    EventType = "enrollment.exited"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	StoreID   string         `json:"store_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the shared envelope for an event.
func NewBaseEvent(eventType EventType, storeID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		StoreID:   storeID,
	}
}

// TriggerReceived carries a business event into the trigger matcher.
type TriggerReceived struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
	TriggerData map[string]any     `json:"trigger_data,omitempty"`
}

func (t TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

// NewTriggerReceived creates a trigger.received event.
func NewTriggerReceived(storeID string, triggerType models.TriggerType, triggerData map[string]any) TriggerReceived {
	return TriggerReceived{
		BaseEvent:   NewBaseEvent(TriggerReceivedEvent, storeID),
		TriggerType: triggerType,
		TriggerData: triggerData,
	}
}

// EnrollmentCreated is published after the trigger matcher enrolls a
// customer.
type EnrollmentCreated struct {
	BaseEvent

	WorkflowID   string             `json:"workflow_id"`
	EnrollmentID string             `json:"enrollment_id"`
	CustomerID   string             `json:"customer_id"`
	TriggerType  models.TriggerType `json:"trigger_type"`
}

func (e EnrollmentCreated) GetType() EventType {
	return EnrollmentCreatedEvent
}

// EnrollmentCompleted is published when an enrollment walks past its last
// step.
type EnrollmentCompleted struct {
	BaseEvent

	WorkflowID   string `json:"workflow_id"`
	EnrollmentID string `json:"enrollment_id"`
	CustomerID   string `json:"customer_id"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}

// EnrollmentExited is published when an enrollment is terminated by an exit
// step or an action result.
type EnrollmentExited struct {
	BaseEvent

	WorkflowID   string `json:"workflow_id"`
	EnrollmentID string `json:"enrollment_id"`
	CustomerID   string `json:"customer_id"`
	ExitReason   string `json:"exit_reason,omitempty"`
}

func (e EnrollmentExited) GetType() EventType {
	return EnrollmentExitedEvent
}
