package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadmill/leadmill/pkg/conditions"
	"github.com/leadmill/leadmill/pkg/eventbus"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// TriggerMatcher enrolls customers into workflows when a trigger event
// arrives. One event can enroll the customer into several workflows; a
// failure on one workflow never blocks the others.
type TriggerMatcher struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	now         func() time.Time
}

// NewTriggerMatcher creates a trigger matcher. publisher may be nil; then
// enrollment lifecycle events are not emitted.
func NewTriggerMatcher(logger *slog.Logger, persistence persistence.Persistence, publisher eventbus.EventPublisher) *TriggerMatcher {
	return &TriggerMatcher{
		logger:      logger.With("module", "trigger_matcher"),
		persistence: persistence,
		publisher:   publisher,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HandleTrigger matches one trigger event against the store's active
// workflows and returns how many enrollments it created. Events without a
// customer ID are skipped rather than failed: they can never enroll anyone,
// and failing them would keep an unfixable event redelivering on the bus.
func (m *TriggerMatcher) HandleTrigger(ctx context.Context, storeID string, triggerType models.TriggerType, data map[string]any) (int, error) {
	if !models.IsValidTriggerType(triggerType) {
		return 0, NewValidationError("unsupported trigger type %q", triggerType)
	}

	customerID, _ := data["customer_id"].(string)
	if customerID == "" {
		m.logger.Warn("Skipping trigger without customer_id",
			"store_id", storeID,
			"trigger_type", triggerType)

		return 0, nil
	}

	workflows, err := m.persistence.WorkflowRepository().GetActiveByTrigger(ctx, storeID, triggerType)
	if err != nil {
		return 0, fmt.Errorf("failed to load active workflows: %w", err)
	}

	enrolled := 0

	for _, workflow := range workflows {
		created, err := m.enroll(ctx, workflow, triggerType, customerID, data)
		if err != nil {
			m.logger.Error("Failed to process trigger for workflow",
				"store_id", storeID,
				"workflow_id", workflow.ID,
				"trigger_type", triggerType,
				"error", err)

			continue
		}

		if created {
			enrolled++
		}
	}

	return enrolled, nil
}

func (m *TriggerMatcher) enroll(ctx context.Context, workflow *models.Workflow, triggerType models.TriggerType, customerID string, data map[string]any) (bool, error) {
	logger := m.logger.With("store_id", workflow.StoreID, "workflow_id", workflow.ID)

	if !conditions.MatchesTriggerConditions(logger, workflow.TriggerConditions(), data) {
		return false, nil
	}

	enrollments := m.persistence.EnrollmentRepository()

	// Fast-path dedup; the storage-level unique index is the authority under
	// concurrency.
	if !workflow.AllowsReEnrollment() {
		active, err := enrollments.GetActive(ctx, workflow.StoreID, workflow.ID, customerID)
		if err != nil {
			return false, fmt.Errorf("failed to check active enrollment: %w", err)
		}

		if active != nil {
			return false, nil
		}
	}

	email := m.resolveEmail(ctx, workflow.StoreID, customerID, data)
	if email != "" {
		unsubscribed, err := m.persistence.UnsubscribeRepository().IsUnsubscribed(ctx, workflow.StoreID, email)
		if err != nil {
			return false, fmt.Errorf("failed to check unsubscribe status: %w", err)
		}

		if unsubscribed {
			logger.Debug("Skipping enrollment for unsubscribed customer", "customer_id", customerID)

			return false, nil
		}
	}

	now := m.now()

	enrollment := &models.Enrollment{
		ID:          uuid.New().String(),
		StoreID:     workflow.StoreID,
		WorkflowID:  workflow.ID,
		CustomerID:  customerID,
		Status:      models.EnrollmentStatusActive,
		CurrentStep: 0,
		TriggerData: data,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if workflow.AllowsReEnrollment() {
		enrollment.DedupKey = enrollment.ID
	} else {
		enrollment.DedupKey = models.EnrollmentDedupKey(workflow.ID, customerID)
	}

	if err := enrollments.Create(ctx, enrollment); err != nil {
		if persistence.IsDuplicateEnrollment(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to create enrollment: %w", err)
	}

	logger.Info("Enrolled customer into workflow",
		"customer_id", customerID,
		"enrollment_id", enrollment.ID,
		"trigger_type", triggerType)

	m.publish(ctx, enrollment.ID, events.EnrollmentCreated{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentCreatedEvent, workflow.StoreID),
		WorkflowID:   workflow.ID,
		EnrollmentID: enrollment.ID,
		CustomerID:   customerID,
		TriggerType:  triggerType,
	})

	return true, nil
}

// resolveEmail finds the customer's address for the unsubscribe check,
// preferring the customer record over the trigger data bag.
func (m *TriggerMatcher) resolveEmail(ctx context.Context, storeID, customerID string, data map[string]any) string {
	customer, err := m.persistence.CustomerRepository().GetByID(ctx, storeID, customerID)
	if err == nil && customer.Email != "" {
		return customer.Email
	}

	email, _ := data["email"].(string)

	return email
}

func (m *TriggerMatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.Warn("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
