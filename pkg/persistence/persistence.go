// Package persistence provides the data storage abstraction layer for
// workflows, enrollments, step logs and the collaborator-owned records the
// engine reads.
package persistence

import (
	"context"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
)

// Persistence aggregates the repositories behind a single connection
// lifecycle.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	EnrollmentRepository() EnrollmentRepository
	StepLogRepository() StepLogRepository
	CustomerRepository() CustomerRepository
	CartRepository() CartRepository
	UnsubscribeRepository() UnsubscribeRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context, storeID string) ([]*models.Workflow, error)
	GetByID(ctx context.Context, storeID, id string) (*models.Workflow, error)
	// GetActiveByTrigger returns the store's active workflows subscribed to
	// the given trigger type.
	GetActiveByTrigger(ctx context.Context, storeID string, trigger models.TriggerType) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, storeID, id string) error
	// StoreIDs returns every store that owns at least one workflow, for the
	// poller to iterate.
	StoreIDs(ctx context.Context) ([]string, error)
}

// EnrollmentRepository persists enrollments and implements the pending-claim
// lease.
type EnrollmentRepository interface {
	// Create inserts a new enrollment atomically. It returns
	// ErrDuplicateEnrollment when the dedup key collides with an existing
	// active enrollment.
	Create(ctx context.Context, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, storeID, id string) (*models.Enrollment, error)
	// GetActive returns the customer's active enrollment in the workflow,
	// or nil when there is none.
	GetActive(ctx context.Context, storeID, workflowID, customerID string) (*models.Enrollment, error)
	ListByWorkflow(ctx context.Context, storeID, workflowID string) ([]*models.Enrollment, error)
	// ClaimPending atomically selects up to limit enrollments that are
	// active, eligible (next_step_at null or <= now) and unclaimed
	// (processing lease absent or expired), stamping processing_until =
	// now + lease on each before returning them. Two concurrent callers
	// never receive the same enrollment.
	ClaimPending(ctx context.Context, storeID string, now time.Time, lease time.Duration, limit int) ([]*models.Enrollment, error)
	// Update persists the enrollment's mutable fields and clears the
	// processing lease.
	Update(ctx context.Context, enrollment *models.Enrollment) error
	// Release clears the processing lease without any other change, used
	// when a claimed enrollment is skipped (e.g. its workflow is paused).
	Release(ctx context.Context, storeID, id string) error
}

// StepLogRepository appends and reads the write-only audit trail.
type StepLogRepository interface {
	Append(ctx context.Context, entry *models.StepLog) error
	ListByEnrollment(ctx context.Context, storeID, enrollmentID string) ([]*models.StepLog, error)
}

// CustomerRepository reads collaborator-owned customer records.
type CustomerRepository interface {
	GetByID(ctx context.Context, storeID, customerID string) (*models.Customer, error)
}

// CartRepository reads collaborator-owned carts for the abandoned cart scan.
type CartRepository interface {
	// Abandoned returns carts with a customer attached, last updated inside
	// the (idleSince, idleBefore] window and not yet flagged.
	Abandoned(ctx context.Context, storeID string, idleSince, idleBefore time.Time) ([]*models.Cart, error)
	// MarkAbandonedEmailSent flips the processed flag. Monotonic, never
	// reversed by this engine.
	MarkAbandonedEmailSent(ctx context.Context, storeID, cartID string) error
}

// UnsubscribeRepository consults the opaque unsubscribe list.
type UnsubscribeRepository interface {
	IsUnsubscribed(ctx context.Context, storeID, email string) (bool, error)
}
