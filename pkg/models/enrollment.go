package models

import "time"

// EnrollmentStatus represents the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusExited    EnrollmentStatus = "exited"
)

// Enrollment records one customer's progress through one workflow. It is
// created by the trigger matcher and afterwards mutated exclusively by the
// step executor; once the status is completed or exited the record is
// terminal.
type Enrollment struct {
	ID          string           `json:"id"`
	StoreID     string           `json:"store_id"`
	WorkflowID  string           `json:"workflow_id"`
	CustomerID  string           `json:"customer_id"`
	Status      EnrollmentStatus `json:"status"`
	CurrentStep int              `json:"current_step"`
	// NextStepAt defers processing when set and in the future. Nil means
	// immediately eligible.
	NextStepAt *time.Time `json:"next_step_at,omitempty"`
	LastStepAt *time.Time `json:"last_step_at,omitempty"`
	// ProcessingUntil is the claim lease stamped by the poller so that
	// overlapping invocations do not process the same enrollment twice.
	ProcessingUntil *time.Time     `json:"processing_until,omitempty"`
	TriggerData     map[string]any `json:"trigger_data,omitempty"`
	ExitReason      *string        `json:"exit_reason,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	// DedupKey enforces at-most-one active enrollment per (workflow,
	// customer) at the storage layer. Re-enrollable workflows use the
	// enrollment ID so the unique index never collides.
	DedupKey  string    `json:"dedup_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the enrollment reached a final status.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentStatusCompleted || e.Status == EnrollmentStatusExited
}

// EnrollmentDedupKey builds the storage-level dedup key for non-re-enrollable
// workflows.
func EnrollmentDedupKey(workflowID, customerID string) string {
	return workflowID + ":" + customerID
}

// StepLogStatus is the outcome of a single step execution attempt.
type StepLogStatus string

const (
	StepLogStatusSuccess StepLogStatus = "success"
	StepLogStatusFailed  StepLogStatus = "failed"
)

// StepLog is a write-only audit record, one per step execution attempt,
// including flow-control steps.
type StepLog struct {
	ID           string         `json:"id"`
	StoreID      string         `json:"store_id"`
	WorkflowID   string         `json:"workflow_id"`
	EnrollmentID string         `json:"enrollment_id"`
	CustomerID   string         `json:"customer_id"`
	StepIndex    int            `json:"step_index"`
	StepType     StepType       `json:"step_type"`
	Status       StepLogStatus  `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
