// Package models defines the core domain models for the marketing automation engine.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"  // Editable, never matched against triggers
	WorkflowStatusActive WorkflowStatus = "active" // Matched against triggers, enrollments processed
	WorkflowStatusPaused WorkflowStatus = "paused" // Enrollments kept but left pending
)

// TriggerType categorizes the external events that can start an enrollment.
type TriggerType string

const (
	TriggerCustomerCreated  TriggerType = "customer_created"
	TriggerOrderPlaced      TriggerType = "order_placed"
	TriggerAbandonedCart    TriggerType = "abandoned_cart"
	TriggerTagAdded         TriggerType = "tag_added"
	TriggerSegmentJoined    TriggerType = "segment_joined"
	TriggerCustomerBirthday TriggerType = "customer_birthday"
)

// TriggerTypes lists every supported trigger type.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerCustomerCreated,
		TriggerOrderPlaced,
		TriggerAbandonedCart,
		TriggerTagAdded,
		TriggerSegmentJoined,
		TriggerCustomerBirthday,
	}
}

// IsValidTriggerType reports whether t is a supported trigger type.
func IsValidTriggerType(t TriggerType) bool {
	for _, known := range TriggerTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// Condition is a single predicate evaluated against a data bag.
type Condition struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value"`
}

// TriggerConfig narrows which events enroll customers into a workflow.
// Conditions are combined with an implicit AND; an empty list matches
// every event of the workflow's trigger type.
type TriggerConfig struct {
	Conditions        []Condition `json:"conditions,omitempty"`
	AllowReEnrollment bool        `json:"allow_re_enrollment,omitempty"`
}

// Workflow is a store-owned sequence of steps started by a trigger event.
type Workflow struct {
	ID            string         `json:"id"`
	StoreID       string         `json:"store_id"       validate:"required"`
	Name          string         `json:"name"           validate:"required,min=3"`
	TriggerType   TriggerType    `json:"trigger_type"   validate:"required"`
	TriggerConfig *TriggerConfig `json:"trigger_config,omitempty"`
	Steps         []Step         `json:"steps"`
	Status        WorkflowStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AllowsReEnrollment reports whether a customer with an active enrollment
// may be enrolled again by a later event.
func (w *Workflow) AllowsReEnrollment() bool {
	return w.TriggerConfig != nil && w.TriggerConfig.AllowReEnrollment
}

// TriggerConditions returns the configured trigger predicates, if any.
func (w *Workflow) TriggerConditions() []Condition {
	if w.TriggerConfig == nil {
		return nil
	}

	return w.TriggerConfig.Conditions
}
