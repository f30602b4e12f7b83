// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/leadmill/leadmill/pkg/models"

// CreateWorkflowRequest represents the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name          string                `json:"name"           validate:"required,min=3"`
	TriggerType   models.TriggerType    `json:"trigger_type"   validate:"required"`
	TriggerConfig *models.TriggerConfig `json:"trigger_config,omitempty"`
	Steps         []models.Step         `json:"steps,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating a workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name          *string               `json:"name,omitempty"          validate:"omitempty,min=3"`
	TriggerType   *models.TriggerType   `json:"trigger_type,omitempty"`
	TriggerConfig *models.TriggerConfig `json:"trigger_config,omitempty"`
	Steps         *[]models.Step        `json:"steps,omitempty"`
}

// TriggerRequest represents an incoming trigger event.
type TriggerRequest struct {
	TriggerType models.TriggerType `json:"trigger_type" validate:"required"`
	Data        map[string]any     `json:"data"         validate:"required"`
}

// TriggerResponse reports how many enrollments a trigger event created.
type TriggerResponse struct {
	Enrolled int `json:"enrolled"`
}
