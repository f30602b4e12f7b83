// Package schema validates step configurations at workflow save time so that
// authoring mistakes surface before any enrollment reaches them.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/leadmill/leadmill/pkg/models"
)

// stepSchemas documents the expected config keys per step type. Types
// without an entry take any config.
var stepSchemas = map[models.StepType]string{
	models.StepSendEmail: `{
		"type": "object",
		"properties": {
			"template_id": {"type": "string", "minLength": 1},
			"subject": {"type": "string"}
		},
		"required": ["template_id"]
	}`,
	models.StepSendSMS: `{
		"type": "object",
		"properties": {
			"message": {"type": "string", "minLength": 1}
		},
		"required": ["message"]
	}`,
	models.StepAddTag: `{
		"type": "object",
		"properties": {
			"tags": {"type": "array", "items": {"type": "string"}, "minItems": 1}
		},
		"required": ["tags"]
	}`,
	models.StepRemoveTag: `{
		"type": "object",
		"properties": {
			"tags": {"type": "array", "items": {"type": "string"}, "minItems": 1}
		},
		"required": ["tags"]
	}`,
	models.StepUpdateField: `{
		"type": "object",
		"properties": {
			"field": {"type": "string", "minLength": 1},
			"value": {}
		},
		"required": ["field"]
	}`,
	models.StepAddToSegment: `{
		"type": "object",
		"properties": {
			"segment_id": {"type": "string", "minLength": 1}
		},
		"required": ["segment_id"]
	}`,
	models.StepRemoveFromSegment: `{
		"type": "object",
		"properties": {
			"segment_id": {"type": "string", "minLength": 1}
		},
		"required": ["segment_id"]
	}`,
	models.StepWebhook: `{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
			"headers": {"type": "object"},
			"payload": {"type": "object"}
		},
		"required": ["url"]
	}`,
	models.StepInternalNotification: `{
		"type": "object",
		"properties": {
			"subject": {"type": "string", "minLength": 1},
			"body": {"type": "string"}
		},
		"required": ["subject"]
	}`,
	models.StepDelay: `{
		"type": "object",
		"properties": {
			"value": {"type": "number", "exclusiveMinimum": 0},
			"unit": {"type": "string", "enum": ["minutes", "hours", "days", "weeks"]}
		},
		"required": ["value"]
	}`,
	models.StepCondition: `{
		"type": "object",
		"properties": {
			"field": {"type": "string", "minLength": 1},
			"operator": {"type": "string", "minLength": 1},
			"value": {},
			"true_step": {"type": "integer"},
			"false_step": {"type": "integer"}
		},
		"required": ["field", "operator", "true_step", "false_step"]
	}`,
	models.StepExit: `{
		"type": "object"
	}`,
}

// knownStepTypes gates against typos before the per-type schema runs.
var knownStepTypes = map[models.StepType]bool{
	models.StepSendEmail:            true,
	models.StepSendSMS:              true,
	models.StepAddTag:               true,
	models.StepRemoveTag:            true,
	models.StepUpdateField:          true,
	models.StepAddToSegment:         true,
	models.StepRemoveFromSegment:    true,
	models.StepWebhook:              true,
	models.StepInternalNotification: true,
	models.StepDelay:                true,
	models.StepCondition:            true,
	models.StepExit:                 true,
}

// ValidateStep checks a single step's type and config.
func ValidateStep(index int, step models.Step) error {
	if !knownStepTypes[step.Type] {
		return fmt.Errorf("step %d: unknown step type %q", index, step.Type)
	}

	document, ok := stepSchemas[step.Type]
	if !ok {
		return nil
	}

	config := step.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(document),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("step %d: failed to validate config: %w", index, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("step %d (%s): invalid config: %s", index, step.Type, strings.Join(details, "; "))
	}

	return nil
}

// ValidateWorkflowSteps checks every step of a workflow.
func ValidateWorkflowSteps(workflow *models.Workflow) error {
	for i, step := range workflow.Steps {
		if err := ValidateStep(i, step); err != nil {
			return err
		}
	}

	return nil
}
