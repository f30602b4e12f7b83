package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/models"
)

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		step    models.Step
		wantErr bool
	}{
		{
			name:    "valid send_email",
			step:    models.Step{Type: models.StepSendEmail, Config: map[string]any{"template_id": "welcome"}},
			wantErr: false,
		},
		{
			name:    "send_email without template",
			step:    models.Step{Type: models.StepSendEmail, Config: map[string]any{"subject": "Hi"}},
			wantErr: true,
		},
		{
			name:    "valid delay",
			step:    models.Step{Type: models.StepDelay, Config: map[string]any{"value": 3, "unit": "days"}},
			wantErr: false,
		},
		{
			name:    "delay without value",
			step:    models.Step{Type: models.StepDelay, Config: map[string]any{"unit": "days"}},
			wantErr: true,
		},
		{
			name:    "delay with bogus unit",
			step:    models.Step{Type: models.StepDelay, Config: map[string]any{"value": 3, "unit": "fortnights"}},
			wantErr: true,
		},
		{
			name: "valid condition",
			step: models.Step{Type: models.StepCondition, Config: map[string]any{
				"field": "total", "operator": "greater_than", "value": 100, "true_step": 2, "false_step": 4,
			}},
			wantErr: false,
		},
		{
			name: "condition without branches",
			step: models.Step{Type: models.StepCondition, Config: map[string]any{
				"field": "total", "operator": "greater_than", "value": 100,
			}},
			wantErr: true,
		},
		{
			name:    "valid webhook",
			step:    models.Step{Type: models.StepWebhook, Config: map[string]any{"url": "https://example.com/hook", "method": "POST"}},
			wantErr: false,
		},
		{
			name:    "webhook with bad method",
			step:    models.Step{Type: models.StepWebhook, Config: map[string]any{"url": "https://example.com/hook", "method": "YEET"}},
			wantErr: true,
		},
		{
			name:    "exit takes no config",
			step:    models.Step{Type: models.StepExit},
			wantErr: false,
		},
		{
			name:    "unknown step type",
			step:    models.Step{Type: models.StepType("teleport")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStep(0, tt.step)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateWorkflowSteps(t *testing.T) {
	workflow := &models.Workflow{
		Steps: []models.Step{
			{Type: models.StepSendEmail, Config: map[string]any{"template_id": "welcome"}},
			{Type: models.StepDelay, Config: map[string]any{"value": 1, "unit": "hours"}},
			{Type: models.StepExit},
		},
	}
	require.NoError(t, ValidateWorkflowSteps(workflow))

	workflow.Steps[1].Config = map[string]any{"unit": "hours"}
	err := ValidateWorkflowSteps(workflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
}
