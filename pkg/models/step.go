package models

import "fmt"

// StepType is the kind of action or flow-control operation within a workflow.
type StepType string

const (
	// Action steps, dispatched to a registered action executor.
	StepSendEmail            StepType = "send_email"
	StepSendSMS              StepType = "send_sms"
	StepAddTag               StepType = "add_tag"
	StepRemoveTag            StepType = "remove_tag"
	StepUpdateField          StepType = "update_field"
	StepAddToSegment         StepType = "add_to_segment"
	StepRemoveFromSegment    StepType = "remove_from_segment"
	StepWebhook              StepType = "webhook"
	StepInternalNotification StepType = "internal_notification"

	// Flow-control steps, resolved by the state machine itself.
	StepDelay     StepType = "delay"
	StepCondition StepType = "condition"
	StepExit      StepType = "exit"
)

// IsFlowControl reports whether the step type is resolved by the state
// machine rather than an action executor.
func (t StepType) IsFlowControl() bool {
	return t == StepDelay || t == StepCondition || t == StepExit
}

// Step is one element of a workflow's ordered step sequence, addressed by
// its zero-based index.
type Step struct {
	Type   StepType       `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// DelayConfig is the parsed configuration of a delay step.
type DelayConfig struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// ConditionConfig is the parsed configuration of a condition step. TrueStep
// and FalseStep are step indexes and may point anywhere, including backward
// or past the end of the sequence.
type ConditionConfig struct {
	Field     string `json:"field"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
	TrueStep  int    `json:"true_step"`
	FalseStep int    `json:"false_step"`
}

// ParseDelayConfig extracts a DelayConfig from a step's raw config bag.
func ParseDelayConfig(config map[string]any) (DelayConfig, error) {
	value, err := toNumber(config["value"])
	if err != nil {
		return DelayConfig{}, fmt.Errorf("delay step: invalid value: %w", err)
	}

	unit, _ := config["unit"].(string)

	return DelayConfig{Value: value, Unit: unit}, nil
}

// ParseConditionConfig extracts a ConditionConfig from a step's raw config bag.
func ParseConditionConfig(config map[string]any) (ConditionConfig, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return ConditionConfig{}, fmt.Errorf("condition step: field is required")
	}

	operator, _ := config["operator"].(string)
	if operator == "" {
		return ConditionConfig{}, fmt.Errorf("condition step: operator is required")
	}

	trueStep, err := toNumber(config["true_step"])
	if err != nil {
		return ConditionConfig{}, fmt.Errorf("condition step: invalid true_step: %w", err)
	}

	falseStep, err := toNumber(config["false_step"])
	if err != nil {
		return ConditionConfig{}, fmt.Errorf("condition step: invalid false_step: %w", err)
	}

	return ConditionConfig{
		Field:     field,
		Operator:  operator,
		Value:     config["value"],
		TrueStep:  int(trueStep),
		FalseStep: int(falseStep),
	}, nil
}

// toNumber normalizes the numeric types produced by JSON decoding and
// handwritten test fixtures.
func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, fmt.Errorf("value is missing")
	default:
		return 0, fmt.Errorf("value %v (%T) is not a number", v, v)
	}
}
