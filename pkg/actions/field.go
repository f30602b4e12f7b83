package actions

import (
	"context"

	"github.com/leadmill/leadmill/pkg/models"
)

// UpdateFieldAction writes a custom field value on the enrolled customer.
type UpdateFieldAction struct {
	fields FieldStore
}

func NewUpdateFieldAction(fields FieldStore) *UpdateFieldAction {
	return &UpdateFieldAction{fields: fields}
}

func (a *UpdateFieldAction) Type() models.StepType {
	return models.StepUpdateField
}

func (a *UpdateFieldAction) Execute(ctx context.Context, actx Context) Result {
	if a.fields == nil {
		return failure("no field store configured")
	}

	field, _ := actx.Config["field"].(string)
	if field == "" {
		return failure("update_field step is missing field")
	}

	value := actx.Config["value"]

	err := a.fields.SetField(ctx, actx.StoreID, actx.Enrollment.CustomerID, field, value)
	if err != nil {
		return failure("failed to update field: " + err.Error())
	}

	return Result{
		Success:  true,
		Metadata: map[string]any{"field": field},
	}
}
