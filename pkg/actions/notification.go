package actions

import (
	"context"

	"github.com/leadmill/leadmill/pkg/models"
)

// NotificationAction sends an internal notification to store staff.
type NotificationAction struct {
	notifier Notifier
}

func NewNotificationAction(notifier Notifier) *NotificationAction {
	return &NotificationAction{notifier: notifier}
}

func (a *NotificationAction) Type() models.StepType {
	return models.StepInternalNotification
}

func (a *NotificationAction) Execute(ctx context.Context, actx Context) Result {
	if a.notifier == nil {
		return failure("no notifier configured")
	}

	subject, _ := actx.Config["subject"].(string)
	if subject == "" {
		return failure("internal_notification step is missing subject")
	}

	body, _ := actx.Config["body"].(string)

	if err := a.notifier.Notify(ctx, actx.StoreID, subject, body); err != nil {
		return failure("failed to send notification: " + err.Error())
	}

	return Result{Success: true}
}
