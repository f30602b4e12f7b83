package actions

import (
	"context"

	"github.com/leadmill/leadmill/pkg/models"
)

// SendSMSAction delivers an SMS to the enrolled customer.
type SendSMSAction struct {
	sender SMSSender
}

func NewSendSMSAction(sender SMSSender) *SendSMSAction {
	return &SendSMSAction{sender: sender}
}

func (a *SendSMSAction) Type() models.StepType {
	return models.StepSendSMS
}

func (a *SendSMSAction) Execute(ctx context.Context, actx Context) Result {
	if a.sender == nil {
		return failure("no SMS sender configured")
	}

	message, _ := actx.Config["message"].(string)
	if message == "" {
		return failure("send_sms step is missing message")
	}

	phone := actx.RecipientPhone()
	if phone == "" {
		return failure("no recipient phone number")
	}

	if err := a.sender.SendSMS(ctx, actx.StoreID, phone, message); err != nil {
		return failure("failed to send SMS: " + err.Error())
	}

	return Result{
		Success:  true,
		Metadata: map[string]any{"recipient": phone},
	}
}
