package actions

import (
	"context"

	"github.com/leadmill/leadmill/pkg/models"
)

// SendEmailAction delivers a templated email to the enrolled customer. A
// missing recipient address or an unsubscribed recipient exits the enrollment
// instead of failing the step: neither condition can resolve itself on a
// later poll.
type SendEmailAction struct {
	sender       EmailSender
	unsubscribes UnsubscribeChecker
}

func NewSendEmailAction(sender EmailSender, unsubscribes UnsubscribeChecker) *SendEmailAction {
	return &SendEmailAction{sender: sender, unsubscribes: unsubscribes}
}

func (a *SendEmailAction) Type() models.StepType {
	return models.StepSendEmail
}

func (a *SendEmailAction) Execute(ctx context.Context, actx Context) Result {
	if a.sender == nil {
		return failure("no email sender configured")
	}

	templateID, _ := actx.Config["template_id"].(string)
	if templateID == "" {
		return failure("send_email step is missing template_id")
	}

	email := actx.RecipientEmail()
	if email == "" {
		return Result{ShouldExit: true, Error: "no recipient email address"}
	}

	if a.unsubscribes != nil {
		unsubscribed, err := a.unsubscribes.IsUnsubscribed(ctx, actx.StoreID, email)
		if err != nil {
			return failure("failed to check unsubscribe status: " + err.Error())
		}

		if unsubscribed {
			return Result{ShouldExit: true, Error: "recipient unsubscribed"}
		}
	}

	subject, _ := actx.Config["subject"].(string)

	message := EmailMessage{
		To:         email,
		TemplateID: templateID,
		Subject:    subject,
		Data:       actx.TriggerData(),
	}

	if err := a.sender.SendEmail(ctx, actx.StoreID, message); err != nil {
		return failure("failed to send email: " + err.Error())
	}

	return Result{
		Success: true,
		Metadata: map[string]any{
			"recipient":   email,
			"template_id": templateID,
		},
	}
}
