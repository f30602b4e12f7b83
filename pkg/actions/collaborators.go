package actions

import "context"

// EmailMessage is a templated email handed to the delivery provider.
type EmailMessage struct {
	To         string
	TemplateID string
	Subject    string
	Data       map[string]any
}

// EmailSender delivers templated emails for a store.
type EmailSender interface {
	SendEmail(ctx context.Context, storeID string, message EmailMessage) error
}

// SMSSender delivers SMS messages for a store.
type SMSSender interface {
	SendSMS(ctx context.Context, storeID, phone, message string) error
}

// TagStore adds and removes tags on customer records.
type TagStore interface {
	AddTags(ctx context.Context, storeID, customerID string, tags []string) error
	RemoveTags(ctx context.Context, storeID, customerID string, tags []string) error
}

// SegmentStore manages static segment membership.
type SegmentStore interface {
	AddToSegment(ctx context.Context, storeID, customerID, segmentID string) error
	RemoveFromSegment(ctx context.Context, storeID, customerID, segmentID string) error
}

// FieldStore writes custom field values on customer records.
type FieldStore interface {
	SetField(ctx context.Context, storeID, customerID, field string, value any) error
}

// Notifier sends internal notifications to store staff.
type Notifier interface {
	Notify(ctx context.Context, storeID, subject, body string) error
}

// WebhookRequest is an outbound webhook call.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Payload map[string]any
}

// WebhookCaller performs outbound webhook calls. Implementations return the
// response status code alongside any transport error.
type WebhookCaller interface {
	Call(ctx context.Context, request WebhookRequest) (int, error)
}

// UnsubscribeChecker reports whether an email address opted out of a store's
// messaging.
type UnsubscribeChecker interface {
	IsUnsubscribed(ctx context.Context, storeID, email string) (bool, error)
}
