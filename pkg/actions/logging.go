package actions

import (
	"context"
	"log/slog"
)

// LoggingCollaborators implements every delivery collaborator by writing a
// structured log line. It is the development default; deployments register
// real providers instead.
type LoggingCollaborators struct {
	logger *slog.Logger
}

func NewLoggingCollaborators(logger *slog.Logger) *LoggingCollaborators {
	return &LoggingCollaborators{logger: logger.With("module", "delivery")}
}

func (l *LoggingCollaborators) SendEmail(_ context.Context, storeID string, message EmailMessage) error {
	l.logger.Info("Would send email",
		"store_id", storeID,
		"to", message.To,
		"template_id", message.TemplateID)

	return nil
}

func (l *LoggingCollaborators) SendSMS(_ context.Context, storeID, phone, message string) error {
	l.logger.Info("Would send SMS",
		"store_id", storeID,
		"to", phone,
		"length", len(message))

	return nil
}

func (l *LoggingCollaborators) AddTags(_ context.Context, storeID, customerID string, tags []string) error {
	l.logger.Info("Would add tags", "store_id", storeID, "customer_id", customerID, "tags", tags)

	return nil
}

func (l *LoggingCollaborators) RemoveTags(_ context.Context, storeID, customerID string, tags []string) error {
	l.logger.Info("Would remove tags", "store_id", storeID, "customer_id", customerID, "tags", tags)

	return nil
}

func (l *LoggingCollaborators) AddToSegment(_ context.Context, storeID, customerID, segmentID string) error {
	l.logger.Info("Would add to segment", "store_id", storeID, "customer_id", customerID, "segment_id", segmentID)

	return nil
}

func (l *LoggingCollaborators) RemoveFromSegment(_ context.Context, storeID, customerID, segmentID string) error {
	l.logger.Info("Would remove from segment", "store_id", storeID, "customer_id", customerID, "segment_id", segmentID)

	return nil
}

func (l *LoggingCollaborators) SetField(_ context.Context, storeID, customerID, field string, value any) error {
	l.logger.Info("Would update field", "store_id", storeID, "customer_id", customerID, "field", field, "value", value)

	return nil
}

func (l *LoggingCollaborators) Notify(_ context.Context, storeID, subject, _ string) error {
	l.logger.Info("Would send internal notification", "store_id", storeID, "subject", subject)

	return nil
}
