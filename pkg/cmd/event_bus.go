package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/leadmill/leadmill/pkg/channels/gochannel"
	"github.com/leadmill/leadmill/pkg/channels/kafka"
	"github.com/leadmill/leadmill/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider: kafka for
// production, memory for development and tests.
func NewEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		config, err := kafka.ConfigFromEnv("leadmill")
		if err != nil {
			return nil, err
		}

		pub, sub, err := kafka.CreateChannel(wmLogger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "memory", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %q", provider)
	}
}
