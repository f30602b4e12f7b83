// Package kafka provides the Kafka channel used by the event bus in
// production deployments.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// Config holds the broker list and the consumer group the engine joins.
// Runner instances share one group so trigger events are load-balanced, not
// fanned out.
type Config struct {
	Brokers       []string
	ConsumerGroup string
}

// ConfigFromEnv reads KAFKA_BROKERS (comma-separated) and derives the
// consumer group from the service name.
func ConfigFromEnv(serviceName string) (Config, error) {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return Config{}, errors.New("KAFKA_BROKERS environment variable is not set or empty")
	}

	return Config{
		Brokers:       brokers,
		ConsumerGroup: serviceName + "-consumers",
	}, nil
}

// CreateChannel creates the Kafka publisher and subscriber pair. The
// subscriber starts from the oldest offset so enrollments triggered while no
// runner was up are not lost.
func CreateChannel(logger watermill.LoggerAdapter, config Config) (*kafka.Publisher, *kafka.Subscriber, error) {
	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               config.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         config.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               config.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
