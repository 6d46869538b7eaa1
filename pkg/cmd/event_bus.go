package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/braidflow/braid/pkg/channels/gochannel"
	"github.com/braidflow/braid/pkg/channels/kafka"
	"github.com/braidflow/braid/pkg/eventbus"
)

// NewEventBus builds the event bus for a service. The gochannel provider
// stays in-process and suits single-binary deployments; kafka is required
// when the API, dispatcher, and workers run as separate processes.
// serviceName keys the Kafka consumer group.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
