package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/channels/gochannel"
	"github.com/leadmill/leadmill/pkg/events"
	"github.com/leadmill/leadmill/pkg/models"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversTriggerReceived(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.TriggerReceived, 1)

	require.NoError(t, bus.Handle(events.TriggerReceivedEvent, func(_ context.Context, event any) error {
		if trigger, ok := event.(*events.TriggerReceived); ok {
			received <- trigger
		}

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	event := events.NewTriggerReceived("store-1", models.TriggerOrderPlaced, map[string]any{
		"customer_id": "cust-1",
	})
	require.NoError(t, bus.Publish(ctx, event.ID, event))

	select {
	case trigger := <-received:
		assert.Equal(t, "store-1", trigger.StoreID)
		assert.Equal(t, models.TriggerOrderPlaced, trigger.TriggerType)
		assert.Equal(t, "cust-1", trigger.TriggerData["customer_id"])
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_AcksEventsWithoutHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; Publish only returns once the
	// message is acked.
	event := events.NewTriggerReceived("store-1", models.TriggerCustomerCreated, nil)
	require.NoError(t, bus.Publish(ctx, event.ID, event))
}
