package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidflow/braid/pkg/channels/gochannel"
	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestPublishAndSubscribeRunRequested(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.RunRequested, 1)

	err := bus.Handle(events.RunRequestedEvent, func(_ context.Context, event any) error {
		request, ok := event.(*events.RunRequested)
		require.True(t, ok)

		received <- request

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	request := events.RunRequested{
		BaseEvent: events.NewBaseEvent(events.RunRequestedEvent, "wf-1"),
		SourceID:  "api",
		Variables: map[string]string{"TIER": "gold"},
	}

	require.NoError(t, bus.Publish(ctx, "wf-1", request))

	select {
	case got := <-received:
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, "api", got.SourceID)
		assert.Equal(t, "gold", got.Variables["TIER"])
	case <-time.After(2 * time.Second):
		t.Fatal("run request event was not delivered")
	}
}

func TestSubscribeIgnoresUnhandledTypes(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.RunFinished, 1)

	err := bus.Handle(events.RunFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.RunFinished)
		require.True(t, ok)

		received <- finished

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this one; it must be acked and dropped.
	started := events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "wf-1"),
		RunID:     "run-1",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", started))

	finished := events.RunFinished{
		BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, "wf-1"),
		RunID:     "run-1",
		Status:    "completed",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", finished))

	select {
	case got := <-received:
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "completed", got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("run finished event was not delivered")
	}
}

func TestGenerateIDIsUnique(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
