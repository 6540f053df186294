package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSONReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got BookingEventPayload
	bus.Subscribe(EventBookingConfirmed, func(ev *Event) error {
		return json.Unmarshal(ev.Payload, &got)
	})

	err := bus.PublishJSON(EventBookingConfirmed, BookingEventPayload{
		BookingID:     7,
		UserID:        "123456789",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.BookingID)
	assert.Equal(t, "corr-1", got.CorrelationID)
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewEventBus()

	confirmed, rolledBack := 0, 0
	bus.Subscribe(EventBookingConfirmed, func(ev *Event) error { confirmed++; return nil })
	bus.Subscribe(EventBookingRolledBack, func(ev *Event) error { rolledBack++; return nil })

	require.NoError(t, bus.PublishJSON(EventBookingRolledBack, map[string]any{"booking_id": 1}))
	assert.Equal(t, 0, confirmed)
	assert.Equal(t, 1, rolledBack)
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus()

	second := false
	bus.Subscribe(EventNotificationAbandoned, func(ev *Event) error { return errors.New("boom") })
	bus.Subscribe(EventNotificationAbandoned, func(ev *Event) error { second = true; return nil })

	require.NoError(t, bus.PublishJSON(EventNotificationAbandoned, map[string]any{"job_id": 1}))
	assert.True(t, second)
}

func TestNilBusPublishJSONIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingConfirmed, map[string]any{"booking_id": 1}))
}
