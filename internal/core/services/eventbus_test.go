package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PubSub(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	eventID := "task_analytics:trace-123"

	// 1. Subscribe
	ch, unsub := bus.Subscribe(eventID)
	defer unsub()

	// 2. Publish
	event := Event{
		EventID:   eventID,
		Type:      EventTypeStatus,
		Data:      "test-data",
		Timestamp: time.Now().UTC(),
	}
	bus.Publish(event)

	// 3. Verify
	select {
	case received := <-ch:
		assert.Equal(t, event.EventID, received.EventID)
		assert.Equal(t, event.Data, received.Data)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)
	eventID := "task_analytics:trace-456"

	ch, unsub := bus.Subscribe(eventID)
	unsub() // Unsubscribe immediately

	bus.Publish(Event{EventID: eventID, Type: EventTypeStatus, Data: "should not receive"})

	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("received event after unsubscribe: %v", e)
		}
		// Unsubscribe closes the channel.
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)
	eventID := "task_analytics:trace-multi"

	ch1, unsub1 := bus.Subscribe(eventID)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(eventID)
	defer unsub2()

	bus.Publish(Event{EventID: eventID, Data: "broadcast"})

	// Both should receive
	timeout := time.After(1 * time.Second)

	got1 := false
	got2 := false

	for i := 0; i < 2; i++ {
		select {
		case <-ch1:
			got1 = true
		case <-ch2:
			got2 = true
		case <-timeout:
			t.Fatal("timeout")
		}
	}

	assert.True(t, got1)
	assert.True(t, got2)
}

func TestEventBus_PublishNoSubscriber(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	// Publishing with no subscriber should not panic.
	bus.Publish(Event{EventID: "no-such-event", Type: EventTypeStatus, Data: "test"})
}
