package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var got []string
	unsubscribe := bus.Subscribe(func(_ context.Context, event Event) {
		got = append(got, event.Type)
	})

	bus.Publish(ctx, New(TypeQueueUpdated, nil))
	unsubscribe()
	unsubscribe()
	bus.Publish(ctx, New(TypeClientCalled, nil))

	assert.Equal(t, []string{TypeQueueUpdated}, got)
}

func TestPanickingSubscriberDoesNotStopOthers(t *testing.T) {
	bus := NewMemoryBus()
	delivered := 0
	bus.Subscribe(func(context.Context, Event) { panic("boom") })
	bus.Subscribe(func(context.Context, Event) { delivered++ })

	bus.Publish(context.Background(), Event{Type: TypeQueueUpdated})

	assert.Equal(t, 1, delivered)
}

func TestPublishFillsIdentity(t *testing.T) {
	rec := NewRecorder()
	rec.Publish(context.Background(), Event{Type: TypeQueueUpdated})

	events := rec.Events()
	if assert.Len(t, events, 1) {
		assert.NotEmpty(t, events[0].ID)
		assert.False(t, events[0].CreatedAt.IsZero())
	}
	assert.Equal(t, 1, rec.Count(TypeQueueUpdated))
	assert.Equal(t, 0, rec.Count(TypeClientCalled))
}

func TestRedisRelayPublishesEnvelope(t *testing.T) {
	client, mock := redismock.NewClientMock()
	relay := NewRedisRelay(client, "queue.events")
	bus := NewMemoryBus()
	detach := relay.Attach(bus)

	event := Event{
		ID:        "evt-1",
		Type:      TypeClientCalled,
		Data:      map[string]any{"queue_number": "007", "window_number": 3},
		WindowID:  3,
		CreatedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(event)
	assert.NoError(t, err)
	mock.ExpectPublish("queue.events", payload).SetVal(1)

	bus.Publish(context.Background(), event)
	detach()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRelayQueueDoesNotBlockPublish(t *testing.T) {
	client, _ := redismock.NewClientMock()
	relay := NewRedisRelay(client, "queue.events")
	relay.queue = make(chan Event, 1)
	bus := NewMemoryBus()
	bus.Subscribe(relay.enqueue)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			bus.Publish(context.Background(), New(TypeQueueUpdated, nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled relay")
	}
	assert.Equal(t, 1, len(relay.queue))
}

func TestRedisRelaySwallowsErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	relay := NewRedisRelay(client, "queue.events")

	event := Event{ID: "evt-2", Type: TypeQueueUpdated, CreatedAt: time.Unix(0, 0).UTC()}
	payload, _ := json.Marshal(event)
	mock.ExpectPublish("queue.events", payload).SetErr(errors.New("connection refused"))

	relay.Forward(context.Background(), event)

	assert.NoError(t, mock.ExpectationsWereMet())
}
