// Package events fans queue changes out to displays and other listeners.
package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeQueueUpdated = "queue_updated"
	TypeClientCalled = "client_called"
)

type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	WindowID  int       `json:"window_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func New(eventType string, data any) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Data: data, CreatedAt: time.Now().UTC()}
}

type Handler func(ctx context.Context, event Event)

// Bus delivers events to the subscribers present at publish time. There is no replay.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(handler Handler) (unsubscribe func())
}

type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]Handler)}
}

func (b *MemoryBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(ctx, h, event)
	}
}

func deliver(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event handler panic type=%s event_id=%s err=%v", event.Type, event.ID, r)
		}
	}()
	h(ctx, event)
}

// Recorder keeps every published event. Tests use it as a Bus.
type Recorder struct {
	*MemoryBus
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	r := &Recorder{MemoryBus: NewMemoryBus()}
	r.Subscribe(func(_ context.Context, event Event) {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	})
	return r
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of the given type were published.
func (r *Recorder) Count(eventType string) int {
	n := 0
	for _, event := range r.Events() {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
