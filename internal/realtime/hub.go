// Package realtime pushes queue events to display and manager screens over SockJS.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/iwtkmsss/queue-sub000/internal/events"
)

// Subscription narrows a client to one window. Window 0 receives everything.
type Subscription struct {
	Window int
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Window int    `json:"window"`
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload for every matching client. Slow clients drop messages.
func (h *Hub) Broadcast(payload []byte, window int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, window) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("realtime drop message client=%s", client.ID)
		}
	}
}

// An event without a window (sweeps, bulk moves) goes to every client.
func match(sub Subscription, window int) bool {
	return sub.Window == 0 || window == 0 || sub.Window == window
}

// Attach forwards every bus event to the hub and returns the unsubscribe func.
func (h *Hub) Attach(bus events.Bus) func() {
	return bus.Subscribe(func(_ context.Context, event events.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("realtime encode failed type=%s err=%v", event.Type, err)
			return
		}
		h.Broadcast(payload, event.WindowID)
	})
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	if msg.Window < 0 {
		return SubscribeMessage{}, false
	}
	return msg, true
}
