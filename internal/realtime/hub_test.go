package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/iwtkmsss/queue-sub000/internal/events"
	"github.com/iwtkmsss/queue-sub000/internal/models"
)

func newClient(h *Hub, id string, window int) *Client {
	c := &Client{ID: id, Send: make(chan []byte, 4), Subscription: Subscription{Window: window}}
	h.Register(c)
	return c
}

func pending(c *Client) int {
	return len(c.Send)
}

func TestBroadcastFiltersByWindow(t *testing.T) {
	h := NewHub()
	all := newClient(h, "all", 0)
	three := newClient(h, "three", 3)
	four := newClient(h, "four", 4)

	h.Broadcast([]byte("w3"), 3)
	if pending(all) != 1 || pending(three) != 1 || pending(four) != 0 {
		t.Fatalf("unexpected delivery all=%d three=%d four=%d", pending(all), pending(three), pending(four))
	}

	h.Broadcast([]byte("global"), 0)
	if pending(four) != 1 {
		t.Fatalf("expected windowless event to reach every client")
	}
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	h := NewHub()
	slow := &Client{ID: "slow", Send: make(chan []byte, 1)}
	h.Register(slow)

	h.Broadcast([]byte("one"), 0)
	h.Broadcast([]byte("two"), 0)
	if pending(slow) != 1 {
		t.Fatalf("expected one buffered message, got %d", pending(slow))
	}
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	h := NewHub()
	c := newClient(h, "c", 0)
	h.Unregister(c)
	h.Unregister(c)
	if h.Len() != 0 {
		t.Fatalf("expected empty hub")
	}
}

func TestAttachForwardsBusEvents(t *testing.T) {
	h := NewHub()
	display := newClient(h, "display", 3)
	bus := events.NewMemoryBus()
	unsubscribe := h.Attach(bus)

	event := events.New(events.TypeClientCalled, models.CalledEvent{QueueNumber: "007", WindowNumber: 3})
	event.WindowID = 3
	bus.Publish(context.Background(), event)

	msg := <-display.Send
	var got struct {
		Type string             `json:"type"`
		Data models.CalledEvent `json:"data"`
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != events.TypeClientCalled || got.Data.QueueNumber != "007" {
		t.Fatalf("unexpected message %s", msg)
	}

	unsubscribe()
	bus.Publish(context.Background(), event)
	if pending(display) != 0 {
		t.Fatalf("expected no delivery after unsubscribe")
	}
}

func TestParseSubscribe(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		ok     bool
		window int
	}{
		{"subscribe window", `{"action":"subscribe","window":3}`, true, 3},
		{"subscribe all", `{"action":"subscribe"}`, true, 0},
		{"unsubscribe", `{"action":"unsubscribe"}`, true, 0},
		{"unknown action", `{"action":"ping"}`, false, 0},
		{"negative window", `{"action":"subscribe","window":-1}`, false, 0},
		{"not json", `hello`, false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := ParseSubscribe([]byte(tc.input))
			if ok != tc.ok || msg.Window != tc.window {
				t.Fatalf("expected ok=%v window=%d, got ok=%v window=%d", tc.ok, tc.window, ok, msg.Window)
			}
		})
	}
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/realtime/info?token=query", nil)
	if got := sessionToken(req); got != "query" {
		t.Fatalf("expected query token, got %q", got)
	}
	req.Header.Set("Authorization", "Bearer header")
	if got := sessionToken(req); got != "header" {
		t.Fatalf("expected bearer token, got %q", got)
	}
	if tokenMatches("", "secret") || !tokenMatches("secret", "secret") {
		t.Fatalf("unexpected token comparison")
	}
}
