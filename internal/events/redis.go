package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses url (redis:// or rediss://) and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

const relayBuffer = 256

// RedisRelay republishes bus events on a Redis channel for out-of-process displays.
// Publishing happens on its own goroutine; a full queue drops the event.
type RedisRelay struct {
	client  redis.Cmdable
	channel string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
}

func NewRedisRelay(client redis.Cmdable, channel string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, timeout: 2 * time.Second, queue: make(chan Event, relayBuffer)}
}

// Attach subscribes the relay to bus and starts the publisher. The returned func
// unsubscribes and waits until the queued events are sent.
func (r *RedisRelay) Attach(bus Bus) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range r.queue {
			r.Forward(context.Background(), event)
		}
	}()
	unsubscribe := bus.Subscribe(r.enqueue)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			r.mu.Lock()
			r.closed = true
			close(r.queue)
			r.mu.Unlock()
			<-done
		})
	}
}

func (r *RedisRelay) enqueue(_ context.Context, event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- event:
	default:
		log.Printf("redis relay queue full, dropping type=%s id=%s", event.Type, event.ID)
	}
}

// Forward publishes one event synchronously.
func (r *RedisRelay) Forward(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("redis relay encode failed type=%s err=%v", event.Type, err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.client.Publish(pubCtx, r.channel, payload).Err(); err != nil {
		log.Printf("redis relay publish failed channel=%s type=%s err=%v", r.channel, event.Type, err)
	}
}
