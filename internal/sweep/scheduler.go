// Package sweep runs the periodic queue maintenance jobs.
package sweep

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iwtkmsss/queue-sub000/internal/clock"
)

type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Scheduler runs its tasks one after another on every tick, in the order they were added.
// The queue sweeps are added alarm first, so a ticket that is both due and past its grace
// period ends up alarm_missed rather than missed.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	tasks    []Task

	running int32
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(c clock.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{clock: c, interval: interval, timeout: 10 * time.Second}
}

func (s *Scheduler) Add(name string, run func(ctx context.Context) (int, error)) {
	s.tasks = append(s.tasks, Task{Name: name, Run: run})
}

// Tick runs every task once. Overlapping ticks are skipped and report false.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return false
	}
	defer atomic.StoreInt32(&s.running, 0)

	tracer := otel.Tracer("sweep")
	for _, task := range s.tasks {
		taskCtx, cancel := context.WithTimeout(ctx, s.timeout)
		taskCtx, span := tracer.Start(taskCtx, "sweep."+task.Name)
		count, err := task.Run(taskCtx)
		span.SetAttributes(attribute.Int("sweep.processed", count))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		cancel()
		if err != nil {
			log.Printf("sweep task=%s error: %v", task.Name, err)
			continue
		}
		if count > 0 {
			log.Printf("sweep task=%s processed=%d", task.Name, count)
		}
	}
	return true
}

// Start ticks in the background until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)

	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}(s.done)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
