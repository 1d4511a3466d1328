// Package clock lets time-driven code run against a controllable clock in tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// NewTicker behaves like time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C. C has capacity 1; ticks are dropped when the reader lags.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

type realClock struct{}

func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// FakeClock only moves when Set or Advance is called.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{interval: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, ft)
	return &Ticker{C: ft.ch, stopFunc: func() {
		c.mu.Lock()
		ft.stopped = true
		c.mu.Unlock()
	}}
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t and fires every ticker whose deadline passed.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	for _, ft := range c.tickers {
		if ft.stopped {
			continue
		}
		for !ft.next.After(t) {
			select {
			case ft.ch <- ft.next:
			default:
			}
			ft.next = ft.next.Add(ft.interval)
		}
	}
}
