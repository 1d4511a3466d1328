package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type RateLimitConfig struct {
	IPPerMinute     int
	IPBurst         int
	WindowPerMinute int
	WindowBurst     int
}

// RateLimiter applies a token bucket per client IP and a second one per service window.
type RateLimiter struct {
	ipLimiter     *tokenLimiter
	windowLimiter *tokenLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:     newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		windowLimiter: newTokenLimiter(cfg.WindowPerMinute, cfg.WindowBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/realtime/") {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if window := windowKey(r); window != "" && !l.windowLimiter.allow(window) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*bucket
	now    func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
		now:    time.Now,
	}
}

func (l *tokenLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// windowKey identifies the manager window a request acts for, from the query or X-Window.
func windowKey(r *http.Request) string {
	if window := strings.TrimSpace(r.URL.Query().Get("window")); window != "" {
		return window
	}
	return strings.TrimSpace(r.Header.Get("X-Window"))
}
