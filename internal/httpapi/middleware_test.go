package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware("secret", okHandler())
	cases := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "booking is public", method: http.MethodPost, path: "/queue", want: http.StatusOK},
		{name: "available times are public", method: http.MethodGet, path: "/queue/available-times", want: http.StatusOK},
		{name: "login is public", method: http.MethodPost, path: "/employees/login", want: http.StatusOK},
		{name: "realtime checks its own token", method: http.MethodGet, path: "/realtime/info", want: http.StatusOK},
		{name: "listing rows needs a token", method: http.MethodGet, path: "/queue", want: http.StatusUnauthorized},
		{name: "wrong token", method: http.MethodPost, path: "/appointments/1/start", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", method: http.MethodPost, path: "/appointments/1/start", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "valid token", method: http.MethodPost, path: "/appointments/1/start", header: "Bearer secret", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestAuthMiddlewareDisabledWithoutToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	resp := httptest.NewRecorder()

	AuthMiddleware("", okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestLoggingMiddlewareEchoesRequestID(t *testing.T) {
	var seen string
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Header().Get("X-Request-ID") != "req-1" || seen != "req-1" {
		t.Fatalf("expected request id req-1, got header=%q seen=%q", resp.Header().Get("X-Request-ID"), seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Header().Get("X-Request-ID") == "" || resp.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id to reach the handler, got header=%q seen=%q", resp.Header().Get("X-Request-ID"), seen)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/appointments/12/start": "/appointments",
		"/queue":                 "/queue",
		"/":                      "/",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q): expected %q, got %q", path, want, got)
		}
	}
}

func TestTokenLimiterRefills(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	l := newTokenLimiter(60, 2)
	l.now = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatalf("expected burst of two to pass")
	}
	if l.allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !l.allow("b") {
		t.Fatalf("expected other key to have its own bucket")
	}
	now = now.Add(time.Second)
	if !l.allow("a") {
		t.Fatalf("expected one token after a second")
	}
}

func TestRateLimiterPerWindow(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 600, IPBurst: 100, WindowPerMinute: 60, WindowBurst: 1})
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	limiter.windowLimiter.now = func() time.Time { return now }
	h := limiter.Middleware(okHandler())

	send := func(window string) int {
		req := httptest.NewRequest(http.MethodGet, "/appointments/active?window="+window, nil)
		req.RemoteAddr = "10.0.0.1:5000"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp.Code
	}
	if code := send("3"); code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if code := send("3"); code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", code)
	}
	if code := send("4"); code != http.StatusOK {
		t.Fatalf("expected status 200 for another window, got %d", code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1, got %s", ip)
	}
	req.Header.Set("X-Forwarded-For", "192.0.2.4, 10.0.0.1")
	if ip := clientIP(req); ip != "192.0.2.4" {
		t.Fatalf("expected 192.0.2.4, got %s", ip)
	}
}
