package httpapi

import (
	"bufio"
	"expvar"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	requestsTotal   = expvar.NewInt("requests_total")
	requestsErrors  = expvar.NewInt("requests_errors_total")
	requestsByRoute = expvar.NewMap("requests_by_route")
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the realtime websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// LoggingMiddleware assigns a request id when the caller sent none, echoes it back and
// logs one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)
		requestsTotal.Add(1)
		requestsByRoute.Add(routeLabel(r.URL.Path), 1)
		if writer.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		log.Printf("request method=%s path=%s status=%d duration_ms=%d window=%s request_id=%s", r.Method, r.URL.Path, writer.status, duration.Milliseconds(), r.URL.Query().Get("window"), requestID)
	})
}

// routeLabel keeps the first path segment so ids do not explode the counter map.
func routeLabel(path string) string {
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}
