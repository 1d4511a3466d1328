package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware requires the shared bearer token on every non-public endpoint.
// An empty token disables the check.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" || isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		presented := bearerToken(r.Header.Get("Authorization"))
		if presented == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// The realtime channel checks its own token per session.
func isPublicEndpoint(r *http.Request) bool {
	if r.Method == http.MethodOptions || strings.HasPrefix(r.URL.Path, "/realtime/") {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/queue", "/employees/login":
		return r.Method == http.MethodPost
	case "/queue/available-times":
		return r.Method == http.MethodGet
	default:
		return false
	}
}
