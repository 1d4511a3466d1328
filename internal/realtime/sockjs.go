package realtime

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const (
	closeUnauthorized = 4001
	sendBuffer        = 16
)

// NewHandler serves SockJS sessions under prefix. When token is set, sessions must
// present it as a bearer header or a token query parameter.
func NewHandler(prefix string, hub *Hub, token string) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		if token != "" && !tokenMatches(sessionToken(session.Request()), token) {
			_ = session.Close(closeUnauthorized, "unauthorized")
			return
		}

		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, sendBuffer)}
		hub.Register(client)
		defer hub.Unregister(client)
		log.Printf("realtime session open client=%s", client.ID)

		go func() {
			for msg := range client.Send {
				if err := session.Send(string(msg)); err != nil {
					return
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				log.Printf("realtime session closed client=%s", client.ID)
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				hub.UpdateSubscription(client, Subscription{})
				continue
			}
			hub.UpdateSubscription(client, Subscription{Window: parsed.Window})
		}
	})
}

func sessionToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func tokenMatches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
