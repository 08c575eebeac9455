package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/chatrelay/chatrelay/internal/identity"
	"github.com/chatrelay/chatrelay/internal/relay"
)

// Limits caps per-connection event rates before they reach the hub.
type Limits struct {
	MessagesPerMinute int
	TypingPerMinute   int
}

// ServeWs handles the client's websocket connection upgrade.
func ServeWs(h *relay.Hub, limits Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("failed to accept websocket connection: %v", err)
			return
		}

		// A verified display token wins; otherwise the client names itself
		// in the query string and is taken at its word.
		name := r.URL.Query().Get("name")
		if id, ok := identity.FromContext(ctx); ok {
			name = id.DisplayName
		}

		c := relay.NewClient(conn, name)
		if limits.MessagesPerMinute > 0 {
			c.SetMessageLimiter(limits.MessagesPerMinute, time.Minute)
		}
		if limits.TypingPerMinute > 0 {
			c.SetTypingLimiter(limits.TypingPerMinute, time.Minute)
		}

		reg := relay.Registration{
			Client: c,
			Done:   make(chan struct{}),
		}

		h.Register <- reg

		// Wait for registration to complete
		<-reg.Done

		// We block on c.ReadPump() because the request context is canceled
		// as soon as we return from the handler.
		go c.WritePump(ctx)
		c.ReadPump(ctx)
	}
}
