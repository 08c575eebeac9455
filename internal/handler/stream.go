package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatrelay/chatrelay/internal/model"
	"github.com/chatrelay/chatrelay/internal/relay"
)

// StreamRoom is a read-only SSE view of a room: it registers a listen-only
// member with the hub, joins the requested room, and forwards everything
// the room broadcasts. Handy for dashboards and for debugging a room
// without speaking the websocket protocol.
func StreamRoom(h *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			return
		}

		room := chi.URLParam(r, "room")
		if room == "" {
			http.Error(w, "room is required", http.StatusBadRequest)
			return
		}

		w.Header().Set("X-Accel-Buffering", "no")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			log.Printf("%v", err)
			return
		}

		ctx := r.Context()

		// A stream observer is an ordinary hub member without a websocket
		// connection; we drain its outbound channel here instead of running
		// a write pump.
		c := relay.NewClient(nil, "sse-observer")
		reg := relay.Registration{
			Client: c,
			Done:   make(chan struct{}),
		}
		h.Register <- reg
		<-reg.Done

		joinEnv, err := model.NewEnvelope(model.EventJoinRoom, room)
		if err != nil {
			log.Printf("%v", err)
			return
		}
		h.Inbound <- relay.Inbound{From: c, Env: joinEnv}

		defer func() {
			h.Unregister <- c
		}()

		for {
			select {
			case env, ok := <-c.Out:
				if !ok {
					return
				}

				p, err := json.Marshal(env)
				if err != nil {
					log.Printf("handler/stream: failed to encode event: %v", err)
					continue
				}
				if _, err := w.Write(append(append([]byte("data: "), p...), '\n', '\n')); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}
}
