// Package relay fans room events out to connected clients.
package relay

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chatrelay/chatrelay/internal/broker"
	"github.com/chatrelay/chatrelay/internal/model"
	"github.com/chatrelay/chatrelay/internal/registry"
)

type sanitizer interface {
	Sanitize(s string) string
	SanitizeBytes(p []byte) []byte
}

type Registration struct {
	Client *Client
	Done   chan struct{}
}

// Inbound is one event read off a client connection, tagged with its origin.
type Inbound struct {
	From *Client
	Env  model.Envelope
}

// Hub owns the room membership index and runs the event loop. All registry
// mutation and fan-out happens on the Run goroutine; each inbound event is
// processed to completion before the next one is picked up.
type Hub struct {
	registry  *registry.Registry
	jetstream jetstream.JetStream
	clients   map[uuid.UUID]*Client

	Register   chan Registration
	Unregister chan *Client
	Inbound    chan Inbound

	sanitizer sanitizer
}

// NewHub returns a new instance of Hub. js may be nil; the relay then runs
// without the history pipeline.
func NewHub(reg *registry.Registry, js jetstream.JetStream) *Hub {
	return &Hub{
		registry:   reg,
		jetstream:  js,
		clients:    make(map[uuid.UUID]*Client),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		Inbound:    make(chan Inbound, 1024),
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// Run manages incoming and outgoing hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case reg := <-h.Register:
			h.register(reg)

		case client := <-h.Unregister:
			h.unregister(client)

		case in := <-h.Inbound:
			h.dispatch(ctx, in)

		case <-ctx.Done():
			log.Printf("context cancelled: %v", ctx.Err())
			return
		}
	}
}

func (h *Hub) register(reg Registration) {
	client := reg.Client
	h.clients[client.id] = client
	client.Hub = h
	close(reg.Done)
}

// unregister is the server half of disconnect cleanup: the client drops out
// of every room it was joined to, leave event or not.
func (h *Hub) unregister(client *Client) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	h.registry.Disconnect(client.id)
	close(client.Out)
}

// dispatch routes one client event. A malformed event must never take the
// loop down with it, so we recover here instead of letting a panic escape.
func (h *Hub) dispatch(ctx context.Context, in Inbound) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from event handler panic: %v", r)
		}
	}()

	switch in.Env.Event {
	case model.EventJoinRoom:
		room, ok := decodeRoom(in.Env.Data)
		if !ok {
			log.Printf("dropping join_room without a room id from [%s]", in.From.id)
			return
		}
		h.registry.Join(in.From.id, room)

	case model.EventLeaveRoom:
		room, ok := decodeRoom(in.Env.Data)
		if !ok {
			log.Printf("dropping leave_room without a room id from [%s]", in.From.id)
			return
		}
		h.registry.Leave(in.From.id, room)

	case model.EventSendMessage:
		var msg model.Message
		if err := json.Unmarshal(in.Env.Data, &msg); err != nil || msg.Room == "" {
			log.Printf("dropping unroutable send_message from [%s]: %v", in.From.id, err)
			return
		}

		// We need to sanitize incoming messages to prevent XSS.
		msg.Message = h.sanitizer.Sanitize(msg.Message)

		env, err := model.NewEnvelope(model.EventReceiveMessage, msg)
		if err != nil {
			log.Printf("%v", err)
			return
		}
		h.broadcast(msg.Room, in.From.id, env)

		if h.jetstream != nil {
			if _, err := broker.Publish(ctx, h.jetstream, msg); err != nil {
				log.Printf("%v", err)
			}
		}

	case model.EventTyping:
		var t model.Typing
		if err := json.Unmarshal(in.Env.Data, &t); err != nil || t.Room == "" {
			log.Printf("dropping unroutable typing event from [%s]: %v", in.From.id, err)
			return
		}

		env, err := model.NewEnvelope(model.EventDisplayTyping, model.Typing{Author: t.Author})
		if err != nil {
			log.Printf("%v", err)
			return
		}
		h.broadcast(t.Room, in.From.id, env)

	case model.EventStopTyping:
		var st model.StopTyping
		if err := json.Unmarshal(in.Env.Data, &st); err != nil || st.Room == "" {
			log.Printf("dropping unroutable stop_typing event from [%s]: %v", in.From.id, err)
			return
		}

		env, err := model.NewEnvelope(model.EventHideTyping, nil)
		if err != nil {
			log.Printf("%v", err)
			return
		}
		h.broadcast(st.Room, in.From.id, env)

	default:
		// Unknown event kinds are ignored.
	}
}

// broadcast fans env out to every room member except the sender. Delivery
// is best-effort at-most-once: a member whose outbound buffer is full is
// skipped, never waited on.
func (h *Hub) broadcast(room string, except uuid.UUID, env model.Envelope) {
	for _, id := range h.registry.MembersOf(room, except) {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.Out <- env:
		default:
			log.Printf("skipping payload for [%s] - channel full or client slow", client.Name)
		}
	}
}

// decodeRoom reads the join_room / leave_room payload, a bare JSON string.
func decodeRoom(data json.RawMessage) (string, bool) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil || room == "" {
		return "", false
	}
	return room, true
}
