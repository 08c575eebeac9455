// Package model defines the wire-level event types.
package model

import (
	"encoding/json"
	"fmt"
)

// Event names are the protocol contract between client and relay.
// Existing browser clients depend on these exact strings.
const (
	// client -> server
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"

	// server -> client
	EventReceiveMessage = "receive_message"
	EventDisplayTyping  = "display_typing"
	EventHideTyping     = "hide_typing"
)

// Envelope wraps every frame exchanged over a connection. Data stays raw
// until the event name tells us which payload shape to expect.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload and wraps it under the given event name.
// A nil payload produces an envelope with no data, e.g. hide_typing.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	p, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("internal/model: could not encode %s payload: %w", event, err)
	}

	env.Data = p
	return env, nil
}
