package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chatrelay/chatrelay/internal/model"
)

// Client is one websocket connection as the hub sees it.
type Client struct {
	id   uuid.UUID
	Name string
	conn *websocket.Conn
	Hub  *Hub

	// Out is drained by WritePump and closed by the hub on unregister.
	Out chan model.Envelope

	messageLim *rate.Limiter
	typingLim  *rate.Limiter
}

// NewClient returns a new instance of Client. The connection ID is assigned
// here, at the transport boundary; nothing upstream gets to pick it.
func NewClient(conn *websocket.Conn, name string) *Client {
	return &Client{
		id:   uuid.New(),
		Name: name,
		conn: conn,
		Out:  make(chan model.Envelope, 64),
	}
}

// ID reports the opaque connection identifier.
func (c *Client) ID() uuid.UUID { return c.id }

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	c.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	c.typingLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

// allow checks the event against the client's limiters. Events without a
// configured limiter always pass.
func (c *Client) allow(event string) bool {
	switch event {
	case model.EventSendMessage:
		return c.messageLim == nil || c.messageLim.Allow()
	case model.EventTyping:
		return c.typingLim == nil || c.typingLim.Allow()
	}
	return true
}

// WritePump writes hub envelopes to the outgoing websocket stream.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case env, ok := <-c.Out:
			// We don't want to continue processing when the channel has
			// already been closed.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := wsjson.Write(writeCtx, c.conn, env); err != nil {
				slog.WarnContext(ctx, "failed to write envelope",
					"error", err,
					"event", env.Event,
					"client", c.Name)
				cancel()
				continue
			}
			cancel()

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}
