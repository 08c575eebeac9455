package relay

import (
	"context"
	"encoding/json"
	"log"

	"github.com/coder/websocket"

	"github.com/chatrelay/chatrelay/internal/model"
)

// ReadPump reads incoming envelopes from the websocket stream and hands
// them to the hub. It returns when the connection dies, unregistering the
// client exactly once on the way out - that is the entire disconnect
// cleanup path for clients that vanish without a leave_room.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister <- c
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				log.Printf("%v", err)
			}
			return
		}

		// The protocol only carries text frames.
		if msgType != websocket.MessageText {
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			log.Printf("failed to process payload from client: %v", err)
			continue
		}
		if env.Event == "" {
			continue
		}

		// Over-limit chatter is dropped here, before it ever reaches the
		// event loop.
		if !c.allow(env.Event) {
			log.Printf("rate limit exceeded for [%s], dropping %s", c.Name, env.Event)
			continue
		}

		c.Hub.Inbound <- Inbound{From: c, Env: env}
	}
}
