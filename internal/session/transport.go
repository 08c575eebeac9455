package session

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatrelay/chatrelay/internal/model"
)

// wsTransport adapts a coder/websocket connection to the Transport pipe.
type wsTransport struct {
	conn   *websocket.Conn
	events chan model.Envelope
}

// Dial connects to a relay server's /ws endpoint and returns a Transport
// ready to hand to New.
func Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	t := &wsTransport{
		conn:   conn,
		events: make(chan model.Envelope, 64),
	}
	go t.readLoop(ctx)
	return t, nil
}

// readLoop pumps server frames into the events channel. Any read error
// means the connection is gone; closing the channel is the disconnect
// notification the session reacts to.
func (t *wsTransport) readLoop(ctx context.Context) {
	defer close(t.events)

	for {
		var env model.Envelope
		if err := wsjson.Read(ctx, t.conn, &env); err != nil {
			return
		}

		select {
		case t.events <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (t *wsTransport) Emit(ctx context.Context, env model.Envelope) error {
	return wsjson.Write(ctx, t.conn, env)
}

func (t *wsTransport) Events() <-chan model.Envelope {
	return t.events
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "leaving")
}

func unmarshalData(env model.Envelope, v any) error {
	return json.Unmarshal(env.Data, v)
}
