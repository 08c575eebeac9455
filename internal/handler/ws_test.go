package handler

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/registry"
	"github.com/chatrelay/chatrelay/internal/relay"
	"github.com/chatrelay/chatrelay/internal/session"
)

// settleTime is how long we give the server to process events that have no
// acknowledgment (joins, sends) before asserting on the other side.
const settleTime = 300 * time.Millisecond

func startServer(t *testing.T, limits Limits) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(registry.New(), nil)
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws", ServeWs(hub, limits))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dialSession(t *testing.T, srv *httptest.Server, name string, opts ...session.Option) *session.Session {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tr, err := session.Dial(ctx, srv.URL+"/ws?name="+name)
	require.NoError(t, err)

	s := session.New(ctx, tr, opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEndToEndMessageDelivery(t *testing.T) {
	srv := startServer(t, Limits{})

	a := dialSession(t, srv, "A")
	b := dialSession(t, srv, "B")

	require.NoError(t, a.Join("7", "A"))
	require.NoError(t, b.Join("7", "B"))
	time.Sleep(settleTime)

	require.NoError(t, b.Send("hi"))

	// A receives exactly the relayed payload.
	assert.Eventually(t, func() bool { return len(a.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	got := a.Messages()[0]
	assert.Equal(t, "7", got.Room)
	assert.Equal(t, "B", got.Author)
	assert.Equal(t, "hi", got.Message)
	assert.NotEmpty(t, got.Time)

	// B holds the message once, via local echo, not via a second server
	// delivery.
	time.Sleep(settleTime)
	assert.Len(t, b.Messages(), 1)
}

func TestEndToEndTypingIndicator(t *testing.T) {
	srv := startServer(t, Limits{})

	a := dialSession(t, srv, "A")
	b := dialSession(t, srv, "B", session.WithDebounceWindow(150*time.Millisecond))

	require.NoError(t, a.Join("lobby", "A"))
	require.NoError(t, b.Join("lobby", "B"))
	time.Sleep(settleTime)

	require.NoError(t, b.Typing())

	assert.Eventually(t, func() bool { return a.TypingBy() == "B" }, 2*time.Second, 10*time.Millisecond)

	// B goes quiet; the debounce expires and the banner clears on A.
	assert.Eventually(t, func() bool { return a.TypingBy() == "" }, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndDisconnectCleanup(t *testing.T) {
	srv := startServer(t, Limits{})

	a := dialSession(t, srv, "A")
	b := dialSession(t, srv, "B")
	c := dialSession(t, srv, "C")

	for s, name := range map[*session.Session]string{a: "A", b: "B", c: "C"} {
		require.NoError(t, s.Join("room", name))
	}
	time.Sleep(settleTime)

	// A's transport drops without a leave_room.
	require.NoError(t, a.Close())
	<-a.Done()
	time.Sleep(settleTime)

	require.NoError(t, b.Send("anyone left?"))

	// C still gets it; the hub did not stall on the dead member.
	assert.Eventually(t, func() bool { return len(c.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// And A saw nothing after disconnecting.
	assert.Empty(t, a.Messages())
}

func TestEndToEndRateLimit(t *testing.T) {
	srv := startServer(t, Limits{MessagesPerMinute: 2})

	a := dialSession(t, srv, "A")
	b := dialSession(t, srv, "B")

	require.NoError(t, a.Join("limited", "A"))
	require.NoError(t, b.Join("limited", "B"))
	time.Sleep(settleTime)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Send("spam"))
	}

	// Only the burst allowance makes it through the relay.
	assert.Eventually(t, func() bool { return len(a.Messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(settleTime)
	assert.Len(t, a.Messages(), 2)

	// The sender's optimistic log is untouched by server-side limiting.
	assert.Len(t, b.Messages(), 5)
}
