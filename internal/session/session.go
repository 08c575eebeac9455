// Package session is the client side of the relay protocol: it drives a
// connection through disconnected -> joining -> active, keeps the locally
// known message log and typing banner, and translates user actions into
// outbound events. Both the loadtest binary and any Go client embed it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/model"
)

// State is where the session currently sits in its lifecycle.
type State int

const (
	Disconnected State = iota
	Joining
	Active
	Leaving
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	}
	return "unknown"
}

// DefaultDebounceWindow is the quiet period after the last keystroke before
// stop_typing fires. Overridable per session; the protocol itself does not
// care about the exact value.
const DefaultDebounceWindow = 1500 * time.Millisecond

var (
	ErrEmptyJoin  = errors.New("internal/session: display name and room are required")
	ErrNotInRoom  = errors.New("internal/session: not joined to a room")
	ErrDisconnect = errors.New("internal/session: transport is gone")
)

// Transport is the one-way event pipe the session drives. Emit is
// fire-and-forget from the protocol's point of view: there is no ack, no
// response, no resend. Events is closed when the transport disconnects.
type Transport interface {
	Emit(ctx context.Context, env model.Envelope) error
	Events() <-chan model.Envelope
	Close() error
}

type Option func(*Session)

// WithDebounceWindow overrides the typing debounce quiet period.
func WithDebounceWindow(d time.Duration) Option {
	return func(s *Session) { s.window = d }
}

// WithClock overrides the wall clock used to stamp outgoing messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the client session state machine. Safe for use from multiple
// goroutines; the transport read loop and user actions share one mutex.
type Session struct {
	tr     Transport
	ctx    context.Context
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	state    State
	room     string
	author   string
	log      []model.Message
	typingBy string
	debounce *time.Timer
	gone     chan struct{}
}

// New wraps tr in a session and starts consuming its events.
func New(ctx context.Context, tr Transport, opts ...Option) *Session {
	s := &Session{
		tr:     tr,
		ctx:    ctx,
		window: DefaultDebounceWindow,
		now:    time.Now,
		state:  Disconnected,
		gone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.readLoop()
	return s
}

// Join enters room under the given display name. Both must be non-empty.
// The transition to Active is optimistic - the protocol has no join ack, so
// the chat view is live the moment the event is on the wire. Re-joining
// after a transport reconnect goes through here again; the server side is
// idempotent about it.
func (s *Session) Join(room, author string) error {
	if room == "" || author == "" {
		return ErrEmptyJoin
	}

	s.mu.Lock()
	s.state = Joining
	s.room = room
	s.author = author
	s.mu.Unlock()

	if err := s.emit(model.EventJoinRoom, room); err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = Active
	s.mu.Unlock()
	return nil
}

// Send relays text to the room. The message lands in the local log
// immediately (the relay never echoes back to its sender) and any pending
// typing indicator is withdrawn right behind it. Empty text is a no-op.
func (s *Session) Send(text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return ErrNotInRoom
	}

	msg := model.Message{
		Room:    s.room,
		Author:  s.author,
		Message: text,
		Time:    s.now().Format("15:04"),
	}
	s.log = append(s.log, msg)
	room := s.room
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.mu.Unlock()

	if err := s.emit(model.EventSendMessage, msg); err != nil {
		return err
	}
	return s.emit(model.EventStopTyping, model.StopTyping{Room: room})
}

// Typing is called on every compose-field change. Each call re-emits the
// typing event and pushes the single debounce timer out by the full window;
// stop_typing fires only once a quiet period has elapsed, so the indicator
// can never be left stuck as long as the sender eventually pauses or sends.
func (s *Session) Typing() error {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return ErrNotInRoom
	}

	t := model.Typing{Room: s.room, Author: s.author}
	if s.debounce == nil {
		s.debounce = time.AfterFunc(s.window, s.typingExpired)
	} else {
		s.debounce.Reset(s.window)
	}
	s.mu.Unlock()

	return s.emit(model.EventTyping, t)
}

// typingExpired runs off the debounce timer once the quiet period elapses.
func (s *Session) typingExpired() {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.mu.Unlock()

	if err := s.emit(model.EventStopTyping, model.StopTyping{Room: room}); err != nil {
		return
	}
}

// Leave exits the room explicitly: the leave event goes out, the local log
// and room identity are cleared, and the session is back to Disconnected.
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	s.state = Leaving
	room := s.room
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.mu.Unlock()

	err := s.emit(model.EventLeaveRoom, room)

	s.mu.Lock()
	s.room = ""
	s.log = nil
	s.typingBy = ""
	s.state = Disconnected
	s.mu.Unlock()

	return err
}

// readLoop consumes server events until the transport closes its channel.
// A transport-level disconnect sends no leave event - cleanup on the server
// is the registry's job - and keeps the local log, since the user did not
// ask to discard anything.
func (s *Session) readLoop() {
	for env := range s.tr.Events() {
		s.handle(env)
	}

	s.mu.Lock()
	s.state = Disconnected
	s.typingBy = ""
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.mu.Unlock()
	close(s.gone)
}

func (s *Session) handle(env model.Envelope) {
	switch env.Event {
	case model.EventReceiveMessage:
		var msg model.Message
		if err := unmarshalData(env, &msg); err != nil {
			return
		}
		s.mu.Lock()
		// Append-only, arrival order. No dedup against the local echo is
		// needed: the relay never sends a message back to its author.
		s.log = append(s.log, msg)
		s.mu.Unlock()

	case model.EventDisplayTyping:
		var t model.Typing
		if err := unmarshalData(env, &t); err != nil {
			return
		}
		s.mu.Lock()
		// One banner slot: a second typer overwrites the first.
		s.typingBy = t.Author
		s.mu.Unlock()

	case model.EventHideTyping:
		s.mu.Lock()
		s.typingBy = ""
		s.mu.Unlock()
	}
}

func (s *Session) emit(event string, payload any) error {
	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	if err := s.tr.Emit(s.ctx, env); err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	return nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room reports the currently joined room, empty when disconnected.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Messages returns a copy of the local message log: the session's own
// optimistic echoes interleaved with peer messages in arrival order.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.log))
	copy(out, s.log)
	return out
}

// TypingBy reports the author currently shown in the typing banner, empty
// when nobody is typing.
func (s *Session) TypingBy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingBy
}

// Done is closed once the transport has disconnected for good.
func (s *Session) Done() <-chan struct{} {
	return s.gone
}

// Close tears the transport down. The read loop notices and settles the
// session into Disconnected.
func (s *Session) Close() error {
	return s.tr.Close()
}
