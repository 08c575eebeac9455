package model

// Message is the send_message / receive_message payload. Time carries the
// sender's display-formatted wall-clock string; the relay never parses it.
type Message struct {
	Room    string `json:"room"`
	Author  string `json:"author"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// Typing is the typing payload ({room, author}) and, with Room left empty,
// the display_typing payload ({author}).
type Typing struct {
	Room   string `json:"room,omitempty"`
	Author string `json:"author"`
}

// StopTyping is the stop_typing payload. Only the room is known; the
// receiving side clears its indicator unconditionally.
type StopTyping struct {
	Room string `json:"room"`
}
