package broker

import "strings"

// Using NATS is simpler than RabbitMQ for the projects requirements.
var (
	StreamName      = "CHAT"
	SubjectAllRooms = StreamName + ".room.>"
)

// RoomSubject maps a caller-supplied room id onto a NATS subject under the
// chat stream. Room ids are free-form strings; characters that are illegal
// in subject tokens are replaced so any joinable room stays publishable.
func RoomSubject(room string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, room)
	if token == "" {
		token = "_"
	}
	return StreamName + ".room." + token
}
