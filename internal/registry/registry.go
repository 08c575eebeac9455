// Package registry tracks which connection belongs to which rooms.
package registry

import "github.com/google/uuid"

// Registry is the room membership index. It is owned by the hub's event
// loop: every mutation and lookup happens on that single goroutine, so the
// registry itself carries no lock. A room exists exactly as long as at
// least one connection is joined to it.
type Registry struct {
	// room name -> member connection IDs
	rooms map[string]map[uuid.UUID]struct{}
	// connection ID -> joined room names, for disconnect cleanup
	joined map[uuid.UUID]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		rooms:  make(map[string]map[uuid.UUID]struct{}),
		joined: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Join adds conn to room. Idempotent; joining a room twice is the same as
// joining it once.
func (r *Registry) Join(conn uuid.UUID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		r.rooms[room] = members
	}
	members[conn] = struct{}{}

	rooms, ok := r.joined[conn]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[conn] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes conn from room. Leaving a room the connection never joined
// is a no-op, not an error.
func (r *Registry) Leave(conn uuid.UUID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[conn]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, conn)
		}
	}
}

// Disconnect removes conn from every room it belongs to. This is the only
// cleanup path for clients that vanish without an explicit leave.
func (r *Registry) Disconnect(conn uuid.UUID) {
	for room := range r.joined[conn] {
		if members, ok := r.rooms[room]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.joined, conn)
}

// MembersOf returns the members of room excluding except. The caller uses
// this to fan out an event to everyone but its sender.
func (r *Registry) MembersOf(room string, except uuid.UUID) []uuid.UUID {
	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(members))
	for id := range members {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

// Rooms returns the rooms conn is currently joined to.
func (r *Registry) Rooms(conn uuid.UUID) []string {
	out := make([]string, 0, len(r.joined[conn]))
	for room := range r.joined[conn] {
		out = append(out, room)
	}
	return out
}
