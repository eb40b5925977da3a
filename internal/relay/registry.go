package relay

import "github.com/samber/lo"

// Room is a named set of connections that receive each other's broadcasts.
type Room struct {
	name    string
	members map[string]Connection
}

func newRoom(name string) *Room {
	return &Room{name: name, members: make(map[string]Connection)}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Len returns the number of members.
func (r *Room) Len() int { return len(r.members) }

// Registry tracks live connections and their room membership.
//
// Rooms are kept as a name to member-set mapping even though every
// connection currently lands in DefaultRoom. A Registry is not safe for
// concurrent use; the Hub owns it from its event loop.
type Registry struct {
	rooms       map[string]*Room
	memberships map[string]string // connection ID -> room name
}

// NewRegistry creates a registry with DefaultRoom already present.
// The default room lives for the lifetime of the registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:       map[string]*Room{DefaultRoom: newRoom(DefaultRoom)},
		memberships: make(map[string]string),
	}
}

// Admit adds conn to DefaultRoom. Admission always succeeds; admitting a
// connection that is already a member leaves the registry unchanged.
func (r *Registry) Admit(conn Connection) {
	if _, ok := r.memberships[conn.ID()]; ok {
		return
	}
	room := r.rooms[DefaultRoom]
	room.members[conn.ID()] = conn
	r.memberships[conn.ID()] = room.name
}

// Remove takes conn out of its room. It reports whether the connection was
// a member; removing an unknown connection is a no-op.
func (r *Registry) Remove(conn Connection) bool {
	name, ok := r.memberships[conn.ID()]
	if !ok {
		return false
	}
	delete(r.memberships, conn.ID())
	if room, exists := r.rooms[name]; exists {
		delete(room.members, conn.ID())
	}
	return true
}

// RoomOf returns the room the connection with the given ID belongs to.
func (r *Registry) RoomOf(id string) (string, bool) {
	name, ok := r.memberships[id]
	return name, ok
}

// Members returns a snapshot of the connections in the named room.
func (r *Registry) Members(name string) []Connection {
	room, ok := r.rooms[name]
	if !ok {
		return nil
	}
	return lo.Values(room.members)
}

// Stats reports the number of rooms and admitted connections.
func (r *Registry) Stats() Stats {
	connections := lo.SumBy(lo.Values(r.rooms), func(room *Room) int {
		return room.Len()
	})
	return Stats{Rooms: len(r.rooms), Connections: connections}
}
