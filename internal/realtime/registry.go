package realtime

import (
	"sync"

	"github.com/goccy/go-json"

	"github.com/concordhq/concord/internal/logging"
)

// Registry tracks which connections are subscribed to which rooms. It is the
// only mutable state shared across connections in the realtime core; every
// read and write goes through Join, Leave, Disconnect, or Broadcast, all of
// which are safe under concurrent invocation.
//
// Join and Leave use set semantics: joining a joined room and leaving an
// unjoined room are no-ops, so a connection is never double-counted. A room
// exists exactly while its member set is non-empty.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[Room]map[*Client]struct{}
	joined map[*Client]map[Room]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[Room]map[*Client]struct{}),
		joined: make(map[*Client]map[Room]struct{}),
	}
}

// Join subscribes the client to the room. Idempotent.
func (r *Registry) Join(c *Client, room Room) {
	if c == nil || room.ID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}

	roomSet, ok := r.joined[c]
	if !ok {
		roomSet = make(map[Room]struct{})
		r.joined[c] = roomSet
	}
	roomSet[room] = struct{}{}
}

// Leave unsubscribes the client from the room. A no-op when the room or the
// membership does not exist.
func (r *Registry) Leave(c *Client, room Room) {
	if c == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, room)
}

func (r *Registry) leaveLocked(c *Client, room Room) {
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if roomSet, ok := r.joined[c]; ok {
		delete(roomSet, room)
		if len(roomSet) == 0 {
			delete(r.joined, c)
		}
	}
}

// Disconnect removes the client from every room it belongs to. Called once
// per connection teardown; safe to call concurrently with in-flight
// broadcasts, which simply may or may not reach the departing client.
func (r *Registry) Disconnect(c *Client) {
	if c == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[c] {
		r.leaveLocked(c, room)
	}
	delete(r.joined, c)
}

// Broadcast delivers the envelope to every current member of the room,
// including the originator if subscribed. Delivery is fire-and-forget per
// connection: a member whose send buffer is full or whose connection is
// mid-teardown is skipped without affecting delivery to the rest. Returns the
// number of connections the event was queued for.
func (r *Registry) Broadcast(room Room, env Envelope) int {
	payload, err := json.Marshal(env)
	if err != nil {
		logging.Error().Err(err).Str("event", env.Event).Msg("failed to encode broadcast envelope")
		return 0
	}

	members := r.snapshot(room)
	if len(members) == 0 {
		// Unknown or empty room: a no-op, not an error.
		return 0
	}

	delivered := 0
	for _, c := range members {
		if c.trySend(payload) {
			delivered++
		} else {
			logging.Debug().
				Str("room", room.String()).
				Str("conn_id", c.id).
				Msg("skipping undeliverable connection during broadcast")
		}
	}

	logging.Debug().
		Str("room", room.String()).
		Str("event", env.Event).
		Int("delivered", delivered).
		Msg("broadcast fan-out complete")
	return delivered
}

// snapshot copies the room's member set so delivery happens outside the lock.
func (r *Registry) snapshot(room Room) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Client, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		members = append(members, c)
	}
	return members
}

// Contains reports whether the client is currently a member of the room.
func (r *Registry) Contains(c *Client, room Room) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][c]
	return ok
}

// RoomSize returns the current member count of the room.
func (r *Registry) RoomSize(room Room) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the rooms the client currently belongs to.
func (r *Registry) Rooms(c *Client) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]Room, 0, len(r.joined[c]))
	for room := range r.joined[c] {
		rooms = append(rooms, room)
	}
	return rooms
}
