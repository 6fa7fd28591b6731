// Package reconcile maintains a client's local view of each room's messages.
// It merges three input streams without duplication or lost updates: locally
// optimistic entries inserted before the server responds, server-confirmed
// entries from the HTTP mutation response, and events pushed over the
// realtime transport (including the redundant echo of the client's own
// writes). All three entry points are idempotent with respect to message
// identity, which is assigned exclusively by the server.
package reconcile

import (
	"sort"
	"sync"

	"github.com/concordhq/concord/internal/model"
)

// Cache holds the ordered message sequences for every room a client has
// viewed. Rooms are independent: events for a room keep accumulating while
// another room is displayed. The cache belongs to a single client process; it
// is safe for that client's own concurrent goroutines (HTTP response handling
// racing the realtime reader) but is never shared across clients.
type Cache struct {
	mu    sync.Mutex
	rooms map[string]*roomView
}

// roomView is one room's ordered sequence, keyed by message id.
type roomView struct {
	order []string
	byID  map[string]*model.Message
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{rooms: make(map[string]*roomView)}
}

func (c *Cache) room(roomID string) *roomView {
	v, ok := c.rooms[roomID]
	if !ok {
		v = &roomView{byID: make(map[string]*model.Message)}
		c.rooms[roomID] = v
	}
	return v
}

// ApplyOptimistic inserts a locally authored message before server
// confirmation so the author perceives zero send latency. The id must be the
// one the server assigned (the HTTP response arrives before the realtime
// echo) or a provisional id later rolled back.
func (c *Cache) ApplyOptimistic(roomID string, msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room(roomID).insert(msg)
}

// ApplyServerConfirmed merges the HTTP response for a send. When an
// optimistic entry with the same id exists this replaces its payload in
// place; otherwise the message is inserted. Either way the room ends with
// exactly one entry per id.
func (c *Cache) ApplyServerConfirmed(roomID string, msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.room(roomID)
	if _, ok := v.byID[msg.ID]; ok {
		stored := msg
		v.byID[msg.ID] = &stored
		return
	}
	v.insert(msg)
}

// ApplyCreated merges a pushed creation event: appended only when the id is
// not already present, which makes the echo of one's own send a no-op.
func (c *Cache) ApplyCreated(roomID string, msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.room(roomID)
	if _, ok := v.byID[msg.ID]; ok {
		return
	}
	v.insert(msg)
}

// ApplyOverlay merges a pushed update or delete event: the existing entry's
// payload is replaced in place by id, preserving its ordering position.
// Events for unknown ids (for example a room joined after the message was
// sent) are ignored. Overlays are last-write-wins by arrival order, not by
// timestamp, and a delete never removes the entry; the tombstone content
// stays in place.
func (c *Cache) ApplyOverlay(roomID string, msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.room(roomID)
	if _, ok := v.byID[msg.ID]; !ok {
		return
	}
	stored := msg
	v.byID[msg.ID] = &stored
}

// Rollback removes an optimistic entry whose write the server rejected, so no
// orphaned local message lingers.
func (c *Cache) Rollback(roomID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := v.byID[messageID]; !ok {
		return
	}
	delete(v.byID, messageID)
	for i, id := range v.order {
		if id == messageID {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Messages returns the room's current ordered view.
func (c *Cache) Messages(roomID string) []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]model.Message, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, *v.byID[id])
	}
	return out
}

// Len returns the number of entries cached for the room.
func (c *Cache) Len(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.rooms[roomID]
	if !ok {
		return 0
	}
	return len(v.order)
}

// insert places a new entry at its ordered position: creation time, with ties
// broken by id so every client converges on the same sequence. The position
// never changes afterwards; edits and deletes only overlay the payload.
func (v *roomView) insert(msg model.Message) {
	if _, ok := v.byID[msg.ID]; ok {
		return
	}
	stored := msg
	v.byID[msg.ID] = &stored

	idx := sort.Search(len(v.order), func(i int) bool {
		other := v.byID[v.order[i]]
		if other.CreatedAt.Equal(stored.CreatedAt) {
			return other.ID > stored.ID
		}
		return other.CreatedAt.After(stored.CreatedAt)
	})

	v.order = append(v.order, "")
	copy(v.order[idx+1:], v.order[idx:])
	v.order[idx] = msg.ID
}
