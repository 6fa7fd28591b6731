package realtime

import (
	"context"

	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/membership"
	"github.com/concordhq/concord/internal/model"
)

// Authorizer is the capability oracle the dispatcher re-validates every
// inbound notification against. Implemented by membership.Oracle.
type Authorizer interface {
	CanBroadcast(ctx context.Context, actorID string, scope membership.Scope) bool
	CanMutate(ctx context.Context, actorID, authorID string, scope membership.Scope) bool
}

// Broadcaster fans an envelope out to a room. Implemented by Registry.
type Broadcaster interface {
	Broadcast(room Room, env Envelope) int
}

// Notification is an inbound mutation notification: a client reporting that a
// message lifecycle change was persisted and should be fanned out.
type Notification struct {
	Kind    EventKind
	Room    Room
	Message *model.Message
	ActorID string
}

// Dispatcher validates mutation notifications and broadcasts the canonical
// event to the room. The authoritative accept/reject already happened on the
// synchronous mutation path; this layer is defense in depth, so every
// rejection here is a silent drop rather than a user-visible error.
type Dispatcher struct {
	oracle   Authorizer
	registry Broadcaster
}

// NewDispatcher wires an authorizer and a broadcaster together.
func NewDispatcher(oracle Authorizer, registry Broadcaster) *Dispatcher {
	return &Dispatcher{oracle: oracle, registry: registry}
}

// Dispatch runs a notification through validate-then-broadcast. It returns
// true when the event was broadcast and false when it was dropped, so callers
// and tests can observe the outcome; dropped events are never surfaced to
// other clients.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) bool {
	if !n.wellFormed() {
		logging.Warn().
			Str("room", n.Room.String()).
			Str("kind", n.Kind.String()).
			Msg("dropping malformed mutation notification")
		return false
	}

	scope := n.Room.Scope()
	if !d.oracle.CanBroadcast(ctx, n.ActorID, scope) {
		logging.Debug().
			Str("room", n.Room.String()).
			Str("actor_id", n.ActorID).
			Msg("dropping notification from non-member")
		return false
	}

	// Edits and deletes additionally require mutation rights over the
	// message's author.
	if n.Kind == EventUpdated || n.Kind == EventDeleted {
		if !d.oracle.CanMutate(ctx, n.ActorID, n.Message.AuthorID, scope) {
			logging.Debug().
				Str("room", n.Room.String()).
				Str("actor_id", n.ActorID).
				Str("author_id", n.Message.AuthorID).
				Str("kind", n.Kind.String()).
				Msg("dropping unauthorized mutation notification")
			return false
		}
	}

	env, err := d.envelope(n)
	if err != nil {
		logging.Error().Err(err).Str("room", n.Room.String()).Msg("failed to build outbound event")
		return false
	}

	d.registry.Broadcast(n.Room, env)
	return true
}

// wellFormed checks the fields every notification must carry. Deleted events
// must arrive as tombstones; the entry is overwritten, never removed, so
// clients keep its ordering position.
func (n Notification) wellFormed() bool {
	if n.Room.ID == "" || n.ActorID == "" || n.Message == nil {
		return false
	}
	if n.Message.ID == "" || n.Message.AuthorID == "" {
		return false
	}
	switch n.Kind {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) envelope(n Notification) (Envelope, error) {
	if n.Room.Kind == RoomDirect {
		return directEnvelope(n.Kind, n.Room.ID, n.Message)
	}
	return channelEnvelope(n.Kind, n.Room.ID, n.Message)
}
