// Package realtime implements Concord's room-based publish/subscribe core:
// the room registry that tracks which connections subscribe to which rooms,
// the dispatcher that authorizes and fans out message lifecycle events, and
// the WebSocket connection lifecycle adapted around both.
package realtime

import (
	"fmt"

	"github.com/concordhq/concord/internal/membership"
)

// RoomKind distinguishes channel rooms from direct-conversation rooms.
type RoomKind int

const (
	// RoomChannel is a server channel broadcast scope.
	RoomChannel RoomKind = iota
	// RoomDirect is a two-party direct conversation broadcast scope.
	RoomDirect
)

// Room identifies a broadcast scope. Rooms have no existence independent of
// their member set: they appear on first join and vanish when empty. Room is
// comparable and used directly as a map key.
type Room struct {
	Kind RoomKind
	ID   string
}

// ChannelRoom returns the room for a channel id.
func ChannelRoom(channelID string) Room {
	return Room{Kind: RoomChannel, ID: channelID}
}

// DirectRoom returns the room for a direct conversation id.
func DirectRoom(conversationID string) Room {
	return Room{Kind: RoomDirect, ID: conversationID}
}

// String renders the canonical room identifier, "channel:<id>" or "dm:<id>".
func (r Room) String() string {
	switch r.Kind {
	case RoomChannel:
		return fmt.Sprintf("channel:%s", r.ID)
	case RoomDirect:
		return fmt.Sprintf("dm:%s", r.ID)
	default:
		return fmt.Sprintf("unknown:%s", r.ID)
	}
}

// Scope returns the authorization scope checked by the membership oracle.
func (r Room) Scope() membership.Scope {
	switch r.Kind {
	case RoomDirect:
		return membership.DirectScope(r.ID)
	default:
		return membership.ChannelScope(r.ID)
	}
}
