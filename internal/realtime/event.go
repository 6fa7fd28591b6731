package realtime

import (
	"github.com/goccy/go-json"

	"github.com/concordhq/concord/internal/model"
)

// Client-to-server event names.
const (
	EventJoinChannel  = "join-channel"
	EventLeaveChannel = "leave-channel"
	EventJoinDM       = "join-dm"
	EventLeaveDM      = "leave-dm"

	EventNewMessage       = "new-message"
	EventMessageUpdated   = "message-updated"
	EventMessageDeleted   = "message-deleted"
	EventNewDMMessage     = "new-dm-message"
	EventDMMessageUpdated = "dm-message-updated"
	EventDMMessageDeleted = "dm-message-deleted"
)

// Server-to-client event names. Channel and direct-message rooms use separate
// namespaces so clients can subscribe to only the view mode they render, even
// though the dispatch logic is identical.
const (
	EventOutMessageCreated   = "message-created"
	EventOutMessageUpdated   = "message-updated"
	EventOutMessageDeleted   = "message-deleted"
	EventOutDMMessageCreated = "dm-message-created"
	EventOutDMMessageUpdated = "dm-message-updated"
	EventOutDMMessageDeleted = "dm-message-deleted"
)

// EventKind is the lifecycle stage a mutation notification describes.
type EventKind int

const (
	// EventCreated announces a newly persisted message.
	EventCreated EventKind = iota
	// EventUpdated announces an edit to an existing message.
	EventUpdated
	// EventDeleted announces a tombstoned message.
	EventDeleted
)

// String returns the kind's wire suffix.
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// outboundEvent maps a lifecycle kind and room kind to the fixed wire name.
func outboundEvent(kind EventKind, room RoomKind) string {
	if room == RoomDirect {
		switch kind {
		case EventCreated:
			return EventOutDMMessageCreated
		case EventUpdated:
			return EventOutDMMessageUpdated
		case EventDeleted:
			return EventOutDMMessageDeleted
		}
	}
	switch kind {
	case EventCreated:
		return EventOutMessageCreated
	case EventUpdated:
		return EventOutMessageUpdated
	case EventDeleted:
		return EventOutMessageDeleted
	}
	return ""
}

// Envelope is the framing for every event on the realtime transport in both
// directions: an event name plus a JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChannelPayload is the payload for channel-room events. Join/leave carry
// only the channel id; message events carry the materialized message.
type ChannelPayload struct {
	ChannelID string         `json:"channelId"`
	Message   *model.Message `json:"message,omitempty"`
}

// DirectPayload is the payload for direct-conversation events.
type DirectPayload struct {
	ConversationID string         `json:"conversationId"`
	Message        *model.Message `json:"message,omitempty"`
}

// NewEnvelope marshals a payload into an Envelope for the given event name.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// channelEnvelope builds the outbound envelope for a channel-room event.
func channelEnvelope(kind EventKind, channelID string, msg *model.Message) (Envelope, error) {
	return NewEnvelope(outboundEvent(kind, RoomChannel), ChannelPayload{ChannelID: channelID, Message: msg})
}

// directEnvelope builds the outbound envelope for a direct-room event.
func directEnvelope(kind EventKind, conversationID string, msg *model.Message) (Envelope, error) {
	return NewEnvelope(outboundEvent(kind, RoomDirect), DirectPayload{ConversationID: conversationID, Message: msg})
}
