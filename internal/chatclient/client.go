// Package chatclient is the Go realtime client for a Concord server. It keeps
// one per-room message view in sync with server broadcasts through a
// reconcile.Cache, and emits the mutation notifications the server fans out to
// other room members.
package chatclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/model"
	"github.com/concordhq/concord/internal/realtime"
	"github.com/concordhq/concord/internal/reconcile"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
)

// Client is a connected realtime session. All exported methods are safe for
// concurrent use; inbound events are applied by the Run loop.
type Client struct {
	conn  *websocket.Conn
	cache *reconcile.Cache

	writeMu sync.Mutex
}

// Dial connects to a server's /ws endpoint with the given session token. The
// caller owns the returned client and must call Run to start receiving events
// and Close when done.
func Dial(ctx context.Context, serverURL, token string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.String(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	return &Client{conn: conn, cache: reconcile.NewCache()}, nil
}

// Cache exposes the reconciliation cache holding the per-room message views.
func (c *Client) Cache() *reconcile.Cache {
	return c.cache
}

// Close tears the connection down. Run returns shortly after.
func (c *Client) Close() error {
	c.writeMu.Lock()
	deadline := time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Run reads server events and applies them to the cache until the connection
// closes or ctx is cancelled. Servers batch queued events into one frame
// separated by newlines; each line is an independent envelope.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			c.apply(line)
		}
	}
}

// apply merges one inbound envelope into the cache. Unknown events and frames
// that fail to decode are ignored; the server is the authority and resync
// happens over HTTP.
func (c *Client) apply(raw []byte) {
	var env realtime.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logging.Debug().Err(err).Msg("chatclient: dropping undecodable frame")
		return
	}

	switch env.Event {
	case realtime.EventOutMessageCreated, realtime.EventOutMessageUpdated, realtime.EventOutMessageDeleted:
		var p realtime.ChannelPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Message == nil {
			return
		}
		if env.Event == realtime.EventOutMessageCreated {
			c.cache.ApplyCreated(p.ChannelID, *p.Message)
		} else {
			c.cache.ApplyOverlay(p.ChannelID, *p.Message)
		}

	case realtime.EventOutDMMessageCreated, realtime.EventOutDMMessageUpdated, realtime.EventOutDMMessageDeleted:
		var p realtime.DirectPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Message == nil {
			return
		}
		if env.Event == realtime.EventOutDMMessageCreated {
			c.cache.ApplyCreated(p.ConversationID, *p.Message)
		} else {
			c.cache.ApplyOverlay(p.ConversationID, *p.Message)
		}

	default:
		logging.Debug().Str("event", env.Event).Msg("chatclient: ignoring unknown event")
	}
}

func (c *Client) emit(event string, payload any) error {
	env, err := realtime.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// JoinChannel subscribes this session to a channel room. The server silently
// ignores joins for channels the user is not a member of.
func (c *Client) JoinChannel(channelID string) error {
	return c.emit(realtime.EventJoinChannel, realtime.ChannelPayload{ChannelID: channelID})
}

// LeaveChannel unsubscribes from a channel room.
func (c *Client) LeaveChannel(channelID string) error {
	return c.emit(realtime.EventLeaveChannel, realtime.ChannelPayload{ChannelID: channelID})
}

// JoinDM subscribes to a direct conversation room.
func (c *Client) JoinDM(conversationID string) error {
	return c.emit(realtime.EventJoinDM, realtime.DirectPayload{ConversationID: conversationID})
}

// LeaveDM unsubscribes from a direct conversation room.
func (c *Client) LeaveDM(conversationID string) error {
	return c.emit(realtime.EventLeaveDM, realtime.DirectPayload{ConversationID: conversationID})
}

// AnnounceMessage notifies the room about a channel message the caller just
// persisted over HTTP. The confirmed message also replaces any optimistic
// entry in the local cache.
func (c *Client) AnnounceMessage(kind realtime.EventKind, channelID string, msg model.Message) error {
	c.cache.ApplyServerConfirmed(channelID, msg)

	var event string
	switch kind {
	case realtime.EventCreated:
		event = realtime.EventNewMessage
	case realtime.EventUpdated:
		event = realtime.EventMessageUpdated
	case realtime.EventDeleted:
		event = realtime.EventMessageDeleted
	default:
		return fmt.Errorf("unknown event kind %d", kind)
	}
	return c.emit(event, realtime.ChannelPayload{ChannelID: channelID, Message: &msg})
}

// AnnounceDMMessage is AnnounceMessage for direct conversations.
func (c *Client) AnnounceDMMessage(kind realtime.EventKind, conversationID string, msg model.Message) error {
	c.cache.ApplyServerConfirmed(conversationID, msg)

	var event string
	switch kind {
	case realtime.EventCreated:
		event = realtime.EventNewDMMessage
	case realtime.EventUpdated:
		event = realtime.EventDMMessageUpdated
	case realtime.EventDeleted:
		event = realtime.EventDMMessageDeleted
	default:
		return fmt.Errorf("unknown event kind %d", kind)
	}
	return c.emit(event, realtime.DirectPayload{ConversationID: conversationID, Message: &msg})
}

// Optimistic inserts a locally authored message into the room view before the
// HTTP write confirms. Roll it back with Rollback if the write fails.
func (c *Client) Optimistic(roomID string, msg model.Message) {
	c.cache.ApplyOptimistic(roomID, msg)
}

// Rollback removes a failed optimistic write from the room view.
func (c *Client) Rollback(roomID, messageID string) {
	c.cache.Rollback(roomID, messageID)
}

// Messages returns the current ordered view of a room.
func (c *Client) Messages(roomID string) []model.Message {
	return c.cache.Messages(roomID)
}
