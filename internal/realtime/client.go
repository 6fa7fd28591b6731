package realtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/concordhq/concord/internal/logging"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the read
	// deadline alive.
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-connection outbound queue depth.
	sendBuffer = 256
)

// Client is a single realtime transport session: one WebSocket connection
// bound to one authenticated user. Its room memberships live in the hub's
// registry and are removed atomically on disconnect.
type Client struct {
	id      string
	userID  string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	addr    string
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection for the given user. The hub launches
// the read and write pumps when the client registers.
func NewClient(hub *Hub, conn *websocket.Conn, userID, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.opts.MaxMessageSize)
	}
	return &Client{
		id:      uuid.NewString(),
		userID:  userID,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		addr:    addr,
		limiter: rate.NewLimiter(rate.Limit(hub.opts.MessageRate), hub.opts.MessageBurst),
	}
}

// ID returns the opaque connection identity.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the authenticated user this connection acts as.
func (c *Client) UserID() string {
	return c.userID
}

// trySend queues a payload without blocking. It returns false when the
// connection is mid-teardown or its buffer is full; broadcast callers treat
// that as a skipped delivery, never a failure.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// markClosed flips the teardown flag. After it returns no trySend can touch
// the send channel, so the hub may close it.
func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Warn().Err(err).Str("addr", c.addr).Msg("failed to set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError classifies a read failure and reports whether the read loop
// should stop. Every branch stops; the split exists for log levels.
func (c *Client) handleReadError(err error) bool {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logging.Warn().Str("addr", c.addr).Int64("limit", c.hub.opts.MaxMessageSize).Msg("inbound frame exceeded size limit")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure),
		errors.Is(err, io.EOF),
		isExpectedCloseError(err):
		logging.Debug().Str("addr", c.addr).Str("conn_id", c.id).Msg("connection closed")
	default:
		logging.Warn().Err(err).Str("addr", c.addr).Msg("websocket read error")
	}
	return true
}

// readPump reads inbound envelopes and routes them to the registry or the
// dispatcher until the connection dies, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		// During hub shutdown nobody drains the unregister channel; the
		// hub tears all clients down itself.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			logging.Debug().Err(err).Str("addr", c.addr).Msg("error closing connection in read pump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.limiter.Allow() {
			logging.Debug().Str("addr", c.addr).Str("user_id", c.userID).Msg("rate limit exceeded; discarding event")
			continue
		}

		c.handleEnvelope(raw)
	}
}

// handleEnvelope decodes one inbound event and acts on it. Malformed frames
// are dropped with a log entry and never propagate to other clients.
func (c *Client) handleEnvelope(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logging.Warn().Err(err).Str("addr", c.addr).Msg("dropping undecodable frame")
		return
	}

	ctx := context.Background()

	switch env.Event {
	case EventJoinChannel, EventLeaveChannel:
		var p ChannelPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ChannelID == "" {
			logging.Warn().Str("event", env.Event).Str("addr", c.addr).Msg("dropping malformed room event")
			return
		}
		c.handleRoomEvent(ctx, env.Event == EventJoinChannel, ChannelRoom(p.ChannelID))

	case EventJoinDM, EventLeaveDM:
		var p DirectPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			logging.Warn().Str("event", env.Event).Str("addr", c.addr).Msg("dropping malformed room event")
			return
		}
		c.handleRoomEvent(ctx, env.Event == EventJoinDM, DirectRoom(p.ConversationID))

	case EventNewMessage, EventMessageUpdated, EventMessageDeleted:
		var p ChannelPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ChannelID == "" {
			logging.Warn().Str("event", env.Event).Str("addr", c.addr).Msg("dropping malformed mutation notification")
			return
		}
		c.hub.dispatcher.Dispatch(ctx, Notification{
			Kind:    inboundKind(env.Event),
			Room:    ChannelRoom(p.ChannelID),
			Message: p.Message,
			ActorID: c.userID,
		})

	case EventNewDMMessage, EventDMMessageUpdated, EventDMMessageDeleted:
		var p DirectPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationID == "" {
			logging.Warn().Str("event", env.Event).Str("addr", c.addr).Msg("dropping malformed mutation notification")
			return
		}
		c.hub.dispatcher.Dispatch(ctx, Notification{
			Kind:    inboundKind(env.Event),
			Room:    DirectRoom(p.ConversationID),
			Message: p.Message,
			ActorID: c.userID,
		})

	default:
		logging.Debug().Str("event", env.Event).Str("addr", c.addr).Msg("ignoring unknown event")
	}
}

// handleRoomEvent applies a join or leave. Joins re-check scope membership so
// a connection can never subscribe to a room its user does not belong to;
// unauthorized joins are dropped silently like every other realtime rejection.
func (c *Client) handleRoomEvent(ctx context.Context, join bool, room Room) {
	if !join {
		c.hub.registry.Leave(c, room)
		return
	}

	if !c.hub.oracle.CanBroadcast(ctx, c.userID, room.Scope()) {
		logging.Debug().
			Str("room", room.String()).
			Str("user_id", c.userID).
			Msg("dropping join from non-member")
		return
	}
	c.hub.registry.Join(c, room)
}

// inboundKind maps a client-to-server mutation event name to its lifecycle
// kind. Callers only pass mutation event names.
func inboundKind(event string) EventKind {
	switch event {
	case EventNewMessage, EventNewDMMessage:
		return EventCreated
	case EventMessageUpdated, EventDMMessageUpdated:
		return EventUpdated
	default:
		return EventDeleted
	}
}

// writePump drains the send channel to the connection and keeps the session
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			logging.Debug().Err(err).Str("addr", c.addr).Msg("error closing connection in write pump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeMessage(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeMessage writes one payload plus anything already queued behind it and
// reports whether the pump should continue.
func (c *Client) writeMessage(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}

	if !ok {
		// Hub closed the send channel.
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}

	// Flush queued events into the same frame batch.
	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			return false
		}
	}

	return w.Close() == nil
}

// writePing sends a keepalive ping.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}
