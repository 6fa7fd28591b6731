package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordhq/concord/internal/membership"
)

// allowAll authorizes everything; registry tests exercise membership
// bookkeeping, not authorization.
type allowAll struct{}

func (allowAll) CanBroadcast(context.Context, string, membership.Scope) bool     { return true }
func (allowAll) CanMutate(context.Context, string, string, membership.Scope) bool { return true }

func newTestClient(t *testing.T, userID string) *Client {
	t.Helper()
	hub := NewHub(allowAll{}, Options{MaxMessageSize: 4096, MessageRate: 100, MessageBurst: 100})
	return NewClient(hub, nil, userID, "127.0.0.1:0")
}

func TestJoinLeaveIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient(t, "u1")
	room := ChannelRoom("general")

	reg.Join(c, room)
	reg.Join(c, room)
	assert.Equal(t, 1, reg.RoomSize(room), "double join must not double-count")
	assert.True(t, reg.Contains(c, room))

	reg.Leave(c, room)
	assert.Equal(t, 0, reg.RoomSize(room))
	assert.False(t, reg.Contains(c, room))

	// Leaving again, or leaving a room never joined, is a no-op.
	reg.Leave(c, room)
	reg.Leave(c, DirectRoom("conv9"))
}

func TestDisconnectClearsAllRooms(t *testing.T) {
	reg := NewRegistry()
	c := newTestClient(t, "u1")
	other := newTestClient(t, "u2")

	rooms := []Room{ChannelRoom("a"), ChannelRoom("b"), DirectRoom("conv1")}
	for _, room := range rooms {
		reg.Join(c, room)
		reg.Join(other, room)
	}

	reg.Disconnect(c)

	assert.Empty(t, reg.Rooms(c))
	for _, room := range rooms {
		assert.False(t, reg.Contains(c, room))
		assert.True(t, reg.Contains(other, room), "disconnect must not evict other members")
	}
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	reg := NewRegistry()
	member := newTestClient(t, "u1")
	sender := newTestClient(t, "u2")
	outsider := newTestClient(t, "u3")
	room := ChannelRoom("general")

	reg.Join(member, room)
	reg.Join(sender, room)
	reg.Join(outsider, ChannelRoom("random"))

	env, err := NewEnvelope("message-created", ChannelPayload{ChannelID: "general"})
	require.NoError(t, err)

	delivered := reg.Broadcast(room, env)
	assert.Equal(t, 2, delivered, "originator gets the event too when subscribed")

	assert.Len(t, member.send, 1)
	assert.Len(t, sender.send, 1)
	assert.Len(t, outsider.send, 0)

	var got Envelope
	require.NoError(t, json.Unmarshal(<-member.send, &got))
	assert.Equal(t, "message-created", got.Event)
}

func TestBroadcastUnknownRoomIsNoOp(t *testing.T) {
	reg := NewRegistry()
	env, err := NewEnvelope("message-created", ChannelPayload{ChannelID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Broadcast(ChannelRoom("ghost"), env))
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	reg := NewRegistry()
	alive := newTestClient(t, "u1")
	dead := newTestClient(t, "u2")
	room := ChannelRoom("general")

	reg.Join(alive, room)
	reg.Join(dead, room)
	dead.markClosed()

	env, err := NewEnvelope("message-created", ChannelPayload{ChannelID: "general"})
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Broadcast(room, env))
	assert.Len(t, alive.send, 1)
	assert.Len(t, dead.send, 0)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	room := ChannelRoom("general")
	env, err := NewEnvelope("message-created", ChannelPayload{ChannelID: "general"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		c := newTestClient(t, fmt.Sprintf("u%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Join(c, room)
			reg.Broadcast(room, env)
			reg.Leave(c, room)
			reg.Disconnect(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.RoomSize(room))
}
