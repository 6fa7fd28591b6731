package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub() *Hub {
	return NewHub(allowAll{}, Options{MaxMessageSize: 4096, MessageRate: 100, MessageBurst: 100})
}

func TestHubShutdownWithoutClients(t *testing.T) {
	hub := testHub()
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubShutdownClosesClientSendChannels(t *testing.T) {
	hub := testHub()
	go hub.Run()

	// Bypass Register so no pumps start against the nil connection; the
	// lifecycle map is what shutdown drains.
	c := NewClient(hub, nil, "u1", "127.0.0.1:0")
	hub.mutex.Lock()
	hub.clients[c] = true
	hub.mutex.Unlock()
	hub.registry.Join(c, ChannelRoom("general"))

	require.NoError(t, hub.Shutdown(time.Second))

	_, open := <-c.send
	assert.False(t, open, "send channel must be closed after shutdown")
	assert.False(t, hub.registry.Contains(c, ChannelRoom("general")))
	assert.False(t, c.trySend([]byte("late")), "sends after teardown are refused")
}

func TestRegisterAfterShutdownReturns(t *testing.T) {
	hub := testHub()
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	// With the lifecycle loop gone, Register must not wedge a late upgrade.
	returned := make(chan struct{})
	go func() {
		hub.Register(NewClient(hub, nil, "u1", "127.0.0.1:0"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Register blocked after hub shutdown")
	}

	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	assert.Empty(t, hub.clients, "late client must not be registered")
}

func TestHubDropIsIdempotent(t *testing.T) {
	hub := testHub()
	c := NewClient(hub, nil, "u1", "127.0.0.1:0")

	hub.mutex.Lock()
	hub.clients[c] = true
	hub.mutex.Unlock()
	hub.registry.Join(c, ChannelRoom("general"))

	hub.drop(c)
	// A second drop of the same client must not close the channel twice.
	hub.drop(c)

	assert.Equal(t, 0, hub.registry.RoomSize(ChannelRoom("general")))
}

func TestTrySendRefusesWhenBufferFull(t *testing.T) {
	hub := testHub()
	c := NewClient(hub, nil, "u1", "127.0.0.1:0")

	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.trySend([]byte("x")))
	}
	assert.False(t, c.trySend([]byte("overflow")), "full buffer must not block the broadcaster")
}
