package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/concordhq/concord/internal/membership"
)

func TestRoomIdentity(t *testing.T) {
	// Same id in different namespaces is two distinct rooms.
	assert.NotEqual(t, ChannelRoom("x"), DirectRoom("x"))
	assert.Equal(t, ChannelRoom("x"), ChannelRoom("x"))
}

func TestRoomString(t *testing.T) {
	assert.Equal(t, "channel:general", ChannelRoom("general").String())
	assert.Equal(t, "dm:conv1", DirectRoom("conv1").String())
}

func TestRoomScope(t *testing.T) {
	assert.Equal(t, membership.ChannelScope("general"), ChannelRoom("general").Scope())
	assert.Equal(t, membership.DirectScope("conv1"), DirectRoom("conv1").Scope())
}
