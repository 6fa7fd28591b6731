package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/concordhq/concord/internal/model"
)

// fakeDirectory serves canned membership data.
type fakeDirectory struct {
	roles         map[string]map[string]model.Role // channelID -> userID -> role
	conversations map[string]model.Conversation
	err           error
}

func (f *fakeDirectory) RoleByChannel(_ context.Context, channelID, userID string) (model.Role, bool, error) {
	if f.err != nil {
		return model.RoleUnknown, false, f.err
	}
	role, ok := f.roles[channelID][userID]
	return role, ok, nil
}

func (f *fakeDirectory) ConversationByID(_ context.Context, id string) (model.Conversation, error) {
	if f.err != nil {
		return model.Conversation{}, f.err
	}
	conv, ok := f.conversations[id]
	if !ok {
		return model.Conversation{}, errors.New("conversation not found")
	}
	return conv, nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		roles: map[string]map[string]model.Role{
			"general": {
				"owner":  model.RoleOwner,
				"admin":  model.RoleAdmin,
				"member": model.RoleMember,
			},
		},
		conversations: map[string]model.Conversation{
			"conv1": {ID: "conv1", UserAID: "alice", UserBID: "bob"},
		},
	}
}

func TestCanBroadcastChannel(t *testing.T) {
	oracle := NewOracle(testDirectory())
	ctx := context.Background()

	tests := []struct {
		name    string
		actorID string
		scope   Scope
		want    bool
	}{
		{"member may broadcast", "member", ChannelScope("general"), true},
		{"admin may broadcast", "admin", ChannelScope("general"), true},
		{"owner may broadcast", "owner", ChannelScope("general"), true},
		{"non-member denied", "stranger", ChannelScope("general"), false},
		{"unknown channel denied", "member", ChannelScope("nope"), false},
		{"empty actor denied", "", ChannelScope("general"), false},
		{"empty scope denied", "member", ChannelScope(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oracle.CanBroadcast(ctx, tt.actorID, tt.scope))
		})
	}
}

func TestCanBroadcastDirect(t *testing.T) {
	oracle := NewOracle(testDirectory())
	ctx := context.Background()

	assert.True(t, oracle.CanBroadcast(ctx, "alice", DirectScope("conv1")))
	assert.True(t, oracle.CanBroadcast(ctx, "bob", DirectScope("conv1")))
	assert.False(t, oracle.CanBroadcast(ctx, "carol", DirectScope("conv1")))
	assert.False(t, oracle.CanBroadcast(ctx, "alice", DirectScope("missing")))
}

func TestCanMutateChannel(t *testing.T) {
	oracle := NewOracle(testDirectory())
	ctx := context.Background()
	scope := ChannelScope("general")

	tests := []struct {
		name     string
		actorID  string
		authorID string
		want     bool
	}{
		{"author edits own", "member", "member", true},
		{"admin overrides member", "admin", "member", true},
		{"owner overrides admin", "owner", "admin", true},
		{"member cannot touch others", "member", "admin", false},
		{"non-member denied even as author", "stranger", "stranger", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oracle.CanMutate(ctx, tt.actorID, tt.authorID, scope))
		})
	}
}

func TestCanMutateDirectAuthorOnly(t *testing.T) {
	oracle := NewOracle(testDirectory())
	ctx := context.Background()
	scope := DirectScope("conv1")

	assert.True(t, oracle.CanMutate(ctx, "alice", "alice", scope))
	// No moderation override exists in direct conversations.
	assert.False(t, oracle.CanMutate(ctx, "alice", "bob", scope))
	assert.False(t, oracle.CanMutate(ctx, "carol", "carol", scope))
}

func TestOracleFailsClosed(t *testing.T) {
	dir := testDirectory()
	dir.err = errors.New("database is down")
	oracle := NewOracle(dir)
	ctx := context.Background()

	assert.False(t, oracle.CanBroadcast(ctx, "member", ChannelScope("general")))
	assert.False(t, oracle.CanBroadcast(ctx, "alice", DirectScope("conv1")))
	assert.False(t, oracle.CanMutate(ctx, "member", "member", ChannelScope("general")))
	assert.False(t, oracle.CanMutate(ctx, "alice", "alice", DirectScope("conv1")))
}
