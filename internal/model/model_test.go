package model

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"OWNER", RoleOwner, false},
		{"ADMIN", RoleAdmin, false},
		{"MEMBER", RoleMember, false},
		{"owner", RoleUnknown, true},
		{"", RoleUnknown, true},
		{"SUPERUSER", RoleUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			require.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRoleJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, `"ADMIN"`, string(raw))

	var r Role
	require.NoError(t, json.Unmarshal([]byte(`"OWNER"`), &r))
	assert.Equal(t, RoleOwner, r)

	assert.Error(t, json.Unmarshal([]byte(`"GOD"`), &r))
}

func TestCanModerate(t *testing.T) {
	assert.True(t, RoleOwner.CanModerate())
	assert.True(t, RoleAdmin.CanModerate())
	assert.False(t, RoleMember.CanModerate())
	assert.False(t, RoleUnknown.CanModerate())
}

func TestConversationHas(t *testing.T) {
	c := Conversation{UserAID: "alice", UserBID: "bob"}
	assert.True(t, c.Has("alice"))
	assert.True(t, c.Has("bob"))
	assert.False(t, c.Has("carol"))
	assert.False(t, c.Has(""))
}

func TestInviteRedeemable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		inv  Invite
		want bool
	}{
		{"active unlimited", Invite{Active: true}, true},
		{"inactive", Invite{Active: false}, false},
		{"expired", Invite{Active: true, ExpiresAt: &past}, false},
		{"not yet expired", Invite{Active: true, ExpiresAt: &future}, true},
		{"uses remaining", Invite{Active: true, MaxUses: 2, UseCount: 1}, true},
		{"exhausted", Invite{Active: true, MaxUses: 2, UseCount: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.inv.Redeemable(now))
		})
	}
}

func TestMessageDeleted(t *testing.T) {
	now := time.Now()
	assert.False(t, Message{}.Deleted())
	assert.True(t, Message{DeletedAt: &now, Content: DeletedContent}.Deleted())
}
