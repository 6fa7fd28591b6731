// Package model defines the domain entities shared by the storage, HTTP, and
// realtime layers.
package model

import "time"

// DeletedContent is the tombstone marker written over a deleted message's
// content. Deleted messages keep their identity and ordering position.
const DeletedContent = "[deleted]"

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Server is a named community containing channels and members.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServerMember ties a user to a server with a role. A server has exactly one
// OWNER member; ADMIN and MEMBER rows are mutable.
type ServerMember struct {
	ServerID  string    `json:"serverId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Channel is a message scope within a server.
type Channel struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"serverId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a direct-message scope between exactly two users. The pair
// is canonicalized so UserAID < UserBID; the unordered pair maps to a single
// conversation and the participants are immutable once created.
type Conversation struct {
	ID        string    `json:"id"`
	UserAID   string    `json:"userAId"`
	UserBID   string    `json:"userBId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Has reports whether userID is one of the two participants.
func (c Conversation) Has(userID string) bool {
	return userID == c.UserAID || userID == c.UserBID
}

// Message is a chat message in a channel or a direct conversation; exactly one
// of ChannelID / ConversationID is set. Identity is assigned once at creation
// by the store. Content is the only mutable attribute besides the edit and
// delete markers, and ordering by CreatedAt never changes after creation.
type Message struct {
	ID             string     `json:"id"`
	ChannelID      string     `json:"channelId,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	AuthorID       string     `json:"authorId"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
	IsEdited       bool       `json:"isEdited"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether the message carries a tombstone.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Invite is a redeemable server invitation token.
type Invite struct {
	ID          string     `json:"id"`
	ServerID    string     `json:"serverId"`
	Token       string     `json:"token"`
	CreatedByID string     `json:"createdById"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	MaxUses     int        `json:"maxUses,omitempty"`
	UseCount    int        `json:"useCount"`
	Active      bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Redeemable reports whether the invite can still be used at the given time.
func (i Invite) Redeemable(now time.Time) bool {
	if !i.Active {
		return false
	}
	if i.ExpiresAt != nil && i.ExpiresAt.Before(now) {
		return false
	}
	if i.MaxUses > 0 && i.UseCount >= i.MaxUses {
		return false
	}
	return true
}
