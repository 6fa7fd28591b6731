// Package membership answers authorization questions for broadcast scopes:
// whether an actor may publish into a scope at all, and whether an actor may
// mutate a given message within it. The oracle re-derives every answer from
// the authoritative directory on each call because roles and memberships
// change while connections stay open; the realtime path never trusts a
// client-supplied event on the strength of an earlier check.
package membership

import (
	"context"

	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/model"
)

// ScopeKind distinguishes channel scopes from direct-conversation scopes.
type ScopeKind int

const (
	// ScopeChannel authorizes against the channel's server membership.
	ScopeChannel ScopeKind = iota
	// ScopeDirect authorizes against the conversation's two participants.
	ScopeDirect
)

// Scope is the authorization context a capability is checked against.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// ChannelScope builds a channel scope from a channel id.
func ChannelScope(channelID string) Scope {
	return Scope{Kind: ScopeChannel, ID: channelID}
}

// DirectScope builds a direct-conversation scope from a conversation id.
func DirectScope(conversationID string) Scope {
	return Scope{Kind: ScopeDirect, ID: conversationID}
}

// Directory is the read-only membership lookup the oracle consults. The
// storage layer implements it.
type Directory interface {
	// RoleByChannel resolves the actor's role on the server owning the
	// channel. ok is false when the channel does not exist or the user is
	// not a member.
	RoleByChannel(ctx context.Context, channelID, userID string) (role model.Role, ok bool, err error)

	// ConversationByID loads a direct conversation so participants can be
	// checked.
	ConversationByID(ctx context.Context, conversationID string) (model.Conversation, error)
}

// Oracle evaluates capabilities against a Directory. All answers fail closed:
// lookup errors and missing memberships both deny.
type Oracle struct {
	dir Directory
}

// NewOracle returns an oracle backed by the given directory.
func NewOracle(dir Directory) *Oracle {
	return &Oracle{dir: dir}
}

// CanBroadcast reports whether the actor may publish events into the scope:
// membership on the channel's server, or being one of the conversation's two
// participants.
func (o *Oracle) CanBroadcast(ctx context.Context, actorID string, scope Scope) bool {
	if actorID == "" || scope.ID == "" {
		return false
	}

	switch scope.Kind {
	case ScopeChannel:
		_, ok, err := o.dir.RoleByChannel(ctx, scope.ID, actorID)
		if err != nil {
			logging.Warn().Err(err).Str("channel_id", scope.ID).Msg("membership lookup failed; denying broadcast")
			return false
		}
		return ok

	case ScopeDirect:
		conv, err := o.dir.ConversationByID(ctx, scope.ID)
		if err != nil {
			logging.Warn().Err(err).Str("conversation_id", scope.ID).Msg("conversation lookup failed; denying broadcast")
			return false
		}
		return conv.Has(actorID)

	default:
		return false
	}
}

// CanMutate reports whether the actor may edit or delete a message authored
// by authorID within the scope. The author always may. In channel scopes,
// OWNER and ADMIN may act on other members' messages; direct messages are
// mutable only by their author, with no moderation override.
func (o *Oracle) CanMutate(ctx context.Context, actorID, authorID string, scope Scope) bool {
	if actorID == "" || scope.ID == "" {
		return false
	}

	switch scope.Kind {
	case ScopeChannel:
		role, ok, err := o.dir.RoleByChannel(ctx, scope.ID, actorID)
		if err != nil {
			logging.Warn().Err(err).Str("channel_id", scope.ID).Msg("membership lookup failed; denying mutation")
			return false
		}
		if !ok {
			return false
		}
		if actorID == authorID {
			return true
		}
		return role.CanModerate()

	case ScopeDirect:
		if actorID != authorID {
			return false
		}
		conv, err := o.dir.ConversationByID(ctx, scope.ID)
		if err != nil {
			logging.Warn().Err(err).Str("conversation_id", scope.ID).Msg("conversation lookup failed; denying mutation")
			return false
		}
		return conv.Has(actorID)

	default:
		return false
	}
}
