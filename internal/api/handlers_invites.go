package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/store"
)

func (a *API) handleListInvites(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("serverId")
	if serverID == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}

	role, ok := a.requireServerRole(w, r, serverID)
	if !ok {
		return
	}
	if !role.CanModerate() {
		writeError(w, http.StatusForbidden, "only ADMIN/OWNER can view invites")
		return
	}

	invites, err := a.store.InvitesForServer(r.Context(), serverID)
	if err != nil {
		logging.Error().Err(err).Msg("listing invites failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

type createInviteRequest struct {
	ServerID       string `json:"serverId"`
	ExpiresInHours int    `json:"expiresInHours"`
	MaxUses        int    `json:"maxUses"`
}

// handleCreateInvite mints a new invite token. ExpiresInHours and MaxUses of
// zero mean never-expiring and unlimited respectively.
func (a *API) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ServerID == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}
	if req.ExpiresInHours < 0 || req.MaxUses < 0 {
		writeError(w, http.StatusBadRequest, "expiresInHours and maxUses must not be negative")
		return
	}

	role, ok := a.requireServerRole(w, r, req.ServerID)
	if !ok {
		return
	}
	if !role.CanModerate() {
		writeError(w, http.StatusForbidden, "only ADMIN/OWNER can create invites")
		return
	}

	expiresIn := time.Duration(req.ExpiresInHours) * time.Hour
	invite, err := a.store.CreateInvite(r.Context(), req.ServerID, auth.UserID(r.Context()), expiresIn, req.MaxUses)
	if err != nil {
		logging.Error().Err(err).Msg("invite creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invite": invite})
}

type joinInviteRequest struct {
	Token string `json:"token"`
}

// handleJoinInvite redeems an invite token, adding the caller to the server as
// a MEMBER. Redeeming is idempotent for existing members but still consumes a
// use.
func (a *API) handleJoinInvite(w http.ResponseWriter, r *http.Request) {
	var req joinInviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}

	server, err := a.store.RedeemInvite(r.Context(), req.Token, auth.UserID(r.Context()))
	switch {
	case errors.Is(err, store.ErrInviteInvalid):
		writeError(w, http.StatusNotFound, "invalid invite")
		return
	case errors.Is(err, store.ErrInviteExpired):
		writeError(w, http.StatusGone, "invite expired")
		return
	case errors.Is(err, store.ErrInviteExhausted):
		writeError(w, http.StatusGone, "invite has no uses left")
		return
	case err != nil:
		logging.Error().Err(err).Msg("invite redemption failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"server": server})
}
