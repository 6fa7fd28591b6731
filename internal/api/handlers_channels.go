package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/model"
	"github.com/concordhq/concord/internal/store"
)

// requireServerRole loads the acting user's role on the server and writes the
// appropriate error when membership is missing. ok is true only when the
// caller may proceed.
func (a *API) requireServerRole(w http.ResponseWriter, r *http.Request, serverID string) (model.Role, bool) {
	role, member, err := a.store.MemberRole(r.Context(), serverID, auth.UserID(r.Context()))
	if err != nil {
		logging.Error().Err(err).Msg("membership lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return model.RoleUnknown, false
	}
	if !member {
		writeError(w, http.StatusForbidden, "forbidden")
		return model.RoleUnknown, false
	}
	return role, true
}

func (a *API) handleListChannels(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("serverId")
	if serverID == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}

	role, ok := a.requireServerRole(w, r, serverID)
	if !ok {
		return
	}

	channels, err := a.store.ChannelsForServer(r.Context(), serverID)
	if err != nil {
		logging.Error().Err(err).Msg("listing channels failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "myRole": role})
}

type createChannelRequest struct {
	ServerID string `json:"serverId"`
	Name     string `json:"name"`
}

func (a *API) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ServerID == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		writeError(w, http.StatusBadRequest, "invalid name")
		return
	}

	role, ok := a.requireServerRole(w, r, req.ServerID)
	if !ok {
		return
	}
	if !role.CanModerate() {
		writeError(w, http.StatusForbidden, "only ADMIN/OWNER can create channels")
		return
	}

	channel, err := a.store.CreateChannel(r.Context(), req.ServerID, name)
	if err != nil {
		logging.Error().Err(err).Msg("channel creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": channel})
}

func (a *API) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	channel, err := a.store.ChannelByID(r.Context(), channelID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("channel lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	role, ok := a.requireServerRole(w, r, channel.ServerID)
	if !ok {
		return
	}
	if !role.CanModerate() {
		writeError(w, http.StatusForbidden, "only ADMIN/OWNER can delete channels")
		return
	}

	// A server must keep at least one channel.
	count, err := a.store.CountChannels(r.Context(), channel.ServerID)
	if err != nil {
		logging.Error().Err(err).Msg("channel count failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if count <= 1 {
		writeError(w, http.StatusBadRequest, "cannot delete the last channel in a server")
		return
	}

	if err := a.store.DeleteChannel(r.Context(), channelID); err != nil {
		logging.Error().Err(err).Msg("channel deletion failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"deletedChannelId": channelID,
		"serverId":         channel.ServerID,
	})
}
