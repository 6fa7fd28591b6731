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

// requireChannelRole resolves the acting user's role on the server owning the
// channel. Non-members get a 403 regardless of whether the channel exists, so
// channel IDs cannot be probed.
func (a *API) requireChannelRole(w http.ResponseWriter, r *http.Request, channelID string) (model.Role, bool) {
	role, member, err := a.store.RoleByChannel(r.Context(), channelID, auth.UserID(r.Context()))
	if err != nil {
		logging.Error().Err(err).Msg("channel membership lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return model.RoleUnknown, false
	}
	if !member {
		writeError(w, http.StatusForbidden, "forbidden")
		return model.RoleUnknown, false
	}
	return role, true
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channelId required")
		return
	}
	if _, ok := a.requireChannelRole(w, r, channelID); !ok {
		return
	}

	messages, err := a.store.MessagesForChannel(r.Context(), channelID)
	if err != nil {
		logging.Error().Err(err).Msg("listing messages failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type createMessageRequest struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

func (a *API) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "channelId required")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if len(content) > int(a.limits.MaxMessageSize) {
		writeError(w, http.StatusBadRequest, "content too long")
		return
	}
	if _, ok := a.requireChannelRole(w, r, req.ChannelID); !ok {
		return
	}

	message, err := a.store.CreateMessage(r.Context(), req.ChannelID, auth.UserID(r.Context()), content)
	if err != nil {
		logging.Error().Err(err).Msg("message creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// handleEditMessage updates a message's content. Only the author may edit;
// moderators cannot edit other people's words.
func (a *API) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req editMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if len(content) > int(a.limits.MaxMessageSize) {
		writeError(w, http.StatusBadRequest, "content too long")
		return
	}

	message, err := a.store.MessageByID(r.Context(), messageID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("message lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if message.Deleted() {
		writeError(w, http.StatusBadRequest, "message is deleted")
		return
	}
	if message.AuthorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "only the author can edit a message")
		return
	}

	updated, err := a.store.UpdateMessageContent(r.Context(), messageID, content)
	if err != nil {
		logging.Error().Err(err).Msg("message update failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": updated})
}

// handleDeleteMessage tombstones a message. The author may always delete their
// own; ADMIN and OWNER may delete anyone's within their server.
func (a *API) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	message, err := a.store.MessageByID(r.Context(), messageID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("message lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if message.AuthorID != auth.UserID(r.Context()) {
		role, ok := a.requireChannelRole(w, r, message.ChannelID)
		if !ok {
			return
		}
		if !role.CanModerate() {
			writeError(w, http.StatusForbidden, "only the author or a moderator can delete a message")
			return
		}
	}

	tombstone, err := a.store.TombstoneMessage(r.Context(), messageID)
	if err != nil {
		logging.Error().Err(err).Msg("message tombstone failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": tombstone})
}
