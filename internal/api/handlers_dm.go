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

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := a.store.ConversationsForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		logging.Error().Err(err).Msg("listing conversations failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

type openConversationRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// handleOpenConversation finds or creates the conversation between the caller
// and the target user.
func (a *API) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var req openConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())
	if req.TargetUserID == "" {
		writeError(w, http.StatusBadRequest, "targetUserId required")
		return
	}
	if req.TargetUserID == userID {
		writeError(w, http.StatusBadRequest, "cannot open a conversation with yourself")
		return
	}

	if _, err := a.store.UserByID(r.Context(), req.TargetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		logging.Error().Err(err).Msg("user lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conversation, err := a.store.UpsertConversation(r.Context(), userID, req.TargetUserID)
	if err != nil {
		logging.Error().Err(err).Msg("conversation upsert failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation})
}

// requireConversation loads the conversation and checks the caller is one of
// its two participants.
func (a *API) requireConversation(w http.ResponseWriter, r *http.Request, conversationID string) (model.Conversation, bool) {
	conversation, err := a.store.ConversationByID(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return model.Conversation{}, false
	}
	if err != nil {
		logging.Error().Err(err).Msg("conversation lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return model.Conversation{}, false
	}
	if !conversation.Has(auth.UserID(r.Context())) {
		writeError(w, http.StatusForbidden, "forbidden")
		return model.Conversation{}, false
	}
	return conversation, true
}

func (a *API) handleListDMMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId required")
		return
	}
	if _, ok := a.requireConversation(w, r, conversationID); !ok {
		return
	}

	messages, err := a.store.DMMessagesForConversation(r.Context(), conversationID)
	if err != nil {
		logging.Error().Err(err).Msg("listing dm messages failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type createDMMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

func (a *API) handleCreateDMMessage(w http.ResponseWriter, r *http.Request) {
	var req createDMMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversationId required")
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
	if _, ok := a.requireConversation(w, r, req.ConversationID); !ok {
		return
	}

	message, err := a.store.CreateDMMessage(r.Context(), req.ConversationID, auth.UserID(r.Context()), content)
	if err != nil {
		logging.Error().Err(err).Msg("dm message creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message})
}

// handleEditDMMessage updates a direct message. Direct messages have no
// moderators; only the author may touch them.
func (a *API) handleEditDMMessage(w http.ResponseWriter, r *http.Request) {
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

	message, ok := a.requireOwnDMMessage(w, r, messageID)
	if !ok {
		return
	}
	if message.Deleted() {
		writeError(w, http.StatusBadRequest, "message is deleted")
		return
	}

	updated, err := a.store.UpdateDMMessageContent(r.Context(), messageID, content)
	if err != nil {
		logging.Error().Err(err).Msg("dm message update failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": updated})
}

func (a *API) handleDeleteDMMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	if _, ok := a.requireOwnDMMessage(w, r, messageID); !ok {
		return
	}

	tombstone, err := a.store.TombstoneDMMessage(r.Context(), messageID)
	if err != nil {
		logging.Error().Err(err).Msg("dm message tombstone failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": tombstone})
}

func (a *API) requireOwnDMMessage(w http.ResponseWriter, r *http.Request, messageID string) (model.Message, bool) {
	message, err := a.store.DMMessageByID(r.Context(), messageID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return model.Message{}, false
	}
	if err != nil {
		logging.Error().Err(err).Msg("dm message lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return model.Message{}, false
	}
	if message.AuthorID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "only the author can modify a direct message")
		return model.Message{}, false
	}
	return message, true
}
