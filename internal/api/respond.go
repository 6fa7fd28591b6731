// Package api exposes Concord's HTTP surface: account and session endpoints,
// the CRUD routes for servers, channels, messages, conversations, and
// invites, and the WebSocket upgrade into the realtime layer. Mutation
// handlers are the authoritative accept/reject path; the realtime dispatcher
// only re-validates.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/concordhq/concord/internal/logging"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
