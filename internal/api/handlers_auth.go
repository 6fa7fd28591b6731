package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/model"
	"github.com/concordhq/concord/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		writeError(w, http.StatusBadRequest, "valid email required")
		return
	case len(req.Name) < 2:
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	case len(req.Password) < 8:
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		logging.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := a.store.CreateUser(r.Context(), req.Email, req.Name, hash)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("user creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.writeSession(w, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := a.store.UserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if errors.Is(err, store.ErrNotFound) {
		// Burn a comparison so an unknown email is not distinguishable from a
		// wrong password by response timing.
		a.hasher.Verify(req.Password, a.decoyHash)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("login lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !a.hasher.Verify(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	a.writeSession(w, user)
}

func (a *API) writeSession(w http.ResponseWriter, user model.User) {
	token, err := a.tokens.Issue(user.ID, user.Email)
	if err != nil {
		logging.Error().Err(err).Msg("token issuance failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}
