package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/model"
	"github.com/concordhq/concord/internal/store"
)

func (a *API) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := a.store.ServersForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		logging.Error().Err(err).Msg("listing servers failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

type createServerRequest struct {
	Name string `json:"name"`
}

func (a *API) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		writeError(w, http.StatusBadRequest, "invalid name")
		return
	}

	server, general, err := a.store.CreateServer(r.Context(), name, auth.UserID(r.Context()))
	if err != nil {
		logging.Error().Err(err).Msg("server creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"server":   server,
		"channels": []model.Channel{general},
	})
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("serverId")
	if serverID == "" {
		writeError(w, http.StatusBadRequest, "serverId required")
		return
	}
	if _, ok := a.requireServerRole(w, r, serverID); !ok {
		return
	}

	members, err := a.store.MembersForServer(r.Context(), serverID)
	if err != nil {
		logging.Error().Err(err).Msg("listing members failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

type changeRoleRequest struct {
	ServerID     string `json:"serverId"`
	TargetUserID string `json:"targetUserId"`
	Role         string `json:"role"`
}

// handleChangeRole elevates or demotes a member. Only the OWNER may change
// roles, only ADMIN and MEMBER are assignable, and the OWNER row itself is
// immutable.
func (a *API) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ServerID == "" || req.TargetUserID == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "serverId, targetUserId, role required")
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil || !(role == model.RoleAdmin || role == model.RoleMember) {
		writeError(w, http.StatusBadRequest, "only ADMIN or MEMBER can be assigned")
		return
	}

	actingRole, ok, err := a.store.MemberRole(r.Context(), req.ServerID, auth.UserID(r.Context()))
	if err != nil {
		logging.Error().Err(err).Msg("role lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok || actingRole != model.RoleOwner {
		writeError(w, http.StatusForbidden, "only OWNER can change roles")
		return
	}

	targetRole, ok, err := a.store.MemberRole(r.Context(), req.ServerID, req.TargetUserID)
	if err != nil {
		logging.Error().Err(err).Msg("role lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if targetRole == model.RoleOwner {
		writeError(w, http.StatusBadRequest, "cannot change owner role")
		return
	}

	if err := a.store.UpdateMemberRole(r.Context(), req.ServerID, req.TargetUserID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "member not found")
			return
		}
		logging.Error().Err(err).Msg("role update failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"member": model.ServerMember{
		ServerID: req.ServerID,
		UserID:   req.TargetUserID,
		Role:     role,
	}})
}
