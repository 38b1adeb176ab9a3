package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/carlosarta/haida/internal/membership"
	"github.com/carlosarta/haida/internal/rbac"
)

type inviteUserRequest struct {
	Email      string `json:"email"`
	GlobalRole string `json:"global_role"`
}

type updateGlobalRoleRequest struct {
	Role string `json:"role"`
}

type assignProjectRoleRequest struct {
	ProjectID string `json:"project_id"`
	Role      string `json:"role"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if !rbac.EffectivePermissions(actor.GlobalRole, rbac.ProjectRoleNone).Has(rbac.ResourceUsers, rbac.ActionRead) {
		writeError(w, r, http.StatusForbidden, "users.read is required")
		return
	}
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	if len(parts) == 1 && parts[0] == "invite" {
		a.handleInvite(w, r)
		return
	}

	userID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "global-role":
		a.handleGlobalRole(w, r, userID)
	case len(parts) == 2 && parts[1] == "project-roles":
		a.handleProjectRoles(w, r, userID)
	case len(parts) == 3 && parts[1] == "project-roles":
		a.handleProjectRole(w, r, userID, parts[2])
	case len(parts) == 2 && parts[1] == "status":
		a.handleStatus(w, r, userID)
	case len(parts) == 2 && parts[1] == "audit-log":
		a.handleAuditLog(w, r, userID)
	case len(parts) == 2 && parts[1] == "password":
		a.handlePassword(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req inviteUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := rbac.ParseGlobalRole(req.GlobalRole)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Invite(r.Context(), actor, req.Email, role)
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		effective := rbac.EffectivePermissions(actor.GlobalRole, rbac.ProjectRoleNone)
		if actor.ID != userID && !effective.Has(rbac.ResourceUsers, rbac.ActionRead) {
			writeError(w, r, http.StatusForbidden, "users.read is required")
			return
		}
		user, err := a.svc.GetUser(r.Context(), userID)
		if err != nil {
			handleMembershipError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := a.svc.DeleteUser(r.Context(), actor, userID); err != nil {
			handleMembershipError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleGlobalRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req updateGlobalRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := rbac.ParseGlobalRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.UpdateGlobalRole(r.Context(), actor, userID, role)
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleProjectRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req assignProjectRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := rbac.ParseProjectRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.AssignProjectRole(r.Context(), actor, userID, req.ProjectID, role)
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleProjectRole(w http.ResponseWriter, r *http.Request, userID, projectID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	user, err := a.svc.RemoveProjectRole(r.Context(), actor, userID, projectID)
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.UpdateStatus(r.Context(), actor, userID, membership.Status(req.Status))
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if !rbac.EffectivePermissions(actor.GlobalRole, rbac.ProjectRoleNone).Has(rbac.ResourceUsers, rbac.ActionRead) {
		writeError(w, r, http.StatusForbidden, "users.read is required")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.svc.AuditTrail(r.Context(), userID, limit)
	if err != nil {
		handleMembershipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req setPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.SetPassword(r.Context(), actor, userID, req.Password); err != nil {
		handleMembershipError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
