package httpapi

import (
	"fmt"
	"net/http"

	"github.com/carlosarta/haida/internal/rbac"
)

type createProjectRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !rbac.EffectivePermissions(actor.GlobalRole, rbac.ProjectRoleNone).Has(rbac.ResourceProjects, rbac.ActionRead) {
			writeError(w, r, http.StatusForbidden, "projects.read is required")
			return
		}
		projects, err := a.svc.ListProjects(r.Context())
		if err != nil {
			handleMembershipError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	case http.MethodPost:
		var req createProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		project, err := a.svc.CreateProject(r.Context(), actor, req.Key, req.Name)
		if err != nil {
			handleMembershipError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", project.ID))
		writeJSON(w, http.StatusCreated, project)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
