package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"crewbase.org/internal/auth"
	"crewbase.org/internal/ids"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

type updateProjectRequest struct {
	Name string `json:"name"`
}

type addProjectMemberRequest struct {
	UserID string `json:"user_id"`
}

type projectResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

func toProjectResponse(p *auth.Project) projectResponse {
	return projectResponse{
		ID:             p.ID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
	}
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
		if !ok {
			return
		}
		var req createProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "name is required")
			return
		}
		p := &auth.Project{
			ID:             ids.New(),
			OrganizationID: membership.OrganizationID,
			Name:           name,
			CreatedBy:      actor.ID,
		}
		if err := a.store.Projects(r.Context()).Create(r.Context(), p); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    actor.ID,
			OrganizationID: p.OrganizationID,
			Action:         "project.create",
			ResourceType:   "project",
			ResourceID:     p.ID,
			Status:         auth.AuditSuccess,
			Metadata:       map[string]string{"name": p.Name},
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", p.ID))
		writeJSON(w, http.StatusCreated, toProjectResponse(p))

	case http.MethodGet:
		_, membership, ok := a.requireRole(w, r, auth.AnyMember)
		if !ok {
			return
		}
		projects, err := a.store.Projects(r.Context()).ListByOrg(r.Context(), membership.OrganizationID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		out := make([]projectResponse, 0, len(projects))
		for _, p := range projects {
			out = append(out, toProjectResponse(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": out})

	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleProject(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "members":
		a.handleProjectMembers(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "members":
		a.handleRemoveProjectMember(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProject(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		_, membership, ok := a.requireRole(w, r, auth.AnyMember)
		if !ok {
			return
		}
		p, err := a.store.Projects(r.Context()).Find(r.Context(), membership.OrganizationID, projectID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(p))

	case http.MethodPatch:
		actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
		if !ok {
			return
		}
		var req updateProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "name is required")
			return
		}
		p, err := a.store.Projects(r.Context()).UpdateName(r.Context(), membership.OrganizationID, projectID, name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    actor.ID,
			OrganizationID: membership.OrganizationID,
			Action:         "project.update",
			ResourceType:   "project",
			ResourceID:     projectID,
			Status:         auth.AuditSuccess,
		})
		writeJSON(w, http.StatusOK, toProjectResponse(p))

	case http.MethodDelete:
		actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
		if !ok {
			return
		}
		if err := a.store.Projects(r.Context()).SoftDelete(r.Context(), membership.OrganizationID, projectID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    actor.ID,
			OrganizationID: membership.OrganizationID,
			Action:         "project.delete",
			ResourceType:   "project",
			ResourceID:     projectID,
			Status:         auth.AuditSuccess,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleProjectMembers(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		_, membership, ok := a.requireRole(w, r, auth.AnyMember)
		if !ok {
			return
		}
		// tenancy check before listing
		if _, err := a.store.Projects(r.Context()).Find(r.Context(), membership.OrganizationID, projectID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		members, err := a.store.Projects(r.Context()).ListMembers(r.Context(), projectID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(members))
		for _, pm := range members {
			out = append(out, map[string]any{"user_id": pm.UserID, "added_at": pm.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": out})

	case http.MethodPost:
		actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
		if !ok {
			return
		}
		var req addProjectMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		userID := strings.TrimSpace(req.UserID)
		if userID == "" {
			writeError(w, r, http.StatusBadRequest, "user_id is required")
			return
		}
		if _, err := a.store.Projects(r.Context()).Find(r.Context(), membership.OrganizationID, projectID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		// a project member must already belong to the organization
		if _, err := a.store.Memberships(r.Context()).Find(r.Context(), userID, membership.OrganizationID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		pm := &auth.ProjectMembership{UserID: userID, ProjectID: projectID}
		if err := a.store.Projects(r.Context()).AddMember(r.Context(), pm); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    actor.ID,
			OrganizationID: membership.OrganizationID,
			Action:         "project.member.add",
			ResourceType:   "project",
			ResourceID:     projectID,
			Status:         auth.AuditSuccess,
			Metadata:       map[string]string{"user_id": userID},
		})
		writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "project_id": projectID})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRemoveProjectMember(w http.ResponseWriter, r *http.Request, projectID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
	if !ok {
		return
	}
	if _, err := a.store.Projects(r.Context()).Find(r.Context(), membership.OrganizationID, projectID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.store.Projects(r.Context()).RemoveMember(r.Context(), projectID, userID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), auth.AuditEvent{
		ActorUserID:    actor.ID,
		OrganizationID: membership.OrganizationID,
		Action:         "project.member.remove",
		ResourceType:   "project",
		ResourceID:     projectID,
		Status:         auth.AuditSuccess,
		Metadata:       map[string]string{"user_id": userID},
	})
	w.WriteHeader(http.StatusNoContent)
}
