package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crewbase.org/internal/auth"
	"crewbase.org/internal/ids"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type updateOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type updateMemberRoleRequest struct {
	Role string `json:"role"`
}

type organizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type membershipResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
}

func toOrganizationResponse(org *auth.Organization) organizationResponse {
	return organizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
	}
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleCreateOrganization(w, r)
	case http.MethodGet:
		a.handleListOrganizations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = slugify(name)
	}
	if slug == "" {
		writeError(w, r, http.StatusBadRequest, "slug could not be derived from name")
		return
	}

	org := &auth.Organization{ID: ids.New(), Name: name, Slug: slug}
	if err := a.store.CreateOrganizationWithOwner(r.Context(), org, user.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), auth.AuditEvent{
		ActorUserID:    user.ID,
		OrganizationID: org.ID,
		Action:         "org.create",
		ResourceType:   "organization",
		ResourceID:     org.ID,
		Status:         auth.AuditSuccess,
		Metadata:       map[string]string{"slug": org.Slug},
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, toOrganizationResponse(org))
}

func (a *API) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	memberships, err := a.store.Memberships(r.Context()).ListByUser(r.Context(), user.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	type entry struct {
		organizationResponse
		Role string `json:"role"`
	}
	out := make([]entry, 0, len(memberships))
	for _, m := range memberships {
		org, err := a.store.Organizations(r.Context()).Find(r.Context(), m.OrganizationID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				// membership to a deleted tenant
				continue
			}
			handleAuthError(w, r, err)
			return
		}
		out = append(out, entry{toOrganizationResponse(org), string(m.Role)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": out})
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case parts[0] == "select" && len(parts) == 2:
		a.handleSelectOrganization(w, r, parts[1])
	case parts[0] == "current" && len(parts) == 1:
		a.handleCurrentOrganization(w, r)
	case parts[0] == "current" && len(parts) == 2 && parts[1] == "members":
		a.handleOrganizationMembers(w, r)
	case parts[0] == "current" && len(parts) == 3 && parts[1] == "members":
		a.handleOrganizationMember(w, r, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleSelectOrganization(w http.ResponseWriter, r *http.Request, ref string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	org, err := a.findOrganization(r.Context(), ref)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	scoped, err := a.resolver.SelectOrganization(r.Context(), token, org.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), auth.AuditEvent{
		ActorUserID:    user.ID,
		OrganizationID: org.ID,
		Action:         "org.select",
		ResourceType:   "organization",
		ResourceID:     org.ID,
		Status:         auth.AuditSuccess,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": scoped,
		"token_type":   "Bearer",
	})
}

// findOrganization accepts either an organization id or its slug.
func (a *API) findOrganization(ctx context.Context, ref string) (*auth.Organization, error) {
	org, err := a.store.Organizations(ctx).Find(ctx, ref)
	if errors.Is(err, auth.ErrNotFound) {
		return a.store.Organizations(ctx).FindBySlug(ctx, ref)
	}
	return org, err
}

func (a *API) handleCurrentOrganization(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		_, membership, ok := a.requireRole(w, r, auth.AnyMember)
		if !ok {
			return
		}
		org, err := a.store.Organizations(r.Context()).Find(r.Context(), membership.OrganizationID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"organization": toOrganizationResponse(org),
			"role":         membership.Role,
		})

	case http.MethodPatch:
		user, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
		if !ok {
			return
		}
		var req updateOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "name is required")
			return
		}
		slug := strings.TrimSpace(req.Slug)
		if slug == "" {
			slug = slugify(name)
		}
		org, err := a.store.Organizations(r.Context()).UpdateName(r.Context(), membership.OrganizationID, name, slug)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    user.ID,
			OrganizationID: org.ID,
			Action:         "org.update",
			ResourceType:   "organization",
			ResourceID:     org.ID,
			Status:         auth.AuditSuccess,
		})
		writeJSON(w, http.StatusOK, toOrganizationResponse(org))

	case http.MethodDelete:
		user, membership, ok := a.requireRole(w, r, auth.OwnersOnly)
		if !ok {
			return
		}
		if err := a.store.Organizations(r.Context()).SoftDelete(r.Context(), membership.OrganizationID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    user.ID,
			OrganizationID: membership.OrganizationID,
			Action:         "org.delete",
			ResourceType:   "organization",
			ResourceID:     membership.OrganizationID,
			Status:         auth.AuditSuccess,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleOrganizationMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		_, membership, ok := a.requireRole(w, r, auth.AnyMember)
		if !ok {
			return
		}
		members, err := a.store.Memberships(r.Context()).ListByOrg(r.Context(), membership.OrganizationID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		out := make([]membershipResponse, 0, len(members))
		for _, m := range members {
			entry := membershipResponse{UserID: m.UserID, Role: string(m.Role)}
			if u, err := a.store.Users(r.Context()).Find(r.Context(), m.UserID); err == nil {
				entry.Email = u.Email
				entry.Name = u.Name
			}
			out = append(out, entry)
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": out})

	case http.MethodPost:
		actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
		if !ok {
			return
		}
		var req addMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role := auth.Role(strings.TrimSpace(req.Role))
		if role == "" {
			role = auth.RoleMember
		}
		if !role.Valid() {
			writeError(w, r, http.StatusBadRequest, "unknown role")
			return
		}
		// only an owner can mint another owner
		if role == auth.RoleOwner && membership.Role != auth.RoleOwner {
			writeError(w, r, http.StatusForbidden, "only an owner can grant the owner role")
			return
		}
		target, err := a.store.Users(r.Context()).FindByEmail(r.Context(), strings.TrimSpace(req.Email))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		m := &auth.Membership{
			UserID:         target.ID,
			OrganizationID: membership.OrganizationID,
			Role:           role,
		}
		if err := a.store.Memberships(r.Context()).Create(r.Context(), m); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), auth.AuditEvent{
			ActorUserID:    actor.ID,
			OrganizationID: membership.OrganizationID,
			Action:         "org.member.add",
			ResourceType:   "membership",
			ResourceID:     target.ID,
			Status:         auth.AuditSuccess,
			Metadata:       map[string]string{"role": string(role)},
		})
		writeJSON(w, http.StatusCreated, membershipResponse{
			UserID: target.ID,
			Email:  target.Email,
			Name:   target.Name,
			Role:   string(role),
		})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrganizationMember(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPatch:
		a.handleUpdateMemberRole(w, r, userID)
	case http.MethodDelete:
		a.handleRemoveMember(w, r, userID)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request, userID string) {
	actor, membership, ok := a.requireRole(w, r, auth.AdminsAndUp)
	if !ok {
		return
	}
	var req updateMemberRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := auth.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	orgID := membership.OrganizationID
	current, err := a.store.Memberships(r.Context()).Find(r.Context(), userID, orgID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// an admin can neither touch an owner nor mint one
	if (current.Role == auth.RoleOwner || role == auth.RoleOwner) && membership.Role != auth.RoleOwner {
		writeError(w, r, http.StatusForbidden, "only an owner can change owner roles")
		return
	}
	if current.Role == auth.RoleOwner && role != auth.RoleOwner {
		owners, err := a.store.Memberships(r.Context()).CountOwners(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if owners <= 1 {
			handleAuthError(w, r, auth.ErrLastOwner)
			return
		}
	}
	if err := a.store.Memberships(r.Context()).UpdateRole(r.Context(), userID, orgID, role); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), auth.AuditEvent{
		ActorUserID:    actor.ID,
		OrganizationID: orgID,
		Action:         "org.member.update_role",
		ResourceType:   "membership",
		ResourceID:     userID,
		Status:         auth.AuditSuccess,
		Metadata:       map[string]string{"from": string(current.Role), "to": string(role)},
	})
	writeJSON(w, http.StatusOK, membershipResponse{UserID: userID, Role: string(role)})
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request, userID string) {
	actor, membership, ok := a.requireMembership(w, r)
	if !ok {
		return
	}
	orgID := membership.OrganizationID
	// leaving is open to every member; removing someone else takes admin
	if userID != actor.ID {
		if err := auth.Require(membership, auth.AdminsAndUp); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	current, err := a.store.Memberships(r.Context()).Find(r.Context(), userID, orgID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if current.Role == auth.RoleOwner && membership.Role != auth.RoleOwner {
		writeError(w, r, http.StatusForbidden, "only an owner can remove an owner")
		return
	}
	if current.Role == auth.RoleOwner {
		owners, err := a.store.Memberships(r.Context()).CountOwners(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if owners <= 1 {
			handleAuthError(w, r, auth.ErrLastOwner)
			return
		}
	}
	if err := a.store.Memberships(r.Context()).Delete(r.Context(), userID, orgID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), auth.AuditEvent{
		ActorUserID:    actor.ID,
		OrganizationID: orgID,
		Action:         "org.member.remove",
		ResourceType:   "membership",
		ResourceID:     userID,
		Status:         auth.AuditSuccess,
	})
	w.WriteHeader(http.StatusNoContent)
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
