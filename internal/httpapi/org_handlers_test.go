package httpapi

import (
	"net/http"
	"testing"
)

func TestOrganizationLifecycle(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	orgID, scoped := c.createOrg(session.AccessToken, "Crewbase Labs")
	if orgID == "" || scoped == "" {
		t.Fatal("expected org id and scoped token")
	}

	current := c.get("/v1/organizations/current", bearerHeader(scoped))
	if current.StatusCode != http.StatusOK {
		t.Fatalf("current org status: %d", current.StatusCode)
	}
	body := decode[map[string]any](t, current)
	if body["role"] != "owner" {
		t.Fatalf("creator role: %v, want owner", body["role"])
	}

	renamed := c.do(http.MethodPatch, "/v1/organizations/current",
		map[string]any{"name": "Crewbase HQ"}, bearerHeader(scoped))
	if renamed.StatusCode != http.StatusOK {
		t.Fatalf("rename status: %d", renamed.StatusCode)
	}
	org := decode[organizationResponse](t, renamed)
	if org.Name != "Crewbase HQ" || org.Slug != "crewbase-hq" {
		t.Fatalf("unexpected org after rename: %+v", org)
	}

	listing := c.get("/v1/organizations", bearerHeader(session.AccessToken))
	if listing.StatusCode != http.StatusOK {
		t.Fatalf("list orgs status: %d", listing.StatusCode)
	}
}

func TestSelectOrganizationBySlug(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, _ := c.createOrg(session.AccessToken, "Crewbase Labs")

	sel := c.post("/v1/organizations/select/crewbase-labs", nil, bearerHeader(session.AccessToken))
	if sel.StatusCode != http.StatusOK {
		t.Fatalf("select by slug status: %d", sel.StatusCode)
	}
	scoped := decode[map[string]string](t, sel)["access_token"]

	current := c.get("/v1/organizations/current", bearerHeader(scoped))
	if current.StatusCode != http.StatusOK {
		t.Fatalf("current org status: %d", current.StatusCode)
	}
	body := decode[map[string]any](t, current)
	org, _ := body["organization"].(map[string]any)
	if org["id"] != orgID {
		t.Fatalf("scoped to %v, want %s", org["id"], orgID)
	}
}

func TestSelectUnknownOrganization(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.post("/v1/organizations/select/no-such-org", nil, bearerHeader(session.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown org status: %d, want 404", resp.StatusCode)
	}
}

func TestCurrentOrgRequiresSelection(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")
	c.createOrg(session.AccessToken, "Crewbase Labs")

	// the unscoped login token carries no organization claim
	resp := c.get("/v1/organizations/current", bearerHeader(session.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unscoped token status: %d, want 400", resp.StatusCode)
	}
}

func TestSelectForeignOrganizationDenied(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, _ := c.createOrg(owner.AccessToken, "Crewbase Labs")

	outsider := c.signup("Eve", "eve@example.com", "completely different")
	resp := c.post("/v1/organizations/select/"+orgID, nil, bearerHeader(outsider.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign select status: %d, want 403", resp.StatusCode)
	}
}

func addMember(t *testing.T, c *apiClient, scoped, email, role string) *http.Response {
	t.Helper()
	return c.post("/v1/organizations/current/members",
		map[string]any{"email": email, "role": role}, bearerHeader(scoped))
}

func TestMemberCannotManageMembers(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, ownerScoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	member := c.signup("Bob", "bob@example.com", "another passphrase")
	added := addMember(t, c, ownerScoped, "bob@example.com", "member")
	added.Body.Close()
	if added.StatusCode != http.StatusCreated {
		t.Fatalf("add member status: %d", added.StatusCode)
	}

	sel := c.post("/v1/organizations/select/"+orgID, nil, bearerHeader(member.AccessToken))
	memberScoped := decode[map[string]string](t, sel)["access_token"]

	// a plain member can read but not manage
	listing := c.get("/v1/organizations/current/members", bearerHeader(memberScoped))
	listing.Body.Close()
	if listing.StatusCode != http.StatusOK {
		t.Fatalf("member list status: %d", listing.StatusCode)
	}

	c.signup("Carol", "carol@example.com", "a third passphrase")
	denied := addMember(t, c, memberScoped, "carol@example.com", "member")
	denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("member add status: %d, want 403", denied.StatusCode)
	}
}

func TestAdminCannotGrantOwner(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, ownerScoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	admin := c.signup("Bob", "bob@example.com", "another passphrase")
	added := addMember(t, c, ownerScoped, "bob@example.com", "admin")
	added.Body.Close()

	sel := c.post("/v1/organizations/select/"+orgID, nil, bearerHeader(admin.AccessToken))
	adminScoped := decode[map[string]string](t, sel)["access_token"]

	c.signup("Carol", "carol@example.com", "a third passphrase")
	denied := addMember(t, c, adminScoped, "carol@example.com", "owner")
	denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("admin granting owner: %d, want 403", denied.StatusCode)
	}

	// an admin may still add regular members
	ok := addMember(t, c, adminScoped, "carol@example.com", "member")
	ok.Body.Close()
	if ok.StatusCode != http.StatusCreated {
		t.Fatalf("admin adding member: %d, want 201", ok.StatusCode)
	}
}

func TestAdminCannotRemoveOwner(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, ownerScoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	admin := c.signup("Bob", "bob@example.com", "another passphrase")
	added := addMember(t, c, ownerScoped, "bob@example.com", "admin")
	added.Body.Close()

	sel := c.post("/v1/organizations/select/"+orgID, nil, bearerHeader(admin.AccessToken))
	adminScoped := decode[map[string]string](t, sel)["access_token"]

	resp := c.do(http.MethodDelete, "/v1/organizations/current/members/"+owner.User.ID, nil, bearerHeader(adminScoped))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin removing owner: %d, want 403", resp.StatusCode)
	}
}

func TestLastOwnerCannotLeaveOrDemote(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	_, scoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	leave := c.do(http.MethodDelete, "/v1/organizations/current/members/"+owner.User.ID, nil, bearerHeader(scoped))
	leave.Body.Close()
	if leave.StatusCode != http.StatusBadRequest {
		t.Fatalf("last owner leaving: %d, want 400", leave.StatusCode)
	}

	demote := c.do(http.MethodPatch, "/v1/organizations/current/members/"+owner.User.ID,
		map[string]any{"role": "member"}, bearerHeader(scoped))
	demote.Body.Close()
	if demote.StatusCode != http.StatusBadRequest {
		t.Fatalf("last owner demote: %d, want 400", demote.StatusCode)
	}
}

func TestSecondOwnerMayBeRemoved(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	_, ownerScoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	second := c.signup("Bob", "bob@example.com", "another passphrase")
	added := addMember(t, c, ownerScoped, "bob@example.com", "owner")
	added.Body.Close()
	if added.StatusCode != http.StatusCreated {
		t.Fatalf("add second owner: %d", added.StatusCode)
	}

	removed := c.do(http.MethodDelete, "/v1/organizations/current/members/"+second.User.ID, nil, bearerHeader(ownerScoped))
	removed.Body.Close()
	if removed.StatusCode != http.StatusNoContent {
		t.Fatalf("removing one of two owners: %d, want 204", removed.StatusCode)
	}
}

func TestMemberMayLeave(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, ownerScoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	member := c.signup("Bob", "bob@example.com", "another passphrase")
	added := addMember(t, c, ownerScoped, "bob@example.com", "member")
	added.Body.Close()

	sel := c.post("/v1/organizations/select/"+orgID, nil, bearerHeader(member.AccessToken))
	memberScoped := decode[map[string]string](t, sel)["access_token"]

	leave := c.do(http.MethodDelete, "/v1/organizations/current/members/"+member.User.ID, nil, bearerHeader(memberScoped))
	leave.Body.Close()
	if leave.StatusCode != http.StatusNoContent {
		t.Fatalf("member leaving: %d, want 204", leave.StatusCode)
	}
}

func TestOnlyOwnerDeletesOrganization(t *testing.T) {
	c, _ := newTestAPI(t)
	owner := c.signup("Ada", "ada@example.com", "correct horse battery")
	orgID, ownerScoped := c.createOrg(owner.AccessToken, "Crewbase Labs")

	admin := c.signup("Bob", "bob@example.com", "another passphrase")
	added := addMember(t, c, ownerScoped, "bob@example.com", "admin")
	added.Body.Close()

	sel := c.post("/v1/organizations/select/"+orgID, nil, bearerHeader(admin.AccessToken))
	adminScoped := decode[map[string]string](t, sel)["access_token"]

	denied := c.do(http.MethodDelete, "/v1/organizations/current", nil, bearerHeader(adminScoped))
	denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("admin deleting org: %d, want 403", denied.StatusCode)
	}

	deleted := c.do(http.MethodDelete, "/v1/organizations/current", nil, bearerHeader(ownerScoped))
	deleted.Body.Close()
	if deleted.StatusCode != http.StatusNoContent {
		t.Fatalf("owner deleting org: %d, want 204", deleted.StatusCode)
	}

	// soft-deleted tenants resolve to a membership without an organization
	after := c.get("/v1/organizations/current", bearerHeader(ownerScoped))
	after.Body.Close()
	if after.StatusCode != http.StatusNotFound {
		t.Fatalf("current after delete: %d, want 404", after.StatusCode)
	}
}

func TestDuplicateSlugConflicts(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")
	c.createOrg(session.AccessToken, "Crewbase Labs")

	resp := c.post("/v1/organizations", map[string]any{"name": "Crewbase Labs"}, bearerHeader(session.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate slug status: %d, want 409", resp.StatusCode)
	}
}
