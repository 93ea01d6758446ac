package httpapi

import (
	"net/http"
	"strings"
	"testing"
)

func TestRegisterLoginRefreshLogoutFlow(t *testing.T) {
	c, _ := newTestAPI(t)

	session := c.signup("Ada", "ada@example.com", "correct horse battery")
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens in login response")
	}
	if session.TokenType != "Bearer" {
		t.Fatalf("token type: %q", session.TokenType)
	}

	me := c.get("/v1/auth/me", bearerHeader(session.AccessToken))
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", me.StatusCode)
	}
	profile := decode[userResponse](t, me)
	if profile.Email != "ada@example.com" || !profile.Verified {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	refreshed := c.post("/v1/auth/refresh", map[string]any{"refresh_token": session.RefreshToken}, nil)
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refresh status: %d", refreshed.StatusCode)
	}
	next := decode[sessionResponse](t, refreshed)
	if next.RefreshToken == session.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// the consumed token is single-use
	replay := c.post("/v1/auth/refresh", map[string]any{"refresh_token": session.RefreshToken}, nil)
	replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay status: %d, want 401", replay.StatusCode)
	}

	logout := c.post("/v1/auth/logout", map[string]any{"refresh_token": next.RefreshToken}, nil)
	logout.Body.Close()
	if logout.StatusCode != http.StatusOK {
		t.Fatalf("logout status: %d", logout.StatusCode)
	}

	afterLogout := c.post("/v1/auth/refresh", map[string]any{"refresh_token": next.RefreshToken}, nil)
	afterLogout.Body.Close()
	if afterLogout.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d, want 401", afterLogout.StatusCode)
	}
}

func TestLoginFailureIsUniform(t *testing.T) {
	c, _ := newTestAPI(t)
	c.signup("Ada", "ada@example.com", "correct horse battery")

	wrongPassword := c.post("/v1/auth/login", map[string]any{
		"email": "ada@example.com", "password": "nope",
	}, nil)
	unknownEmail := c.post("/v1/auth/login", map[string]any{
		"email": "ghost@example.com", "password": "nope",
	}, nil)

	if wrongPassword.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status: %d", wrongPassword.StatusCode)
	}
	if unknownEmail.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown email status: %d", unknownEmail.StatusCode)
	}
	a := decode[map[string]any](t, wrongPassword)
	b := decode[map[string]any](t, unknownEmail)
	if a["error"] != b["error"] {
		t.Fatalf("failure bodies differ: %v vs %v", a["error"], b["error"])
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	c, _ := newTestAPI(t)
	c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.post("/v1/auth/register", map[string]any{
		"name": "Other", "email": "ADA@example.com", "password": "another password",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status: %d, want 409", resp.StatusCode)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.post("/v1/auth/refresh", map[string]any{"refresh_token": session.AccessToken}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh with access token: %d, want 401", resp.StatusCode)
	}
}

func TestRefreshMissingToken(t *testing.T) {
	c, _ := newTestAPI(t)

	resp := c.post("/v1/auth/refresh", map[string]any{}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing refresh token: %d, want 401", resp.StatusCode)
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	c, _ := newTestAPI(t)
	c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.post("/v1/auth/login", map[string]any{
		"email": "ada@example.com", "password": "correct horse battery",
	}, nil)
	defer resp.Body.Close()

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == refreshCookieName {
			cookie = ck
		}
	}
	if cookie == nil {
		t.Fatal("expected refresh cookie")
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie must be HttpOnly and Secure: %+v", cookie)
	}
	if !strings.HasPrefix(cookie.Path, "/v1/auth") {
		t.Fatalf("cookie path: %q", cookie.Path)
	}
}

func TestExternalLoginCreatesUser(t *testing.T) {
	c, _ := newTestAPI(t)

	resp := c.post("/v1/auth/external", map[string]any{
		"provider":         "google",
		"provider_user_id": "goog-123",
		"email":            "ext@example.com",
		"name":             "Ext User",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("external login status: %d", resp.StatusCode)
	}
	session := decode[sessionResponse](t, resp)
	if session.AccessToken == "" {
		t.Fatal("expected access token")
	}

	me := c.get("/v1/auth/me", bearerHeader(session.AccessToken))
	profile := decode[userResponse](t, me)
	if profile.Email != "ext@example.com" {
		t.Fatalf("unexpected email: %q", profile.Email)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	c, store := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.do(http.MethodPatch, "/v1/auth/password", map[string]any{
		"current_password": "correct horse battery",
		"new_password":     "staple battery horse",
		"refresh_token":    session.RefreshToken,
	}, bearerHeader(session.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password status: %d", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if body["action_required"] != "reauthenticate" {
		t.Fatalf("unexpected body: %v", body)
	}

	// the presented refresh token was consumed
	replay := c.post("/v1/auth/refresh", map[string]any{"refresh_token": session.RefreshToken}, nil)
	replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after password change: %d, want 401", replay.StatusCode)
	}

	oldLogin := c.post("/v1/auth/login", map[string]any{
		"email": "ada@example.com", "password": "correct horse battery",
	}, nil)
	oldLogin.Body.Close()
	if oldLogin.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login with old password: %d, want 401", oldLogin.StatusCode)
	}

	newLogin := c.post("/v1/auth/login", map[string]any{
		"email": "ada@example.com", "password": "staple battery horse",
	}, nil)
	newLogin.Body.Close()
	if newLogin.StatusCode != http.StatusOK {
		t.Fatalf("login with new password: %d", newLogin.StatusCode)
	}

	var sawChange bool
	for _, ev := range store.AuditEvents() {
		if ev.Action == "password.changed" && ev.Status == "success" {
			sawChange = true
		}
	}
	if !sawChange {
		t.Fatal("expected password.changed audit event")
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.do(http.MethodPatch, "/v1/auth/password", map[string]any{
		"current_password": "not my password",
		"new_password":     "staple battery horse",
		"refresh_token":    session.RefreshToken,
	}, bearerHeader(session.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong current password: %d, want 400", resp.StatusCode)
	}

	// the refresh token must survive a failed attempt
	refreshed := c.post("/v1/auth/refresh", map[string]any{"refresh_token": session.RefreshToken}, nil)
	refreshed.Body.Close()
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refresh after failed change: %d", refreshed.StatusCode)
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.do(http.MethodPatch, "/v1/auth/password", map[string]any{
		"current_password": "correct horse battery",
		"new_password":     "correct horse battery",
		"refresh_token":    session.RefreshToken,
	}, bearerHeader(session.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("reused password: %d, want 400", resp.StatusCode)
	}
}

func TestChangePasswordRequiresRefreshToken(t *testing.T) {
	c, _ := newTestAPI(t)
	session := c.signup("Ada", "ada@example.com", "correct horse battery")

	resp := c.do(http.MethodPatch, "/v1/auth/password", map[string]any{
		"current_password": "correct horse battery",
		"new_password":     "staple battery horse",
	}, bearerHeader(session.AccessToken))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing refresh token: %d, want 401", resp.StatusCode)
	}
}

func TestAuditTrailRecordsLogin(t *testing.T) {
	c, store := newTestAPI(t)
	c.signup("Ada", "ada@example.com", "correct horse battery")

	var sawLogin bool
	for _, ev := range store.AuditEvents() {
		if ev.Action == "login.success" {
			sawLogin = true
		}
	}
	if !sawLogin {
		t.Fatal("expected login.success audit event")
	}
}
