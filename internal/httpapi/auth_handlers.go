package httpapi

import (
	"net/http"
	"strings"
	"time"

	"crewbase.org/internal/auth"
)

// refreshCookie is scoped to the auth endpoints; browsers never attach
// the refresh token to any other route.
const (
	refreshCookieName = "crewbase_refresh"
	refreshCookiePath = "/v1/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	User        userResponse `json:"user"`
	VerifyToken string       `json:"verify_token"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type externalLoginRequest struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	RefreshToken    string `json:"refresh_token"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, verifyToken, err := a.sessions.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// The verification token is returned in the response until a mail
	// sender is wired; clients POST it back to /v1/auth/verify.
	writeJSON(w, http.StatusCreated, registerResponse{
		User:        toUserResponse(user),
		VerifyToken: verifyToken,
	})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.VerifyEmail(r.Context(), req.Token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "verified"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.writeSession(w, pair, user)
}

func (a *API) handleLoginExternal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req externalLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.sessions.LoginExternal(r.Context(), req.Provider, req.ProviderUserID, req.Email, req.Name)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.writeSession(w, pair, user)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := a.refreshTokenFrom(w, r)
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}
	pair, err := a.sessions.Refresh(r.Context(), token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      pair.AccessToken,
		"access_expires_at": pair.AccessExpiresAt,
		"refresh_token":     pair.RefreshToken,
		"token_type":        "Bearer",
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := a.refreshTokenFrom(w, r)
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}
	if err := a.sessions.Logout(r.Context(), token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	refresh := strings.TrimSpace(req.RefreshToken)
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		refresh = c.Value
	}
	if refresh == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}
	if err := a.sessions.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword, refresh); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// the consumed refresh token is dead; force a clean re-login
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "password_changed",
		"action_required": "reauthenticate",
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := a.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// refreshTokenFrom reads the refresh token from the HttpOnly cookie,
// falling back to the JSON body for non-browser clients.
func (a *API) refreshTokenFrom(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (a *API) writeSession(w http.ResponseWriter, pair auth.TokenPair, user *auth.User) {
	a.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      pair.AccessToken,
		"access_expires_at": pair.AccessExpiresAt,
		"refresh_token":     pair.RefreshToken,
		"token_type":        "Bearer",
		"user":              toUserResponse(user),
	})
}

func (a *API) setRefreshCookie(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
