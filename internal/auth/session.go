package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewbase.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
	defaultVerifyTTL  = 24 * time.Hour
)

// AuditRecorder receives security-relevant events. Recording is
// fire-and-forget; implementations must never fail the calling operation.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, AuditEvent) {}

// NopAuditRecorder returns a recorder that discards every event.
func NopAuditRecorder() AuditRecorder { return nopRecorder{} }

// SessionManager orchestrates login, logout, refresh and registration on
// top of the token codec and the revocation store.
type SessionManager struct {
	store Store
	codec *Codec
	audit AuditRecorder
	now   func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
	verifyTTL  time.Duration
}

// SessionOption configures SessionManager behavior.
type SessionOption func(*SessionManager)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) SessionOption {
	return func(s *SessionManager) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) SessionOption {
	return func(s *SessionManager) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithVerifyTTL configures email-verification token lifetime.
func WithVerifyTTL(ttl time.Duration) SessionOption {
	return func(s *SessionManager) {
		if ttl > 0 {
			s.verifyTTL = ttl
		}
	}
}

// WithAudit attaches an audit recorder.
func WithAudit(rec AuditRecorder) SessionOption {
	return func(s *SessionManager) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionManager) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(store Store, codec *Codec, opts ...SessionOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	s := &SessionManager{
		store:      store,
		codec:      codec,
		audit:      nopRecorder{},
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		verifyTTL:  defaultVerifyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *SessionManager) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (s *SessionManager) RefreshTTL() time.Duration { return s.refreshTTL }

// Register creates a new identity and returns it along with an
// email-verification token.
func (s *SessionManager) Register(ctx context.Context, name, email, password string) (*User, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			s.record(ctx, AuditEvent{
				Action:       "user.register",
				ResourceType: "user",
				Status:       AuditFailed,
				Metadata:     map[string]string{"reason": "email_taken"},
			})
			return nil, "", fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, "", storageErr("create user", err)
	}
	if err := s.store.Identities(ctx).Link(ctx, &ExternalIdentity{
		ID:             ids.New(),
		UserID:         user.ID,
		Provider:       ProviderPassword,
		ProviderUserID: user.ID,
	}); err != nil && !errors.Is(err, ErrConflict) {
		return nil, "", storageErr("link identity", err)
	}

	verifyToken, _, err := s.codec.Issue(user.ID, "", TokenVerify, s.verifyTTL)
	if err != nil {
		return nil, "", err
	}
	s.record(ctx, AuditEvent{
		ActorUserID:  user.ID,
		Action:       "user.register",
		ResourceType: "user",
		ResourceID:   user.ID,
		Status:       AuditSuccess,
		Metadata:     map[string]string{"email": user.Email},
	})
	return user, verifyToken, nil
}

// VerifyEmail consumes a verification token and marks the identity as
// verified.
func (s *SessionManager) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.codec.Verify(token, TokenVerify)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.store.Users(ctx).SetVerified(ctx, claims.Subject); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return storageErr("set verified", err)
	}
	s.record(ctx, AuditEvent{
		ActorUserID:  claims.Subject,
		Action:       "user.verify_email",
		ResourceType: "user",
		ResourceID:   claims.Subject,
		Status:       AuditSuccess,
	})
	return nil
}

// Login authenticates credentials and issues a fresh token pair. Failure
// is uniform: callers learn nothing about which of email/password was
// wrong.
func (s *SessionManager) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.auditLoginFailure(ctx, email)
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.auditLoginFailure(ctx, email)
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, storageErr("find user", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.auditLoginFailure(ctx, email)
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID, "")
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.record(ctx, AuditEvent{
		ActorUserID:  user.ID,
		Action:       "login.success",
		ResourceType: "auth",
		ResourceID:   user.ID,
		Status:       AuditSuccess,
		Metadata:     map[string]string{"email": user.Email},
	})
	return pair, user, nil
}

// LoginExternal signs in a user authenticated by an external identity
// provider, creating or linking the identity as needed. Verification of
// the provider assertion itself happens upstream.
func (s *SessionManager) LoginExternal(ctx context.Context, provider, providerUserID, email, name string) (TokenPair, *User, error) {
	provider = strings.TrimSpace(strings.ToLower(provider))
	providerUserID = strings.TrimSpace(providerUserID)
	email = normalizeEmail(email)
	if provider == "" || provider == ProviderPassword || providerUserID == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: provider and provider user id are required", ErrInvalidInput)
	}

	idents := s.store.Identities(ctx)
	user, err := idents.FindUser(ctx, provider, providerUserID)
	switch {
	case err == nil:
		// linked already
	case errors.Is(err, ErrNotFound):
		user, err = s.linkOrCreateExternal(ctx, provider, providerUserID, email, name)
		if err != nil {
			return TokenPair{}, nil, err
		}
	default:
		return TokenPair{}, nil, storageErr("find identity", err)
	}

	pair, err := s.issuePair(user.ID, "")
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.record(ctx, AuditEvent{
		ActorUserID:  user.ID,
		Action:       "login.external",
		ResourceType: "auth",
		ResourceID:   user.ID,
		Status:       AuditSuccess,
		Metadata:     map[string]string{"provider": provider},
	})
	return pair, user, nil
}

func (s *SessionManager) linkOrCreateExternal(ctx context.Context, provider, providerUserID, email, name string) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required for first external login", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		user = &User{
			ID:       ids.New(),
			Email:    email,
			Name:     strings.TrimSpace(name),
			Verified: true, // the provider vouches for the address
		}
		if err := users.Create(ctx, user); err != nil {
			return nil, storageErr("create user", err)
		}
	} else if err != nil {
		return nil, storageErr("find user", err)
	}
	if err := s.store.Identities(ctx).Link(ctx, &ExternalIdentity{
		ID:             ids.New(),
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: providerUserID,
	}); err != nil && !errors.Is(err, ErrConflict) {
		return nil, storageErr("link identity", err)
	}
	return user, nil
}

// Refresh rotates a refresh token: the presented token's jti is revoked
// and a brand-new pair is issued for the same subject and organization
// claim. A replayed token fails with ErrTokenRevoked.
func (s *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	if err := s.consume(ctx, claims); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(claims.Subject, claims.OrgID)
}

// Logout revokes a refresh token without issuing replacements. A second
// logout with the same token fails with ErrTokenRevoked, which callers
// should treat as "already logged out".
func (s *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.consume(ctx, claims); err != nil {
		return err
	}
	s.record(ctx, AuditEvent{
		ActorUserID:  claims.Subject,
		Action:       "logout",
		ResourceType: "auth",
		ResourceID:   claims.Subject,
		Status:       AuditSuccess,
	})
	return nil
}

// ChangePassword verifies the current password, rejects reuse, rotates
// the stored hash and consumes the presented refresh token so existing
// sessions cannot be extended. Callers must log in again afterwards.
func (s *SessionManager) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, refreshToken string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthenticated
		}
		return storageErr("find user", err)
	}
	if err := VerifyPassword(user.PasswordHash, currentPassword); err != nil {
		s.record(ctx, AuditEvent{
			ActorUserID:  user.ID,
			Action:       "password.changed",
			ResourceType: "user",
			ResourceID:   user.ID,
			Status:       AuditFailed,
			Metadata:     map[string]string{"reason": "wrong_current_password"},
		})
		return fmt.Errorf("%w: current password is incorrect", ErrInvalidInput)
	}
	if VerifyPassword(user.PasswordHash, newPassword) == nil {
		return fmt.Errorf("%w: new password must differ from the current password", ErrInvalidInput)
	}

	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil || claims.Subject != user.ID {
		return ErrInvalidToken
	}
	if err := s.consume(ctx, claims); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthenticated
		}
		return storageErr("update password", err)
	}
	s.record(ctx, AuditEvent{
		ActorUserID:  user.ID,
		Action:       "password.changed",
		ResourceType: "user",
		ResourceID:   user.ID,
		Status:       AuditSuccess,
		Metadata:     map[string]string{"email": user.Email},
	})
	return nil
}

// consume marks the token's jti as used. The revocation store's unique
// constraint makes the check-then-record sequence safe against concurrent
// use of the same token: whichever request inserts second gets
// ErrTokenRevoked.
func (s *SessionManager) consume(ctx context.Context, claims Claims) error {
	revocations := s.store.Revocations(ctx)
	revoked, err := revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return storageErr("check revocation", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	if err := revocations.Record(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return ErrTokenRevoked
		}
		return storageErr("record revocation", err)
	}
	return nil
}

func (s *SessionManager) issuePair(userID, orgID string) (TokenPair, error) {
	access, accessClaims, err := s.codec.Issue(userID, orgID, TokenAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshClaims, err := s.codec.Issue(userID, orgID, TokenRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (s *SessionManager) auditLoginFailure(ctx context.Context, email string) {
	s.record(ctx, AuditEvent{
		Action:       "login.failed",
		ResourceType: "auth",
		Status:       AuditFailed,
		Metadata:     map[string]string{"reason": "invalid_credentials", "email": email},
	})
}

func (s *SessionManager) record(ctx context.Context, event AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	s.audit.Record(ctx, event)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
