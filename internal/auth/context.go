package auth

import "context"

type userContextKey struct{}
type membershipContextKey struct{}
type tokenContextKey struct{}

// ContextWithUser attaches the authenticated identity to the context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the authenticated identity.
func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(userContextKey{}).(*User)
	if !ok || u == nil {
		return nil, false
	}
	return u, true
}

// ContextWithMembership attaches the resolved tenant membership.
func ContextWithMembership(ctx context.Context, m *Membership) context.Context {
	if m == nil {
		return ctx
	}
	return context.WithValue(ctx, membershipContextKey{}, m)
}

// MembershipFromContext extracts the resolved tenant membership.
func MembershipFromContext(ctx context.Context) (*Membership, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(membershipContextKey{}).(*Membership)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
