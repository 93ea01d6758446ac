package auth

import (
	"context"
	"errors"
)

// Resolver derives the caller's identity and, when the token carries an
// organization claim, the caller's membership. Every protected operation
// consumes its output.
type Resolver struct {
	store    Store
	codec    *Codec
	sessions *SessionManager
}

// NewResolver constructs a Resolver. sessions is used only to mint
// org-scoped access tokens on organization selection.
func NewResolver(store Store, codec *Codec, sessions *SessionManager) (*Resolver, error) {
	if store == nil || codec == nil || sessions == nil {
		return nil, errors.New("auth: store, codec and session manager are required")
	}
	return &Resolver{store: store, codec: codec, sessions: sessions}, nil
}

// ResolveIdentity decodes an access token and loads the identity behind
// it. A missing or soft-deleted identity fails with ErrUnauthenticated
// even when the token itself is valid.
func (r *Resolver) ResolveIdentity(ctx context.Context, accessToken string) (*User, Claims, error) {
	claims, err := r.codec.Verify(accessToken, TokenAccess)
	if err != nil {
		return nil, Claims{}, ErrInvalidToken
	}
	user, err := r.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Claims{}, ErrUnauthenticated
		}
		return nil, Claims{}, storageErr("find user", err)
	}
	return user, claims, nil
}

// ResolveMembership requires the token to carry an organization claim.
// Its absence is ErrOrgNotSelected, a distinct error so clients know to
// run the selection flow first; a present claim without a membership row
// is ErrNotAMember.
func (r *Resolver) ResolveMembership(ctx context.Context, accessToken string) (*User, *Membership, error) {
	user, claims, err := r.ResolveIdentity(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if claims.OrgID == "" {
		return nil, nil, ErrOrgNotSelected
	}
	membership, err := r.store.Memberships(ctx).Find(ctx, user.ID, claims.OrgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotAMember
		}
		return nil, nil, storageErr("find membership", err)
	}
	return user, membership, nil
}

// SelectOrganization mints a new access token scoped to the given
// organization. The membership check is the multi-tenancy boundary: a
// token can only ever be scoped to an organization the caller belongs to.
func (r *Resolver) SelectOrganization(ctx context.Context, accessToken, orgID string) (string, error) {
	user, _, err := r.ResolveIdentity(ctx, accessToken)
	if err != nil {
		return "", err
	}
	if _, err := r.store.Memberships(ctx).Find(ctx, user.ID, orgID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotAMember
		}
		return "", storageErr("find membership", err)
	}
	scoped, _, err := r.codec.Issue(user.ID, orgID, TokenAccess, r.sessions.AccessTTL())
	if err != nil {
		return "", err
	}
	return scoped, nil
}
