package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Every user, organization and project lookup excludes soft-deleted rows;
// implementations bake the predicate into the query rather than leaving it
// to call sites.
type Store interface {
	Users(ctx context.Context) UserStore
	Identities(ctx context.Context) IdentityStore
	Organizations(ctx context.Context) OrganizationStore
	Memberships(ctx context.Context) MembershipStore
	Projects(ctx context.Context) ProjectStore
	Revocations(ctx context.Context) RevocationStore
	Audit(ctx context.Context) AuditStore

	// CreateOrganizationWithOwner inserts the organization and the creator's
	// owner membership as one unit; neither row exists if the other fails.
	CreateOrganizationWithOwner(ctx context.Context, org *Organization, ownerUserID string) error
}

// UserStore manages identities.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error
}

// IdentityStore manages external identity links. (provider,
// provider_user_id) is unique; Link returns ErrConflict on a duplicate.
type IdentityStore interface {
	Link(ctx context.Context, ident *ExternalIdentity) error
	FindUser(ctx context.Context, provider, providerUserID string) (*User, error)
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
	UpdateName(ctx context.Context, id, name, slug string) (*Organization, error)
	SoftDelete(ctx context.Context, id string) error
}

// MembershipStore manages the (user, organization, role) association.
// Create returns ErrConflict when the pair already exists.
type MembershipStore interface {
	Create(ctx context.Context, m *Membership) error
	Find(ctx context.Context, userID, orgID string) (*Membership, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
	UpdateRole(ctx context.Context, userID, orgID string, role Role) error
	Delete(ctx context.Context, userID, orgID string) error
	CountOwners(ctx context.Context, orgID string) (int, error)
}

// ProjectStore manages projects and their member lists.
type ProjectStore interface {
	Create(ctx context.Context, p *Project) error
	Find(ctx context.Context, orgID, id string) (*Project, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Project, error)
	UpdateName(ctx context.Context, orgID, id, name string) (*Project, error)
	SoftDelete(ctx context.Context, orgID, id string) error
	AddMember(ctx context.Context, pm *ProjectMembership) error
	RemoveMember(ctx context.Context, projectID, userID string) error
	ListMembers(ctx context.Context, projectID string) ([]*ProjectMembership, error)
}

// RevocationStore records consumed token identifiers. Record must be
// backed by a uniqueness constraint: a second insert of the same jti
// returns ErrTokenRevoked, which is what prevents two concurrent
// refreshes of one token from both succeeding. expiresAt is kept only so
// PruneExpired can reclaim storage after the natural expiry window;
// correctness never depends on pruning.
type RevocationStore interface {
	Record(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditStore appends immutable audit events.
type AuditStore interface {
	Append(ctx context.Context, event *AuditEvent) error
}
