package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and single-process
// development runs. It mirrors the Postgres implementation's semantics:
// soft-delete filtering on every lookup, conflict errors on unique pairs,
// and the revocation insert acting as an atomic check-and-set.
type MemoryStore struct {
	mu sync.Mutex

	users       map[string]*User
	identities  map[string]*ExternalIdentity // provider "\x00" providerUserID
	orgs        map[string]*Organization
	memberships map[string]*Membership // userID "\x00" orgID
	projects    map[string]*Project
	projMembers map[string]*ProjectMembership // userID "\x00" projectID
	revoked     map[string]time.Time
	audit       []*AuditEvent
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		identities:  make(map[string]*ExternalIdentity),
		orgs:        make(map[string]*Organization),
		memberships: make(map[string]*Membership),
		projects:    make(map[string]*Project),
		projMembers: make(map[string]*ProjectMembership),
		revoked:     make(map[string]time.Time),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Users(context.Context) UserStore                 { return (*memUsers)(m) }
func (m *MemoryStore) Identities(context.Context) IdentityStore        { return (*memIdentities)(m) }
func (m *MemoryStore) Organizations(context.Context) OrganizationStore { return (*memOrgs)(m) }
func (m *MemoryStore) Memberships(context.Context) MembershipStore     { return (*memMemberships)(m) }
func (m *MemoryStore) Projects(context.Context) ProjectStore           { return (*memProjects)(m) }
func (m *MemoryStore) Revocations(context.Context) RevocationStore     { return (*memRevocations)(m) }
func (m *MemoryStore) Audit(context.Context) AuditStore                { return (*memAudit)(m) }

// CreateOrganizationWithOwner inserts the organization and the creator's
// owner membership under one lock acquisition, leaving neither behind on a
// slug conflict.
func (m *MemoryStore) CreateOrganizationWithOwner(_ context.Context, org *Organization, ownerUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if !existing.Deleted && existing.Slug == org.Slug {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now
	orgClone := *org
	m.orgs[org.ID] = &orgClone
	mem := &Membership{
		UserID:         ownerUserID,
		OrganizationID: org.ID,
		Role:           RoleOwner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.memberships[pairKey(ownerUserID, org.ID)] = mem
	return nil
}

// AuditEvents returns a copy of recorded audit events, oldest first.
func (m *MemoryStore) AuditEvents() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEvent, len(m.audit))
	copy(out, m.audit)
	return out
}

func pairKey(a, b string) string { return a + "\x00" + b }

// Users ---------------------------------------------------------------

type memUsers MemoryStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if !existing.Deleted && strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if !u.Deleted && strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) SetVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return ErrNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return ErrNotFound
	}
	u.Deleted = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Identities ----------------------------------------------------------

type memIdentities MemoryStore

func (m *memIdentities) Link(_ context.Context, ident *ExternalIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(ident.Provider, ident.ProviderUserID)
	if _, ok := m.identities[key]; ok {
		return ErrConflict
	}
	ident.CreatedAt = time.Now().UTC()
	clone := *ident
	m.identities[key] = &clone
	return nil
}

func (m *memIdentities) FindUser(_ context.Context, provider, providerUserID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[pairKey(provider, providerUserID)]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := m.users[ident.UserID]
	if !ok || u.Deleted {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// Organizations -------------------------------------------------------

type memOrgs MemoryStore

func (m *memOrgs) Create(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if !existing.Deleted && existing.Slug == org.Slug {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now
	clone := *org
	m.orgs[org.ID] = &clone
	return nil
}

func (m *memOrgs) Find(_ context.Context, id string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok || org.Deleted {
		return nil, ErrNotFound
	}
	clone := *org
	return &clone, nil
}

func (m *memOrgs) FindBySlug(_ context.Context, slug string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, org := range m.orgs {
		if !org.Deleted && org.Slug == slug {
			clone := *org
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memOrgs) UpdateName(_ context.Context, id, name, slug string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok || org.Deleted {
		return nil, ErrNotFound
	}
	for _, other := range m.orgs {
		if other.ID != id && !other.Deleted && other.Slug == slug {
			return nil, ErrConflict
		}
	}
	org.Name = name
	org.Slug = slug
	org.UpdatedAt = time.Now().UTC()
	clone := *org
	return &clone, nil
}

func (m *memOrgs) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok || org.Deleted {
		return ErrNotFound
	}
	org.Deleted = true
	org.UpdatedAt = time.Now().UTC()
	return nil
}

// Memberships ---------------------------------------------------------

type memMemberships MemoryStore

func (m *memMemberships) Create(_ context.Context, mem *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(mem.UserID, mem.OrganizationID)
	if _, ok := m.memberships[key]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	mem.CreatedAt = now
	mem.UpdatedAt = now
	clone := *mem
	m.memberships[key] = &clone
	return nil
}

func (m *memMemberships) Find(_ context.Context, userID, orgID string) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memberships[pairKey(userID, orgID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *mem
	return &clone, nil
}

func (m *memMemberships) ListByOrg(_ context.Context, orgID string) ([]*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Membership
	for _, mem := range m.memberships {
		if mem.OrganizationID == orgID {
			clone := *mem
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memMemberships) ListByUser(_ context.Context, userID string) ([]*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Membership
	for _, mem := range m.memberships {
		if mem.UserID == userID {
			clone := *mem
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrganizationID < out[j].OrganizationID })
	return out, nil
}

func (m *memMemberships) UpdateRole(_ context.Context, userID, orgID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memberships[pairKey(userID, orgID)]
	if !ok {
		return ErrNotFound
	}
	mem.Role = role
	mem.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memMemberships) Delete(_ context.Context, userID, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(userID, orgID)
	if _, ok := m.memberships[key]; !ok {
		return ErrNotFound
	}
	delete(m.memberships, key)
	return nil
}

func (m *memMemberships) CountOwners(_ context.Context, orgID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, mem := range m.memberships {
		if mem.OrganizationID == orgID && mem.Role == RoleOwner {
			count++
		}
	}
	return count, nil
}

// Projects ------------------------------------------------------------

type memProjects MemoryStore

func (m *memProjects) Create(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.projects {
		if !existing.Deleted && existing.OrganizationID == p.OrganizationID && existing.Name == p.Name {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	clone := *p
	m.projects[p.ID] = &clone
	return nil
}

func (m *memProjects) Find(_ context.Context, orgID, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.Deleted || p.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *memProjects) ListByOrg(_ context.Context, orgID string) ([]*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Project
	for _, p := range m.projects {
		if !p.Deleted && p.OrganizationID == orgID {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProjects) UpdateName(_ context.Context, orgID, id, name string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.Deleted || p.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	for _, other := range m.projects {
		if other.ID != id && !other.Deleted && other.OrganizationID == orgID && other.Name == name {
			return nil, ErrConflict
		}
	}
	p.Name = name
	p.UpdatedAt = time.Now().UTC()
	clone := *p
	return &clone, nil
}

func (m *memProjects) SoftDelete(_ context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.Deleted || p.OrganizationID != orgID {
		return ErrNotFound
	}
	p.Deleted = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memProjects) AddMember(_ context.Context, pm *ProjectMembership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(pm.UserID, pm.ProjectID)
	if _, ok := m.projMembers[key]; ok {
		return ErrConflict
	}
	pm.CreatedAt = time.Now().UTC()
	clone := *pm
	m.projMembers[key] = &clone
	return nil
}

func (m *memProjects) RemoveMember(_ context.Context, projectID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(userID, projectID)
	if _, ok := m.projMembers[key]; !ok {
		return ErrNotFound
	}
	delete(m.projMembers, key)
	return nil
}

func (m *memProjects) ListMembers(_ context.Context, projectID string) ([]*ProjectMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ProjectMembership
	for _, pm := range m.projMembers {
		if pm.ProjectID == projectID {
			clone := *pm
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Revocations ---------------------------------------------------------

type memRevocations MemoryStore

func (m *memRevocations) Record(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[jti]; ok {
		return ErrTokenRevoked
	}
	m.revoked[jti] = expiresAt
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *memRevocations) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for jti, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, jti)
			pruned++
		}
	}
	return pruned, nil
}

// Audit ---------------------------------------------------------------

type memAudit MemoryStore

func (m *memAudit) Append(_ context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *event
	m.audit = append(m.audit, &clone)
	return nil
}
