package auth

// RoleSet is an explicit allowed-role set. There is deliberately no
// ordering between roles: an operation that admins may not perform lists
// its roles without RoleAdmin, and nothing infers owner > admin.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the listed roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether the role is in the set.
func (s RoleSet) Contains(role Role) bool {
	_, ok := s[role]
	return ok
}

// Allowed-role sets used by the protected operations.
var (
	OwnersOnly  = NewRoleSet(RoleOwner)
	AdminsAndUp = NewRoleSet(RoleOwner, RoleAdmin)
	AnyMember   = NewRoleSet(RoleOwner, RoleAdmin, RoleMember)
)

// Require compares the resolved membership against the allowed set.
func Require(membership *Membership, allowed RoleSet) error {
	if membership == nil || !allowed.Contains(membership.Role) {
		return ErrForbidden
	}
	return nil
}
