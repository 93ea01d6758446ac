package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for any bad email/password
	// combination. It never distinguishes which part was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken covers malformed, unsigned, wrong-kind and expired
	// tokens uniformly.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenRevoked marks a structurally valid token whose jti is in the
	// revocation store.
	ErrTokenRevoked = errors.New("auth: token revoked")

	// ErrUnauthenticated is returned when a valid access token resolves to
	// no usable identity (missing or soft-deleted).
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrOrgNotSelected is returned when an access token carries no
	// organization claim. Distinct from ErrNotAMember so clients can branch
	// to the organization-selection flow.
	ErrOrgNotSelected = errors.New("auth: organization not selected")

	// ErrNotAMember is returned when the caller has no membership in the
	// selected organization.
	ErrNotAMember = errors.New("auth: not a member of this organization")

	// ErrForbidden is returned by the authorization gate when the resolved
	// role is not in the allowed set.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrLastOwner rejects removing or demoting an organization's only owner.
	ErrLastOwner = errors.New("auth: cannot remove the last owner")

	// ErrStorage wraps backing-store failures. A failed revocation write
	// aborts the whole refresh/logout operation; an unrecorded revocation
	// would break the single-use guarantee.
	ErrStorage = errors.New("auth: storage unavailable")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
