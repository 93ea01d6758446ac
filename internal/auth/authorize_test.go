package auth

import (
	"errors"
	"testing"
)

func TestRequireExplicitSets(t *testing.T) {
	admin := &Membership{UserID: "u", OrganizationID: "o", Role: RoleAdmin}

	if err := Require(admin, OwnersOnly); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin against owners-only: expected ErrForbidden, got %v", err)
	}
	if err := Require(admin, AdminsAndUp); err != nil {
		t.Fatalf("admin against admins-and-up: %v", err)
	}
	if err := Require(admin, AnyMember); err != nil {
		t.Fatalf("admin against any-member: %v", err)
	}
}

func TestRequireNoImplicitHierarchy(t *testing.T) {
	// An admin-only set must not admit owners: sets are literal, not ranked.
	adminOnly := NewRoleSet(RoleAdmin)
	owner := &Membership{Role: RoleOwner}

	if err := Require(owner, adminOnly); !errors.Is(err, ErrForbidden) {
		t.Fatalf("owner against admin-only: expected ErrForbidden, got %v", err)
	}
}

func TestRequireNilMembership(t *testing.T) {
	if err := Require(nil, AnyMember); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleMember} {
		if !r.Valid() {
			t.Fatalf("expected %s valid", r)
		}
	}
	if Role("superuser").Valid() {
		t.Fatal("unknown role must be invalid")
	}
}
