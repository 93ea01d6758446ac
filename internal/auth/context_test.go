package auth

import (
	"context"
	"testing"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()

	if _, ok := UserFromContext(ctx); ok {
		t.Fatal("empty context must not yield a user")
	}
	if _, ok := MembershipFromContext(ctx); ok {
		t.Fatal("empty context must not yield a membership")
	}
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("empty context must not yield a token")
	}

	user := &User{ID: "u1"}
	membership := &Membership{UserID: "u1", OrganizationID: "o1", Role: RoleAdmin}
	ctx = ContextWithUser(ctx, user)
	ctx = ContextWithMembership(ctx, membership)
	ctx = ContextWithToken(ctx, "raw-token")

	if got, ok := UserFromContext(ctx); !ok || got.ID != "u1" {
		t.Fatalf("user round trip: %v %v", got, ok)
	}
	if got, ok := MembershipFromContext(ctx); !ok || got.Role != RoleAdmin {
		t.Fatalf("membership round trip: %v %v", got, ok)
	}
	if got, ok := TokenFromContext(ctx); !ok || got != "raw-token" {
		t.Fatalf("token round trip: %q %v", got, ok)
	}
}

func TestContextIgnoresNilValues(t *testing.T) {
	ctx := ContextWithUser(context.Background(), nil)
	ctx = ContextWithMembership(ctx, nil)
	ctx = ContextWithToken(ctx, "")

	if _, ok := UserFromContext(ctx); ok {
		t.Fatal("nil user must not be stored")
	}
	if _, ok := MembershipFromContext(ctx); ok {
		t.Fatal("nil membership must not be stored")
	}
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("empty token must not be stored")
	}
}
