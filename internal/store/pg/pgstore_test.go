package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"crewbase.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "revoked_tokens_pkey"}
}

func TestRevocationRecordDuplicateIsRevoked(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into revoked_tokens").
		WithArgs("jti-1", sqlmock.AnyArg()).
		WillReturnError(uniqueViolation())

	rev := store.Revocations(ctx)
	if err := rev.Record(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := rev.Record(ctx, "jti-1", time.Now().Add(time.Hour)); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Fatalf("second record: expected ErrTokenRevoked, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationIsRevoked(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("select exists").
		WithArgs("jti-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rev := store.Revocations(ctx)
	revoked, err := rev.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	revoked, err = rev.IsRevoked(ctx, "jti-2")
	if err != nil || revoked {
		t.Fatalf("expected not revoked, got %v %v", revoked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationPruneExpired(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("delete from revoked_tokens where expires_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	pruned, err := store.Revocations(ctx).PruneExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("expected 3 pruned, got %d", pruned)
	}
}

func TestUserLookupsFilterDeleted(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now()

	cols := []string{"id", "email", "name", "password_hash", "verified", "is_deleted", "created_at", "updated_at"}

	// The soft-delete predicate is part of the query, not a caller concern.
	mock.ExpectQuery(`select .* from users where id=\$1 and is_deleted=false`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@x.com", "A", "hash", true, false, now, now))
	mock.ExpectQuery(`select .* from users where email=\$1 and is_deleted=false`).
		WithArgs("gone@x.com").
		WillReturnRows(sqlmock.NewRows(cols))

	users := store.Users(ctx)
	u, err := users.Find(ctx, "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := users.FindByEmail(ctx, "gone@x.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("insert into users").
		WithArgs("u1", "a@x.com", "A", "hash", false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := store.Users(ctx).Create(ctx, &auth.User{ID: "u1", Email: "a@x.com", Name: "A", PasswordHash: "hash"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMembershipCountOwners(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select count").
		WithArgs("org-1", string(auth.RoleOwner)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := store.Memberships(ctx).CountOwners(ctx, "org-1")
	if err != nil {
		t.Fatalf("CountOwners: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 owner, got %d", count)
	}
}

func TestMembershipCreateDuplicatePair(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("insert into memberships").
		WithArgs("u1", "org-1", string(auth.RoleMember)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "memberships_pkey"})

	err := store.Memberships(ctx).Create(ctx, &auth.Membership{
		UserID: "u1", OrganizationID: "org-1", Role: auth.RoleMember,
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateOrganizationWithOwnerTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("insert into organizations").
		WithArgs("org-1", "Acme", "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into memberships").
		WithArgs("u1", "org-1", string(auth.RoleOwner)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CreateOrganizationWithOwner(ctx, &auth.Organization{ID: "org-1", Name: "Acme", Slug: "acme"}, "u1")
	if err != nil {
		t.Fatalf("CreateOrganizationWithOwner: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrganizationWithOwnerSlugTaken(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("insert into organizations").
		WithArgs("org-1", "Acme", "acme").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "organizations_slug_key"})
	mock.ExpectRollback()

	err := store.CreateOrganizationWithOwner(ctx, &auth.Organization{ID: "org-1", Name: "Acme", Slug: "acme"}, "u1")
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
