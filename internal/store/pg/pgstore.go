package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"crewbase.org/internal/auth"
)

// Store implements auth.Store on PostgreSQL via database/sql. Every user,
// organization and project query carries the is_deleted predicate so no
// call site can forget it.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to Postgres and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing database handle (used by tests and cmd/migrate).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) auth.UserStore                 { return &userStore{db: s.db} }
func (s *Store) Identities(context.Context) auth.IdentityStore        { return &identityStore{db: s.db} }
func (s *Store) Organizations(context.Context) auth.OrganizationStore { return &orgStore{db: s.db} }
func (s *Store) Memberships(context.Context) auth.MembershipStore     { return &membershipStore{db: s.db} }
func (s *Store) Projects(context.Context) auth.ProjectStore           { return &projectStore{db: s.db} }
func (s *Store) Revocations(context.Context) auth.RevocationStore     { return &revocationStore{db: s.db} }
func (s *Store) Audit(context.Context) auth.AuditStore                { return &auditStore{db: s.db} }

// CreateOrganizationWithOwner inserts the organization and the creator's
// owner membership in one transaction, so an organization can never exist
// without an owner.
func (s *Store) CreateOrganizationWithOwner(ctx context.Context, org *auth.Organization, ownerUserID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`insert into organizations(id, name, slug) values($1,$2,$3)`,
		org.ID, org.Name, org.Slug,
	)
	if err != nil {
		return mapUnique(err, auth.ErrConflict)
	}
	_, err = tx.ExecContext(ctx,
		`insert into memberships(user_id, organization_id, role) values($1,$2,$3)`,
		ownerUserID, org.ID, auth.RoleOwner,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// mapUnique translates a unique-constraint violation (SQLSTATE 23505)
// into the given sentinel and passes everything else through.
func mapUnique(err error, sentinel error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel
	}
	return err
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	return err
}

// Users ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, name, coalesce(password_hash, ''), verified, is_deleted, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Verified, &u.Deleted, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	var hash any
	if u.PasswordHash != "" {
		hash = u.PasswordHash
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, name, password_hash, verified) values($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.Name, hash, u.Verified,
	)
	return mapUnique(err, auth.ErrConflict)
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1 and is_deleted=false`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1 and is_deleted=false`, email)
	return scanUser(row)
}

func (s *userStore) SetVerified(ctx context.Context, id string) error {
	return s.exec(ctx,
		`update users set verified=true, updated_at=now() where id=$1 and is_deleted=false`, id)
}

func (s *userStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1 and is_deleted=false`, id, passwordHash)
}

func (s *userStore) SoftDelete(ctx context.Context, id string) error {
	return s.exec(ctx,
		`update users set is_deleted=true, updated_at=now() where id=$1 and is_deleted=false`, id)
}

func (s *userStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Identities ----------------------------------------------------------

type identityStore struct{ db *sql.DB }

func (s *identityStore) Link(ctx context.Context, ident *auth.ExternalIdentity) error {
	_, err := s.db.ExecContext(ctx,
		`insert into auth_identities(id, user_id, provider, provider_user_id) values($1,$2,$3,$4)`,
		ident.ID, ident.UserID, ident.Provider, ident.ProviderUserID,
	)
	return mapUnique(err, auth.ErrConflict)
}

func (s *identityStore) FindUser(ctx context.Context, provider, providerUserID string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select u.id, u.email, u.name, coalesce(u.password_hash, ''), u.verified, u.is_deleted, u.created_at, u.updated_at
		 from users u
		 join auth_identities ai on ai.user_id = u.id
		 where ai.provider=$1 and ai.provider_user_id=$2 and u.is_deleted=false`,
		provider, providerUserID)
	return scanUser(row)
}
