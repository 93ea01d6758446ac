package pg

import (
	"context"
	"database/sql"

	"crewbase.org/internal/auth"
)

// Organizations -------------------------------------------------------

type orgStore struct{ db *sql.DB }

const orgColumns = `id, name, slug, is_deleted, created_at, updated_at`

func scanOrg(row interface{ Scan(...any) error }) (*auth.Organization, error) {
	var org auth.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Deleted, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &org, nil
}

func (s *orgStore) Create(ctx context.Context, org *auth.Organization) error {
	_, err := s.db.ExecContext(ctx,
		`insert into organizations(id, name, slug) values($1,$2,$3)`,
		org.ID, org.Name, org.Slug,
	)
	return mapUnique(err, auth.ErrConflict)
}

func (s *orgStore) Find(ctx context.Context, id string) (*auth.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id=$1 and is_deleted=false`, id)
	return scanOrg(row)
}

func (s *orgStore) FindBySlug(ctx context.Context, slug string) (*auth.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where slug=$1 and is_deleted=false`, slug)
	return scanOrg(row)
}

func (s *orgStore) UpdateName(ctx context.Context, id, name, slug string) (*auth.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`update organizations set name=$2, slug=$3, updated_at=now()
		 where id=$1 and is_deleted=false
		 returning `+orgColumns, id, name, slug)
	org, err := scanOrg(row)
	if err != nil {
		return nil, mapUnique(err, auth.ErrConflict)
	}
	return org, nil
}

func (s *orgStore) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update organizations set is_deleted=true, updated_at=now() where id=$1 and is_deleted=false`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Memberships ---------------------------------------------------------

type membershipStore struct{ db *sql.DB }

const membershipColumns = `user_id, organization_id, role, created_at, updated_at`

func scanMembership(row interface{ Scan(...any) error }) (*auth.Membership, error) {
	var m auth.Membership
	if err := row.Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &m, nil
}

func (s *membershipStore) Create(ctx context.Context, m *auth.Membership) error {
	_, err := s.db.ExecContext(ctx,
		`insert into memberships(user_id, organization_id, role) values($1,$2,$3)`,
		m.UserID, m.OrganizationID, m.Role,
	)
	return mapUnique(err, auth.ErrConflict)
}

func (s *membershipStore) Find(ctx context.Context, userID, orgID string) (*auth.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipColumns+` from memberships where user_id=$1 and organization_id=$2`,
		userID, orgID)
	return scanMembership(row)
}

func (s *membershipStore) ListByOrg(ctx context.Context, orgID string) ([]*auth.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+membershipColumns+` from memberships where organization_id=$1 order by created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *membershipStore) ListByUser(ctx context.Context, userID string) ([]*auth.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+membershipColumns+` from memberships where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *membershipStore) UpdateRole(ctx context.Context, userID, orgID string, role auth.Role) error {
	res, err := s.db.ExecContext(ctx,
		`update memberships set role=$3, updated_at=now() where user_id=$1 and organization_id=$2`,
		userID, orgID, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *membershipStore) Delete(ctx context.Context, userID, orgID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from memberships where user_id=$1 and organization_id=$2`, userID, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *membershipStore) CountOwners(ctx context.Context, orgID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from memberships where organization_id=$1 and role=$2`,
		orgID, auth.RoleOwner).Scan(&count)
	return count, err
}

// Projects ------------------------------------------------------------

type projectStore struct{ db *sql.DB }

const projectColumns = `id, organization_id, name, created_by, is_deleted, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*auth.Project, error) {
	var p auth.Project
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.CreatedBy, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &p, nil
}

func (s *projectStore) Create(ctx context.Context, p *auth.Project) error {
	_, err := s.db.ExecContext(ctx,
		`insert into projects(id, organization_id, name, created_by) values($1,$2,$3,$4)`,
		p.ID, p.OrganizationID, p.Name, p.CreatedBy,
	)
	return mapUnique(err, auth.ErrConflict)
}

func (s *projectStore) Find(ctx context.Context, orgID, id string) (*auth.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+projectColumns+` from projects where id=$1 and organization_id=$2 and is_deleted=false`,
		id, orgID)
	return scanProject(row)
}

func (s *projectStore) ListByOrg(ctx context.Context, orgID string) ([]*auth.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+projectColumns+` from projects where organization_id=$1 and is_deleted=false order by created_at`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *projectStore) UpdateName(ctx context.Context, orgID, id, name string) (*auth.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`update projects set name=$3, updated_at=now()
		 where id=$1 and organization_id=$2 and is_deleted=false
		 returning `+projectColumns, id, orgID, name)
	p, err := scanProject(row)
	if err != nil {
		return nil, mapUnique(err, auth.ErrConflict)
	}
	return p, nil
}

func (s *projectStore) SoftDelete(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update projects set is_deleted=true, updated_at=now()
		 where id=$1 and organization_id=$2 and is_deleted=false`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *projectStore) AddMember(ctx context.Context, pm *auth.ProjectMembership) error {
	_, err := s.db.ExecContext(ctx,
		`insert into project_members(user_id, project_id) values($1,$2)`,
		pm.UserID, pm.ProjectID,
	)
	return mapUnique(err, auth.ErrConflict)
}

func (s *projectStore) RemoveMember(ctx context.Context, projectID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from project_members where project_id=$1 and user_id=$2`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *projectStore) ListMembers(ctx context.Context, projectID string) ([]*auth.ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id, project_id, created_at from project_members where project_id=$1 order by created_at`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.ProjectMembership
	for rows.Next() {
		var pm auth.ProjectMembership
		if err := rows.Scan(&pm.UserID, &pm.ProjectID, &pm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &pm)
	}
	return out, rows.Err()
}
