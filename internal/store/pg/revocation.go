package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"crewbase.org/internal/auth"
)

// Revocations ---------------------------------------------------------

type revocationStore struct{ db *sql.DB }

// Record inserts the jti. The primary key on jti makes this an atomic
// check-and-set: when two refreshes race on the same token the second
// insert violates the constraint and surfaces as ErrTokenRevoked.
func (s *revocationStore) Record(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revoked_tokens(jti, expires_at) values($1,$2)`,
		jti, expiresAt,
	)
	return mapUnique(err, auth.ErrTokenRevoked)
}

func (s *revocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where jti=$1)`, jti).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// PruneExpired removes entries whose token has passed its natural expiry.
// Storage hygiene only; revocation checks never rely on it.
func (s *revocationStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Audit ---------------------------------------------------------------

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, event *auth.AuditEvent) error {
	meta, _ := json.Marshal(event.Metadata)
	var actor, org any
	if event.ActorUserID != "" {
		actor = event.ActorUserID
	}
	if event.OrganizationID != "" {
		org = event.OrganizationID
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_user_id, organization_id, action, resource_type, resource_id, status, metadata, ip, user_agent, endpoint)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		event.ID, event.OccurredAt, actor, org, event.Action,
		event.ResourceType, event.ResourceID, event.Status, meta,
		event.IP, event.UserAgent, event.Endpoint,
	)
	return err
}
