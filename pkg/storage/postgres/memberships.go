package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const membershipColumns = `id, user_id, organization_id, role, status, permissions, invited_by,
	invited_at, joined_at, ended_at, created_at, updated_at`

func scanMembership(row rowScanner) (*rbac.Membership, error) {
	var (
		m         rbac.Membership
		perms     []byte
		invitedBy sql.NullString
	)
	err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.Status, &perms, &invitedBy,
		&m.InvitedAt, &m.JoinedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.InvitedBy = invitedBy.String
	if err := unmarshalJSON(perms, &m.Permissions); err != nil {
		return nil, err
	}
	return &m, nil
}

func insertMembership(ctx context.Context, db execer, m *rbac.Membership) error {
	perms, err := marshalJSON(m.Permissions)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.UserID, m.OrganizationID, m.Role, string(m.Status), perms, nullString(m.InvitedBy),
		m.InvitedAt, m.JoinedAt, m.EndedAt, m.CreatedAt, m.UpdatedAt)
	return translate("create membership", err)
}

// CreateMembership inserts a membership. The partial unique index on active
// memberships rejects a second active row for the same pair.
func (s *Store) CreateMembership(ctx context.Context, m *rbac.Membership) error {
	return insertMembership(ctx, s.db, m)
}

// GetMembership retrieves a membership by id
func (s *Store) GetMembership(ctx context.Context, id string) (*rbac.Membership, error) {
	row := s.reader().QueryRowContext(ctx, "SELECT "+membershipColumns+" FROM memberships WHERE id = $1", id)
	m, err := scanMembership(row)
	if err != nil {
		return nil, translate("get membership", err)
	}
	return m, nil
}

// FindActiveMemberships returns the active memberships of a pair. Reads go
// to the primary since they gate every authorization decision.
func (s *Store) FindActiveMemberships(ctx context.Context, userID, organizationID string) ([]*rbac.Membership, error) {
	return s.queryMemberships(ctx, s.db, `
		SELECT `+membershipColumns+` FROM memberships
		WHERE user_id = $1 AND organization_id = $2 AND status = 'active'
		ORDER BY created_at
	`, userID, organizationID)
}

// ListMemberships lists memberships matching filter, oldest first
func (s *Store) ListMemberships(ctx context.Context, filter rbac.MembershipFilter) ([]*rbac.Membership, error) {
	var w where
	if filter.OrganizationID != "" {
		w.add("organization_id = ?", filter.OrganizationID)
	}
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	query := "SELECT " + membershipColumns + " FROM memberships" + w.String() + " ORDER BY created_at"
	return s.queryMemberships(ctx, s.reader(), query, w.args...)
}

// UpdateMembership replaces a membership
func (s *Store) UpdateMembership(ctx context.Context, m *rbac.Membership) error {
	perms, err := marshalJSON(m.Permissions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET role = $2, status = $3, permissions = $4, invited_by = $5,
			invited_at = $6, joined_at = $7, ended_at = $8, updated_at = $9
		WHERE id = $1
	`, m.ID, m.Role, string(m.Status), perms, nullString(m.InvitedBy), m.InvitedAt, m.JoinedAt,
		m.EndedAt, m.UpdatedAt)
	return expectOne("update membership", res, err)
}

// ExpireInvitations expires invitations sent before cutoff
func (s *Store) ExpireInvitations(ctx context.Context, cutoff time.Time) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET status = 'expired', ended_at = $2, updated_at = $2
		WHERE status = 'invited' AND invited_at < $1
	`, cutoff, now)
	if err != nil {
		return 0, translate("expire invitations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return int(n), nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Store) queryMemberships(ctx context.Context, db querier, query string, args ...interface{}) ([]*rbac.Membership, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate("list memberships", err)
	}
	defer rows.Close()

	out := []*rbac.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
