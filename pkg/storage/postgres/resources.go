package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
)

const resourceColumns = `id, kind, owner_id, organization_id, title, content, tags, shared_with,
	collaborators, is_shared, status, due_date, task_id, started_at, ended_at, duration_seconds,
	created_at, updated_at`

func scanResource(row rowScanner) (*resources.Resource, error) {
	var (
		r                                 resources.Resource
		org, title, content, status, task sql.NullString
		collaborators                     []byte
	)
	err := row.Scan(&r.ID, &r.Kind, &r.Owner, &org, &title, &content, pq.Array(&r.Tags),
		pq.Array(&r.SharedWith), &collaborators, &r.IsShared, &status, &r.DueDate, &task,
		&r.StartedAt, &r.EndedAt, &r.Duration, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Organization = org.String
	r.Title = title.String
	r.Content = content.String
	r.Status = resources.TaskStatus(status.String)
	r.TaskID = task.String
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	if len(r.SharedWith) == 0 {
		r.SharedWith = nil
	}
	if err := unmarshalJSON(collaborators, &r.Collaborators); err != nil {
		return nil, err
	}
	if len(r.Collaborators) == 0 {
		r.Collaborators = nil
	}
	return &r, nil
}

func resourceArgs(r *resources.Resource) ([]interface{}, error) {
	collaborators := r.Collaborators
	if collaborators == nil {
		collaborators = []rbac.Collaborator{}
	}
	data, err := marshalJSON(collaborators)
	if err != nil {
		return nil, err
	}
	tags, shared := r.Tags, r.SharedWith
	if tags == nil {
		tags = []string{}
	}
	if shared == nil {
		shared = []string{}
	}
	return []interface{}{
		r.ID, string(r.Kind), r.Owner, nullString(r.Organization), nullString(r.Title),
		nullString(r.Content), pq.Array(tags), pq.Array(shared), data, r.IsShared,
		nullString(string(r.Status)), r.DueDate, nullString(r.TaskID), r.StartedAt, r.EndedAt,
		r.Duration, r.CreatedAt, r.UpdatedAt,
	}, nil
}

// CreateResource inserts a resource
func (s *Store) CreateResource(ctx context.Context, r *resources.Resource) error {
	args, err := resourceArgs(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (`+resourceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, args...)
	return translate("create resource", err)
}

// GetResource retrieves a resource of the given kind
func (s *Store) GetResource(ctx context.Context, kind resources.Kind, id string) (*resources.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+resourceColumns+" FROM resources WHERE id = $1 AND kind = $2", id, string(kind))
	r, err := scanResource(row)
	if err != nil {
		return nil, translate("get resource", err)
	}
	return r, nil
}

// UpdateResource replaces a resource. Kind, owner and creation time never
// change.
func (s *Store) UpdateResource(ctx context.Context, r *resources.Resource) error {
	args, err := resourceArgs(r)
	if err != nil {
		return err
	}
	// Drop owner_id and created_at, keeping id and kind as $1 and $2.
	args = append(append(args[:2:2], args[3:16]...), args[17])
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET organization_id = $3, title = $4, content = $5, tags = $6,
			shared_with = $7, collaborators = $8, is_shared = $9, status = $10, due_date = $11,
			task_id = $12, started_at = $13, ended_at = $14, duration_seconds = $15, updated_at = $16
		WHERE id = $1 AND kind = $2
	`, args...)
	return expectOne("update resource", res, err)
}

// DeleteResource deletes a resource and its resource override in one
// transaction
func (s *Store) DeleteResource(ctx context.Context, kind resources.Kind, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM resources WHERE id = $1 AND kind = $2", id, string(kind))
	if err := expectOne("delete resource", res, err); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM resource_overrides WHERE resource_type = $1 AND resource_id = $2", string(kind), id); err != nil {
		return translate("delete resource override", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource delete: %w", err)
	}
	return nil
}

// ListResources lists resources matching filter, newest first
func (s *Store) ListResources(ctx context.Context, filter resources.Filter) ([]*resources.Resource, error) {
	var w where
	if filter.Kind != "" {
		w.add("kind = ?", string(filter.Kind))
	}
	if filter.Organization != "" {
		w.add("organization_id = ?", filter.Organization)
	}
	if filter.Owner != "" {
		w.add("owner_id = ?", filter.Owner)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.VisibleTo != "" {
		w.add(`(owner_id = ?::text OR ?::text = ANY(shared_with)
			OR collaborators @> jsonb_build_array(jsonb_build_object('userId', ?::text)))`, filter.VisibleTo)
	}
	if !filter.From.IsZero() {
		w.add("COALESCE(started_at, created_at) >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("COALESCE(started_at, created_at) < ?", filter.To)
	}

	query := "SELECT " + resourceColumns + " FROM resources" + w.String() + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + w.next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + w.next(filter.Offset)
	}

	rows, err := s.reader().QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, translate("list resources", err)
	}
	defer rows.Close()

	out := []*resources.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
