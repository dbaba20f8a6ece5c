package postgres

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
)

const userColumns = `id, email, username, password_hash, google_id, github_id, current_organization,
	last_login_at, login_count, login_history, created_at, updated_at`

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                                      auth.User
		password, google, github, currentOrgID sql.NullString
		history                                []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &password, &google, &github, &currentOrgID,
		&u.LastLoginAt, &u.LoginCount, &history, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = password.String
	u.GoogleID = google.String
	u.GitHubID = github.String
	u.CurrentOrganization = currentOrgID.String
	if err := unmarshalJSON(history, &u.LoginHistory); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user
func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	history, err := marshalJSON(loginHistory(user))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.Email, user.Username, nullString(user.PasswordHash), nullString(user.GoogleID),
		nullString(user.GitHubID), nullString(user.CurrentOrganization), user.LastLoginAt,
		user.LoginCount, history, user.CreatedAt, user.UpdatedAt)
	return translate("create user", err)
}

// GetUser retrieves a user by id
func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, "LOWER(email) = LOWER($1)", email)
}

// GetUserByUsername retrieves a user by username, case-insensitively
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.getUser(ctx, "LOWER(username) = LOWER($1)", username)
}

// GetUserByProvider retrieves a user by OAuth provider id
func (s *Store) GetUserByProvider(ctx context.Context, provider, externalID string) (*auth.User, error) {
	if externalID == "" {
		return nil, apperrors.ErrNotFound
	}
	switch provider {
	case auth.MethodGoogle:
		return s.getUser(ctx, "google_id = $1", externalID)
	case auth.MethodGitHub:
		return s.getUser(ctx, "github_id = $1", externalID)
	}
	return nil, apperrors.ErrNotFound
}

// UpdateUser replaces a user
func (s *Store) UpdateUser(ctx context.Context, user *auth.User) error {
	history, err := marshalJSON(loginHistory(user))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $2, username = $3, password_hash = $4, google_id = $5, github_id = $6,
			current_organization = $7, last_login_at = $8, login_count = $9, login_history = $10,
			updated_at = $11
		WHERE id = $1
	`, user.ID, user.Email, user.Username, nullString(user.PasswordHash), nullString(user.GoogleID),
		nullString(user.GitHubID), nullString(user.CurrentOrganization), user.LastLoginAt,
		user.LoginCount, history, user.UpdatedAt)
	return expectOne("update user", res, err)
}

func (s *Store) getUser(ctx context.Context, cond string, arg interface{}) (*auth.User, error) {
	row := s.reader().QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate("get user", err)
	}
	return u, nil
}

func loginHistory(u *auth.User) []auth.LoginEvent {
	if u.LoginHistory == nil {
		return []auth.LoginEvent{}
	}
	return u.LoginHistory
}
