package memory

import (
	"context"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
)

func copyUser(u *auth.User) *auth.User {
	c := *u
	c.LastLoginAt = copyTime(u.LastLoginAt)
	c.LoginHistory = append([]auth.LoginEvent(nil), u.LoginHistory...)
	return &c
}

// conflictingUser reports whether another user already holds u's email,
// username or provider ids.
func (s *Store) conflictingUser(u *auth.User) bool {
	for _, other := range s.users {
		if other.ID == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) || strings.EqualFold(other.Username, u.Username) {
			return true
		}
		if u.GoogleID != "" && other.GoogleID == u.GoogleID {
			return true
		}
		if u.GitHubID != "" && other.GitHubID == u.GitHubID {
			return true
		}
	}
	return false
}

// CreateUser inserts a user
func (s *Store) CreateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok || s.conflictingUser(user) {
		return apperrors.ErrDuplicate
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// GetUser retrieves a user by id
func (s *Store) GetUser(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyUser(u), nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *Store) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	return s.findUser(func(u *auth.User) bool { return strings.EqualFold(u.Email, email) })
}

// GetUserByUsername retrieves a user by username, case-insensitively
func (s *Store) GetUserByUsername(_ context.Context, username string) (*auth.User, error) {
	return s.findUser(func(u *auth.User) bool { return strings.EqualFold(u.Username, username) })
}

// GetUserByProvider retrieves a user by OAuth provider id
func (s *Store) GetUserByProvider(_ context.Context, provider, externalID string) (*auth.User, error) {
	if externalID == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.findUser(func(u *auth.User) bool {
		switch provider {
		case auth.MethodGoogle:
			return u.GoogleID == externalID
		case auth.MethodGitHub:
			return u.GitHubID == externalID
		}
		return false
	})
}

// UpdateUser replaces a user
func (s *Store) UpdateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if s.conflictingUser(user) {
		return apperrors.ErrDuplicate
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) findUser(match func(*auth.User) bool) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, apperrors.ErrNotFound
}
