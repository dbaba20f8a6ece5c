package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/ids"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// UserStore is the persistence the auth service needs.
// Lookups return apperrors.ErrNotFound when nothing matches and CreateUser
// returns apperrors.ErrDuplicate when the email or username is taken.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByProvider(ctx context.Context, provider, externalID string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
}

// RegisterRequest is the body of a password registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the body of a password login. Identifier is an email or a
// username.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// Service implements registration, login and bearer authentication.
type Service struct {
	users  UserStore
	tokens *TokenManager
	audit  audit.Logger
	now    func() time.Time
}

// NewService creates an auth service
func NewService(users UserStore, tokens *TokenManager, auditLogger audit.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		audit:  auditLogger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a password account and returns a session for it.
func (s *Service) Register(ctx context.Context, req RegisterRequest, ip string) (*Session, error) {
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperrors.Validation("a valid email is required")
	}
	if !usernamePattern.MatchString(req.Username) {
		return nil, apperrors.Validation("username must be 3-32 characters of letters, digits, '.', '_' or '-'")
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	now := s.now()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	user.RecordLogin(MethodPassword, ip, now)

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, apperrors.Conflict(apperrors.CodeDuplicateName, "email or username is already registered")
		}
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:    audit.EventTypeAuthRegister,
		UserID:       user.ID,
		ResourceType: "user",
		ResourceID:   user.ID,
		IPAddress:    ip,
	})
	return s.issue(user)
}

// Login verifies a password and returns a session.
func (s *Service) Login(ctx context.Context, req LoginRequest, ip string) (*Session, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		return nil, apperrors.Validation("identifier and password are required")
	}

	var (
		user *User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = s.users.GetUserByUsername(ctx, identifier)
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}

	if user == nil || !CheckPassword(user.PasswordHash, req.Password) {
		audit.Record(ctx, s.audit, &audit.Event{
			EventType: audit.EventTypeAuthLoginFailed,
			Status:    audit.EventStatusFailure,
			IPAddress: ip,
			Message:   "invalid credentials",
		})
		return nil, apperrors.InvalidCredentials()
	}

	return s.completeLogin(ctx, user, MethodPassword, ip)
}

// LoginExternal maps a provider profile onto a user. It matches by provider
// id first, then by email (linking the provider id), and otherwise creates a
// new account.
func (s *Service) LoginExternal(ctx context.Context, identity ExternalIdentity, ip string) (*Session, error) {
	if identity.ExternalID == "" {
		return nil, apperrors.Validation("provider did not return a user id")
	}

	user, err := s.users.GetUserByProvider(ctx, identity.Provider, identity.ExternalID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}

	email := normalizeEmail(identity.Email)
	if user == nil && email != "" {
		user, err = s.users.GetUserByEmail(ctx, email)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Internal(apperrors.CodeAuthError, err)
		}
		if user != nil {
			linkProvider(user, identity)
		}
	}

	if user == nil {
		if email == "" {
			return nil, apperrors.Validation("provider did not return an email")
		}
		now := s.now()
		user = &User{
			ID:        ids.New(),
			Email:     email,
			Username:  s.availableUsername(ctx, identity),
			CreatedAt: now,
			UpdatedAt: now,
		}
		linkProvider(user, identity)
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, apperrors.Internal(apperrors.CodeAuthError, err)
		}
		audit.Record(ctx, s.audit, &audit.Event{
			EventType:    audit.EventTypeAuthRegister,
			UserID:       user.ID,
			ResourceType: "user",
			ResourceID:   user.ID,
			IPAddress:    ip,
			Metadata:     map[string]interface{}{"provider": identity.Provider},
		})
	}

	return s.completeLogin(ctx, user, identity.Provider, ip)
}

// Authenticate validates a bearer token and loads the caller.
func (s *Service) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UserNotFound()
		}
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}
	return &AuthContext{User: user, Claims: claims}, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UserNotFound()
		}
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}
	return user, nil
}

func (s *Service) completeLogin(ctx context.Context, user *User, method, ip string) (*Session, error) {
	user.RecordLogin(method, ip, s.now())
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}
	audit.Record(ctx, s.audit, &audit.Event{
		EventType: audit.EventTypeAuthLogin,
		UserID:    user.ID,
		IPAddress: ip,
		Metadata:  map[string]interface{}{"method": method},
	})
	return s.issue(user)
}

func (s *Service) issue(user *User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeAuthError, err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// availableUsername derives a username from the provider profile and appends
// a suffix until it is free.
func (s *Service) availableUsername(ctx context.Context, identity ExternalIdentity) string {
	base := identity.Username
	if base == "" {
		base = strings.SplitN(identity.Email, "@", 2)[0]
	}
	base = sanitizeUsername(base)

	candidate := base
	for i := 1; i < 100; i++ {
		if _, err := s.users.GetUserByUsername(ctx, candidate); errors.Is(err, apperrors.ErrNotFound) {
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return base + "-" + ids.New()[18:]
}

func linkProvider(user *User, identity ExternalIdentity) {
	switch identity.Provider {
	case MethodGoogle:
		user.GoogleID = identity.ExternalID
	case MethodGitHub:
		user.GitHubID = identity.ExternalID
	}
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 28 {
		out = out[:28]
	}
	for len(out) < 3 {
		out += "_"
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
