package auth

import "time"

// MaxLoginHistory bounds the login history kept on a user record.
const MaxLoginHistory = 10

// Login methods recorded in the login history.
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
	MethodGitHub   = "github"
)

// User represents an account. CurrentOrganization is a weak reference and
// may be empty or point at an organization the user no longer belongs to.
type User struct {
	ID                  string       `json:"id"`
	Email               string       `json:"email"`
	Username            string       `json:"username"`
	PasswordHash        string       `json:"-"`
	GoogleID            string       `json:"googleId,omitempty"`
	GitHubID            string       `json:"githubId,omitempty"`
	CurrentOrganization string       `json:"currentOrganization,omitempty"`
	LastLoginAt         *time.Time   `json:"lastLoginAt,omitempty"`
	LoginCount          int          `json:"loginCount"`
	LoginHistory        []LoginEvent `json:"loginHistory,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// LoginEvent is one entry of a user's login history.
type LoginEvent struct {
	At        time.Time `json:"at"`
	Method    string    `json:"method"`
	IPAddress string    `json:"ipAddress,omitempty"`
}

// RecordLogin updates the login counters and appends to the bounded history.
func (u *User) RecordLogin(method, ip string, at time.Time) {
	u.LastLoginAt = &at
	u.LoginCount++
	u.LoginHistory = append(u.LoginHistory, LoginEvent{At: at, Method: method, IPAddress: ip})
	if len(u.LoginHistory) > MaxLoginHistory {
		u.LoginHistory = u.LoginHistory[len(u.LoginHistory)-MaxLoginHistory:]
	}
	u.UpdatedAt = at
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// AuthContext holds the authenticated caller for one request.
type AuthContext struct {
	User   *User
	Claims *Claims
}

// UserID returns the caller's id, or "" for an empty context.
func (ac *AuthContext) UserID() string {
	if ac == nil || ac.User == nil {
		return ""
	}
	return ac.User.ID
}

// Session is returned by every successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// ExternalIdentity is a user profile returned by an OAuth provider.
type ExternalIdentity struct {
	Provider   string
	ExternalID string
	Email      string
	Username   string
}
