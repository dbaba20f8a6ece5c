package orgs

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive  OrgStatus = "active"
	OrgStatusDeleted OrgStatus = "deleted"
)

// Organization is a tenant boundary. RoleDefaults is the built-in role
// catalog copied at creation time.
type Organization struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Slug         string        `json:"slug"`
	Description  string        `json:"description,omitempty"`
	CreatedBy    string        `json:"createdBy"`
	Status       OrgStatus     `json:"status"`
	RoleDefaults *rbac.Catalog `json:"roleDefaults,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	DeletedAt    *time.Time    `json:"deletedAt,omitempty"`
}

// CreateOrganizationRequest represents a request to create an organization
type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateOrganizationRequest represents a request to update an organization
type UpdateOrganizationRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// InviteRequest invites a user by id or email. Role defaults to member.
type InviteRequest struct {
	UserID      string             `json:"userId"`
	Email       string             `json:"email"`
	Role        string             `json:"role"`
	Permissions rbac.PermissionSet `json:"permissions,omitempty"`
}

// Member is a membership joined with the user it belongs to.
type Member struct {
	*rbac.Membership
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Store persists organizations. GetOrganization returns
// apperrors.ErrNotFound for unknown and deleted organizations.
type Store interface {
	rbac.RoleDefaultsStore

	// CreateOrganization inserts the organization and its owner's
	// membership in one transaction.
	CreateOrganization(ctx context.Context, org *Organization, owner *rbac.Membership) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	// ListOrganizationsForUser returns the organizations where the user has
	// an active membership.
	ListOrganizationsForUser(ctx context.Context, userID string) ([]*Organization, error)
	UpdateOrganization(ctx context.Context, org *Organization) error
	// DeleteOrganization marks the organization deleted and moves every
	// active or invited membership to removed, in one transaction.
	DeleteOrganization(ctx context.Context, id string, deletedAt time.Time) error
}

// UserStore is the subset of user persistence the service needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	UpdateUser(ctx context.Context, user *auth.User) error
}
