package rbac

import (
	"sort"
	"time"
)

// Permission names a single grant inside an organization.
type Permission string

const (
	PermRead            Permission = "read"
	PermWrite           Permission = "write"
	PermDelete          Permission = "delete"
	PermShare           Permission = "share"
	PermInvite          Permission = "invite"
	PermManageMembers   Permission = "manage_members"
	PermManageRoles     Permission = "manage_roles"
	PermManageTemplates Permission = "manage_templates"
	PermViewReports     Permission = "view_reports"
	PermExport          Permission = "export"
	PermTrackTime       Permission = "track_time"
)

// AllPermissions returns the permission vocabulary in a stable order.
func AllPermissions() []Permission {
	return []Permission{
		PermRead, PermWrite, PermDelete, PermShare, PermInvite,
		PermManageMembers, PermManageRoles, PermManageTemplates,
		PermViewReports, PermExport, PermTrackTime,
	}
}

// IsKnownPermission reports whether p belongs to the vocabulary.
func IsKnownPermission(p Permission) bool {
	for _, known := range AllPermissions() {
		if p == known {
			return true
		}
	}
	return false
}

// PermissionSet maps a permission to an explicit grant (true) or denial
// (false). A missing key means "not granted".
type PermissionSet map[Permission]bool

// Allows reports whether p is granted.
func (s PermissionSet) Allows(p Permission) bool {
	return s[p]
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a copy of s with every key of other applied on top. Explicit
// false values in other revoke grants from s.
func (s PermissionSet) Merge(other PermissionSet) PermissionSet {
	out := s.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Granted returns the granted permissions, sorted.
func (s PermissionSet) Granted() []Permission {
	out := make([]Permission, 0, len(s))
	for k, v := range s {
		if v {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate rejects permission names outside the vocabulary.
func (s PermissionSet) Validate() error {
	for k := range s {
		if !IsKnownPermission(k) {
			return &unknownPermissionError{name: string(k)}
		}
	}
	return nil
}

type unknownPermissionError struct{ name string }

func (e *unknownPermissionError) Error() string { return "unknown permission: " + e.name }

// FullPermissionSet grants the whole vocabulary.
func FullPermissionSet() PermissionSet {
	out := make(PermissionSet)
	for _, p := range AllPermissions() {
		out[p] = true
	}
	return out
}

// Built-in role names. A membership role is one of these or a custom role id.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
	RoleGuest   = "guest"

	// BaseCustom is a custom role base with no inherited defaults.
	BaseCustom = "custom"
)

// BuiltInRoles returns the built-in role names, most privileged first.
func BuiltInRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleMember, RoleGuest}
}

// IsBuiltInRole reports whether role is a built-in role name.
func IsBuiltInRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleMember, RoleGuest:
		return true
	}
	return false
}

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	StatusActive  MembershipStatus = "active"
	StatusInvited MembershipStatus = "invited"
	StatusRemoved MembershipStatus = "removed"
	StatusLeft    MembershipStatus = "left"
	StatusExpired MembershipStatus = "expired"
)

// Membership binds a user to an organization with a role and optional
// permission overrides. At most one active membership exists per
// (user, organization).
type Membership struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	OrganizationID string           `json:"organizationId"`
	Role           string           `json:"role"`
	Status         MembershipStatus `json:"status"`
	Permissions    PermissionSet    `json:"permissions,omitempty"`
	InvitedBy      string           `json:"invitedBy,omitempty"`
	InvitedAt      *time.Time       `json:"invitedAt,omitempty"`
	JoinedAt       *time.Time       `json:"joinedAt,omitempty"`
	EndedAt        *time.Time       `json:"endedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// IsActive reports whether the membership currently grants access.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == StatusActive
}

// RoleStatus is the lifecycle state of a custom role.
type RoleStatus string

const (
	RoleStatusDraft   RoleStatus = "draft"
	RoleStatusActive  RoleStatus = "active"
	RoleStatusDeleted RoleStatus = "deleted"
)

// CustomRole is an organization-defined role derived from a base role.
type CustomRole struct {
	ID                string         `json:"id"`
	OrganizationID    string         `json:"organizationId"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	BasedOn           string         `json:"basedOn"`
	Permissions       PermissionSet  `json:"permissions"`
	ResourceOverrides []RoleOverride `json:"resourceOverrides,omitempty"`
	Status            RoleStatus     `json:"status"`
	CreatedBy         string         `json:"createdBy,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         *time.Time     `json:"deletedAt,omitempty"`
}

// RoleOverride adjusts a custom role's permissions for one resource.
type RoleOverride struct {
	ResourceType string        `json:"resourceType"`
	ResourceID   string        `json:"resourceId"`
	Permissions  PermissionSet `json:"permissions"`
	TemplateID   string        `json:"templateId,omitempty"`
}

// Matches reports whether the override targets ref.
func (o RoleOverride) Matches(ref *ResourceRef) bool {
	return ref != nil && o.ResourceType == ref.Type && o.ResourceID == ref.ID
}

// PermissionTemplate is a reusable named permission bundle.
type PermissionTemplate struct {
	ID                      string        `json:"id"`
	OrganizationID          string        `json:"organizationId"`
	Name                    string        `json:"name"`
	Description             string        `json:"description,omitempty"`
	Permissions             PermissionSet `json:"permissions"`
	ApplicableResourceTypes []string      `json:"applicableResourceTypes"`
	IsDefault               bool          `json:"isDefault"`
	CreatedBy               string        `json:"createdBy,omitempty"`
	CreatedAt               time.Time     `json:"createdAt"`
	UpdatedAt               time.Time     `json:"updatedAt"`
}

// AppliesTo reports whether resourceType is in the applicability list.
func (t *PermissionTemplate) AppliesTo(resourceType string) bool {
	for _, rt := range t.ApplicableResourceTypes {
		if rt == resourceType {
			return true
		}
	}
	return false
}

// ResourceOverride is a resource-level permission override, written when a
// template is applied directly to a resource. It applies to every non-admin
// member reaching the resource through the organization path.
type ResourceOverride struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organizationId"`
	ResourceType   string        `json:"resourceType"`
	ResourceID     string        `json:"resourceId"`
	Permissions    PermissionSet `json:"permissions"`
	TemplateID     string        `json:"templateId,omitempty"`
	CreatedBy      string        `json:"createdBy,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Resource types that can carry overrides and be targeted by templates.
const (
	ResourceTypeTask      = "task"
	ResourceTypeNote      = "note"
	ResourceTypeTimeEntry = "time_entry"
)

// ResourceTypes returns the resource types known to the engine.
func ResourceTypes() []string {
	return []string{ResourceTypeTask, ResourceTypeNote, ResourceTypeTimeEntry}
}

// IsKnownResourceType reports whether t is a known resource type.
func IsKnownResourceType(t string) bool {
	for _, known := range ResourceTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ResourceRef identifies one resource.
type ResourceRef struct {
	Type string
	ID   string
}

// DefaultTemplates returns the templates seeded into every new organization.
func DefaultTemplates() []PermissionTemplate {
	all := ResourceTypes()
	return []PermissionTemplate{
		{
			Name:                    "Read only",
			Description:             "View the resource without changing it",
			Permissions:             PermissionSet{PermRead: true, PermWrite: false, PermDelete: false},
			ApplicableResourceTypes: all,
			IsDefault:               true,
		},
		{
			Name:                    "Editor",
			Description:             "View, edit and share the resource",
			Permissions:             PermissionSet{PermRead: true, PermWrite: true, PermShare: true},
			ApplicableResourceTypes: all,
			IsDefault:               true,
		},
		{
			Name:                    "Full access",
			Description:             "Every resource-level permission including delete",
			Permissions:             PermissionSet{PermRead: true, PermWrite: true, PermShare: true, PermDelete: true},
			ApplicableResourceTypes: all,
			IsDefault:               true,
		},
	}
}
