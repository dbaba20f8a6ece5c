package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthRegister    EventType = "auth.register"

	// Authorization events
	EventTypeAuthzAccessGranted EventType = "authz.access_granted"
	EventTypeAuthzAccessDenied  EventType = "authz.access_denied"

	// Membership events
	EventTypeMemberInvite           EventType = "org.member_invite"
	EventTypeMemberJoin             EventType = "org.member_join"
	EventTypeMemberRoleChange       EventType = "org.member_role_change"
	EventTypeMemberPermissionChange EventType = "org.member_permission_change"
	EventTypeMemberRemove           EventType = "org.member_remove"
	EventTypeMemberLeave            EventType = "org.member_leave"
	EventTypeOrgCreate              EventType = "org.create"
	EventTypeOrgUpdate              EventType = "org.update"
	EventTypeOrgDelete              EventType = "org.delete"

	// Role and template events
	EventTypeRoleCreate     EventType = "rbac.role_create"
	EventTypeRoleUpdate     EventType = "rbac.role_update"
	EventTypeRoleDelete     EventType = "rbac.role_delete"
	EventTypeTemplateCreate EventType = "rbac.template_create"
	EventTypeTemplateUpdate EventType = "rbac.template_update"
	EventTypeTemplateDelete EventType = "rbac.template_delete"
	EventTypeTemplateApply  EventType = "rbac.template_apply"

	// Resource sharing events
	EventTypeResourceShare   EventType = "resource.share"
	EventTypeResourceUnshare EventType = "resource.unshare"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	// Target
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Code     string                 `json:"code,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
