package resources

import (
	"context"
	"time"

	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// Kind names a resource kind. Kinds double as rbac resource types.
type Kind string

const (
	KindTask      Kind = rbac.ResourceTypeTask
	KindNote      Kind = rbac.ResourceTypeNote
	KindTimeEntry Kind = rbac.ResourceTypeTimeEntry
)

// Kinds returns every resource kind.
func Kinds() []Kind {
	return []Kind{KindTask, KindNote, KindTimeEntry}
}

// Capabilities returns the access traits of the kind.
func (k Kind) Capabilities() rbac.Capability {
	switch k {
	case KindTask:
		return rbac.CapOwnable | rbac.CapOrgScoped | rbac.CapShareable | rbac.CapCollaborative
	case KindNote:
		return rbac.CapOwnable | rbac.CapOrgScoped | rbac.CapShareable
	case KindTimeEntry:
		return rbac.CapOwnable | rbac.CapOrgScoped
	}
	return 0
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k.Capabilities() != 0
}

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// Resource is a task, note or time entry. Kind-specific fields are empty for
// the other kinds.
type Resource struct {
	ID            string              `json:"id"`
	Kind          Kind                `json:"kind"`
	Owner         string              `json:"owner"`
	Organization  string              `json:"organization,omitempty"`
	Title         string              `json:"title,omitempty"`
	Content       string              `json:"content,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
	SharedWith    []string            `json:"sharedWith,omitempty"`
	Collaborators []rbac.Collaborator `json:"collaborators,omitempty"`
	IsShared      bool                `json:"isShared"`

	// Task
	Status  TaskStatus `json:"status,omitempty"`
	DueDate *time.Time `json:"dueDate,omitempty"`

	// Time entry
	TaskID    string     `json:"taskId,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Duration  int64      `json:"durationSeconds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccessDescriptor implements rbac.Accessible.
func (r *Resource) AccessDescriptor() rbac.AccessDescriptor {
	caps := r.Kind.Capabilities()
	d := rbac.AccessDescriptor{
		Type:         string(r.Kind),
		ID:           r.ID,
		Capabilities: caps,
		Owner:        r.Owner,
		Organization: r.Organization,
	}
	if caps.Has(rbac.CapShareable) {
		d.SharedWith = r.SharedWith
		d.IsShared = r.IsShared
	}
	if caps.Has(rbac.CapCollaborative) {
		d.Collaborators = r.Collaborators
	}
	return d
}

// Filter narrows ListResources. Empty fields match everything.
type Filter struct {
	Kind Kind
	// VisibleTo matches resources the user owns, is shared on or
	// collaborates on.
	VisibleTo    string
	Organization string
	Owner        string
	Status       TaskStatus
	// From and To bound StartedAt for time entries and CreatedAt otherwise.
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Store persists resources. Lookups return apperrors.ErrNotFound when
// nothing matches, including a resource of another kind.
type Store interface {
	CreateResource(ctx context.Context, r *Resource) error
	GetResource(ctx context.Context, kind Kind, id string) (*Resource, error)
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, kind Kind, id string) error
	// ListResources returns matches ordered by creation time, newest first.
	ListResources(ctx context.Context, filter Filter) ([]*Resource, error)
}

// CreateRequest is the body of a create call.
type CreateRequest struct {
	Organization string     `json:"organization"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Tags         []string   `json:"tags"`
	IsShared     bool       `json:"isShared"`
	Status       TaskStatus `json:"status"`
	DueDate      *time.Time `json:"dueDate"`
	TaskID       string     `json:"taskId"`
	StartedAt    *time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
}

// UpdateRequest carries optional changes.
type UpdateRequest struct {
	Title     *string     `json:"title"`
	Content   *string     `json:"content"`
	Tags      *[]string   `json:"tags"`
	IsShared  *bool       `json:"isShared"`
	Status    *TaskStatus `json:"status"`
	DueDate   *time.Time  `json:"dueDate"`
	StartedAt *time.Time  `json:"startedAt"`
	EndedAt   *time.Time  `json:"endedAt"`
}

// ShareRequest adds users to a resource's sharedWith list.
type ShareRequest struct {
	UserIDs []string `json:"userIds"`
}

// Dashboard summarizes an organization's work.
type Dashboard struct {
	OrganizationID  string             `json:"organizationId"`
	TasksByStatus   map[TaskStatus]int `json:"tasksByStatus"`
	OverdueTasks    int                `json:"overdueTasks"`
	Notes           int                `json:"notes"`
	TimeEntries     int                `json:"timeEntries"`
	TrackedSeconds  int64              `json:"trackedSeconds"`
	TrackedByMember map[string]int64   `json:"trackedByMember"`
	RecentTasks     []*Resource        `json:"recentTasks"`
}
