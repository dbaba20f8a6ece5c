// Package memory is an in-process implementation of every store interface.
// It backs tests and single-instance deployments with
// TASKHUB_STORAGE_TYPE=memory. Values are copied on the way in and out, so
// callers never share state with the store.
package memory

import (
	"sync"
	"time"

	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
)

// Store holds every entity behind one lock. Multi-entity operations run
// under the write lock, which gives them the atomicity the Postgres store
// gets from transactions.
type Store struct {
	mu sync.RWMutex

	users         map[string]*auth.User
	organizations map[string]*orgs.Organization
	memberships   map[string]*rbac.Membership
	roles         map[string]*rbac.CustomRole
	templates     map[string]*rbac.PermissionTemplate
	overrides     map[string]*rbac.ResourceOverride
	resources     map[string]*resources.Resource
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:         make(map[string]*auth.User),
		organizations: make(map[string]*orgs.Organization),
		memberships:   make(map[string]*rbac.Membership),
		roles:         make(map[string]*rbac.CustomRole),
		templates:     make(map[string]*rbac.PermissionTemplate),
		overrides:     make(map[string]*rbac.ResourceOverride),
		resources:     make(map[string]*resources.Resource),
	}
}

var (
	_ auth.UserStore       = (*Store)(nil)
	_ rbac.MembershipStore = (*Store)(nil)
	_ rbac.CustomRoleStore = (*Store)(nil)
	_ rbac.TemplateStore   = (*Store)(nil)
	_ rbac.OverrideStore   = (*Store)(nil)
	_ orgs.Store           = (*Store)(nil)
	_ resources.Store      = (*Store)(nil)
)

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
