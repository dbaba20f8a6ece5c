package rbac_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage/memory"
	"github.com/stretchr/testify/require"
)

// recordingAudit keeps every event in memory.
type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *recordingAudit) Log(_ context.Context, e *audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) types() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.EventType)
	}
	return out
}

// doc is a minimal resource with every capability.
type doc struct {
	id            string
	owner         string
	org           string
	sharedWith    []string
	collaborators []rbac.Collaborator
	isShared      bool
	caps          rbac.Capability
}

func (d *doc) AccessDescriptor() rbac.AccessDescriptor {
	caps := d.caps
	if caps == 0 {
		caps = rbac.CapOwnable | rbac.CapOrgScoped | rbac.CapShareable | rbac.CapCollaborative
	}
	return rbac.AccessDescriptor{
		Type:          rbac.ResourceTypeTask,
		ID:            d.id,
		Capabilities:  caps,
		Owner:         d.owner,
		Organization:  d.org,
		SharedWith:    d.sharedWith,
		Collaborators: d.collaborators,
		IsShared:      d.isShared,
	}
}

type env struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.Store
	catalog   *rbac.RoleCatalog
	resolver  *rbac.Resolver
	evaluator *rbac.Evaluator
	roles     *rbac.RoleService
	templates *rbac.TemplateService
	audit     *recordingAudit
	orgID     string
}

func newEnv(t *testing.T, opts ...rbac.EvaluatorOption) *env {
	t.Helper()
	store := memory.New()
	catalog := rbac.NewRoleCatalog(rbac.DefaultCatalog(), store, store)
	resolver := rbac.NewResolver(store, store, catalog)
	rec := &recordingAudit{}

	e := &env{
		t:         t,
		ctx:       context.Background(),
		store:     store,
		catalog:   catalog,
		resolver:  resolver,
		evaluator: rbac.NewEvaluator(resolver, store, opts...),
		roles:     rbac.NewRoleService(store, store, catalog, rec),
		templates: rbac.NewTemplateService(store, store, store, rec),
		audit:     rec,
		orgID:     ids.New(),
	}
	now := time.Now().UTC()
	require.NoError(t, store.CreateOrganization(e.ctx, &orgs.Organization{
		ID:           e.orgID,
		Name:         "Acme",
		Slug:         "acme",
		Status:       orgs.OrgStatusActive,
		RoleDefaults: catalog.Snapshot(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil))
	return e
}

// user creates a user whose current organization is the env organization.
func (e *env) user() string {
	e.t.Helper()
	id := ids.New()
	require.NoError(e.t, e.store.CreateUser(e.ctx, &auth.User{
		ID:                  id,
		Email:               id + "@example.com",
		Username:            "u" + id,
		CurrentOrganization: e.orgID,
	}))
	return id
}

// member creates a user with an active membership holding role.
func (e *env) member(role string, perms rbac.PermissionSet) (string, *rbac.Membership) {
	e.t.Helper()
	userID := e.user()
	now := time.Now().UTC()
	m := &rbac.Membership{
		ID:             ids.New(),
		UserID:         userID,
		OrganizationID: e.orgID,
		Role:           role,
		Status:         rbac.StatusActive,
		Permissions:    perms,
		JoinedAt:       &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(e.t, e.store.CreateMembership(e.ctx, m))
	return userID, m
}

func (e *env) resolve(userID string) *rbac.ResolvedMembership {
	e.t.Helper()
	rm, err := e.resolver.Resolve(e.ctx, userID, e.orgID)
	require.NoError(e.t, err)
	return rm
}

func (e *env) admin() *rbac.ResolvedMembership {
	e.t.Helper()
	id, _ := e.member(rbac.RoleAdmin, nil)
	return e.resolve(id)
}
