package rbac_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog(t *testing.T) {
	c, err := rbac.ParseCatalog([]byte(`
roles:
  manager: {read: true, write: true, invite: true}
  member: {read: true, write: true}
  guest: {read: true}
`))
	require.NoError(t, err)
	assert.True(t, c.Roles[rbac.RoleManager].Allows(rbac.PermInvite))

	bad := map[string]string{
		"admin listed":    "roles:\n  admin: {read: true}\n",
		"unknown role":    "roles:\n  owner: {read: true}\n",
		"unknown perm":    "roles:\n  guest: {fly: true}\n",
		"empty":           "roles: {}\n",
		"not yaml at all": "roles: [",
	}
	for name, data := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := rbac.ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestCatalogDefaults(t *testing.T) {
	c := rbac.DefaultCatalog()

	admin, ok := c.Defaults(rbac.RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, rbac.FullPermissionSet(), admin)

	_, ok = c.Defaults("owner")
	assert.False(t, ok)

	guest, ok := c.Defaults(rbac.RoleGuest)
	require.True(t, ok)
	guest[rbac.PermDelete] = true
	assert.False(t, c.Roles[rbac.RoleGuest].Allows(rbac.PermDelete), "defaults are copies")
}

func TestRoleCatalog_UsesOrganizationSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := e.ctx

	strict := &rbac.Catalog{Roles: map[string]rbac.PermissionSet{
		rbac.RoleManager: {rbac.PermRead: true},
		rbac.RoleMember:  {rbac.PermRead: true},
		rbac.RoleGuest:   {},
	}}
	later := rbac.NewRoleCatalog(strict, e.store, e.store)

	perms, err := later.Permissions(ctx, e.orgID, rbac.RoleMember, nil)
	require.NoError(t, err)
	assert.True(t, perms.Allows(rbac.PermWrite), "existing organizations keep their snapshot")

	newOrg := ids.New()
	require.NoError(t, e.store.CreateOrganization(ctx, &orgs.Organization{
		ID: newOrg, Name: "New", Status: orgs.OrgStatusActive, RoleDefaults: later.Snapshot(),
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}, nil))
	perms, err = later.Permissions(ctx, newOrg, rbac.RoleMember, nil)
	require.NoError(t, err)
	assert.False(t, perms.Allows(rbac.PermWrite))

	t.Run("unknown organization falls back to the source", func(t *testing.T) {
		perms, err := later.Permissions(ctx, ids.New(), rbac.RoleMember, nil)
		require.NoError(t, err)
		assert.False(t, perms.Allows(rbac.PermWrite))
	})

	t.Run("snapshot is isolated from the source", func(t *testing.T) {
		snap := later.Snapshot()
		snap.Roles[rbac.RoleGuest][rbac.PermDelete] = true
		assert.False(t, strict.Roles[rbac.RoleGuest].Allows(rbac.PermDelete))
	})
}

func TestRoleCatalog_CustomRoles(t *testing.T) {
	store := memory.New()
	catalog := rbac.NewRoleCatalog(rbac.DefaultCatalog(), store, nil)
	e := newEnv(t)
	orgID := e.orgID

	from := &rbac.CustomRole{ID: ids.New(), OrganizationID: orgID, Name: "Scratch", BasedOn: rbac.BaseCustom,
		Permissions: rbac.PermissionSet{rbac.PermExport: true}, Status: rbac.RoleStatusActive}
	require.NoError(t, store.CreateCustomRole(e.ctx, from))

	perms, err := catalog.Permissions(e.ctx, orgID, from.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []rbac.Permission{rbac.PermExport}, perms.Granted(), "custom base inherits nothing")

	_, err = catalog.Permissions(e.ctx, ids.New(), from.ID, nil)
	assert.Equal(t, apperrors.CodeRoleNotFound, apperrors.CodeOf(err), "roles are organization scoped")

	noRoles := rbac.NewRoleCatalog(rbac.DefaultCatalog(), nil, nil)
	assert.Equal(t, apperrors.CodeRoleNotFound, apperrors.CodeOf(noRoles.Exists(e.ctx, orgID, from.ID)))
	assert.NoError(t, noRoles.Exists(e.ctx, orgID, rbac.RoleGuest))
}

func TestCatalogWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  guest: {read: true}\n"), 0o600))

	w, err := rbac.NewCatalogWatcher(path, observability.NewLogger(observability.ErrorLevel, nil))
	require.NoError(t, err)
	assert.False(t, w.Catalog().Roles[rbac.RoleGuest].Allows(rbac.PermWrite))

	require.NoError(t, os.WriteFile(path, []byte("roles:\n  guest: {read: true, write: true}\n"), 0o600))
	require.NoError(t, w.Reload())
	assert.True(t, w.Catalog().Roles[rbac.RoleGuest].Allows(rbac.PermWrite))

	require.NoError(t, os.WriteFile(path, []byte("roles:\n  admin: {read: true}\n"), 0o600))
	assert.Error(t, w.Reload())
	assert.True(t, w.Catalog().Roles[rbac.RoleGuest].Allows(rbac.PermWrite), "failed reload keeps the previous catalog")

	_, err = rbac.NewCatalogWatcher(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}
