package rbac_test

import (
	"testing"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to rbac.RoleStatus
		want     bool
	}{
		{rbac.RoleStatusDraft, rbac.RoleStatusActive, true},
		{rbac.RoleStatusDraft, rbac.RoleStatusDeleted, true},
		{rbac.RoleStatusActive, rbac.RoleStatusDeleted, true},
		{rbac.RoleStatusActive, rbac.RoleStatusDraft, false},
		{rbac.RoleStatusDeleted, rbac.RoleStatusActive, false},
		{rbac.RoleStatusDeleted, rbac.RoleStatusDraft, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rbac.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCreateRole(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()

	t.Run("active by default", func(t *testing.T) {
		role, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{
			Name:        "Reviewer",
			BasedOn:     rbac.RoleGuest,
			Permissions: rbac.PermissionSet{rbac.PermShare: true},
		})
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleStatusActive, role.Status)
		assert.Contains(t, e.audit.types(), audit.EventTypeRoleCreate)
	})

	t.Run("draft on request", func(t *testing.T) {
		role, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "Pending", BasedOn: rbac.BaseCustom, Draft: true})
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleStatusDraft, role.Status)

		err = e.catalog.Exists(e.ctx, e.orgID, role.ID)
		assert.Equal(t, apperrors.CodeRoleNotFound, apperrors.CodeOf(err), "drafts are not assignable")
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		_, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "reviewer", BasedOn: rbac.RoleGuest})
		assert.Equal(t, apperrors.CodeDuplicateName, apperrors.CodeOf(err))
	})

	t.Run("validation", func(t *testing.T) {
		bad := []rbac.CreateRoleRequest{
			{Name: "", BasedOn: rbac.RoleGuest},
			{Name: "Manager", BasedOn: rbac.RoleGuest},
			{Name: "X", BasedOn: "owner"},
			{Name: "Y", BasedOn: rbac.RoleGuest, Permissions: rbac.PermissionSet{"fly": true}},
			{Name: "Z", BasedOn: rbac.RoleGuest, ResourceOverrides: []rbac.RoleOverride{{ResourceType: "project", ResourceID: "x"}}},
		}
		for _, req := range bad {
			_, err := e.roles.CreateRole(e.ctx, admin, req)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), "%+v", req)
		}
	})

	t.Run("requires manage_roles", func(t *testing.T) {
		userID, _ := e.member(rbac.RoleMember, nil)
		_, err := e.roles.CreateRole(e.ctx, e.resolve(userID), rbac.CreateRoleRequest{Name: "Nope", BasedOn: rbac.RoleGuest})
		assert.Equal(t, apperrors.CodeInsufficientPermissions, apperrors.CodeOf(err))
	})
}

func TestGetRole_AnyMember(t *testing.T) {
	e := newEnv(t)
	role, err := e.roles.CreateRole(e.ctx, e.admin(), rbac.CreateRoleRequest{Name: "Reviewer", BasedOn: rbac.RoleGuest})
	require.NoError(t, err)

	userID, _ := e.member(rbac.RoleGuest, nil)
	guest := e.resolve(userID)

	list, err := e.roles.ListRoles(e.ctx, guest)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := e.roles.GetRole(e.ctx, guest, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", got.Name)

	_, err = e.roles.UpdateRole(e.ctx, guest, role.ID, rbac.UpdateRoleRequest{Activate: true})
	assert.Equal(t, apperrors.CodeInsufficientPermissions, apperrors.CodeOf(err))
}

func TestUpdateRole_Lifecycle(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()

	role, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "Draft", BasedOn: rbac.RoleGuest, Draft: true})
	require.NoError(t, err)

	name := "Auditor"
	updated, err := e.roles.UpdateRole(e.ctx, admin, role.ID, rbac.UpdateRoleRequest{Name: &name, Activate: true})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStatusActive, updated.Status)
	assert.Equal(t, "Auditor", updated.Name)
	require.NoError(t, e.catalog.Exists(e.ctx, e.orgID, role.ID))

	_, err = e.roles.DeleteRole(e.ctx, admin, role.ID, "")
	require.NoError(t, err)

	t.Run("deleted roles cannot be resurrected", func(t *testing.T) {
		_, err := e.roles.UpdateRole(e.ctx, admin, role.ID, rbac.UpdateRoleRequest{Activate: true})
		assert.Equal(t, apperrors.CodeRoleNotFound, apperrors.CodeOf(err))

		_, err = e.roles.GetRole(e.ctx, admin, role.ID)
		assert.Equal(t, apperrors.CodeRoleNotFound, apperrors.CodeOf(err))

		list, err := e.roles.ListRoles(e.ctx, admin)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestDeleteRole_Reassignment(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()

	role, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "Temp", BasedOn: rbac.RoleGuest})
	require.NoError(t, err)
	userA, ma := e.member(role.ID, nil)
	_, mb := e.member(role.ID, nil)

	t.Run("blocked while memberships hold the role", func(t *testing.T) {
		_, err := e.roles.DeleteRole(e.ctx, admin, role.ID, "")
		assert.Equal(t, apperrors.CodeRoleInUse, apperrors.CodeOf(err))
		assert.Equal(t, 409, apperrors.KindOf(err).HTTPStatus())
		require.NoError(t, e.catalog.Exists(e.ctx, e.orgID, role.ID))
	})

	t.Run("unknown target leaves everything untouched", func(t *testing.T) {
		_, err := e.roles.DeleteRole(e.ctx, admin, role.ID, "owner")
		require.Error(t, err)

		got, err := e.store.GetMembership(e.ctx, ma.ID)
		require.NoError(t, err)
		assert.Equal(t, role.ID, got.Role)
		require.NoError(t, e.catalog.Exists(e.ctx, e.orgID, role.ID))
	})

	t.Run("reassigns every dependent and deletes", func(t *testing.T) {
		result, err := e.roles.DeleteRole(e.ctx, admin, role.ID, rbac.RoleMember)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Reassigned)
		assert.Equal(t, rbac.RoleStatusDeleted, result.Role.Status)

		for _, id := range []string{ma.ID, mb.ID} {
			got, err := e.store.GetMembership(e.ctx, id)
			require.NoError(t, err)
			assert.Equal(t, rbac.RoleMember, got.Role)
		}
		assert.True(t, e.resolve(userA).Can(rbac.PermWrite))
		assert.Contains(t, e.audit.types(), audit.EventTypeRoleDelete)
	})
}

func TestDeleteRole_ToAnotherCustomRole(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()

	from, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "From", BasedOn: rbac.RoleGuest})
	require.NoError(t, err)
	to, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "To", BasedOn: rbac.RoleMember})
	require.NoError(t, err)
	draft, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "Draft", BasedOn: rbac.RoleMember, Draft: true})
	require.NoError(t, err)
	userID, _ := e.member(from.ID, nil)

	_, err = e.roles.DeleteRole(e.ctx, admin, from.ID, draft.ID)
	assert.Equal(t, apperrors.CodeRoleNotFound, apperrors.CodeOf(err))

	_, err = e.roles.DeleteRole(e.ctx, admin, from.ID, from.ID)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = e.roles.DeleteRole(e.ctx, admin, from.ID, to.ID)
	require.NoError(t, err)
	assert.Equal(t, to.ID, e.resolve(userID).Role())
}
