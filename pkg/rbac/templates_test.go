package rbac_test

import (
	"testing"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func (e *env) template(admin *rbac.ResolvedMembership, name string, perms rbac.PermissionSet, types ...string) *rbac.PermissionTemplate {
	e.t.Helper()
	tpl, err := e.templates.CreateTemplate(e.ctx, admin, rbac.TemplateRequest{
		Name:                    strPtr(name),
		Permissions:             perms,
		ApplicableResourceTypes: types,
	})
	require.NoError(e.t, err)
	return tpl
}

func TestSeedDefaults(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()

	require.NoError(t, e.templates.SeedDefaults(e.ctx, e.orgID, admin.Membership.UserID))
	list, err := e.templates.ListTemplates(e.ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, len(rbac.DefaultTemplates()))
	for _, tpl := range list {
		assert.True(t, tpl.IsDefault)
	}
}

func TestCreateTemplate(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()
	e.template(admin, "Editor", rbac.PermissionSet{rbac.PermWrite: true}, rbac.ResourceTypeTask)

	t.Run("admin only", func(t *testing.T) {
		managerID, _ := e.member(rbac.RoleManager, nil)
		_, err := e.templates.CreateTemplate(e.ctx, e.resolve(managerID), rbac.TemplateRequest{
			Name: strPtr("X"), Permissions: rbac.PermissionSet{rbac.PermRead: true},
			ApplicableResourceTypes: []string{rbac.ResourceTypeNote},
		})
		assert.Equal(t, apperrors.CodeInsufficientRole, apperrors.CodeOf(err))
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := e.templates.CreateTemplate(e.ctx, admin, rbac.TemplateRequest{
			Name: strPtr("editor"), Permissions: rbac.PermissionSet{rbac.PermRead: true},
			ApplicableResourceTypes: []string{rbac.ResourceTypeNote},
		})
		assert.Equal(t, apperrors.CodeDuplicateName, apperrors.CodeOf(err))
	})

	t.Run("validation", func(t *testing.T) {
		bad := []rbac.TemplateRequest{
			{Permissions: rbac.PermissionSet{rbac.PermRead: true}, ApplicableResourceTypes: []string{rbac.ResourceTypeTask}},
			{Name: strPtr("A"), ApplicableResourceTypes: []string{rbac.ResourceTypeTask}},
			{Name: strPtr("B"), Permissions: rbac.PermissionSet{rbac.PermRead: true}},
			{Name: strPtr("C"), Permissions: rbac.PermissionSet{rbac.PermRead: true}, ApplicableResourceTypes: []string{"project"}},
		}
		for _, req := range bad {
			_, err := e.templates.CreateTemplate(e.ctx, admin, req)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		}
	})
}

func TestApplyTemplate_NotApplicableLeavesTargetUnmodified(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()
	resourceID := ids.New()

	original := &rbac.ResourceOverride{
		ID:             ids.New(),
		OrganizationID: e.orgID,
		ResourceType:   rbac.ResourceTypeNote,
		ResourceID:     resourceID,
		Permissions:    rbac.PermissionSet{rbac.PermRead: true},
	}
	require.NoError(t, e.store.UpsertResourceOverride(e.ctx, original))

	role, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "R", BasedOn: rbac.RoleGuest})
	require.NoError(t, err)

	taskOnly := e.template(admin, "Task editor", rbac.PermissionSet{rbac.PermWrite: true}, rbac.ResourceTypeTask)

	_, err = e.templates.ApplyTemplate(e.ctx, admin, taskOnly.ID, rbac.ApplyTemplateRequest{
		ResourceType: rbac.ResourceTypeNote, ResourceID: resourceID,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTemplateNotApplicable, apperrors.CodeOf(err))

	got, err := e.store.GetResourceOverride(e.ctx, e.orgID, rbac.ResourceTypeNote, resourceID)
	require.NoError(t, err)
	assert.Equal(t, original.Permissions, got.Permissions)
	assert.Empty(t, got.TemplateID)

	_, err = e.templates.ApplyTemplate(e.ctx, admin, taskOnly.ID, rbac.ApplyTemplateRequest{
		ResourceType: rbac.ResourceTypeNote, ResourceID: resourceID, RoleID: role.ID,
	})
	assert.Equal(t, apperrors.CodeTemplateNotApplicable, apperrors.CodeOf(err))

	stored, err := e.store.GetCustomRole(e.ctx, e.orgID, role.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ResourceOverrides)
}

func TestApplyTemplate(t *testing.T) {
	e := newEnv(t)
	admin := e.admin()
	guestID, _ := e.member(rbac.RoleGuest, nil)
	task := &doc{id: ids.New(), owner: e.user(), org: e.orgID}
	editor := e.template(admin, "Editor", rbac.PermissionSet{rbac.PermWrite: true}, rbac.ResourceTypeTask)

	t.Run("resource override", func(t *testing.T) {
		_, err := e.evaluator.Evaluate(e.ctx, guestID, task, rbac.Requirement{Permission: rbac.PermWrite})
		require.Error(t, err)

		result, err := e.templates.ApplyTemplate(e.ctx, admin, editor.ID, rbac.ApplyTemplateRequest{
			ResourceType: rbac.ResourceTypeTask, ResourceID: task.id,
		})
		require.NoError(t, err)
		require.NotNil(t, result.Override)
		assert.Equal(t, editor.ID, result.Override.TemplateID)

		_, err = e.evaluator.Evaluate(e.ctx, guestID, task, rbac.Requirement{Permission: rbac.PermWrite})
		assert.NoError(t, err)
	})

	t.Run("custom role override", func(t *testing.T) {
		role, err := e.roles.CreateRole(e.ctx, admin, rbac.CreateRoleRequest{Name: "Scoped", BasedOn: rbac.RoleGuest})
		require.NoError(t, err)
		target := ids.New()

		result, err := e.templates.ApplyTemplate(e.ctx, admin, editor.ID, rbac.ApplyTemplateRequest{
			ResourceType: rbac.ResourceTypeTask, ResourceID: target, RoleID: role.ID,
		})
		require.NoError(t, err)
		require.NotNil(t, result.Role)
		require.Len(t, result.Role.ResourceOverrides, 1)

		perms, err := e.catalog.Permissions(e.ctx, e.orgID, role.ID, &rbac.ResourceRef{Type: rbac.ResourceTypeTask, ID: target})
		require.NoError(t, err)
		assert.True(t, perms.Allows(rbac.PermWrite))

		// Reapplying replaces rather than appends.
		_, err = e.templates.ApplyTemplate(e.ctx, admin, editor.ID, rbac.ApplyTemplateRequest{
			ResourceType: rbac.ResourceTypeTask, ResourceID: target, RoleID: role.ID,
		})
		require.NoError(t, err)
		stored, err := e.store.GetCustomRole(e.ctx, e.orgID, role.ID)
		require.NoError(t, err)
		assert.Len(t, stored.ResourceOverrides, 1)
	})
}

func TestDeleteTemplate(t *testing.T) {
	setup := func(t *testing.T) (*env, *rbac.ResolvedMembership, *rbac.PermissionTemplate, string) {
		e := newEnv(t)
		admin := e.admin()
		tpl := e.template(admin, "Editor", rbac.PermissionSet{rbac.PermWrite: true}, rbac.ResourceTypeTask)
		resourceID := ids.New()
		_, err := e.templates.ApplyTemplate(e.ctx, admin, tpl.ID, rbac.ApplyTemplateRequest{
			ResourceType: rbac.ResourceTypeTask, ResourceID: resourceID,
		})
		require.NoError(t, err)
		return e, admin, tpl, resourceID
	}

	t.Run("in use without cascade", func(t *testing.T) {
		e, admin, tpl, _ := setup(t)
		err := e.templates.DeleteTemplate(e.ctx, admin, tpl.ID, rbac.DeleteTemplateOptions{})
		assert.Equal(t, apperrors.CodeTemplateInUse, apperrors.CodeOf(err))

		_, err = e.templates.GetTemplate(e.ctx, admin, tpl.ID)
		assert.NoError(t, err)
	})

	t.Run("cascade", func(t *testing.T) {
		e, admin, tpl, resourceID := setup(t)
		require.NoError(t, e.templates.DeleteTemplate(e.ctx, admin, tpl.ID, rbac.DeleteTemplateOptions{Cascade: true}))

		_, err := e.store.GetResourceOverride(e.ctx, e.orgID, rbac.ResourceTypeTask, resourceID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = e.templates.GetTemplate(e.ctx, admin, tpl.ID)
		assert.Equal(t, apperrors.CodeTemplateNotFound, apperrors.CodeOf(err))
	})

	t.Run("replacement", func(t *testing.T) {
		e, admin, tpl, resourceID := setup(t)
		viewer := e.template(admin, "Viewer", rbac.PermissionSet{rbac.PermRead: true}, rbac.ResourceTypeTask)

		err := e.templates.DeleteTemplate(e.ctx, admin, tpl.ID, rbac.DeleteTemplateOptions{Cascade: true, ReplacementID: viewer.ID})
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

		require.NoError(t, e.templates.DeleteTemplate(e.ctx, admin, tpl.ID, rbac.DeleteTemplateOptions{ReplacementID: viewer.ID}))
		o, err := e.store.GetResourceOverride(e.ctx, e.orgID, rbac.ResourceTypeTask, resourceID)
		require.NoError(t, err)
		assert.Equal(t, viewer.ID, o.TemplateID)
		assert.Equal(t, viewer.Permissions, o.Permissions)
	})

	t.Run("unused template", func(t *testing.T) {
		e := newEnv(t)
		admin := e.admin()
		tpl := e.template(admin, "Lonely", rbac.PermissionSet{rbac.PermRead: true}, rbac.ResourceTypeNote)
		assert.NoError(t, e.templates.DeleteTemplate(e.ctx, admin, tpl.ID, rbac.DeleteTemplateOptions{}))
	})
}
