// Package rbac provides multi-tenant authorization for TaskHub tasks, notes
// and time entries.
//
// # Overview
//
// Every user may belong to several organizations. A membership binds a user
// to one organization with a role and optional permission overrides. Access
// to a resource is decided from the caller's relationship to the resource
// (owner, shared with, collaborator) and, failing that, from the caller's
// membership in the resource's organization.
//
// # Permissions and Roles
//
// The permission vocabulary is fixed:
//
//	read, write, delete, share, invite, manage_members, manage_roles,
//	manage_templates, view_reports, export, track_time
//
// Four built-in roles exist: admin, manager, member and guest. Admin always
// holds every permission, whatever its stored permission set says. The
// defaults of the other three come from a Catalog, which can be loaded from
// YAML and hot reloaded by CatalogWatcher:
//
//	roles:
//	  manager: {read: true, write: true, invite: true, view_reports: true}
//	  member:  {read: true, write: true, track_time: true}
//	  guest:   {read: true}
//
// An organization snapshots the catalog when it is created, so a reload
// only affects organizations created afterwards.
//
// Custom roles are organization-defined. Each is based on a built-in role
// (or "custom" for no inherited grants), adds its own permission set on top,
// and may carry per-resource overrides. A membership refers to a custom role
// by id. Custom roles move draft -> active -> deleted and never come back
// from deleted.
//
// # Effective Permissions
//
// Resolver computes the effective permissions of a membership:
//
//	base role defaults -> custom role permissions -> custom role resource
//	override (when a resource is named) -> membership overrides
//
// Later layers win key by key, so an explicit false revokes a grant.
//
// # Resource Access
//
// Evaluator checks, in order, and stops at the first rule that grants:
//
//  1. Owner: the owner is always granted.
//  2. Public: isShared resources grant any authenticated caller.
//  3. Shared: users listed in sharedWith.
//  4. Collaborator: in strict mode the collaborator role must cover the
//     permission (viewer: read, editor: read/write/share, owner: all);
//     otherwise evaluation falls through. Lenient mode grants any listed
//     collaborator.
//  5. Organization: an active membership whose effective permissions,
//     after any resource-level override, include the required permission.
//
// The decision records the path that granted access. Denials carry a stable
// error code such as RESOURCE_ACCESS_DENIED, NOT_ORGANIZATION_MEMBER or
// INSUFFICIENT_PERMISSIONS.
//
// # Permission Templates
//
// Templates are named permission bundles restricted to a list of resource
// types. Applying one writes a resource override, or a custom role override
// when a role is named. Applying a template to a resource type outside its
// list fails with TEMPLATE_NOT_APPLICABLE and changes nothing. Deleting a
// template in use requires either cascade (drop every application) or a
// replacement template (rewrite every application).
//
// # HTTP Integration
//
// Middleware resolves the organization from the {orgId} route variable, the
// organization query parameter, the X-Organization-ID header, or the
// caller's current organization, in that order:
//
//	mw := rbac.NewMiddleware(resolver, evaluator, auditLogger)
//	router.Handle("/reports", mw.RequirePermission(rbac.PermViewReports)(reports))
//	router.Handle("/tasks/{id}", mw.RequireResourceAccess(load, rbac.Requirement{
//		Permission: rbac.PermWrite,
//	})(update)).Methods("PUT")
//
// Manager wires the catalog, resolver, evaluator, services, middleware and
// handlers over one set of stores:
//
//	manager := rbac.NewManager(store, auditLogger, rbac.DefaultConfig())
//	manager.RegisterRoutes(router)
//
// # Routes
//
//	GET    /organizations/{orgId}/me/permissions
//	GET    /organizations/{orgId}/roles
//	POST   /organizations/{orgId}/roles
//	GET    /organizations/{orgId}/roles/{roleId}
//	PUT    /organizations/{orgId}/roles/{roleId}
//	DELETE /organizations/{orgId}/roles/{roleId}?newRoleId=
//	GET    /organizations/{orgId}/permission-templates
//	POST   /organizations/{orgId}/permission-templates
//	GET    /organizations/{orgId}/permission-templates/{templateId}
//	PUT    /organizations/{orgId}/permission-templates/{templateId}
//	DELETE /organizations/{orgId}/permission-templates/{templateId}?cascade=&replacementId=
//	POST   /organizations/{orgId}/permission-templates/{templateId}/apply
//
// # Storage
//
// The store interfaces in store.go are implemented by pkg/storage/memory and
// pkg/storage/postgres. Role deletion with reassignment and template
// deletion run atomically in both.
package rbac
