// Package orgs provides multi-tenant organization management.
//
// # Overview
//
// An organization is the tenant boundary for tasks, notes and time entries.
// Creating one makes the caller its admin, copies the configured role
// catalog onto it and seeds the default permission templates.
//
// # Membership Lifecycle
//
//	invited --accept--> active --remove--> removed
//	   |                  |
//	   +--expire--> expired   +--leave--> left
//
// Memberships are never deleted. Removal, leaving and expiry are status
// changes that keep the row, and at most one membership per user and
// organization is active at a time. The last admin of an organization can be
// neither demoted nor removed, and cannot leave.
//
// # Usage Example
//
//	svc := orgs.NewService(store, store, store, roleCatalog, templates, auditLogger)
//	org, err := svc.CreateOrganization(ctx, userID, orgs.CreateOrganizationRequest{
//		Name: "Acme Corp",
//	})
//
// Invite a member (requires the invite permission):
//
//	m, err := svc.Invite(ctx, actor, orgs.InviteRequest{Email: "dev@acme.com", Role: rbac.RoleMember})
//
// # Background Jobs
//
// Maintenance expires stale invitations on a cron schedule:
//
//	maint, err := orgs.NewMaintenance(svc, "0 * * * *", logger, metrics)
//	maint.Start()
//	defer maint.Stop(ctx)
package orgs
