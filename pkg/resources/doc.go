// Package resources implements tasks, notes and time entries.
//
// Every kind is ownable and may belong to an organization. Tasks and notes
// can also be shared with individual users or made public, and tasks carry a
// collaborator list:
//
//	kind        ownable  org-scoped  shareable  collaborative
//	task        yes      yes         yes        yes
//	note        yes      yes         yes        no
//	time_entry  yes      yes         no         no
//
// Resource implements rbac.Accessible, so the rbac evaluator decides access
// from the capabilities above. Handlers gate every per-resource route with
// rbac.Middleware.RequireResourceAccess and read the loaded resource back
// from the decision.
//
// The package also serves the organization dashboard and the CSV time
// report.
package resources
