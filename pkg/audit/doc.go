// Package audit records security-relevant events: logins, authorization
// denials, and every mutation of memberships, custom roles and permission
// templates.
//
// Events are written as JSON lines through logrus, either to stdout or to an
// append-only file:
//
//	logger, err := audit.NewFileLogger("/var/log/taskhub/audit.log")
//	audit.Record(ctx, logger, &audit.Event{
//		EventType:      audit.EventTypeMemberRoleChange,
//		OrganizationID: orgID,
//		ResourceType:   "membership",
//		ResourceID:     membership.ID,
//		Message:        "role changed to manager",
//	})
//
// Record fills in the timestamp, request id and acting user from the context.
// Audit failures are swallowed so that they never fail the request.
package audit
