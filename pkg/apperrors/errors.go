// Package apperrors defines the typed errors shared by the authorization core,
// the services built on it and the HTTP layer that maps them to responses.
//
// Every error carries a Kind, which decides the HTTP status, and a Code, which
// clients use to tell failures apart (for example "not a member" versus
// "member but lacking permission").
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Persistence sentinels. Stores return these (possibly wrapped) and the
// services translate them into typed errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Kind classifies an error for status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindNotFound
	KindAuthorization
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code used for errors of this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Machine-readable error codes.
const (
	CodeInvalidID              = "INVALID_ID"
	CodeOrganizationIDRequired = "ORGANIZATION_ID_REQUIRED"
	CodeValidation             = "VALIDATION_ERROR"

	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"

	CodeNotOrganizationMember   = "NOT_ORGANIZATION_MEMBER"
	CodeInsufficientRole        = "INSUFFICIENT_ROLE"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeResourceAccessDenied    = "RESOURCE_ACCESS_DENIED"
	CodePermissionDenied        = "PERMISSION_DENIED"

	CodeResourceNotFound     = "RESOURCE_NOT_FOUND"
	CodeRoleNotFound         = "ROLE_NOT_FOUND"
	CodeTemplateNotFound     = "TEMPLATE_NOT_FOUND"
	CodeOrganizationNotFound = "ORGANIZATION_NOT_FOUND"
	CodeMembershipNotFound   = "MEMBERSHIP_NOT_FOUND"

	CodeDuplicateName         = "DUPLICATE_NAME"
	CodeTemplateNotApplicable = "TEMPLATE_NOT_APPLICABLE"
	CodeTemplateInUse         = "TEMPLATE_IN_USE"
	CodeRoleInUse             = "ROLE_IN_USE"
	CodeAlreadyMember         = "ALREADY_MEMBER"
	CodeLastAdmin             = "LAST_ADMIN"
	CodeDuplicateMembership   = "DUPLICATE_ACTIVE_MEMBERSHIP"

	CodeAuthorizationError = "AUTHORIZATION_ERROR"
	CodeMembershipError    = "MEMBERSHIP_ERROR"
	CodeRoleError          = "ROLE_ERROR"
	CodeTemplateError      = "TEMPLATE_ERROR"
	CodeResourceError      = "RESOURCE_ERROR"
	CodeAuthError          = "AUTH_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinel comparisons work through
// wrapping: errors.Is(err, apperrors.NotAMember("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal for untyped errors.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

func messageOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// Validation failures.

func InvalidID(field string) *Error {
	return New(KindValidation, CodeInvalidID, fmt.Sprintf("invalid %s", messageOr(field, "id")))
}

func OrganizationRequired() *Error {
	return New(KindValidation, CodeOrganizationIDRequired, "organization id is required")
}

func Validation(message string) *Error {
	return New(KindValidation, CodeValidation, message)
}

// Authentication failures.

func UserNotFound() *Error {
	return New(KindUnauthenticated, CodeUserNotFound, "user not found")
}

func Unauthorized(message string) *Error {
	return New(KindUnauthenticated, CodeUnauthorized, messageOr(message, "authentication required"))
}

func InvalidCredentials() *Error {
	return New(KindUnauthenticated, CodeInvalidCredentials, "invalid credentials")
}

// Authorization failures.

func NotAMember(message string) *Error {
	return New(KindAuthorization, CodeNotOrganizationMember, messageOr(message, "not a member of this organization"))
}

func InsufficientRole(message string) *Error {
	return New(KindAuthorization, CodeInsufficientRole, messageOr(message, "insufficient role"))
}

func InsufficientPermission(message string) *Error {
	return New(KindAuthorization, CodeInsufficientPermissions, messageOr(message, "insufficient permissions"))
}

func AccessDenied(message string) *Error {
	return New(KindAuthorization, CodeResourceAccessDenied, messageOr(message, "access to this resource is denied"))
}

func PermissionDenied(message string) *Error {
	return New(KindAuthorization, CodePermissionDenied, messageOr(message, "permission denied"))
}

// Not found failures.

func ResourceNotFound(what string) *Error {
	return New(KindNotFound, CodeResourceNotFound, fmt.Sprintf("%s not found", messageOr(what, "resource")))
}

func RoleNotFound(role string) *Error {
	return New(KindNotFound, CodeRoleNotFound, fmt.Sprintf("role not found: %s", role))
}

func TemplateNotFound(id string) *Error {
	return New(KindNotFound, CodeTemplateNotFound, fmt.Sprintf("permission template not found: %s", id))
}

func OrganizationNotFound(id string) *Error {
	return New(KindNotFound, CodeOrganizationNotFound, fmt.Sprintf("organization not found: %s", id))
}

func MembershipNotFound() *Error {
	return New(KindNotFound, CodeMembershipNotFound, "membership not found")
}

// Conflicts.

func DuplicateName(what, name string) *Error {
	return New(KindConflict, CodeDuplicateName, fmt.Sprintf("%s with name %q already exists", what, name))
}

func TemplateNotApplicable(resourceType string) *Error {
	return New(KindConflict, CodeTemplateNotApplicable, fmt.Sprintf("template is not applicable to resource type %q", resourceType))
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// Internal wraps an unexpected failure under a *_ERROR code.
func Internal(code string, err error) *Error {
	return Wrap(KindInternal, messageOr(code, CodeInternal), "internal error", err)
}
