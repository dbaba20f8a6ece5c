package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteAppError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid id", apperrors.InvalidID("organization id"), http.StatusBadRequest, "INVALID_ID"},
		{"org required", apperrors.OrganizationRequired(), http.StatusBadRequest, "ORGANIZATION_ID_REQUIRED"},
		{"user not found", apperrors.UserNotFound(), http.StatusUnauthorized, "USER_NOT_FOUND"},
		{"not a member", apperrors.NotAMember(""), http.StatusForbidden, "NOT_ORGANIZATION_MEMBER"},
		{"insufficient role", apperrors.InsufficientRole(""), http.StatusForbidden, "INSUFFICIENT_ROLE"},
		{"insufficient permission", apperrors.InsufficientPermission(""), http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
		{"access denied", apperrors.AccessDenied(""), http.StatusForbidden, "RESOURCE_ACCESS_DENIED"},
		{"permission denied", apperrors.PermissionDenied(""), http.StatusForbidden, "PERMISSION_DENIED"},
		{"resource not found", apperrors.ResourceNotFound("task"), http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"not applicable", apperrors.TemplateNotApplicable("note"), http.StatusConflict, "TEMPLATE_NOT_APPLICABLE"},
		{"internal", apperrors.Internal(apperrors.CodeAuthorizationError, errors.New("db down")), http.StatusInternalServerError, "AUTHORIZATION_ERROR"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)

			WriteAppError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestWriteAppError_IncludesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	r = r.WithContext(contextkeys.WithRequestID(r.Context(), "req-123"))

	WriteAppError(w, r, apperrors.AccessDenied(""))

	assert.Equal(t, "req-123", decodeError(t, w).RequestID)
}

func TestWriteAppError_HidesInternalDetail(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	cause := errors.New("pq: connection refused")

	ExposeInternalErrors(false)
	w := httptest.NewRecorder()
	WriteAppError(w, r, apperrors.Internal(apperrors.CodeMembershipError, cause))
	resp := decodeError(t, w)
	assert.Equal(t, "internal error", resp.Error)
	assert.Empty(t, resp.Detail)
	assert.NotContains(t, w.Body.String(), "connection refused")

	ExposeInternalErrors(true)
	defer ExposeInternalErrors(false)
	w = httptest.NewRecorder()
	WriteAppError(w, r, apperrors.Internal(apperrors.CodeMembershipError, cause))
	assert.Equal(t, "pq: connection refused", decodeError(t, w).Detail)
}

func TestWriteErrorCode(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteErrorCode(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "slow down")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "RATE_LIMITED", resp.Code)
	assert.Equal(t, "slow down", resp.Error)
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]int{"id": 1})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
