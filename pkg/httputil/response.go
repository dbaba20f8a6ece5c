// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/observability"
)

// exposeInternal controls whether internal error details reach clients.
// Production keeps it off.
var exposeInternal atomic.Bool

// ExposeInternalErrors toggles the "detail" field on 500 responses.
func ExposeInternalErrors(expose bool) {
	exposeInternal.Store(expose)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// WriteAppError maps err to a status code and a JSON error body. Errors that
// are not *apperrors.Error are treated as internal. Internal errors are logged
// with the request id; their cause is only sent when ExposeInternalErrors is
// on.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(apperrors.CodeInternal, err)
	}

	resp := ErrorResponse{
		Error:     appErr.Message,
		Code:      appErr.Code,
		RequestID: contextkeys.GetRequestID(r.Context()),
	}
	if appErr.Kind == apperrors.KindInternal {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("code", appErr.Code).
			WithField("path", r.URL.Path).
			Error("Request failed with internal error")
		if exposeInternal.Load() && appErr.Err != nil {
			resp.Detail = appErr.Err.Error()
		}
	}
	_ = WriteJSON(w, appErr.Kind.HTTPStatus(), resp)
}

// WriteErrorCode writes an error body with an explicit status and code, for
// failures that happen before an *apperrors.Error exists (rate limiting,
// timeouts).
func WriteErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: contextkeys.GetRequestID(r.Context()),
	})
}

// WriteBadRequest writes a VALIDATION_ERROR (400)
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteAppError(w, r, apperrors.Validation(message))
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
