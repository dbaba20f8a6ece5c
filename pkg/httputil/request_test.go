package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"name": "test"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(`{bad`))
	var dest map[string]string

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestPathID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"valid", "507f1f77bcf86cd799439011", "507f1f77bcf86cd799439011", false},
		{"upper case normalized", "507F1F77BCF86CD799439011", "507f1f77bcf86cd799439011", false},
		{"too short", "507f1f77", "", true},
		{"not hex", "zzzf1f77bcf86cd799439011", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/tasks/x", nil)
			req = mux.SetURLVars(req, map[string]string{"id": tt.value})

			got, err := PathID(req, "id")

			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathIDOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest("GET", "/tasks/x", nil), map[string]string{"id": "nope"})

	_, ok := PathIDOrError(w, req, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_ID")
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?limit=50", nil)
	val, err := ParseQueryInt(req, "limit", 10)
	assert.NoError(t, err)
	assert.Equal(t, 50, val)

	req = httptest.NewRequest("GET", "/test", nil)
	val, err = ParseQueryInt(req, "limit", 10)
	assert.NoError(t, err)
	assert.Equal(t, 10, val)

	req = httptest.NewRequest("GET", "/test?limit=abc", nil)
	_, err = ParseQueryInt(req, "limit", 10)
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?organization=abc", nil)
	assert.Equal(t, "abc", ParseQueryString(req, "organization", ""))
	assert.Equal(t, "dflt", ParseQueryString(req, "missing", "dflt"))
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?cascade=true", nil)
	val, err := ParseQueryBool(req, "cascade", false)
	assert.NoError(t, err)
	assert.True(t, val)

	req = httptest.NewRequest("GET", "/test?cascade=maybe", nil)
	_, err = ParseQueryBool(req, "cascade", false)
	assert.Error(t, err)
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?from=2026-03-01&to=2026-03-02T10:00:00Z", nil)

	from, err := ParseQueryTime(req, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := ParseQueryTime(req, "to")
	require.NoError(t, err)
	assert.Equal(t, 10, to.Hour())

	missing, err := ParseQueryTime(req, "until")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())

	req = httptest.NewRequest("GET", "/test?from=yesterday", nil)
	_, err = ParseQueryTime(req, "from")
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:41234"
	assert.Equal(t, "10.0.0.5", ClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}
