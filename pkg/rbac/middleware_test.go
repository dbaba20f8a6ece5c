package rbac_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserHeader = "X-Test-User"

// router mounts the RBAC routes plus a resource route behind a fake auth
// layer that trusts X-Test-User.
func (e *env) router(docs map[string]*doc) http.Handler {
	mw := rbac.NewMiddleware(e.resolver, e.evaluator, e.audit)
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get(testUserHeader); id != "" {
				req = req.WithContext(contextkeys.WithUserID(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	rbac.NewHandlers(e.roles, e.templates, mw).RegisterRoutes(r)

	load := func(_ context.Context, id string) (rbac.Accessible, error) {
		d, ok := docs[id]
		if !ok {
			return nil, apperrors.ErrNotFound
		}
		return d, nil
	}
	r.Handle("/docs/{id}", mw.RequireResourceAccess(load, rbac.Requirement{Permission: rbac.PermWrite})(
		http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			httputil.WriteSuccess(w, map[string]interface{}{"path": rbac.GetDecision(req).Path})
		}))).Methods("PUT")
	r.Handle("/managers", mw.RequireRole(rbac.RoleAdmin, rbac.RoleManager)(
		http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			httputil.WriteSuccess(w, map[string]string{"role": rbac.GetMembership(req).Role()})
		}))).Methods("GET")
	return r
}

func do(t *testing.T, h http.Handler, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestMiddleware_RequireRole(t *testing.T) {
	e := newEnv(t)
	h := e.router(nil)
	memberID, _ := e.member(rbac.RoleMember, nil)
	managerID, _ := e.member(rbac.RoleManager, nil)

	rec, body := do(t, h, "GET", "/managers?organization="+e.orgID, memberID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeInsufficientRole, body["code"])

	rec, _ = do(t, h, "GET", "/managers", managerID, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "falls back to the current organization")

	rec, body = do(t, h, "GET", "/managers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeUnauthorized, body["code"])

	req := httptest.NewRequest("GET", "/managers", nil)
	req.Header.Set(testUserHeader, managerID)
	req.Header.Set(rbac.OrganizationHeader, "bogus")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Contains(t, e.audit.types(), audit.EventTypeAuthzAccessDenied)
}

func TestMiddleware_RequireResourceAccess(t *testing.T) {
	e := newEnv(t)
	owner := e.user()
	stranger := e.user()
	guestID, _ := e.member(rbac.RoleGuest, nil)
	d := &doc{id: ids.New(), owner: owner, org: e.orgID}
	h := e.router(map[string]*doc{d.id: d})

	tests := []struct {
		name   string
		path   string
		user   string
		status int
		code   string
	}{
		{"owner", "/docs/" + d.id, owner, http.StatusOK, ""},
		{"guest lacks write", "/docs/" + d.id, guestID, http.StatusForbidden, apperrors.CodeInsufficientPermissions},
		{"stranger", "/docs/" + d.id, stranger, http.StatusForbidden, apperrors.CodeNotOrganizationMember},
		{"unknown id", "/docs/" + ids.New(), owner, http.StatusNotFound, apperrors.CodeResourceNotFound},
		{"malformed id", "/docs/123", owner, http.StatusBadRequest, apperrors.CodeInvalidID},
		{"anonymous", "/docs/" + d.id, "", http.StatusUnauthorized, apperrors.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, "PUT", tt.path, tt.user, nil)
			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestHandlers_RoleEndpoints(t *testing.T) {
	e := newEnv(t)
	h := e.router(nil)
	adminID, _ := e.member(rbac.RoleAdmin, nil)
	base := "/organizations/" + e.orgID

	rec, body := do(t, h, "POST", base+"/roles", adminID, rbac.CreateRoleRequest{Name: "Reviewer", BasedOn: rbac.RoleGuest})
	require.Equal(t, http.StatusCreated, rec.Code)
	roleID := body["id"].(string)

	memberID, _ := e.member(roleID, nil)

	rec, body = do(t, h, "GET", base+"/me/permissions", memberID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, roleID, body["role"])
	assert.Equal(t, false, body["isAdmin"])

	rec, body = do(t, h, "DELETE", base+"/roles/"+roleID, adminID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeRoleInUse, body["code"])

	rec, body = do(t, h, "DELETE", base+"/roles/"+roleID+"?newRoleId=member", adminID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["reassigned"])

	rec, body = do(t, h, "GET", base+"/roles/"+roleID, adminID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeRoleNotFound, body["code"])
}

func TestHandlers_TemplateEndpoints(t *testing.T) {
	e := newEnv(t)
	h := e.router(nil)
	adminID, _ := e.member(rbac.RoleAdmin, nil)
	managerID, _ := e.member(rbac.RoleManager, nil)
	base := "/organizations/" + e.orgID + "/permission-templates"

	req := rbac.TemplateRequest{
		Name:                    strPtr("Notes only"),
		Permissions:             rbac.PermissionSet{rbac.PermWrite: true},
		ApplicableResourceTypes: []string{rbac.ResourceTypeNote},
	}
	rec, _ := do(t, h, "POST", base, managerID, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := do(t, h, "POST", base, adminID, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	tplID := body["id"].(string)

	rec, body = do(t, h, "POST", base+"/"+tplID+"/apply", adminID, rbac.ApplyTemplateRequest{
		ResourceType: rbac.ResourceTypeTask, ResourceID: ids.New(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeTemplateNotApplicable, body["code"])

	rec, _ = do(t, h, "GET", base, managerID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, "DELETE", base+"/"+tplID+"?cascade=maybe", adminID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, "DELETE", base+"/"+tplID, adminID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
