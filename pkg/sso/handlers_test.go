package sso

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	err error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://login.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*auth.ExternalIdentity, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &auth.ExternalIdentity{Provider: "fake", ExternalID: "ext-" + code, Email: "user@example.com"}, nil
}

type fakeLogins struct {
	got []auth.ExternalIdentity
	ip  string
}

func (l *fakeLogins) LoginExternal(ctx context.Context, identity auth.ExternalIdentity, ip string) (*auth.Session, error) {
	l.got = append(l.got, identity)
	l.ip = ip
	return &auth.Session{Token: "session-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newTestRouter(p *fakeProvider, logins *fakeLogins) *mux.Router {
	r := mux.NewRouter()
	NewHandlers(NewRegistry(p), logins, true).RegisterRoutes(r)
	return r
}

// startLogin runs the redirect step and returns the state cookie.
func startLogin(t *testing.T, r http.Handler) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/oauth/fake", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, stateCookie, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, c.Value, loc.Query().Get("state"))
	return c
}

func callback(r http.Handler, query string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/auth/oauth/fake/callback?"+query, nil)
	req.RemoteAddr = "198.51.100.4:5000"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

func TestHandlers_LoginFlow(t *testing.T) {
	logins := &fakeLogins{}
	r := newTestRouter(&fakeProvider{}, logins)

	cookie := startLogin(t, r)
	rec := callback(r, "code=abc&state="+url.QueryEscape(cookie.Value), cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var session auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "session-token", session.Token)
	require.Len(t, logins.got, 1)
	assert.Equal(t, "ext-abc", logins.got[0].ExternalID)
	assert.Equal(t, "198.51.100.4", logins.ip)
}

func TestHandlers_StateChecks(t *testing.T) {
	logins := &fakeLogins{}
	r := newTestRouter(&fakeProvider{}, logins)
	cookie := startLogin(t, r)

	rec := callback(r, "code=abc&state=forged", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = callback(r, "code=abc&state="+url.QueryEscape(cookie.Value), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = callback(r, "code=abc", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, logins.got)
}

func TestHandlers_ProviderFailures(t *testing.T) {
	logins := &fakeLogins{}
	p := &fakeProvider{}
	r := newTestRouter(p, logins)

	cookie := startLogin(t, r)
	rec := callback(r, "error=access_denied&state="+url.QueryEscape(cookie.Value), cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeUnauthorized, errorCode(t, rec))

	p.err = errors.New("token endpoint down")
	cookie = startLogin(t, r)
	rec = callback(r, "code=abc&state="+url.QueryEscape(cookie.Value), cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token endpoint down")

	assert.Empty(t, logins.got)
}

func TestHandlers_UnknownProvider(t *testing.T) {
	r := newTestRouter(&fakeProvider{}, &fakeLogins{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/oauth/myspace", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeResourceNotFound, errorCode(t, rec))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/oauth", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"providers":["fake"]}`, rec.Body.String())
}
