package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.RecordAuthzDecision("task", "owner", "granted", "")
	m.RecordRateLimited("local")
	m.RecordInvitationsExpired(1)
	m.RecordCatalogReload(nil)

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Subset(t, names, []string{
		"taskhub_authz_decisions_total",
		"taskhub_rate_limited_total",
		"taskhub_invitations_expired_total",
		"taskhub_catalog_reloads_total",
	})

	// Registering twice on the same registry panics
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthzDecision("task", "collaborator", "granted", "")
	m.RecordAuthzDecision("task", "", "denied", "INSUFFICIENT_PERMISSIONS")
	m.RecordAuthzDecision("task", "", "denied", "INSUFFICIENT_PERMISSIONS")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("task", "collaborator", "granted", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("task", "", "denied", "INSUFFICIENT_PERMISSIONS")))

	m.RecordRateLimited("distributed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("distributed")))

	m.RecordInvitationsExpired(3)
	m.RecordInvitationsExpired(0)
	m.RecordInvitationsExpired(-2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvitationsExpiredTotal))

	m.RecordCatalogReload(nil)
	m.RecordCatalogReload(errors.New("bad yaml"))
	m.RecordCatalogReload(errors.New("bad yaml"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogReloadsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CatalogReloadsTotal.WithLabelValues("failure")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAuthzDecision("task", "owner", "granted", "")
		m.RecordRateLimited("local")
		m.RecordInvitationsExpired(1)
		m.RecordCatalogReload(nil)
	})
}

func TestHTTPMetricsMiddleware_RouteLabel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := mux.NewRouter()
	r.Use(HTTPMetricsMiddleware(m))
	r.HandleFunc("/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}).Methods(http.MethodGet)

	for _, id := range []string{"aaaaaaaaaaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbbbbbbbbbb"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/"+id, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/tasks/{id}", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
}

func TestHTTPMetricsMiddleware_Unmatched(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anything", strings.NewReader("payload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "unmatched", "200")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordRateLimited("local")

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taskhub_rate_limited_total{limiter="local"} 1`)
}
