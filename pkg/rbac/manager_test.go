package rbac_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/contextkeys"
	"github.com/platinummonkey/taskhub/pkg/ids"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decisionLog struct {
	mu    sync.Mutex
	calls []string
}

func (d *decisionLog) RecordAuthzDecision(resourceType, path, outcome, code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, path+":"+outcome)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	rec := &decisionLog{}
	auditLog := &recordingAudit{}

	cfg := rbac.DefaultConfig()
	cfg.Recorder = rec
	m := rbac.NewManager(store, auditLog, cfg)

	require.NotNil(t, m.GetCatalog())
	require.NotNil(t, m.GetResolver())
	require.NotNil(t, m.GetRoleService())
	require.NotNil(t, m.GetTemplateService())
	require.NotNil(t, m.GetMiddleware())
	assert.Equal(t, rbac.CollaboratorStrict, m.GetEvaluator().Mode())

	orgID := ids.New()
	now := time.Now().UTC()
	require.NoError(t, store.CreateOrganization(ctx, &orgs.Organization{
		ID:           orgID,
		Name:         "Acme",
		Slug:         "acme",
		Status:       orgs.OrgStatusActive,
		RoleDefaults: m.GetCatalog().Snapshot(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil))

	e := &env{t: t, ctx: ctx, store: store, orgID: orgID}
	ownerID := e.user()
	guestID, _ := e.member(rbac.RoleGuest, nil)

	t.Run("evaluates through the recorder", func(t *testing.T) {
		d := &doc{id: ids.New(), owner: ownerID, org: orgID}

		decision, err := m.GetEvaluator().Evaluate(ctx, ownerID, d, rbac.Requirement{Permission: rbac.PermDelete})
		require.NoError(t, err)
		assert.Equal(t, rbac.PathOwner, decision.Path)

		_, err = m.GetEvaluator().Evaluate(ctx, guestID, d, rbac.Requirement{Permission: rbac.PermWrite})
		assert.Error(t, err)

		rec.mu.Lock()
		defer rec.mu.Unlock()
		assert.Equal(t, []string{"owner:granted", ":denied"}, rec.calls)
	})

	t.Run("registers routes", func(t *testing.T) {
		r := mux.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if id := req.Header.Get(testUserHeader); id != "" {
					req = req.WithContext(contextkeys.WithUserID(req.Context(), id))
				}
				next.ServeHTTP(w, req)
			})
		})
		m.RegisterRoutes(r)

		rec, body := do(t, r, "GET", "/organizations/"+orgID+"/me/permissions", guestID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, rbac.RoleGuest, body["role"])
		assert.Equal(t, []interface{}{"read"}, body["permissions"])

		rec, _ = do(t, r, "POST", "/organizations/"+orgID+"/roles", guestID, map[string]interface{}{
			"name": "Reviewer",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestNewManager_Defaults(t *testing.T) {
	m := rbac.NewManager(memory.New(), nil, rbac.Config{})
	assert.Equal(t, rbac.CollaboratorStrict, m.GetEvaluator().Mode())
	assert.Equal(t, rbac.DefaultCatalog().Roles, m.GetCatalog().Snapshot().Roles)
}
