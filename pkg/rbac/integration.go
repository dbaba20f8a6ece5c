package rbac

import (
	"github.com/gorilla/mux"
	"github.com/platinummonkey/taskhub/pkg/audit"
)

// Config holds RBAC configuration
type Config struct {
	// Catalog supplies the built-in role defaults copied into new
	// organizations. A *Catalog or a *CatalogWatcher.
	Catalog CatalogSource

	// CollaboratorMode selects how collaborator roles gate access.
	CollaboratorMode CollaboratorMode

	// Recorder receives every evaluator decision. Optional.
	Recorder DecisionRecorder
}

// DefaultConfig returns default RBAC configuration
func DefaultConfig() Config {
	return Config{
		Catalog:          DefaultCatalog(),
		CollaboratorMode: CollaboratorStrict,
	}
}

// Stores is the persistence the authorization engine needs.
type Stores interface {
	UserLookup
	MembershipStore
	CustomRoleStore
	TemplateStore
	OverrideStore
	RoleDefaultsStore
}

// Manager assembles the RBAC components over one set of stores
type Manager struct {
	catalog    *RoleCatalog
	resolver   *Resolver
	evaluator  *Evaluator
	roles      *RoleService
	templates  *TemplateService
	middleware *Middleware
	handlers   *Handlers
	config     Config
}

// NewManager creates a new RBAC manager
func NewManager(stores Stores, auditLogger audit.Logger, config Config) *Manager {
	if config.Catalog == nil {
		config.Catalog = DefaultCatalog()
	}
	if config.CollaboratorMode == "" {
		config.CollaboratorMode = CollaboratorStrict
	}
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}

	opts := []EvaluatorOption{WithCollaboratorMode(config.CollaboratorMode)}
	if config.Recorder != nil {
		opts = append(opts, WithDecisionRecorder(config.Recorder))
	}

	catalog := NewRoleCatalog(config.Catalog, stores, stores)
	resolver := NewResolver(stores, stores, catalog)
	evaluator := NewEvaluator(resolver, stores, opts...)
	roles := NewRoleService(stores, stores, catalog, auditLogger)
	templates := NewTemplateService(stores, stores, stores, auditLogger)
	middleware := NewMiddleware(resolver, evaluator, auditLogger)

	return &Manager{
		catalog:    catalog,
		resolver:   resolver,
		evaluator:  evaluator,
		roles:      roles,
		templates:  templates,
		middleware: middleware,
		handlers:   NewHandlers(roles, templates, middleware),
		config:     config,
	}
}

// RegisterRoutes registers RBAC routes with a router
func (m *Manager) RegisterRoutes(router *mux.Router) {
	m.handlers.RegisterRoutes(router)
}

// GetCatalog returns the role catalog
func (m *Manager) GetCatalog() *RoleCatalog {
	return m.catalog
}

// GetResolver returns the membership resolver
func (m *Manager) GetResolver() *Resolver {
	return m.resolver
}

// GetEvaluator returns the resource access evaluator
func (m *Manager) GetEvaluator() *Evaluator {
	return m.evaluator
}

// GetRoleService returns the custom role service
func (m *Manager) GetRoleService() *RoleService {
	return m.roles
}

// GetTemplateService returns the permission template service
func (m *Manager) GetTemplateService() *TemplateService {
	return m.templates
}

// GetMiddleware returns the authorization middleware
func (m *Manager) GetMiddleware() *Middleware {
	return m.middleware
}
