package router

import (
	"github.com/gin-gonic/gin"
	"github.com/itdd/backend/internal/interfaces/http/handler"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup creates a route group for a specific domain
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle("GET", path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle("POST", path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// Group creates a sub-group within this domain
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers bundles the HTTP handlers of the resolution API
type Handlers struct {
	Ingest    *handler.IngestHandler
	Records   *handler.RecordHandler
	Reviews   *handler.ReviewHandler
	Reconcile *handler.ReconcileHandler
	Export    *handler.ExportHandler
	System    *handler.SystemHandler
}

// ResolutionGroups returns the route groups of the resolution API.
//
//	POST /deals/:deal_id/ingest
//	GET  /deals/:deal_id/scopes/:scope/{records,similar,reviews,export}
//	POST /deals/:deal_id/scopes/:scope/reconcile
//	GET  /records/:id[/evidence]    POST /records/:id/{confirm,remove}
//	GET  /reviews/:id               POST /reviews/:id/resolve
//	GET  /system/{info,ping}
func ResolutionGroups(h Handlers) []*DomainGroup {
	deals := NewDomainGroup("deals", "/deals/:deal_id")
	deals.POST("/ingest", h.Ingest.Ingest)
	deals.Group("scopes", "/scopes/:scope").
		GET("/records", h.Records.ListByScope).
		GET("/similar", h.Records.FindSimilar).
		GET("/reviews", h.Reviews.ListPending).
		POST("/reconcile", h.Reconcile.Reconcile).
		GET("/export", h.Export.Export)

	records := NewDomainGroup("records", "/records/:id").
		GET("", h.Records.Get).
		GET("/evidence", h.Records.GetEvidence).
		POST("/confirm", h.Records.Confirm).
		POST("/remove", h.Records.Remove)

	reviews := NewDomainGroup("reviews", "/reviews/:id").
		GET("", h.Reviews.Get).
		POST("/resolve", h.Reviews.Resolve)

	groups := []*DomainGroup{deals, records, reviews}
	if h.System != nil {
		groups = append(groups, NewDomainGroup("system", "/system").
			GET("/info", h.System.GetSystemInfo).
			GET("/ping", h.System.Ping))
	}
	return groups
}

// SetupResolution registers the resolution API on engine, plus /health at the root
func SetupResolution(engine *gin.Engine, h Handlers, opts ...RouterOption) *Router {
	r := NewRouter(engine, opts...)
	for _, group := range ResolutionGroups(h) {
		r.Register(group)
	}
	r.Setup()
	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}
	return r
}
