package router

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/itdd/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(NewDomainGroup("test", "/test").GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	}))
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("records", "/records/:id")
		assert.Equal(t, "records", g.Name())
		assert.Equal(t, "/records/:id", g.Prefix())
	})

	t.Run("middleware runs for group routes only", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("guarded", "/guarded").
			Use(func(c *gin.Context) {
				c.Header("X-Guarded", "yes")
				c.Next()
			}).
			POST("/items", func(c *gin.Context) { c.Status(http.StatusCreated) })
		open := NewDomainGroup("open", "/open").
			GET("/items", func(c *gin.Context) { c.Status(http.StatusOK) })

		api := engine.Group("/api/v1")
		g.RegisterRoutes(api)
		open.RegisterRoutes(api)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/guarded/items", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "yes", w.Header().Get("X-Guarded"))

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/open/items", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Guarded"))
	})

	t.Run("subgroups nest under parent prefix", func(t *testing.T) {
		engine := gin.New()
		parent := NewDomainGroup("deals", "/deals/:deal_id")
		parent.Group("scopes", "/scopes/:scope").GET("/records", func(c *gin.Context) {
			c.String(http.StatusOK, c.Param("deal_id")+"/"+c.Param("scope"))
		})
		parent.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deals/d1/scopes/target/records", nil))
		assert.Equal(t, "d1/target", w.Body.String())
	})
}

func resolutionHandlers() Handlers {
	return Handlers{
		Ingest:    handler.NewIngestHandler(nil),
		Records:   handler.NewRecordHandler(nil, nil),
		Reviews:   handler.NewReviewHandler(nil),
		Reconcile: handler.NewReconcileHandler(nil),
		Export:    handler.NewExportHandler(nil, 0),
		System:    handler.NewSystemHandler("itdd-resolution", "test", nil, nil),
	}
}

func TestSetupResolution_RegistersAPI(t *testing.T) {
	engine := gin.New()
	SetupResolution(engine, resolutionHandlers())

	var got []string
	for _, route := range engine.Routes() {
		got = append(got, route.Method+" "+route.Path)
	}
	sort.Strings(got)

	want := []string{
		"GET /api/v1/deals/:deal_id/scopes/:scope/export",
		"GET /api/v1/deals/:deal_id/scopes/:scope/records",
		"GET /api/v1/deals/:deal_id/scopes/:scope/reviews",
		"GET /api/v1/deals/:deal_id/scopes/:scope/similar",
		"GET /api/v1/records/:id",
		"GET /api/v1/records/:id/evidence",
		"GET /api/v1/reviews/:id",
		"GET /api/v1/system/info",
		"GET /api/v1/system/ping",
		"GET /health",
		"POST /api/v1/deals/:deal_id/ingest",
		"POST /api/v1/deals/:deal_id/scopes/:scope/reconcile",
		"POST /api/v1/records/:id/confirm",
		"POST /api/v1/records/:id/remove",
		"POST /api/v1/reviews/:id/resolve",
	}
	assert.Equal(t, want, got)
}

func TestSetupResolution_ServesSystemRoutes(t *testing.T) {
	engine := gin.New()
	SetupResolution(engine, resolutionHandlers())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestResolutionGroups_WithoutSystem(t *testing.T) {
	h := resolutionHandlers()
	h.System = nil

	groups := ResolutionGroups(h)
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name()
	}
	assert.Equal(t, []string{"deals", "records", "reviews"}, names)
}
