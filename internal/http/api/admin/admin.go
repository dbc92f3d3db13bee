package admin

import (
	"net/http"
	"strconv"
	"strings"

	handlers "github.com/eamarucci/bot-answer/internal/http/api/admin/handlers"
	"github.com/eamarucci/bot-answer/internal/oauth"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators of the admin console routes. Portals and Catalog
// may be nil.
type Deps struct {
	Store        *store.Store
	Sealer       handlers.Sealer
	Grants       handlers.GrantManager
	OAuthClients map[providers.ID]oauth.Client
	StateKey     []byte
	Portals      handlers.PortalLister
	Catalog      handlers.ModelLister
	Usage        handlers.UsageTotals
	Providers    *providers.Table
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Store == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.Store.DB())
	r.GET("/healthz", healthHandler.Healthz)

	root := r.Group("/v0")

	adminsHandler := handlers.NewAdminHandler(deps.Store)
	root.POST("/admins", adminsHandler.Create)

	settingHandler := handlers.NewSettingHandler(deps.Store.DB())
	root.GET("/settings", settingHandler.List)
	root.GET("/settings/:key", settingHandler.Get)
	root.PUT("/settings/:key", settingHandler.Update)
	root.DELETE("/settings/:key", settingHandler.Delete)

	providerHandler := handlers.NewProviderHandler(deps.Catalog, deps.Providers)
	root.GET("/providers", providerHandler.List)

	authed := root.Group("/admin/:adminID")
	authed.Use(adminContextMiddleware(deps.Store))

	defaultsHandler := handlers.NewDefaultsHandler(deps.Store, deps.Sealer)
	authed.GET("/defaults", defaultsHandler.Get)
	authed.PUT("/defaults", defaultsHandler.Update)

	groupHandler := handlers.NewGroupHandler(deps.Store, deps.Sealer, deps.Portals)
	authed.GET("/groups", groupHandler.List)
	authed.GET("/groups/:groupID", groupHandler.Get)
	authed.PUT("/groups/:groupID", groupHandler.Update)

	groupUserHandler := handlers.NewGroupUserHandler(deps.Store, deps.Sealer)
	authed.GET("/groups/:groupID/users", groupUserHandler.List)
	authed.POST("/groups/:groupID/users", groupUserHandler.Create)
	authed.PUT("/groups/:groupID/users/:userID", groupUserHandler.Update)
	authed.DELETE("/groups/:groupID/users/:userID", groupUserHandler.Delete)

	if deps.Grants != nil {
		oauthHandler := handlers.NewOAuthHandler(deps.Store, deps.Grants, deps.OAuthClients, deps.StateKey)
		authed.POST("/oauth/:provider/authorize", oauthHandler.Authorize)
		authed.POST("/oauth/:provider/callback", oauthHandler.Callback)
		authed.GET("/oauth/:provider", oauthHandler.Get)
		authed.PATCH("/oauth/:provider", oauthHandler.Patch)
		authed.DELETE("/oauth/:provider", oauthHandler.Delete)
	}

	if deps.Catalog != nil {
		authed.POST("/providers/models", providerHandler.Models)
		authed.GET("/providers/:provider/models", providerHandler.CachedModels)
	}

	if deps.Usage != nil {
		usageHandler := handlers.NewUsageHandler(deps.Usage)
		authed.GET("/usage", usageHandler.Summary)
	}
}

// adminContextMiddleware resolves the admin named in the path and stores its id.
func adminContextMiddleware(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("adminID")), 10, 64)
		if errParse != nil || adminID == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid admin id"})
			return
		}
		if _, errFind := s.Admin(c.Request.Context(), adminID); errFind != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "admin not found"})
			return
		}
		c.Set(handlers.ContextAdminID, adminID)
		c.Next()
	}
}
