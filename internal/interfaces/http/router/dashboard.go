package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/handler"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"go.uber.org/zap"
)

// Handlers are the controllers the dashboard routes to
type Handlers struct {
	Auth       *handler.AuthHandler
	Parents    *handler.ParentsHandler
	SavedViews *handler.SavedViewsHandler
	API        *handler.DashboardAPIHandler
	System     *handler.SystemHandler
}

// Config is everything the engine needs besides the handlers
type Config struct {
	Logger         *zap.Logger
	Renderer       *views.Renderer
	Sessions       middleware.SessionConfig
	NewStore       func() *dashboard.Store
	Metrics        *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Tracing        middleware.TracingConfig
	Security       *middleware.SecurityConfig // nil uses middleware.DefaultSecurityConfig
	Limiter        *middleware.RateLimiter
	MaxBodyBytes   int64
	TrustedProxies []string
}

// New builds the dashboard engine: public login and probes, the HTML
// pages, and the JSON API under /api/v1
func New(cfg Config, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.HTMLRender = cfg.Renderer

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Security != nil {
		engine.Use(middleware.SecureWithConfig(*cfg.Security))
	} else {
		engine.Use(middleware.Secure())
	}
	if cfg.Tracing.Enabled {
		engine.Use(middleware.TracingWithConfig(cfg.Tracing))
	}
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics.Middleware())
	}
	if cfg.MaxBodyBytes > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}
	if cfg.Limiter != nil {
		engine.Use(middleware.RateLimit(cfg.Limiter))
	}
	engine.Use(middleware.Sessions(cfg.Sessions))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.SpanAttributes())
	}

	engine.StaticFS("/static", views.Static())
	engine.GET("/", func(c *gin.Context) { c.Redirect(http.StatusSeeOther, "/parents") })
	engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeNotFound, "Route not found", middleware.GetRequestID(c)))
			return
		}
		c.HTML(http.StatusNotFound, "error.html", views.Page{
			Title:     "Not found",
			RequestID: middleware.GetRequestID(c),
			Data:      views.ErrorData{Status: http.StatusNotFound, Message: "Page not found"},
		})
	})

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(middleware.RequireLogin(), middleware.NoStore(), middleware.Dashboard(cfg.Sessions.Manager, cfg.NewStore))

	r.Public(publicRoutes(h, cfg.MetricsHandler))
	r.Pages(parentRoutes(h.Parents))
	r.Pages(viewPageRoutes(h.SavedViews))
	r.Pages(NewDomainGroup("exports", "").
		GET("/exports", h.Parents.Exports).
		GET("/archive/*key", h.Parents.ArchiveFile))

	r.Register(dashboardRoutes(h.API))
	r.Register(parentAPIRoutes(h.API))
	r.Register(viewAPIRoutes(h.SavedViews))
	r.Setup()

	return engine, nil
}

func publicRoutes(h Handlers, metrics http.Handler) *DomainGroup {
	g := NewDomainGroup("public", "").
		GET("/login", h.Auth.LoginPage).
		POST("/login", h.Auth.Login).
		POST("/logout", h.Auth.Logout).
		GET("/healthz", h.System.Health)
	if metrics != nil {
		g.GET("/metrics", gin.WrapH(metrics))
	}
	g.Group("system", "/system").
		GET("/info", h.System.GetSystemInfo).
		GET("/ping", h.System.Ping)
	return g
}

func parentRoutes(h *handler.ParentsHandler) *DomainGroup {
	g := NewDomainGroup("parents", "/parents").
		GET("", h.List).
		POST("", h.Create).
		GET("/new", h.NewParent).
		POST("/search", h.Search).
		POST("/filters", h.Filters).
		POST("/filters/reset", h.ResetFilters).
		POST("/preset", h.Preset).
		POST("/sort", h.Sort).
		POST("/select", h.Select).
		POST("/select-all", h.SelectAll).
		POST("/clear-selection", h.ClearSelection).
		POST("/bulk", h.Bulk).
		GET("/export", h.Export).
		GET("/report", h.Report).
		GET("/import", h.ImportPage).
		POST("/import/preview", h.ImportPreview).
		POST("/import", h.Import).
		GET("/duplicates", h.Duplicates).
		POST("/merge", h.Merge).
		GET("/compose", h.Compose).
		POST("/emails", h.SendEmails)

	g.Group("parent", "/:id").
		GET("", h.Show).
		POST("", h.UpdateField).
		POST("/delete", h.Delete).
		POST("/notes", h.AddNote).
		POST("/tasks", h.AddTask).
		POST("/tasks/:tid", h.UpdateTask).
		POST("/tasks/:tid/delete", h.DeleteTask).
		POST("/children", h.AddChild).
		POST("/children/:cid", h.UpdateChild).
		POST("/children/:cid/delete", h.DeleteChild).
		GET("/emails/new", h.ComposeOne).
		GET("/emails/:eid", h.ShowEmail)
	return g
}

func viewPageRoutes(h *handler.SavedViewsHandler) *DomainGroup {
	return NewDomainGroup("views", "/views").
		GET("", h.Page).
		POST("", h.Save).
		POST("/:slug/apply", h.Apply).
		POST("/:slug/delete", h.Delete)
}

func dashboardRoutes(h *handler.DashboardAPIHandler) *DomainGroup {
	return NewDomainGroup("dashboard", "/dashboard").
		GET("", h.GetState).
		GET("/state", h.GetState).
		POST("/refresh", h.Refresh).
		PATCH("/filters", h.PatchFilters).
		DELETE("/filters", h.ResetFilters).
		POST("/preset", h.ApplyPreset).
		POST("/sort", h.Sort).
		PUT("/page", h.SetPage).
		POST("/selection", h.Select).
		POST("/bulk", h.Bulk)
}

func parentAPIRoutes(h *handler.DashboardAPIHandler) *DomainGroup {
	g := NewDomainGroup("parents-api", "").
		POST("/emails", h.SendEmails).
		GET("/stats", h.Stats).
		GET("/duplicates", h.Duplicates)
	g.Group("parent", "/parents/:id").
		GET("", h.GetParent).
		PATCH("", h.UpdateParent).
		DELETE("", h.DeleteParent)
	return g
}

func viewAPIRoutes(h *handler.SavedViewsHandler) *DomainGroup {
	return NewDomainGroup("views-api", "/views").
		GET("", h.List).
		POST("", h.Create).
		POST("/:slug/apply", h.ApplyJSON).
		DELETE("/:slug", h.Remove)
}
