// Package router assembles the HTTP surface: the REST API, the WebSocket
// event feed and the metrics endpoint.
package router

import (
	"chatmallu/client/internal/api"
	"chatmallu/client/internal/ws"
	"chatmallu/client/pkg/config"
	"chatmallu/client/pkg/di"
	"chatmallu/client/pkg/errors"
	"chatmallu/client/pkg/logger"
	"chatmallu/client/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Hub         *ws.Hub
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// The logger middleware goes first so every request gets an ID.
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))

	r := &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Hub:       container.Hub,
		Config:    cfg,
	}
	if cfg.Security.RateLimit > 0 {
		opts := middleware.DefaultRateLimiterOptions()
		opts.Limit = rate.Limit(cfg.Security.RateLimit)
		if cfg.Security.RateLimitBurst > 0 {
			opts.Burst = cfg.Security.RateLimitBurst
		}
		opts.Exempt = middleware.ReadsExempt
		r.RateLimiter = middleware.NewRateLimiter(container.Logger, opts)
	}
	return r
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container

	r.Engine.GET("/ws", func(ctx *gin.Context) {
		ws.ServeWs(r.Hub, ctx)
	})
	if c.MetricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(c.MetricsHandler))
	}

	apiGroup := r.Engine.Group("/api")
	if r.RateLimiter != nil {
		apiGroup.Use(r.RateLimiter.Middleware())
	}
	if path := r.Config.OpenAPI.SchemaPath; path != "" {
		r.AddOpenAPIValidation(apiGroup, path)
	}

	api.NewHealthHandler(c.Health, c.AI, c.Cache).RegisterRoutes(apiGroup)
	api.NewCharacterHandler(c.Characters, c.Chats).RegisterRoutes(apiGroup)
	api.NewGroupHandler(c.Groups).RegisterRoutes(apiGroup)
	api.NewChatHandler(c.Runtime, c.Settings, c.Suggestions).RegisterRoutes(apiGroup)
}
