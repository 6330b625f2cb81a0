package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"entityservice/api/middleware"
	"entityservice/config"
)

// ControllerRegister anything that mounts routes under /api/v1
type ControllerRegister interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// MiddlewareRegister extra middleware, installed after the built-in ones
type MiddlewareRegister = gin.HandlerFunc

// Route a single custom route under /api/v1
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Router Route configuration
type Router struct {
	engine      *gin.Engine
	config      *config.Config
	controllers []ControllerRegister
	routes      []Route
}

func NewRouter(cfg *config.Config, controllers []ControllerRegister, middlewares []MiddlewareRegister, routes []Route) *Router {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.TestMode)
	}

	engine := gin.New()

	// order is important
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.UnitOfWorkMiddleware())
	engine.Use(middleware.RecoveryMiddleware())
	engine.Use(middleware.LoggingMiddleware())
	engine.Use(middleware.RateLimitMiddleware(&cfg.Server.RateLimit))
	for _, m := range middlewares {
		engine.Use(m)
	}

	return &Router{
		engine:      engine,
		config:      cfg,
		controllers: controllers,
		routes:      routes,
	}
}

// SetupRoutes Set up all routes
func (r *Router) SetupRoutes() {
	apiGroup := r.engine.Group("/api/v1")
	for _, c := range r.controllers {
		c.RegisterRoutes(apiGroup)
	}
	for _, route := range r.routes {
		apiGroup.Handle(route.Method, route.Path, route.Handler)
	}

	r.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":     r.config.App.Name,
			"version":  r.config.App.Version,
			"env":      r.config.App.Env,
			"health":   "/api/v1/health",
			"entities": "/api/v1/entities/:entity",
		})
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
