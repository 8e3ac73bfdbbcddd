package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulseboard/pulseboard/backend/internal/api/handlers"
	"github.com/pulseboard/pulseboard/backend/internal/api/middleware"
	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/metrics"
)

// publicCacheSeconds is the Cache-Control max-age of the public status routes.
const publicCacheSeconds = 30

// Register wires up API routes. Public status routes are rate limited per
// client; everything else requires a bearer token, and writes require the
// admin role.
func Register(router *gin.Engine, svc *Services, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger("/metrics", "/api/v1/health"),
		middleware.Recovery(cfg.Debug),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{IsDevelopment: cfg.Environment == "development"}),
	)

	health := handlers.NewHealthHandler(svc.DB, svc.Scheduler.InFlight)
	router.GET("/api/v1/health", health.Get)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	checks := handlers.NewCheckHandler(svc.Scheduler, svc.Aggregator)
	uptime := handlers.NewUptimeHandler(svc.History, svc.Recorder)

	public := router.Group("/api/v1/public")
	public.Use(
		middleware.RateLimit(middleware.NewRateLimiter(cfg.PublicRateLimit, cfg.PublicRateBurst)),
		middleware.PublicCache(publicCacheSeconds),
	)
	public.GET("/status/:kind/:id", checks.Status)
	public.GET("/uptime/:kind/:id/history", uptime.GetHistory)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(middleware.NewTokenVerifier(cfg.JWTSecret)))

	admin := api.Group("/")
	admin.Use(middleware.RequireRole(middleware.RoleAdmin))

	// Status and checks
	api.GET("/status/:kind/:id", checks.Status)
	admin.POST("/checks/:kind/:id/trigger", checks.Trigger)

	// Uptime
	api.GET("/uptime/:kind/:id/history", uptime.GetHistory)
	admin.POST("/uptime/:kind/:id/record", uptime.Record)
	admin.POST("/uptime/record-all", uptime.RecordAll)

	// Entities
	handlers.NewEntityHandler(svc.Entities, svc.Aggregator).RegisterRoutes(api, admin)

	// Incidents
	incidents := handlers.NewIncidentHandler(svc.Incidents)
	api.GET("/incidents", incidents.List)
	api.GET("/incidents/:id", incidents.Get)
	admin.POST("/incidents", incidents.Create)
	admin.POST("/incidents/:id/updates", incidents.AddUpdate)
	admin.POST("/incidents/:id/resolve", incidents.Resolve)

	// Maintenance
	maintenance := handlers.NewMaintenanceHandler(svc.Maintenance)
	api.GET("/maintenance", maintenance.List)
	api.GET("/maintenance/:id", maintenance.Get)
	admin.POST("/maintenance", maintenance.Schedule)
	admin.POST("/maintenance/:id/cancel", maintenance.Cancel)

	// Settings
	settings := handlers.NewSettingsHandler(svc.Settings)
	admin.GET("/settings/health-check", settings.GetHealthCheck)
	admin.PUT("/settings/health-check", settings.UpdateHealthCheck)

	// Notifications
	notifications := handlers.NewNotificationHandler(svc.Notifications)
	admin.GET("/notifications", notifications.List)
	admin.POST("/notifications/:id/read", notifications.MarkAsRead)
	admin.POST("/notifications/read-all", notifications.MarkAllAsRead)

	providers := handlers.NewNotificationProviderHandler(svc.Notifications)
	admin.GET("/notifications/providers", providers.List)
	admin.POST("/notifications/providers", providers.Create)
	admin.PUT("/notifications/providers/:id", providers.Update)
	admin.DELETE("/notifications/providers/:id", providers.Delete)
	admin.POST("/notifications/providers/test", providers.Test)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return nil
}
