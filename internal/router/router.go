package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/totemic/totemic-go/internal/handler"
	"github.com/totemic/totemic-go/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Engage  *handler.EngageHandler
	Post    *handler.PostHandler
	Profile *handler.ProfileHandler
	Sync    *handler.SyncHandler
	Health  *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewCORS(corsOrigins))

	// Health and metrics (before API group, no rate limits)
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", handler.MetricsHandler())

	toggleLimit := middleware.NewToggleRateLimiter()
	refreshLimit := middleware.NewRefreshRateLimiter()
	readLimit := middleware.NewReadRateLimiter()
	syncLimit := middleware.NewSyncRateLimiter()
	statsLimit := middleware.NewStatsRateLimiter()

	// API routes
	api := app.Group("/api")

	// Engagement routes
	labels := api.Group("/posts/:postId/answers/:answerId/labels/:label")
	labels.Post("/toggle", h.Engage.Toggle, toggleLimit.Handler())
	labels.Post("/restore", h.Engage.Restore, refreshLimit.Handler())
	labels.Post("/refresh", h.Engage.Refresh, refreshLimit.Handler())

	// Read routes
	labels.Get("/crispness", h.Post.GetCrispness, readLimit.Handler())
	labels.Get("/history", h.Post.GetHistory, readLimit.Handler())
	api.Get("/posts/:postId", h.Post.GetPost, readLimit.Handler())

	// User routes
	api.Get("/users/:userId/quota", h.Profile.GetQuota, readLimit.Handler())

	// Stats routes
	api.Get("/stats", h.Profile.GetStats, statsLimit.Handler())

	// Sync routes
	api.Get("/sync/delta", h.Sync.DeltaSync, syncLimit.Handler())
	api.Get("/sync/full", h.Sync.FullSync, syncLimit.Handler())
}
