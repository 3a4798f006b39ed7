// Package routes defines the API routing configuration.
// It builds the handlers from the service registry and applies the
// authentication and rate-limit middleware per route group.
package routes

import (
	"time"

	"poltrona/internal/handlers"
	"poltrona/internal/middleware"
	"poltrona/internal/models"
	"poltrona/internal/services"
	"poltrona/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options carries what the routes need beyond the services.
type Options struct {
	DB          *gorm.DB
	Cache       handlers.CacheHealth
	JWTSecret   string
	SweepSecret string
	// IntentRateLimit is the per-IP budget of intent requests per minute.
	// Zero disables the limiter.
	IntentRateLimit int
	Log             logrus.FieldLogger
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, reg *services.Registry, opts Options) {
	paymentHandler := handlers.NewPaymentHandler(reg.Intents, reg.Payments)
	webhookHandler := handlers.NewWebhookHandler(reg.Webhooks, opts.Log)
	sweepHandler := handlers.NewSweepHandler(reg.Reconciler, reg.Sessions)
	deviceHandler := handlers.NewDeviceHandler(reg.Presence, reg.Chairs)
	adminHandler := handlers.NewAdminHandler(reg.Chairs, reg.Payments, reg.Audit, reg.Processor)
	healthHandler := handlers.NewHealthHandler(opts.DB, opts.Cache)

	app.Get("/health", healthHandler.HealthCheck)
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Poltrona payment API",
			"version": "1.0.0",
		})
	})

	api := app.Group("/api")

	// Public endpoints (no auth required)
	intentRoutes := []fiber.Handler{}
	if opts.IntentRateLimit > 0 {
		intentRoutes = append(intentRoutes, limiter.New(limiter.Config{
			Max:        opts.IntentRateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return response.Error(c, fiber.StatusTooManyRequests, "too many requests, try again shortly")
			},
		}))
	}
	api.Post("/payments/intent", append(intentRoutes, paymentHandler.CreateIntent)...)
	api.Get("/public/payments/:id", paymentHandler.PublicStatus)
	api.Post("/webhooks/processor", webhookHandler.Receive)
	api.Post("/devices/heartbeat", deviceHandler.Heartbeat)

	sweeps := api.Group("/sweeps", middleware.SweepSecret(opts.SweepSecret))
	sweeps.Post("/poll", sweepHandler.Poll)
	sweeps.Post("/expire", sweepHandler.Expire)

	authMiddleware := middleware.NewAuthMiddleware(opts.JWTSecret, opts.Log)
	setupAdminRoutes(api, authMiddleware, adminHandler, deviceHandler, healthHandler)
}

func setupAdminRoutes(
	api fiber.Router,
	authMiddleware *middleware.AuthMiddleware,
	h *handlers.AdminHandler,
	deviceHandler *handlers.DeviceHandler,
	healthHandler *handlers.HealthHandler,
) {
	admin := api.Group("/admin", authMiddleware.Handler, middleware.HasRole(models.RoleOperator))
	writes := middleware.AdminAuthMiddleware

	// Registry
	admin.Get("/chairs", h.ListChairs)
	admin.Get("/chairs/:id", h.GetChair)
	admin.Post("/chairs", writes, h.CreateChair)
	admin.Put("/chairs/:id", writes, h.UpdateChair)
	admin.Delete("/chairs/:id", writes, h.DeactivateChair)

	// Payments
	admin.Get("/payments", h.ListPayments)
	admin.Post("/payments/:id/notify", writes, h.RetryNotification)

	// Devices
	admin.Post("/devices/test", writes, deviceHandler.Test)
	admin.Get("/device-status", deviceHandler.ListStatus)
	admin.Get("/device-status/:chairId", deviceHandler.GetStatus)

	admin.Get("/audit-logs", h.ListAuditLogs)
	admin.Get("/processor/ping", writes, h.PingProcessor)
	admin.Get("/cache-stats", writes, healthHandler.CacheStats)
}
