// Package main is the entry point for the HTTP service.
// It loads configuration, opens the database, cache and broker, wires the
// payment pipeline and serves the API until interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poltrona/internal/bootstrap"
	"poltrona/internal/config"
	"poltrona/internal/handlers"
	"poltrona/internal/logger"
	"poltrona/internal/routes"
	"poltrona/internal/scheduler"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.Env)

	// Missing secrets fail the requests that need them, not the process.
	var missing *config.MissingError
	if err := cfg.Validate("server"); errors.As(err, &missing) {
		log.WithField("keys", missing.Keys).Warn("configuration incomplete; affected endpoints will answer 500")
	}

	rt, err := bootstrap.New(cfg, bootstrap.Options{UseCache: true, UseBroker: true}, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.WithError(err).Warn("error while closing resources")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logPoolStats(ctx, rt, log)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(rt.Registry.Reconciler, rt.Registry.Sessions, cfg.Scheduler.PollInterval, cfg.Scheduler.ExpiryInterval, log)
		sched.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		AppName:      "poltrona",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Sweep-Secret",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
	}))

	var cacheHealth handlers.CacheHealth
	if rt.Cache != nil {
		cacheHealth = rt.Cache
	}
	routes.SetupRoutes(app, rt.Registry, routes.Options{
		DB:              rt.DB,
		Cache:           cacheHealth,
		JWTSecret:       cfg.JWTSecret,
		SweepSecret:     cfg.SweepSecret,
		IntentRateLimit: config.GetIntEnv("INTENT_RATE_LIMIT", 20),
		Log:             log,
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithField("port", cfg.Port).Info("🚀 server listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Error("server stopped")
	}

	stop()
	if sched != nil {
		sched.Wait()
	}
	rt.Registry.Payments.Wait()
}

// logPoolStats periodically reports database pool usage.
func logPoolStats(ctx context.Context, rt *bootstrap.Runtime, log logrus.FieldLogger) {
	sqlDB, err := rt.DB.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := sqlDB.Stats()
			log.WithFields(logrus.Fields{
				"open":          stats.OpenConnections,
				"idle":          stats.Idle,
				"in_use":        stats.InUse,
				"wait_count":    stats.WaitCount,
				"wait_duration": stats.WaitDuration,
			}).Debug("db pool stats")
		}
	}
}
