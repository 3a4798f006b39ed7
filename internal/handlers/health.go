package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CacheHealth is the redis side of the health check. It is nil when the
// cache is disabled.
type CacheHealth interface {
	HealthCheck(ctx context.Context) error
	GetStats() *redis.PoolStats
}

type HealthHandler struct {
	db    *gorm.DB
	cache CacheHealth
}

func NewHealthHandler(db *gorm.DB, cache CacheHealth) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status, code := "ok", fiber.StatusOK
	database := "connected"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		database, status, code = "unreachable", "degraded", fiber.StatusServiceUnavailable
	}

	cache := "disabled"
	if h.cache != nil {
		cache = "connected"
		if err := h.cache.HealthCheck(ctx); err != nil {
			cache = "unreachable"
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"version": "1.0.0",
		"services": fiber.Map{
			"database": database,
			"redis":    cache,
		},
	})
}

func (h *HealthHandler) CacheStats(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.JSON(fiber.Map{"success": true, "enabled": false})
	}
	poolStats := h.cache.GetStats()

	return c.JSON(fiber.Map{
		"success": true,
		"enabled": true,
		"pool_stats": fiber.Map{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"timeouts":    poolStats.Timeouts,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
			"stale_conns": poolStats.StaleConns,
		},
	})
}
