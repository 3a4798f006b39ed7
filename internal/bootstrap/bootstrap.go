// Package bootstrap opens the external resources (database, cache, broker,
// HTTP clients) and builds the service registry. The server and the
// sweeper CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"poltrona/internal/config"
	"poltrona/internal/device"
	"poltrona/internal/events"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/repositories/cache"
	"poltrona/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Runtime holds everything opened at startup. Close releases it.
type Runtime struct {
	DB        *gorm.DB
	Cache     *cache.CacheService
	Publisher events.Publisher
	Registry  *services.Registry
}

// Options picks the optional resources a surface wants.
type Options struct {
	UseCache  bool
	UseBroker bool
}

func New(cfg config.Config, opts Options, log *logrus.Logger) (*Runtime, error) {
	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{DB: db, Publisher: events.Noop{}}

	var chairCache repositories.ChairCache
	if opts.UseCache {
		if svc := openCache(cfg.Redis, log); svc != nil {
			rt.Cache = svc
			chairCache = svc
		}
	}

	if opts.UseBroker && cfg.RabbitMQURL != "" {
		publisher, err := events.NewRabbitPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.WithError(err).Warn("event broker unavailable, events will not be published")
		} else {
			rt.Publisher = publisher
			log.Info("✅ RabbitMQ publisher ready")
		}
	}

	rt.Registry = services.NewRegistry(services.Deps{
		DB:        db,
		Cache:     chairCache,
		Publisher: rt.Publisher,
		Processor: processor.NewClient(cfg.Processor),
		Device:    device.NewClient(),
		Config:    cfg,
		Log:       log,
	})
	return rt, nil
}

// openCache returns nil when redis cannot be reached; the registry then
// reads chairs straight from the database.
func openCache(cfg config.RedisConfig, log *logrus.Logger) *cache.CacheService {
	svc := cache.NewCacheService(cache.NewRedisClient(cfg), repositories.DefaultExpiration)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.HealthCheck(ctx); err != nil {
		log.WithError(err).Warn("redis unavailable, running without chair cache")
		_ = svc.Close()
		return nil
	}
	// Chair rows may have changed while the service was down.
	if n, err := svc.FlushChairs(ctx); err != nil {
		log.WithError(err).Warn("failed to flush chair cache")
	} else {
		log.WithField("keys", n).Info("✅ Redis cache connected")
	}
	return svc
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.Publisher != nil {
		errs = append(errs, rt.Publisher.Close())
	}
	if rt.Cache != nil {
		errs = append(errs, rt.Cache.Close())
	}
	if sqlDB, err := rt.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
