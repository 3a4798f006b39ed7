// Package repositories provides data access layer implementations.
// Every pipeline mutation is a conditional write; callers learn from the
// returned bool whether they won.
package repositories

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"poltrona/internal/config"
	"poltrona/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the postgres connection, applies the pool settings and
// migrates the schema.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         newGormLogger(),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("✅ PostgreSQL connected & migrations applied successfully!")
	return db, nil
}

// Migrate creates or updates every table the pipeline uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Chair{},
		&models.Payment{},
		&models.DeviceStatus{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Configure GORM logger to ignore "record not found" errors
func newGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  !config.IsProduction(),
		},
	)
}

// UnitOfWork runs a function against repositories bound to one database
// transaction. Returning an error rolls everything back.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(chairs ChairRepository, payments PaymentRepository) error) error
}

type gormUnitOfWork struct {
	db    *gorm.DB
	cache ChairCache
}

func NewUnitOfWork(db *gorm.DB, cache ChairCache) UnitOfWork {
	return &gormUnitOfWork{db: db, cache: cache}
}

func (u *gormUnitOfWork) Within(ctx context.Context, fn func(ChairRepository, PaymentRepository) error) error {
	var touched []string
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched = touched[:0]
		return fn(&chairRepository{db: tx, cache: u.cache, deferred: &touched}, &paymentRepository{db: tx})
	})
	if err != nil {
		return err
	}

	committed := &chairRepository{db: u.db, cache: u.cache}
	for _, chairID := range touched {
		committed.invalidate(ctx, chairID)
	}
	return nil
}

// Page is a limit/offset window for list queries.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}
