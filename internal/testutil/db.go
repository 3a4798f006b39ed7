// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"poltrona/internal/models"
	"poltrona/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated sqlite database private to the test. A single
// connection serializes writers the way row locks would.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "poltrona.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repositories.Migrate(db))
	return db
}

// SeedChair inserts an active chair with the given price and duration.
func SeedChair(t testing.TB, db *gorm.DB, chairID, price string, durationSeconds int) *models.Chair {
	t.Helper()

	chair := &models.Chair{
		ChairID:          chairID,
		Address:          "127.0.0.1",
		Price:            decimal.RequireFromString(price),
		DurationSeconds:  durationSeconds,
		Location:         "test",
		Active:           true,
		PublicPaymentURL: "http://localhost/pay/" + chairID,
	}
	require.NoError(t, db.Create(chair).Error)
	return chair
}

// StartSession puts the chair into an active session ending at endsAt.
func StartSession(t testing.TB, db *gorm.DB, chairID, paymentID string, endsAt time.Time) {
	t.Helper()

	started := endsAt.Add(-15 * time.Minute)
	err := db.Model(&models.Chair{}).Where("chair_id = ?", chairID).Updates(map[string]interface{}{
		"session_active":     true,
		"session_started_at": started.UTC(),
		"session_ends_at":    endsAt.UTC(),
		"session_payment_id": paymentID,
	}).Error
	require.NoError(t, err)
}
