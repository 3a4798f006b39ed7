package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poltrona/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Heartbeat is one liveness ping. Nil telemetry fields keep their stored
// value.
type Heartbeat struct {
	ChairID         string
	At              time.Time
	FirmwareVersion *string
	Signal          *int
	UptimeSeconds   *int64
}

type DeviceStatusRepository interface {
	Upsert(ctx context.Context, hb Heartbeat) error
	Find(ctx context.Context, chairID string) (*models.DeviceStatus, error)
	List(ctx context.Context) ([]models.DeviceStatus, error)
}

type deviceStatusRepository struct {
	db *gorm.DB
}

func NewDeviceStatusRepository(db *gorm.DB) DeviceStatusRepository {
	return &deviceStatusRepository{db: db}
}

func (r *deviceStatusRepository) Upsert(ctx context.Context, hb Heartbeat) error {
	at := hb.At
	status := models.DeviceStatus{
		ChairID:         hb.ChairID,
		IsOnline:        true,
		LastPing:        &at,
		FirmwareVersion: hb.FirmwareVersion,
		Signal:          hb.Signal,
		UptimeSeconds:   hb.UptimeSeconds,
	}

	columns := []string{"is_online", "last_ping", "error_message", "updated_at"}
	if hb.FirmwareVersion != nil {
		columns = append(columns, "firmware_version")
	}
	if hb.Signal != nil {
		columns = append(columns, "signal")
	}
	if hb.UptimeSeconds != nil {
		columns = append(columns, "uptime_seconds")
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chair_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&status).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device status: %w", err)
	}
	return nil
}

func (r *deviceStatusRepository) Find(ctx context.Context, chairID string) (*models.DeviceStatus, error) {
	var status models.DeviceStatus
	if err := r.db.WithContext(ctx).Where("chair_id = ?", chairID).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device status: %w", err)
	}
	return &status, nil
}

func (r *deviceStatusRepository) List(ctx context.Context) ([]models.DeviceStatus, error) {
	var statuses []models.DeviceStatus
	if err := r.db.WithContext(ctx).Order("chair_id").Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to list device statuses: %w", err)
	}
	return statuses, nil
}
