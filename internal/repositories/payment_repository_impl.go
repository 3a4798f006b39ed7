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

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{
		db: db,
	}
}

func (r *paymentRepository) Find(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// InsertIfAbsent relies on the primary key: the first writer wins and every
// later writer gets false without touching the stored row.
func (r *paymentRepository) InsertIfAbsent(ctx context.Context, payment *models.Payment) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(payment)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert payment: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) TransitionFromPending(ctx context.Context, paymentID string, to models.PaymentStatus, detail string, approvedAt *time.Time) (bool, error) {
	if !to.Terminal() {
		return false, fmt.Errorf("invalid target status %q", to)
	}
	values := map[string]interface{}{
		"status":        to,
		"status_detail": detail,
	}
	if approvedAt != nil {
		values["approved_at"] = *approvedAt
	}

	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) ListPendingSince(ctx context.Context, since time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", models.PaymentStatusPending, since).
		Order("created_at").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) List(ctx context.Context, filter PaymentFilter, page Page) ([]models.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if filter.ChairID != "" {
		q = q.Where("chair_id = ?", filter.ChairID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var payments []models.Payment
	if err := page.apply(q.Order("created_at DESC")).Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, total, nil
}

// MarkProcessed flips processed once, and only for an approved payment.
func (r *paymentRepository) MarkProcessed(ctx context.Context, paymentID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND status = ? AND processed = ?", paymentID, models.PaymentStatusApproved, false).
		Update("processed", true)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark payment processed: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ClaimNotification takes the right to notify the device. A claim older
// than staleBefore is considered abandoned and may be taken over.
func (r *paymentRepository) ClaimNotification(ctx context.Context, paymentID string, now, staleBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND notified_at IS NULL AND (notify_claimed_at IS NULL OR notify_claimed_at < ?)", paymentID, staleBefore).
		Update("notify_claimed_at", now)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim notification: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *paymentRepository) MarkNotified(ctx context.Context, paymentID string, at time.Time, attempts int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND notified_at IS NULL", paymentID).
		Updates(map[string]interface{}{
			"notified_at":           at,
			"notify_claimed_at":     nil,
			"notification_attempts": gorm.Expr("notification_attempts + ?", attempts),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark payment notified: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RecordNotifyFailure adds the spent attempts and drops the claim so a
// manual retry can take it.
func (r *paymentRepository) RecordNotifyFailure(ctx context.Context, paymentID string, attempts int) error {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_id = ? AND notified_at IS NULL", paymentID).
		Updates(map[string]interface{}{
			"notify_claimed_at":     nil,
			"notification_attempts": gorm.Expr("notification_attempts + ?", attempts),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record notification failure: %w", result.Error)
	}
	return nil
}
