package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poltrona/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type chairRepository struct {
	db    *gorm.DB
	cache ChairCache
	// deferred collects invalidations inside a unit of work; they run
	// once the transaction commits.
	deferred *[]string
}

// NewChairRepository builds the gorm chair repository. cache may be nil.
func NewChairRepository(db *gorm.DB, cache ChairCache) ChairRepository {
	return &chairRepository{
		db:    db,
		cache: cache,
	}
}

func (r *chairRepository) FindByChairID(ctx context.Context, chairID string) (*models.Chair, error) {
	var chair models.Chair
	if err := r.db.WithContext(ctx).Where("chair_id = ?", chairID).First(&chair).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chair: %w", err)
	}
	return &chair, nil
}

// GetConfig serves registry reads from the cache when one is configured.
// Session and intent fields of the result may be stale; decisions about
// them must use FindByChairID.
func (r *chairRepository) GetConfig(ctx context.Context, chairID string) (*models.Chair, error) {
	if r.cache != nil {
		chair, found, err := r.cache.GetChair(ctx, chairID)
		if err != nil {
			logrus.WithError(err).WithField("chair_id", chairID).Warn("chair cache read failed")
		} else if found {
			return chair, nil
		}
	}

	chair, err := r.FindByChairID(ctx, chairID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.CacheChair(ctx, chair); err != nil {
			logrus.WithError(err).WithField("chair_id", chairID).Warn("chair cache write failed")
		}
	}
	return chair, nil
}

func (r *chairRepository) List(ctx context.Context, filter ChairFilter) ([]models.Chair, error) {
	var chairs []models.Chair
	q := r.db.WithContext(ctx).Order("chair_id")
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&chairs).Error; err != nil {
		return nil, fmt.Errorf("failed to list chairs: %w", err)
	}
	return chairs, nil
}

func (r *chairRepository) Create(ctx context.Context, chair *models.Chair) error {
	if err := r.db.WithContext(ctx).Create(chair).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create chair: %w", err)
	}
	r.invalidate(ctx, chair.ChairID)
	return nil
}

func (r *chairRepository) UpdateConfig(ctx context.Context, chairID string, update ChairConfigUpdate) (*models.Chair, error) {
	values := map[string]interface{}{}
	if update.Address != nil {
		values["address"] = *update.Address
	}
	if update.Price != nil {
		values["price"] = *update.Price
	}
	if update.DurationSeconds != nil {
		values["duration_seconds"] = *update.DurationSeconds
	}
	if update.Location != nil {
		values["location"] = *update.Location
	}
	if update.Active != nil {
		values["active"] = *update.Active
	}
	if update.PublicPaymentURL != nil {
		values["public_payment_url"] = *update.PublicPaymentURL
	}

	if len(values) > 0 {
		result := r.db.WithContext(ctx).Model(&models.Chair{}).Where("chair_id = ?", chairID).Updates(values)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update chair: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
		r.invalidate(ctx, chairID)
	}
	return r.FindByChairID(ctx, chairID)
}

// AttachIntent binds an intent only if the chair is still at intent
// generation seq and has nothing bound.
func (r *chairRepository) AttachIntent(ctx context.Context, chairID string, seq int64, intent models.ChairIntent) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Chair{}).
		Where("chair_id = ? AND intent_seq = ? AND intent_payment_id IS NULL", chairID, seq).
		Updates(map[string]interface{}{
			"intent_payment_id":     intent.PaymentID,
			"intent_qr_code":        intent.QRCode,
			"intent_qr_code_base64": intent.QRCodeBase64,
			"intent_amount":         intent.Amount,
			"intent_created_at":     intent.CreatedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to attach intent: %w", result.Error)
	}
	return r.changed(ctx, chairID, result.RowsAffected), nil
}

// ReleaseIntent clears the bound intent and moves the chair to the next
// intent generation, provided nobody else already did.
func (r *chairRepository) ReleaseIntent(ctx context.Context, chairID string, seq int64) (bool, error) {
	values := clearedIntent()
	result := r.db.WithContext(ctx).Model(&models.Chair{}).
		Where("chair_id = ? AND intent_seq = ?", chairID, seq).
		Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("failed to release intent: %w", result.Error)
	}
	return r.changed(ctx, chairID, result.RowsAffected), nil
}

// OpenSession moves the chair from no session to active. It fails (false)
// when the chair is inactive or already running a session.
func (r *chairRepository) OpenSession(ctx context.Context, chairID, paymentID string, startedAt, endsAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Chair{}).
		Where("chair_id = ? AND active = ? AND session_active = ?", chairID, true, false).
		Updates(map[string]interface{}{
			"session_active":     true,
			"session_started_at": startedAt,
			"session_ends_at":    endsAt,
			"session_payment_id": paymentID,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to open session: %w", result.Error)
	}
	return r.changed(ctx, chairID, result.RowsAffected), nil
}

// ExpireSession closes the chair's session if it has reached its end at
// now. The single-use intent goes with it; the printable link stays.
func (r *chairRepository) ExpireSession(ctx context.Context, chairID string, now time.Time) (bool, error) {
	values := clearedIntent()
	values["session_active"] = false
	values["session_started_at"] = nil
	values["session_ends_at"] = nil
	values["session_payment_id"] = nil

	result := r.db.WithContext(ctx).Model(&models.Chair{}).
		Where("chair_id = ? AND session_active = ? AND session_ends_at <= ?", chairID, true, now).
		Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("failed to expire session: %w", result.Error)
	}
	return r.changed(ctx, chairID, result.RowsAffected), nil
}

func (r *chairRepository) ListExpiredSessions(ctx context.Context, now time.Time) ([]models.Chair, error) {
	var chairs []models.Chair
	err := r.db.WithContext(ctx).
		Where("session_active = ? AND session_ends_at <= ?", true, now).
		Order("session_ends_at").
		Find(&chairs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return chairs, nil
}

// changed drops the cached copy after a conditional write that matched.
func (r *chairRepository) changed(ctx context.Context, chairID string, rows int64) bool {
	if rows != 1 {
		return false
	}
	r.invalidate(ctx, chairID)
	return true
}

func (r *chairRepository) invalidate(ctx context.Context, chairID string) {
	if r.cache == nil {
		return
	}
	if r.deferred != nil {
		*r.deferred = append(*r.deferred, chairID)
		return
	}
	if err := r.cache.InvalidateChair(ctx, chairID); err != nil {
		logrus.WithError(err).WithField("chair_id", chairID).Warn("chair cache invalidation failed")
	}
}

func clearedIntent() map[string]interface{} {
	return map[string]interface{}{
		"intent_payment_id":     nil,
		"intent_qr_code":        nil,
		"intent_qr_code_base64": nil,
		"intent_amount":         nil,
		"intent_created_at":     nil,
		"intent_seq":            gorm.Expr("intent_seq + 1"),
	}
}
