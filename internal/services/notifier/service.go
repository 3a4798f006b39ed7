// Package notifier tells chair controllers that a payment went through.
package notifier

import (
	"context"
	"time"

	"poltrona/internal/device"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"

	"github.com/sirupsen/logrus"
)

// claimMargin pads the claim lifetime past the longest possible burst.
const claimMargin = 30 * time.Second

type service struct {
	payments repositories.PaymentRepository
	device   Device
	audit    audit.Service
	policy   device.RetryPolicy
	claimTTL time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(
	payments repositories.PaymentRepository,
	dev Device,
	auditSvc audit.Service,
	policy device.RetryPolicy,
	log logrus.FieldLogger,
) Service {
	if policy.MaxAttempts < 1 {
		policy = device.DefaultRetryPolicy()
	}
	return &service{
		payments: payments,
		device:   dev,
		audit:    auditSvc,
		policy:   policy,
		claimTTL: burstLength(policy) + claimMargin,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func burstLength(p device.RetryPolicy) time.Duration {
	total := time.Duration(p.MaxAttempts) * p.AttemptTimeout
	if p.Backoff != nil {
		for i := 1; i < p.MaxAttempts; i++ {
			total += p.Backoff(i)
		}
	}
	return total
}

func (s *service) Notify(ctx context.Context, chair *models.Chair, paymentID string) (Result, error) {
	log := logger.Payment(s.log, chair.ChairID, paymentID)

	now := s.now()
	claimed, err := s.payments.ClaimNotification(ctx, paymentID, now, now.Add(-s.claimTTL))
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		log.Info("device notification skipped: already notified or in flight")
		return Result{Skipped: true}, nil
	}

	var (
		attempts int
		lastErr  error
	)
	if _, err := device.BaseURL(chair.Address); err != nil {
		lastErr = err
	} else {
		attempts, lastErr = s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
			err := s.device.Activate(ctx, chair.Address, device.Activation{
				ChairID:   chair.ChairID,
				PaymentID: paymentID,
				Timestamp: s.now(),
			})
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"attempt":      attempt,
					"max_attempts": s.policy.MaxAttempts,
					"address":      chair.Address,
				}).Warn("device notification attempt failed")
			}
			return err
		})
	}

	if lastErr != nil {
		if err := s.payments.RecordNotifyFailure(ctx, paymentID, attempts); err != nil {
			return Result{}, err
		}
		log.WithError(lastErr).WithField("attempts", attempts).Error("device notification failed")
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.ActionDeviceNotifyFailed,
			EntityType: models.EntityPayment,
			EntityID:   paymentID,
			ChairID:    chair.ChairID,
			Message:    "device did not acknowledge activation",
			NewValues: models.JSON{
				"attempts": attempts,
				"error":    lastErr.Error(),
			},
		})
		return Result{Attempts: attempts, LastError: lastErr.Error()}, nil
	}

	if _, err := s.payments.MarkNotified(ctx, paymentID, s.now(), attempts); err != nil {
		return Result{}, err
	}
	log.WithField("attempts", attempts).Info("device notified")
	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.ActionDeviceNotified,
		EntityType: models.EntityPayment,
		EntityID:   paymentID,
		ChairID:    chair.ChairID,
		Message:    "device acknowledged activation",
		NewValues:  models.JSON{"attempts": attempts},
	})
	return Result{Delivered: true, Attempts: attempts}, nil
}
