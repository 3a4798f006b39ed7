// Package session opens and expires chair sessions. Every transition is a
// conditional write on the chair row, so concurrent callers never need a
// lock to agree.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"

	"github.com/sirupsen/logrus"
)

type service struct {
	uow    repositories.UnitOfWork
	chairs repositories.ChairRepository
	audit  audit.Service
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(
	uow repositories.UnitOfWork,
	chairs repositories.ChairRepository,
	auditSvc audit.Service,
	log logrus.FieldLogger,
) Service {
	return &service{
		uow:    uow,
		chairs: chairs,
		audit:  auditSvc,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open marks the payment processed and activates the chair in one
// transaction. If the chair is busy the processed flag is rolled back.
func (s *service) Open(ctx context.Context, chairID, paymentID string) (OpenResult, error) {
	var result OpenResult
	now := s.now()

	err := s.uow.Within(ctx, func(chairs repositories.ChairRepository, payments repositories.PaymentRepository) error {
		chair, err := chairs.FindByChairID(ctx, chairID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return appErrors.ErrChairNotFound
			}
			return err
		}
		if !chair.Active {
			return appErrors.ErrChairInactive
		}

		marked, err := payments.MarkProcessed(ctx, paymentID)
		if err != nil {
			return err
		}
		if !marked {
			result.AlreadyProcessed = true
			return nil
		}

		endsAt := now.Add(chair.Duration())
		opened, err := chairs.OpenSession(ctx, chairID, paymentID, now, endsAt)
		if err != nil {
			return err
		}
		if !opened {
			return ErrSessionConflict
		}

		chair.Session = models.ChairSession{Active: true, StartedAt: &now, EndsAt: &endsAt, PaymentID: &paymentID}
		result = OpenResult{Opened: true, Chair: chair, EndsAt: endsAt}
		return nil
	})

	log := logger.Payment(s.log, chairID, paymentID)
	switch {
	case errors.Is(err, ErrSessionConflict):
		log.Warn("approved payment found the chair already in a session")
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.ActionSessionConflict,
			EntityType: models.EntitySession,
			EntityID:   chairID,
			ChairID:    chairID,
			Message:    "payment approved while chair was in use; session not opened",
			NewValues:  models.JSON{"paymentId": paymentID},
		})
		return OpenResult{}, err
	case err != nil:
		return OpenResult{}, fmt.Errorf("open session: %w", err)
	}

	if result.Opened {
		log.WithField("ends_at", result.EndsAt).Info("session opened")
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.ActionSessionOpened,
			EntityType: models.EntitySession,
			EntityID:   chairID,
			ChairID:    chairID,
			Message:    "session started",
			NewValues: models.JSON{
				"paymentId": paymentID,
				"startedAt": now,
				"endsAt":    result.EndsAt,
			},
		})
	}
	return result, nil
}

func (s *service) Expire(ctx context.Context, chairID string) (bool, error) {
	now := s.now()
	chair, err := s.chairs.FindByChairID(ctx, chairID)
	if err != nil {
		return false, err
	}
	expired, err := s.chairs.ExpireSession(ctx, chairID, now)
	if err != nil || !expired {
		return false, err
	}
	s.recordExpiry(ctx, chair)
	return true, nil
}

func (s *service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.chairs.ListExpiredSessions(ctx, now)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for i := range due {
		chair := &due[i]
		expired, err := s.chairs.ExpireSession(ctx, chair.ChairID, now)
		if err != nil {
			logger.Chair(s.log, chair.ChairID).WithError(err).Error("failed to expire session")
			continue
		}
		if !expired {
			continue
		}
		cleaned++
		s.recordExpiry(ctx, chair)
	}

	if cleaned > 0 {
		s.log.WithField("cleaned", cleaned).Info("expired sessions cleaned")
	}
	return cleaned, nil
}

func (s *service) recordExpiry(ctx context.Context, before *models.Chair) {
	old := models.JSON{}
	if before.Session.PaymentID != nil {
		old["paymentId"] = *before.Session.PaymentID
	}
	if before.Session.EndsAt != nil {
		old["endsAt"] = *before.Session.EndsAt
	}
	if before.Intent.PaymentID != nil {
		old["intentPaymentId"] = *before.Intent.PaymentID
	}

	logger.Chair(s.log, before.ChairID).Info("session expired")
	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.ActionSessionExpired,
		EntityType: models.EntitySession,
		EntityID:   before.ChairID,
		ChairID:    before.ChairID,
		Message:    "session ended",
		OldValues:  old,
	})
}
