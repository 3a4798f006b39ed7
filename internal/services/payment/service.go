// Package payment reconciles processor payment state into local rows and
// drives the consequences of an approval: session, then device.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"
	"poltrona/internal/services/notifier"
	"poltrona/internal/services/session"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type service struct {
	payments  repositories.PaymentRepository
	chairs    repositories.ChairRepository
	sessions  Sessions
	notifier  notifier.Service
	audit     audit.Service
	tolerance decimal.Decimal
	log       logrus.FieldLogger
	now       func() time.Time

	detached map[string]bool
	inflight sync.WaitGroup
}

// Option adjusts a payment service.
type Option func(*service)

// WithDetachedNotify makes approvals observed from the given sources
// hand the device notification to a background goroutine, so Apply
// returns once the session is open. Wait blocks until those finish.
func WithDetachedNotify(sources ...string) Option {
	return func(s *service) {
		for _, src := range sources {
			s.detached[src] = true
		}
	}
}

func NewService(
	payments repositories.PaymentRepository,
	chairs repositories.ChairRepository,
	sessions Sessions,
	notifierSvc notifier.Service,
	auditSvc audit.Service,
	tolerance decimal.Decimal,
	log logrus.FieldLogger,
	opts ...Option,
) Service {
	s := &service{
		payments:  payments,
		chairs:    chairs,
		sessions:  sessions,
		notifier:  notifierSvc,
		audit:     auditSvc,
		tolerance: tolerance,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		detached:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Apply(ctx context.Context, remote *processor.Payment, source string) (Outcome, error) {
	paymentID := remote.ID.String()
	if paymentID == "" {
		return Outcome{}, ErrMissingPaymentID
	}

	status, known := processor.MapStatus(remote.Status)
	if !known {
		s.log.WithFields(logrus.Fields{
			"payment_id":       paymentID,
			"processor_status": remote.Status,
		}).Warn("unknown processor status, treating as pending")
	}

	local, err := s.ensureLocal(ctx, remote, source)
	if err != nil {
		return Outcome{}, err
	}
	if local == nil {
		return Outcome{PaymentID: paymentID, Status: status, Unroutable: true}, nil
	}
	out := Outcome{PaymentID: paymentID, ChairID: local.ChairID, Status: local.Status, AmountMatched: true}
	log := logger.Payment(s.log, local.ChairID, paymentID).WithField("source", source)

	chair, err := s.chairs.FindByChairID(ctx, local.ChairID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return out, err
	}
	if err != nil {
		chair = nil
	}

	switch status {
	case models.PaymentStatusPending:
		return out, nil

	case models.PaymentStatusRejected, models.PaymentStatusCancelled:
		won, err := s.payments.TransitionFromPending(ctx, paymentID, status, remote.StatusDetail, nil)
		if err != nil {
			return out, err
		}
		if won {
			out.Status, out.Transitioned = status, true
			log.WithField("status", status).Info("payment not approved")
			s.audit.Record(ctx, &models.AuditLog{
				Action:     models.ActionPaymentRejected,
				EntityType: models.EntityPayment,
				EntityID:   paymentID,
				ChairID:    local.ChairID,
				Message:    fmt.Sprintf("payment %s (%s)", status, source),
				OldValues:  models.JSON{"status": models.PaymentStatusPending},
				NewValues:  models.JSON{"status": status, "detail": remote.StatusDetail, "source": source},
			})
		} else {
			s.logIgnored(log, local, status)
		}
		return out, nil
	}

	// approved
	if local.Status == models.PaymentStatusPending {
		expected := s.expectedAmount(local, chair)
		if !expected.IsZero() && remote.TransactionAmount.Sub(expected).Abs().GreaterThan(s.tolerance) {
			out.AmountMatched = false
			won, err := s.payments.TransitionFromPending(ctx, paymentID, models.PaymentStatusRejected, models.StatusDetailAmountMismatch, nil)
			if err != nil {
				return out, err
			}
			if won {
				out.Status, out.Transitioned = models.PaymentStatusRejected, true
				log.WithFields(logrus.Fields{
					"expected": expected.StringFixed(2),
					"received": remote.TransactionAmount.StringFixed(2),
				}).Error("approved payment amount does not match the chair price")
				s.audit.Record(ctx, &models.AuditLog{
					Action:     models.ActionPaymentMismatch,
					EntityType: models.EntityPayment,
					EntityID:   paymentID,
					ChairID:    local.ChairID,
					Message:    "payment rejected: amount mismatch",
					NewValues: models.JSON{
						"expected": expected.StringFixed(2),
						"received": remote.TransactionAmount.StringFixed(2),
						"source":   source,
					},
				})
			}
			return out, nil
		}

		approvedAt := s.now()
		if remote.DateApproved != nil {
			approvedAt = remote.DateApproved.UTC()
		}
		won, err := s.payments.TransitionFromPending(ctx, paymentID, models.PaymentStatusApproved, remote.StatusDetail, &approvedAt)
		if err != nil {
			return out, err
		}
		if won {
			out.Status, out.Transitioned = models.PaymentStatusApproved, true
			log.WithField("amount", remote.TransactionAmount.StringFixed(2)).Info("payment approved")
			s.audit.Record(ctx, &models.AuditLog{
				Action:     models.ActionPaymentApproved,
				EntityType: models.EntityPayment,
				EntityID:   paymentID,
				ChairID:    local.ChairID,
				Message:    fmt.Sprintf("payment approved (%s)", source),
				OldValues:  models.JSON{"status": models.PaymentStatusPending},
				NewValues: models.JSON{
					"status":     models.PaymentStatusApproved,
					"amount":     remote.TransactionAmount.StringFixed(2),
					"approvedAt": approvedAt,
					"source":     source,
				},
			})
		}
	}

	// Re-read: another path may have decided the payment meanwhile.
	current, err := s.payments.Find(ctx, paymentID)
	if err != nil {
		return out, err
	}
	out.Status = current.Status
	if current.Status != models.PaymentStatusApproved {
		s.logIgnored(log, current, status)
		return out, nil
	}
	if current.Processed {
		return out, nil
	}

	if chair == nil || !chair.Active {
		if out.Transitioned {
			out.Unroutable = true
			log.Error("approved payment for a missing or inactive chair")
			s.audit.Record(ctx, &models.AuditLog{
				Action:     models.ActionPaymentUnroutable,
				EntityType: models.EntityPayment,
				EntityID:   paymentID,
				ChairID:    local.ChairID,
				Message:    "payment approved but chair is missing or inactive",
			})
		}
		return out, nil
	}

	opened, err := s.sessions.Open(ctx, chair.ChairID, paymentID)
	if err != nil {
		if errors.Is(err, session.ErrSessionConflict) {
			return out, nil
		}
		return out, err
	}
	if !opened.Opened {
		return out, nil
	}
	out.SessionOpened = true

	if s.detached[source] {
		out.NotificationQueued = true
		s.inflight.Add(1)
		go func(ctx context.Context) {
			defer s.inflight.Done()
			s.notify(ctx, log, opened.Chair, paymentID)
		}(context.WithoutCancel(ctx))
		return out, nil
	}
	out.Notification = s.notify(ctx, log, opened.Chair, paymentID)
	return out, nil
}

func (s *service) notify(ctx context.Context, log logrus.FieldLogger, chair *models.Chair, paymentID string) *notifier.Result {
	result, err := s.notifier.Notify(ctx, chair, paymentID)
	if err != nil {
		log.WithError(err).Error("device notification could not be recorded")
		return nil
	}
	return &result
}

func (s *service) Wait() {
	s.inflight.Wait()
}

// ensureLocal returns the local row for the remote payment, creating it as
// pending when absent. A nil row means the payment names no chair.
func (s *service) ensureLocal(ctx context.Context, remote *processor.Payment, source string) (*models.Payment, error) {
	paymentID := remote.ID.String()
	local, err := s.payments.Find(ctx, paymentID)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	chairID := remote.ChairID()
	if chairID == "" {
		s.log.WithField("payment_id", paymentID).Warn("processor payment carries no chair id")
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.ActionPaymentUnroutable,
			EntityType: models.EntityPayment,
			EntityID:   paymentID,
			Message:    "payment metadata has no chair id",
			NewValues:  models.JSON{"status": remote.Status, "source": source},
		})
		return nil, nil
	}

	row := &models.Payment{
		PaymentID: paymentID,
		ChairID:   chairID,
		Amount:    remote.TransactionAmount,
		Status:    models.PaymentStatusPending,
		Source:    source,
	}
	if _, err := s.payments.InsertIfAbsent(ctx, row); err != nil {
		return nil, err
	}
	return s.payments.Find(ctx, paymentID)
}

// expectedAmount is the price committed at intent time, or the chair's
// current price for payments that did not start from an intent.
func (s *service) expectedAmount(local *models.Payment, chair *models.Chair) decimal.Decimal {
	if local.Source == models.SourceIntent {
		return local.Amount
	}
	if chair != nil {
		return chair.Price
	}
	return decimal.Zero
}

func (s *service) logIgnored(log logrus.FieldLogger, local *models.Payment, observed models.PaymentStatus) {
	if local.Status != observed && local.Status.Terminal() {
		log.WithFields(logrus.Fields{
			"stored":   local.Status,
			"observed": observed,
		}).Warn("ignoring status change on a terminal payment")
	}
}

func (s *service) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := s.payments.Find(ctx, paymentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, appErrors.ErrPaymentNotFound
	}
	return p, err
}

func (s *service) List(ctx context.Context, filter repositories.PaymentFilter, page repositories.Page) ([]models.Payment, int64, error) {
	return s.payments.List(ctx, filter, page)
}

// RetryNotification re-runs the notifier for an approved payment that was
// never acknowledged by its device.
func (s *service) RetryNotification(ctx context.Context, paymentID string) (notifier.Result, error) {
	p, err := s.Get(ctx, paymentID)
	if err != nil {
		return notifier.Result{}, err
	}
	if p.Status != models.PaymentStatusApproved {
		return notifier.Result{}, appErrors.ErrPaymentNotApproved
	}
	if p.NotifiedAt != nil {
		return notifier.Result{}, appErrors.ErrAlreadyNotified
	}

	chair, err := s.chairs.FindByChairID(ctx, p.ChairID)
	if errors.Is(err, repositories.ErrNotFound) {
		return notifier.Result{}, appErrors.ErrChairNotFound
	}
	if err != nil {
		return notifier.Result{}, err
	}
	if chair.Address == "" {
		return notifier.Result{}, appErrors.ErrDeviceAddressMissing
	}
	return s.notifier.Notify(ctx, chair, paymentID)
}
