// Package intent creates payment intents. An intent is keyed by chair and
// intent generation, so concurrent or repeated requests converge on one
// processor payment.
package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"

	"github.com/sirupsen/logrus"
)

const (
	defaultPayerEmail = "pagador@example.com"
	// approvalGrace is how long an approved payment may stay unprocessed
	// while its session is being opened.
	approvalGrace = time.Minute
)

type service struct {
	chairs    repositories.ChairRepository
	payments  repositories.PaymentRepository
	processor Processor
	sessions  SessionExpirer
	audit     audit.Service
	config    Config
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(
	chairs repositories.ChairRepository,
	payments repositories.PaymentRepository,
	proc Processor,
	sessions SessionExpirer,
	auditSvc audit.Service,
	config Config,
	log logrus.FieldLogger,
) Service {
	if config.PollWindow == 0 {
		config.PollWindow = 30 * time.Minute
	}
	if config.PayerEmail == "" {
		config.PayerEmail = defaultPayerEmail
	}
	return &service{
		chairs:    chairs,
		payments:  payments,
		processor: proc,
		sessions:  sessions,
		audit:     auditSvc,
		config:    config,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Create(ctx context.Context, chairID string) (*Intent, error) {
	chair, err := s.loadChair(ctx, chairID)
	if err != nil {
		return nil, err
	}
	if !chair.Active {
		return nil, appErrors.ErrChairInactive
	}

	now := s.now()
	if session, ok := chair.CurrentSession(); ok {
		if !session.Expired(now) {
			return nil, appErrors.Busy(session.Remaining(now))
		}
		// The expiry sweep has not run yet; close it here.
		if _, err := s.sessions.Expire(ctx, chairID); err != nil {
			return nil, err
		}
		if chair, err = s.loadChair(ctx, chairID); err != nil {
			return nil, err
		}
	}

	if chair.Intent.Bound() {
		existing, err := s.reuse(ctx, chair, now)
		if err != nil || existing != nil {
			return existing, err
		}
		if chair, err = s.loadChair(ctx, chairID); err != nil {
			return nil, err
		}
	}

	return s.issue(ctx, chair, now)
}

// reuse returns the bound intent while its payment is still payable. A
// dead intent is released and nil is returned so a fresh one is issued.
func (s *service) reuse(ctx context.Context, chair *models.Chair, now time.Time) (*Intent, error) {
	paymentID := *chair.Intent.PaymentID
	payment, err := s.payments.Find(ctx, paymentID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	if payment != nil {
		switch {
		case payment.Status == models.PaymentStatusPending && now.Sub(payment.CreatedAt) < s.config.PollWindow:
			intent := fromChair(chair)
			intent.Reused = true
			return intent, nil
		case payment.Status == models.PaymentStatusApproved && !payment.Processed && s.opening(payment, now):
			// Paid, session about to open.
			return nil, appErrors.Busy(chair.Duration())
		case payment.Status == models.PaymentStatusApproved && !payment.Processed:
			// Approved while the chair was inactive or busy; no session will
			// ever open for it.
			logger.Payment(s.log, chair.ChairID, paymentID).Warn("approved payment never opened a session")
		}
	}

	if _, err := s.chairs.ReleaseIntent(ctx, chair.ChairID, chair.Intent.Seq); err != nil {
		return nil, err
	}
	logger.Payment(s.log, chair.ChairID, paymentID).Info("released stale intent")
	return nil, nil
}

// opening reports whether an approved but unprocessed payment is still
// inside the window in which its session is expected to open.
func (s *service) opening(payment *models.Payment, now time.Time) bool {
	approvedAt := payment.UpdatedAt
	if payment.ApprovedAt != nil {
		approvedAt = *payment.ApprovedAt
	}
	return now.Sub(approvedAt) < approvalGrace
}

func (s *service) issue(ctx context.Context, chair *models.Chair, now time.Time) (*Intent, error) {
	seq := chair.Intent.Seq
	remote, err := s.processor.CreatePayment(ctx, processor.CreatePaymentRequest{
		ChairID:         chair.ChairID,
		Amount:          chair.Price,
		Description:     fmt.Sprintf("Poltrona %s", chair.ChairID),
		PayerEmail:      s.config.PayerEmail,
		NotificationURL: s.config.NotificationURL,
		IdempotencyKey:  fmt.Sprintf("chair-%s-%d", chair.ChairID, seq),
	})
	if err != nil {
		logger.Chair(s.log, chair.ChairID).WithError(err).Error("processor refused payment creation")
		if errors.Is(err, processor.ErrNotConfigured) {
			return nil, appErrors.ErrConfigMissing
		}
		return nil, appErrors.ErrUpstreamUnavailable
	}

	paymentID := remote.ID.String()
	if _, err := s.payments.InsertIfAbsent(ctx, &models.Payment{
		PaymentID: paymentID,
		ChairID:   chair.ChairID,
		Amount:    chair.Price,
		Status:    models.PaymentStatusPending,
		Source:    models.SourceIntent,
	}); err != nil {
		return nil, err
	}

	qr, qr64 := remote.QRCode(), remote.QRCodeBase64()
	bound := models.ChairIntent{
		Seq:          seq,
		PaymentID:    &paymentID,
		QRCode:       &qr,
		QRCodeBase64: &qr64,
		CreatedAt:    &now,
	}
	bound.Amount.Decimal, bound.Amount.Valid = chair.Price, true

	attached, err := s.chairs.AttachIntent(ctx, chair.ChairID, seq, bound)
	if err != nil {
		return nil, err
	}
	if !attached {
		// A concurrent request bound its intent first; with the same
		// idempotency key it is the same payment.
		current, err := s.loadChair(ctx, chair.ChairID)
		if err != nil {
			return nil, err
		}
		if current.Intent.Bound() {
			intent := fromChair(current)
			intent.Reused = true
			return intent, nil
		}
		return nil, appErrors.ErrChairBusy.WithMessage("chair state changed, try again")
	}

	chair.Intent = bound
	logger.Payment(s.log, chair.ChairID, paymentID).WithField("amount", chair.Price.StringFixed(2)).Info("payment intent created")
	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.ActionIntentCreated,
		EntityType: models.EntityPayment,
		EntityID:   paymentID,
		ChairID:    chair.ChairID,
		Message:    "payment intent issued",
		NewValues:  models.JSON{"amount": chair.Price.StringFixed(2), "seq": seq},
	})
	return fromChair(chair), nil
}

func (s *service) loadChair(ctx context.Context, chairID string) (*models.Chair, error) {
	chair, err := s.chairs.FindByChairID(ctx, chairID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, appErrors.ErrChairNotFound
	}
	return chair, err
}

func fromChair(chair *models.Chair) *Intent {
	in := &Intent{
		ChairID: chair.ChairID,
		Amount:  chair.Price,
	}
	if chair.Intent.PaymentID != nil {
		in.PaymentID = *chair.Intent.PaymentID
	}
	if chair.Intent.QRCode != nil {
		in.QRCode = *chair.Intent.QRCode
	}
	if chair.Intent.QRCodeBase64 != nil {
		in.QRCodeBase64 = *chair.Intent.QRCodeBase64
	}
	if chair.Intent.Amount.Valid {
		in.Amount = chair.Intent.Amount.Decimal
	}
	if chair.Intent.CreatedAt != nil {
		in.CreatedAt = *chair.Intent.CreatedAt
	}
	return in
}
