// Package reconciler re-checks recent pending payments against the
// processor, covering webhooks that never arrived.
package reconciler

import (
	"context"
	"errors"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/payment"

	"github.com/sirupsen/logrus"
)

// Summary is the result of one sweep. Checked counts payments the
// processor answered for; Approved and Rejected count transitions this
// sweep made itself.
type Summary struct {
	Checked  int `json:"checked"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

type Service interface {
	Sweep(ctx context.Context) (Summary, error)
}

type Fetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*processor.Payment, error)
}

type Applier interface {
	Apply(ctx context.Context, remote *processor.Payment, source string) (payment.Outcome, error)
}

type service struct {
	payments repositories.PaymentRepository
	fetcher  Fetcher
	applier  Applier
	window   time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(
	payments repositories.PaymentRepository,
	fetcher Fetcher,
	applier Applier,
	window time.Duration,
	log logrus.FieldLogger,
) Service {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &service{
		payments: payments,
		fetcher:  fetcher,
		applier:  applier,
		window:   window,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs to completion even when individual payments fail. Overlapping
// sweeps are safe: each transition is decided by a conditional write.
func (s *service) Sweep(ctx context.Context) (Summary, error) {
	var summary Summary

	pending, err := s.payments.ListPendingSince(ctx, s.now().Add(-s.window))
	if err != nil {
		return summary, err
	}
	if len(pending) == 0 {
		s.log.Debug("no pending payments to check")
		return summary, nil
	}
	s.log.WithField("pending", len(pending)).Info("checking pending payments")

	for _, p := range pending {
		log := logger.Payment(s.log, p.ChairID, p.PaymentID)

		remote, err := s.fetcher.GetPayment(ctx, p.PaymentID)
		if err != nil {
			if errors.Is(err, processor.ErrNotConfigured) {
				return summary, appErrors.ErrConfigMissing
			}
			log.WithError(err).Warn("processor fetch failed, skipping")
			continue
		}
		summary.Checked++
		if remote.ID == "" {
			remote.ID = processor.PaymentID(p.PaymentID)
		}

		outcome, err := s.applier.Apply(ctx, remote, models.SourcePolling)
		if err != nil {
			log.WithError(err).Error("failed to apply polled payment")
			continue
		}
		if !outcome.Transitioned {
			continue
		}
		switch outcome.Status {
		case models.PaymentStatusApproved:
			summary.Approved++
		case models.PaymentStatusRejected, models.PaymentStatusCancelled:
			summary.Rejected++
		}
	}

	s.log.WithFields(logrus.Fields{
		"checked":  summary.Checked,
		"approved": summary.Approved,
		"rejected": summary.Rejected,
	}).Info("polling sweep complete")
	return summary, nil
}
