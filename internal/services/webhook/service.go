// Package webhook ingests processor notifications.
package webhook

import (
	"context"
	"errors"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/services/audit"

	"github.com/sirupsen/logrus"
)

type service struct {
	fetcher  Fetcher
	payments Applier
	audit    audit.Service
	log      logrus.FieldLogger
}

func NewService(fetcher Fetcher, payments Applier, auditSvc audit.Service, log logrus.FieldLogger) Service {
	return &service{fetcher: fetcher, payments: payments, audit: auditSvc, log: log}
}

// Handle never asks the processor to redeliver: soft failures are logged
// and acknowledged, and the poller picks up whatever was missed. Only a
// missing processor configuration is returned as an error.
func (s *service) Handle(ctx context.Context, env Envelope) (Ack, error) {
	log := s.log.WithFields(logrus.Fields{
		"type":       env.Type,
		"action":     env.Action,
		"payment_id": env.Data.ID.String(),
	})

	if env.Type != "payment" {
		log.Info("webhook ignored: not a payment notification")
		return Ack{Action: AckIgnored}, nil
	}
	if env.LiveMode != nil && !*env.LiveMode && env.ID != "" {
		log.Info("test webhook acknowledged")
		return Ack{Action: AckTest}, nil
	}

	paymentID := env.Data.ID.String()
	if paymentID == "" {
		log.Warn("payment notification without data.id")
		return Ack{Action: AckIgnored}, nil
	}

	remote, err := s.fetcher.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, processor.ErrNotConfigured) {
			return Ack{}, appErrors.ErrConfigMissing
		}
		log.WithError(err).Error("failed to fetch payment from processor")
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.ActionWebhookFetchFailed,
			EntityType: models.EntityPayment,
			EntityID:   paymentID,
			Message:    "webhook received but payment could not be fetched",
			NewValues:  models.JSON{"error": err.Error()},
		})
		return Ack{Action: AckFetchFailed}, nil
	}
	if remote.ID == "" {
		remote.ID = processor.PaymentID(paymentID)
	}

	outcome, err := s.payments.Apply(ctx, remote, models.SourceWebhook)
	if err != nil {
		log.WithError(err).Error("failed to apply webhook payment")
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.ActionWebhookApplyFailed,
			EntityType: models.EntityPayment,
			EntityID:   paymentID,
			ChairID:    remote.ChairID(),
			Message:    "webhook payment fetched but could not be applied",
			NewValues:  models.JSON{"status": remote.Status, "error": err.Error()},
		})
		return Ack{Action: AckApplied, Outcome: &outcome}, nil
	}
	log.WithFields(logrus.Fields{
		"status":         outcome.Status,
		"transitioned":   outcome.Transitioned,
		"session_opened": outcome.SessionOpened,
	}).Info("webhook processed")
	return Ack{Action: AckApplied, Outcome: &outcome}, nil
}
