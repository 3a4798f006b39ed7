// Package audit appends to the audit log and mirrors system events to the
// message broker.
package audit

import (
	"context"
	"time"

	"poltrona/internal/events"
	"poltrona/internal/models"
	"poltrona/internal/repositories"

	"github.com/sirupsen/logrus"
)

// Service records audit entries. Recording never fails the caller: a store
// or broker error is logged and swallowed.
type Service interface {
	Record(ctx context.Context, entry *models.AuditLog)
	List(ctx context.Context, filter repositories.AuditFilter, page repositories.Page) ([]models.AuditLog, int64, error)
}

type service struct {
	repo      repositories.AuditRepository
	publisher events.Publisher
	log       logrus.FieldLogger
}

func NewService(repo repositories.AuditRepository, publisher events.Publisher, log logrus.FieldLogger) Service {
	if repo == nil {
		panic("audit repository is required")
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &service{repo: repo, publisher: publisher, log: log}
}

func (s *service) Record(ctx context.Context, entry *models.AuditLog) {
	if entry.Actor == "" {
		entry.Actor = models.ActorSystem
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action":    entry.Action,
			"entity_id": entry.EntityID,
			"chair_id":  entry.ChairID,
		}).Error("failed to write audit log")
	}

	if entry.Actor != models.ActorSystem {
		return
	}
	event := events.Event{
		Type:       entry.Action,
		ChairID:    entry.ChairID,
		OccurredAt: time.Now().UTC(),
		Data:       entry.NewValues,
	}
	if entry.EntityType == models.EntityPayment {
		event.PaymentID = entry.EntityID
	} else if id, ok := entry.NewValues["paymentId"].(string); ok {
		event.PaymentID = id
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithField("event", event.Type).Warn("failed to publish event")
	}
}

func (s *service) List(ctx context.Context, filter repositories.AuditFilter, page repositories.Page) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, filter, page)
}
