// Package chair manages the chair registry. Session and intent columns are
// never touched here.
package chair

import (
	"context"
	"errors"
	"strings"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"

	"github.com/sirupsen/logrus"
)

type service struct {
	chairs        repositories.ChairRepository
	relay         Relay
	audit         audit.Service
	publicBaseURL string
	testTimeout   time.Duration
	log           logrus.FieldLogger
}

func NewService(
	chairs repositories.ChairRepository,
	relay Relay,
	auditSvc audit.Service,
	publicBaseURL string,
	testTimeout time.Duration,
	log logrus.FieldLogger,
) Service {
	if testTimeout <= 0 {
		testTimeout = 5 * time.Second
	}
	return &service{
		chairs:        chairs,
		relay:         relay,
		audit:         auditSvc,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		testTimeout:   testTimeout,
		log:           log,
	}
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.Chair, error) {
	return s.chairs.List(ctx, repositories.ChairFilter{ActiveOnly: activeOnly})
}

func (s *service) Get(ctx context.Context, chairID string) (*models.Chair, error) {
	chair, err := s.chairs.GetConfig(ctx, chairID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, appErrors.ErrChairNotFound
	}
	return chair, err
}

func (s *service) Create(ctx context.Context, actor Actor, in CreateInput) (*models.Chair, error) {
	chair := &models.Chair{
		ChairID:          strings.TrimSpace(in.ChairID),
		Address:          strings.TrimSpace(in.Address),
		Price:            in.Price.Round(2),
		DurationSeconds:  in.DurationSeconds,
		Location:         in.Location,
		Active:           true,
		PublicPaymentURL: in.PublicPaymentURL,
	}
	if in.Active != nil {
		chair.Active = *in.Active
	}
	if chair.PublicPaymentURL == "" {
		chair.PublicPaymentURL = s.PublicPaymentURL(chair.ChairID)
	}

	if err := s.chairs.Create(ctx, chair); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, appErrors.ErrChairExists
		}
		return nil, err
	}

	s.record(ctx, actor, models.ActionChairCreated, chair.ChairID, nil, configSnapshot(chair))
	return chair, nil
}

func (s *service) Update(ctx context.Context, actor Actor, chairID string, update repositories.ChairConfigUpdate) (*models.Chair, error) {
	before, err := s.chairs.FindByChairID(ctx, chairID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, appErrors.ErrChairNotFound
	}
	if err != nil {
		return nil, err
	}
	if update.Price != nil {
		rounded := update.Price.Round(2)
		update.Price = &rounded
	}

	after, err := s.chairs.UpdateConfig(ctx, chairID, update)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, appErrors.ErrChairNotFound
	}
	if err != nil {
		return nil, err
	}

	action := models.ActionChairUpdated
	if before.Active && !after.Active {
		action = models.ActionChairDeactivated
	}
	s.record(ctx, actor, action, chairID, configSnapshot(before), configSnapshot(after))
	return after, nil
}

func (s *service) Deactivate(ctx context.Context, actor Actor, chairID string) (*models.Chair, error) {
	inactive := false
	return s.Update(ctx, actor, chairID, repositories.ChairConfigUpdate{Active: &inactive})
}

// TestRelay fires the chair's relay once, bounded by the test timeout.
func (s *service) TestRelay(ctx context.Context, actor Actor, chairID string) error {
	chair, err := s.Get(ctx, chairID)
	if err != nil {
		return err
	}
	if chair.Address == "" {
		return appErrors.ErrDeviceAddressMissing
	}

	testCtx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()
	err = s.relay.Test(testCtx, chair.Address)

	values := models.JSON{"address": chair.Address, "success": err == nil}
	if err != nil {
		values["error"] = err.Error()
		logger.Chair(s.log, chairID).WithError(err).Warn("relay test failed")
	}
	s.record(ctx, actor, models.ActionDeviceTest, chairID, nil, values)

	if err != nil {
		return appErrors.ErrDeviceUnreachable
	}
	return nil
}

// PublicPaymentURL is the printable, session-independent payment link.
func (s *service) PublicPaymentURL(chairID string) string {
	return s.publicBaseURL + "/pay/" + chairID
}

func (s *service) record(ctx context.Context, actor Actor, action, chairID string, before, after models.JSON) {
	entityType := models.EntityChair
	if action == models.ActionDeviceTest {
		entityType = models.EntityDevice
	}
	s.audit.Record(ctx, &models.AuditLog{
		Actor:      actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   chairID,
		ChairID:    chairID,
		OldValues:  before,
		NewValues:  after,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	})
}

func configSnapshot(c *models.Chair) models.JSON {
	return models.JSON{
		"address":          c.Address,
		"price":            c.Price.StringFixed(2),
		"durationSeconds":  c.DurationSeconds,
		"location":         c.Location,
		"active":           c.Active,
		"publicPaymentUrl": c.PublicPaymentURL,
	}
}
