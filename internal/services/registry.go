// Package services wires the pipeline services together. The HTTP server,
// the in-process scheduler and the sweeper CLI all build one Registry.
package services

import (
	"context"

	"poltrona/internal/config"
	"poltrona/internal/device"
	"poltrona/internal/events"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"
	"poltrona/internal/services/chair"
	"poltrona/internal/services/intent"
	"poltrona/internal/services/notifier"
	"poltrona/internal/services/payment"
	"poltrona/internal/services/presence"
	"poltrona/internal/services/reconciler"
	"poltrona/internal/services/session"
	"poltrona/internal/services/webhook"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessorClient is everything the pipeline asks of the payment processor.
type ProcessorClient interface {
	CreatePayment(ctx context.Context, req processor.CreatePaymentRequest) (*processor.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*processor.Payment, error)
	Ping(ctx context.Context) (int, error)
}

// DeviceClient talks to chair controllers.
type DeviceClient interface {
	Activate(ctx context.Context, address string, body device.Activation) error
	Test(ctx context.Context, address string) error
}

type Deps struct {
	DB        *gorm.DB
	Cache     repositories.ChairCache
	Publisher events.Publisher
	Processor ProcessorClient
	Device    DeviceClient
	Config    config.Config
	Log       logrus.FieldLogger
}

type Registry struct {
	Audit      audit.Service
	Chairs     chair.Service
	Intents    intent.Service
	Payments   payment.Service
	Webhooks   webhook.Service
	Reconciler reconciler.Service
	Sessions   session.Service
	Notifier   notifier.Service
	Presence   presence.Service
	Processor  ProcessorClient
}

func NewRegistry(d Deps) *Registry {
	if d.DB == nil {
		panic("database is required")
	}
	if d.Processor == nil || d.Device == nil {
		panic("processor and device clients are required")
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	cfg := d.Config

	chairRepo := repositories.NewChairRepository(d.DB, d.Cache)
	paymentRepo := repositories.NewPaymentRepository(d.DB)
	uow := repositories.NewUnitOfWork(d.DB, d.Cache)

	auditSvc := audit.NewService(repositories.NewAuditRepository(d.DB), d.Publisher, d.Log.WithField("component", "audit"))
	sessionSvc := session.NewService(uow, chairRepo, auditSvc, d.Log.WithField("component", "session"))
	notifierSvc := notifier.NewService(paymentRepo, d.Device, auditSvc, retryPolicy(cfg.Device), d.Log.WithField("component", "notifier"))

	paymentSvc := payment.NewService(
		paymentRepo,
		chairRepo,
		sessionSvc,
		notifierSvc,
		auditSvc,
		cfg.AmountTolerance,
		d.Log.WithField("component", "payment"),
		payment.WithDetachedNotify(models.SourceWebhook),
	)

	intentSvc := intent.NewService(
		chairRepo,
		paymentRepo,
		d.Processor,
		sessionSvc,
		auditSvc,
		intent.Config{
			PollWindow:      cfg.PollWindow,
			NotificationURL: cfg.Processor.WebhookURL,
		},
		d.Log.WithField("component", "intent"),
	)

	return &Registry{
		Audit:      auditSvc,
		Chairs:     chair.NewService(chairRepo, d.Device, auditSvc, cfg.PublicBaseURL, cfg.Device.AttemptTimeout, d.Log.WithField("component", "chair")),
		Intents:    intentSvc,
		Payments:   paymentSvc,
		Webhooks:   webhook.NewService(d.Processor, paymentSvc, auditSvc, d.Log.WithField("component", "webhook")),
		Reconciler: reconciler.NewService(paymentRepo, d.Processor, paymentSvc, cfg.PollWindow, d.Log.WithField("component", "reconciler")),
		Sessions:   sessionSvc,
		Notifier:   notifierSvc,
		Presence:   presence.NewService(repositories.NewDeviceStatusRepository(d.DB), cfg.PresenceWindow),
		Processor:  d.Processor,
	}
}

func retryPolicy(cfg config.DeviceConfig) device.RetryPolicy {
	policy := device.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.AttemptTimeout > 0 {
		policy.AttemptTimeout = cfg.AttemptTimeout
	}
	if cfg.BackoffUnit > 0 {
		policy.Backoff = device.LinearBackoff(cfg.BackoffUnit)
	}
	return policy
}
