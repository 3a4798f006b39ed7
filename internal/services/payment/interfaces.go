package payment

import (
	"context"

	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/notifier"
	"poltrona/internal/services/session"
)

// Service applies processor observations to local state. The webhook
// ingestor and the polling reconciler both go through Apply, so the two
// paths share one set of conditional writes.
type Service interface {
	Apply(ctx context.Context, remote *processor.Payment, source string) (Outcome, error)

	Get(ctx context.Context, paymentID string) (*models.Payment, error)
	List(ctx context.Context, filter repositories.PaymentFilter, page repositories.Page) ([]models.Payment, int64, error)
	RetryNotification(ctx context.Context, paymentID string) (notifier.Result, error)
	// Wait blocks until background device notifications have finished.
	Wait()
}

// Outcome reports what one Apply call changed.
type Outcome struct {
	PaymentID string               `json:"paymentId"`
	ChairID   string               `json:"chairId"`
	Status    models.PaymentStatus `json:"status"`
	// Transitioned is true only for the caller whose conditional write
	// moved the payment out of pending.
	Transitioned  bool             `json:"transitioned"`
	AmountMatched bool             `json:"amountMatched"`
	Unroutable    bool             `json:"unroutable,omitempty"`
	SessionOpened bool             `json:"sessionOpened"`
	// NotificationQueued is set instead of Notification when delivery
	// runs in the background.
	NotificationQueued bool             `json:"notificationQueued,omitempty"`
	Notification       *notifier.Result `json:"notification,omitempty"`
}

// Sessions is the subset of the session tracker the pipeline drives.
type Sessions interface {
	Open(ctx context.Context, chairID, paymentID string) (session.OpenResult, error)
}
