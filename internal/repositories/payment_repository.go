package repositories

import (
	"context"
	"time"

	"poltrona/internal/models"
)

// PaymentFilter narrows admin payment listings.
type PaymentFilter struct {
	ChairID string
	Status  models.PaymentStatus
}

// PaymentRepository defines payment persistence. Status, processed and
// notification columns only move forward through conditional writes.
type PaymentRepository interface {
	Find(ctx context.Context, paymentID string) (*models.Payment, error)
	InsertIfAbsent(ctx context.Context, payment *models.Payment) (bool, error)
	TransitionFromPending(ctx context.Context, paymentID string, to models.PaymentStatus, detail string, approvedAt *time.Time) (bool, error)
	ListPendingSince(ctx context.Context, since time.Time) ([]models.Payment, error)
	List(ctx context.Context, filter PaymentFilter, page Page) ([]models.Payment, int64, error)

	// Business effect
	MarkProcessed(ctx context.Context, paymentID string) (bool, error)

	// Device notification
	ClaimNotification(ctx context.Context, paymentID string, now, staleBefore time.Time) (bool, error)
	MarkNotified(ctx context.Context, paymentID string, at time.Time, attempts int) (bool, error)
	RecordNotifyFailure(ctx context.Context, paymentID string, attempts int) error
}
