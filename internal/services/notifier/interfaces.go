package notifier

import (
	"context"

	"poltrona/internal/device"
	"poltrona/internal/models"
)

// Service delivers the activation signal for an approved payment.
type Service interface {
	// Notify sends at most one bounded burst of attempts per payment. A
	// payment already notified, or being notified elsewhere, is skipped.
	Notify(ctx context.Context, chair *models.Chair, paymentID string) (Result, error)
}

// Device is the controller transport.
type Device interface {
	Activate(ctx context.Context, address string, body device.Activation) error
}

// Result is the observable outcome of one Notify call.
type Result struct {
	Delivered bool   `json:"delivered"`
	Skipped   bool   `json:"skipped"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}
