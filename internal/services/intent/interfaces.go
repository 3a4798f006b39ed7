package intent

import (
	"context"
	"time"

	"poltrona/internal/processor"

	"github.com/shopspring/decimal"
)

// Service issues the payable reference for a chair.
type Service interface {
	Create(ctx context.Context, chairID string) (*Intent, error)
}

// Processor is the part of the processor client used to open charges.
type Processor interface {
	CreatePayment(ctx context.Context, req processor.CreatePaymentRequest) (*processor.Payment, error)
}

// SessionExpirer closes a session whose end has passed.
type SessionExpirer interface {
	Expire(ctx context.Context, chairID string) (bool, error)
}

// Intent is the payable reference bound to one chair.
type Intent struct {
	ChairID      string          `json:"chairId"`
	PaymentID    string          `json:"paymentId"`
	QRCode       string          `json:"qrCode"`
	QRCodeBase64 string          `json:"qrCodeBase64,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"createdAt"`
	Reused       bool            `json:"reused"`
}

// Config tunes intent creation.
type Config struct {
	// PollWindow is how long an unpaid intent stays reusable. Past it the
	// poller stops looking at the payment, so a new intent is issued.
	PollWindow      time.Duration
	NotificationURL string
	PayerEmail      string
}
