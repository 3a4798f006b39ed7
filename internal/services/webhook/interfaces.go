package webhook

import (
	"context"

	"poltrona/internal/processor"
	"poltrona/internal/services/payment"
)

// Service handles processor push notifications.
type Service interface {
	Handle(ctx context.Context, env Envelope) (Ack, error)
}

// Fetcher re-reads a payment from the processor.
type Fetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*processor.Payment, error)
}

// Applier reconciles a fetched payment.
type Applier interface {
	Apply(ctx context.Context, remote *processor.Payment, source string) (payment.Outcome, error)
}

// Envelope is the processor's notification body. It is only a hint: the
// payment is always re-fetched.
type Envelope struct {
	ID       processor.PaymentID `json:"id"`
	Type     string              `json:"type"`
	Action   string              `json:"action"`
	LiveMode *bool               `json:"live_mode"`
	Data     struct {
		ID processor.PaymentID `json:"id"`
	} `json:"data"`
}

// Ack summarizes what was done with a notification. The HTTP layer always
// answers success; Ack is for logs and tests.
type Ack struct {
	Action  string           `json:"action"`
	Outcome *payment.Outcome `json:"outcome,omitempty"`
}

// Ack actions.
const (
	AckIgnored     = "ignored"
	AckTest        = "test"
	AckFetchFailed = "fetch_failed"
	AckApplied     = "applied"
)
