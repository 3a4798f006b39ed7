package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentID is the processor-assigned id. The API returns it as a number
// but webhooks and older payloads sometimes carry it as a string.
type PaymentID string

func (id *PaymentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PaymentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid payment id %s: %w", data, err)
	}
	*id = PaymentID(n.String())
	return nil
}

func (id PaymentID) String() string { return string(id) }

// CreatePaymentRequest is what the intent creator sends for a PIX charge.
type CreatePaymentRequest struct {
	ChairID         string
	Amount          decimal.Decimal
	Description     string
	PayerEmail      string
	NotificationURL string
	IdempotencyKey  string
}

type createPaymentBody struct {
	TransactionAmount json.Number       `json:"transaction_amount"`
	Description       string            `json:"description"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Payer             payer             `json:"payer"`
	Metadata          map[string]string `json:"metadata"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	ExternalReference string            `json:"external_reference,omitempty"`
}

type payer struct {
	Email string `json:"email"`
}

// Payment is the subset of the processor's payment resource the pipeline
// reads.
type Payment struct {
	ID                 PaymentID              `json:"id"`
	Status             string                 `json:"status"`
	StatusDetail       string                 `json:"status_detail"`
	TransactionAmount  decimal.Decimal        `json:"transaction_amount"`
	DateApproved       *time.Time             `json:"date_approved"`
	DateOfExpiration   *time.Time             `json:"date_of_expiration"`
	ExternalReference  string                 `json:"external_reference"`
	Metadata           map[string]interface{} `json:"metadata"`
	LiveMode           bool                   `json:"live_mode"`
	PointOfInteraction pointOfInteraction     `json:"point_of_interaction"`
}

type pointOfInteraction struct {
	TransactionData struct {
		QRCode       string `json:"qr_code"`
		QRCodeBase64 string `json:"qr_code_base64"`
		TicketURL    string `json:"ticket_url"`
	} `json:"transaction_data"`
}

// QRCode returns the PIX copy-and-paste payload.
func (p *Payment) QRCode() string { return p.PointOfInteraction.TransactionData.QRCode }

// QRCodeBase64 returns the rendered QR image as base64 PNG.
func (p *Payment) QRCodeBase64() string { return p.PointOfInteraction.TransactionData.QRCodeBase64 }

// ChairID extracts the chair the payment was created for. Payments issued
// by the previous dashboard carry the id under poltrona_id.
func (p *Payment) ChairID() string {
	for _, key := range []string{"chair_id", "poltrona_id"} {
		switch v := p.Metadata[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if p.ExternalReference != "" {
		return p.ExternalReference
	}
	return ""
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}
