// Package processor talks to the payment processor's REST API (Mercado Pago
// PIX). Calls are single-shot: retrying is left to the caller's caller.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"poltrona/internal/config"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrPaymentNotFound is returned when the processor has no such payment.
	ErrPaymentNotFound = errors.New("processor: payment not found")
	// ErrUnauthorized means the access token was refused.
	ErrUnauthorized = errors.New("processor: access token rejected")
	// ErrNotConfigured is returned without any network call when no access
	// token is set.
	ErrNotConfigured = errors.New("processor: access token not configured")
)

// APIError is a non-2xx processor answer. Body details are kept for logs
// only.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor: status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	http       *resty.Client
	configured bool
}

// NewClient builds a client for the configured base URL. Every request is
// bounded by cfg.Timeout.
func NewClient(cfg config.ProcessorConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Accept", "application/json")

	return &Client{http: client, configured: cfg.AccessToken != ""}
}

// CreatePayment opens a PIX charge bound to req.ChairID. The idempotency
// key makes a replayed request return the original payment.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	body := createPaymentBody{
		TransactionAmount: jsonAmount(req),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer:             payer{Email: req.PayerEmail},
		Metadata:          map[string]string{"chair_id": req.ChairID},
		NotificationURL:   req.NotificationURL,
		ExternalReference: req.ChairID,
	}

	var payment Payment
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", req.IdempotencyKey).
		SetBody(body).
		SetResult(&payment).
		SetError(&apiErr).
		Post("/v1/payments")
	if err != nil {
		return nil, fmt.Errorf("processor: create payment: %w", err)
	}
	if resp.IsError() {
		return nil, toError(resp.StatusCode(), apiErr)
	}
	if payment.ID == "" {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: "response without payment id"}
	}
	return &payment, nil
}

// GetPayment fetches the authoritative state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	var payment Payment
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&payment).
		SetError(&apiErr).
		Get("/v1/payments/{id}")
	if err != nil {
		return nil, fmt.Errorf("processor: get payment %s: %w", paymentID, err)
	}
	if resp.IsError() {
		return nil, toError(resp.StatusCode(), apiErr)
	}
	return &payment, nil
}

// Ping checks connectivity and token validity. It returns the number of
// payment methods the account can use.
func (c *Client) Ping(ctx context.Context) (int, error) {
	if !c.configured {
		return 0, ErrNotConfigured
	}
	var methods []map[string]interface{}
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&methods).
		SetError(&apiErr).
		Get("/v1/payment_methods")
	if err != nil {
		return 0, fmt.Errorf("processor: ping: %w", err)
	}
	if resp.IsError() {
		return 0, toError(resp.StatusCode(), apiErr)
	}
	return len(methods), nil
}

func toError(status int, body apiError) error {
	switch status {
	case http.StatusNotFound:
		return ErrPaymentNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

func jsonAmount(req CreatePaymentRequest) json.Number {
	return json.Number(req.Amount.StringFixed(2))
}
