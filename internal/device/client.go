// Package device drives the chair controllers over plain HTTP.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoAddress is returned for a chair registered without a network address.
var ErrNoAddress = errors.New("device: no address configured")

// StatusError is a non-2xx answer from a controller.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device: unexpected status %d", e.StatusCode)
}

// Activation is the body of the relay-activation call.
type Activation struct {
	ChairID   string    `json:"poltrona_id"`
	PaymentID string    `json:"payment_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Client issues single requests. Deadlines come from the caller's context;
// retries come from a RetryPolicy.
type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	return &Client{
		http: resty.New().SetHeader("Content-Type", "application/json"),
	}
}

// Activate tells the controller at address that a payment was approved.
func (c *Client) Activate(ctx context.Context, address string, body Activation) error {
	return c.post(ctx, address, "/payment-approved", body)
}

// Test fires the relay without any payment behind it.
func (c *Client) Test(ctx context.Context, address string) error {
	return c.post(ctx, address, "/test", map[string]interface{}{"test": true})
}

func (c *Client) post(ctx context.Context, address, path string, body interface{}) error {
	base, err := BaseURL(address)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(base + path)
	if err != nil {
		return fmt.Errorf("device: %s%s: %w", base, path, err)
	}
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode()}
	}
	return nil
}

// BaseURL turns a registered address ("192.168.0.10", "10.0.0.5:8080" or a
// full URL) into an http base URL.
func BaseURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrNoAddress
	}
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/"), nil
}
