package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poltrona/internal/config"
	"poltrona/internal/device"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/services"
	"poltrona/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const jwtSecret = "routes-test-secret"

type stubProcessor struct {
	mu         sync.Mutex
	status     string
	configured bool
}

func (p *stubProcessor) CreatePayment(ctx context.Context, req processor.CreatePaymentRequest) (*processor.Payment, error) {
	if !p.configured {
		return nil, processor.ErrNotConfigured
	}
	out := &processor.Payment{ID: "1001", Status: "pending", TransactionAmount: req.Amount}
	out.PointOfInteraction.TransactionData.QRCode = "pix-1001"
	return out, nil
}

func (p *stubProcessor) GetPayment(ctx context.Context, paymentID string) (*processor.Payment, error) {
	if !p.configured {
		return nil, processor.ErrNotConfigured
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &processor.Payment{
		ID:                processor.PaymentID(paymentID),
		Status:            p.status,
		TransactionAmount: decimal.RequireFromString("10.00"),
		Metadata:          map[string]interface{}{"chair_id": "p1"},
	}, nil
}

func (p *stubProcessor) Ping(ctx context.Context) (int, error) {
	if !p.configured {
		return 0, processor.ErrNotConfigured
	}
	return 7, nil
}

func (p *stubProcessor) set(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

type stubDevice struct {
	activations atomic.Int32
}

func (d *stubDevice) Activate(ctx context.Context, address string, body device.Activation) error {
	d.activations.Add(1)
	return nil
}

func (d *stubDevice) Test(ctx context.Context, address string) error { return nil }

type fixture struct {
	app    *fiber.App
	db     *gorm.DB
	reg    *services.Registry
	proc   *stubProcessor
	device *stubDevice
}

func setup(t *testing.T, configured bool) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)

	proc := &stubProcessor{status: "pending", configured: configured}
	dev := &stubDevice{}
	reg := services.NewRegistry(services.Deps{
		DB:        db,
		Processor: proc,
		Device:    dev,
		Config: config.Config{
			PollWindow:      30 * time.Minute,
			PresenceWindow:  2 * time.Minute,
			AmountTolerance: decimal.RequireFromString("0.01"),
			PublicBaseURL:   "https://pay.example.com",
			Device:          config.DeviceConfig{MaxAttempts: 3, AttemptTimeout: 100 * time.Millisecond, BackoffUnit: time.Millisecond},
		},
		Log: logger.Discard(),
	})

	app := fiber.New()
	SetupRoutes(app, reg, Options{
		DB:          db,
		JWTSecret:   jwtSecret,
		SweepSecret: "sweep",
		Log:         logger.Discard(),
	})
	return fixture{app: app, db: db, reg: reg, proc: proc, device: dev}
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	claims := models.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		AppMetadata:      models.AppMetadata{Role: role},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return tok
}

func (f fixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestIntentWebhookAndPublicStatus(t *testing.T) {
	f := setup(t, true)

	resp, body := f.do(t, "POST", "/api/payments/intent", fiber.Map{"chairId": "p1"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "1001", body["intentRef"])
	assert.Equal(t, "pix-1001", body["qrCode"])
	assert.Equal(t, "10.00", body["amount"])

	_, body = f.do(t, "GET", "/api/public/payments/1001", nil, nil)
	assert.Equal(t, "pending", body["status"])

	f.proc.set("approved")
	resp, body = f.do(t, "POST", "/api/webhooks/processor", fiber.Map{"type": "payment", "action": "payment.updated", "data": fiber.Map{"id": 1001}}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	f.reg.Payments.Wait()
	assert.EqualValues(t, 1, f.device.activations.Load())

	_, body = f.do(t, "GET", "/api/public/payments/1001", nil, nil)
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, "10.00", body["amount"])
	assert.NotNil(t, body["approvedAt"])

	resp, body = f.do(t, "POST", "/api/payments/intent", fiber.Map{"chairId": "p1"}, nil)
	assert.Equal(t, fiber.StatusLocked, resp.StatusCode)
	assert.Equal(t, "CHAIR_BUSY", body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	_, body = f.do(t, "GET", "/api/public/payments/404", nil, nil)
	assert.Equal(t, "not_found", body["status"])
}

func TestIntentErrors(t *testing.T) {
	f := setup(t, true)

	resp, body := f.do(t, "POST", "/api/payments/intent", fiber.Map{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", body["code"])

	resp, body = f.do(t, "POST", "/api/payments/intent", fiber.Map{"chairId": "nope"}, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CHAIR_NOT_FOUND", body["code"])
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	f := setup(t, true)

	resp, _ := f.do(t, "POST", "/api/webhooks/processor?topic=merchant_order&id=5", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, "POST", "/api/webhooks/processor", fiber.Map{"id": 12345, "live_mode": false, "type": "payment", "data": fiber.Map{"id": "123456"}}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Query-string form creates the payment from processor metadata.
	resp, _ = f.do(t, "POST", "/api/webhooks/processor?topic=payment&id=777", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, body := f.do(t, "GET", "/api/public/payments/777", nil, nil)
	assert.Equal(t, "pending", body["status"])
}

func TestMissingProcessorConfig(t *testing.T) {
	f := setup(t, false)

	resp, body := f.do(t, "POST", "/api/webhooks/processor", fiber.Map{"type": "payment", "data": fiber.Map{"id": "1"}}, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "CONFIG_MISSING", body["code"])

	resp, _ = f.do(t, "POST", "/api/payments/intent", fiber.Map{"chairId": "p1"}, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestSweeps(t *testing.T) {
	f := setup(t, true)
	secret := map[string]string{"X-Sweep-Secret": "sweep"}

	resp, _ := f.do(t, "POST", "/api/sweeps/poll", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	_, _ = f.do(t, "POST", "/api/payments/intent", fiber.Map{"chairId": "p1"}, nil)
	f.proc.set("approved")

	resp, body := f.do(t, "POST", "/api/sweeps/poll", nil, secret)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["checked"])
	assert.EqualValues(t, 1, body["approved"])
	assert.EqualValues(t, 0, body["rejected"])

	testutil.StartSession(t, f.db, "p1", "1001", time.Now().UTC().Add(-time.Second))
	resp, body = f.do(t, "POST", "/api/sweeps/expire", nil, secret)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["cleaned"])
}

func TestHeartbeatAndDeviceStatus(t *testing.T) {
	f := setup(t, true)
	admin := map[string]string{"Authorization": "Bearer " + adminToken(t, models.RoleAdmin)}

	resp, _ := f.do(t, "POST", "/api/devices/heartbeat", fiber.Map{"chairId": "p1", "firmwareVersion": "1.2.0", "signal": -60, "uptime": 3600}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := f.do(t, "GET", "/api/admin/device-status/p1", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["online"])

	resp, _ = f.do(t, "POST", "/api/devices/heartbeat", fiber.Map{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminChairs(t *testing.T) {
	f := setup(t, true)
	admin := map[string]string{"Authorization": "Bearer " + adminToken(t, models.RoleAdmin)}
	operator := map[string]string{"Authorization": "Bearer " + adminToken(t, models.RoleOperator)}

	resp, _ := f.do(t, "GET", "/api/admin/chairs", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body := f.do(t, "GET", "/api/admin/chairs", nil, operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	create := fiber.Map{"chairId": "p2", "address": "10.0.0.2", "price": "12.50", "durationSeconds": 600}
	resp, _ = f.do(t, "POST", "/api/admin/chairs", create, operator)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = f.do(t, "POST", "/api/admin/chairs", create, admin)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	chair := body["data"].(map[string]interface{})
	assert.Equal(t, "https://pay.example.com/pay/p2", chair["publicPaymentUrl"])

	resp, _ = f.do(t, "POST", "/api/admin/chairs", create, admin)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, body = f.do(t, "POST", "/api/admin/chairs", fiber.Map{"chairId": "p3", "address": "x", "price": "0", "durationSeconds": 600}, admin)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, body)

	resp, body = f.do(t, "DELETE", "/api/admin/chairs/p2", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["data"].(map[string]interface{})["active"])

	resp, body = f.do(t, "GET", "/api/admin/audit-logs?chairId=p2", nil, operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["meta"].(map[string]interface{})["total"])

	resp, body = f.do(t, "POST", "/api/admin/devices/test", fiber.Map{"chairId": "p1"}, admin)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, body)

	resp, body = f.do(t, "GET", "/api/admin/processor/ping", nil, admin)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 7, body["paymentMethods"])
}

func TestAdminPaymentsAndRetry(t *testing.T) {
	f := setup(t, true)
	admin := map[string]string{"Authorization": "Bearer " + adminToken(t, models.RoleAdmin)}

	_, _ = f.do(t, "POST", "/api/payments/intent", fiber.Map{"chairId": "p1"}, nil)

	resp, body := f.do(t, "GET", "/api/admin/payments?status=pending", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	resp, _ = f.do(t, "GET", "/api/admin/payments?status=bogus", nil, admin)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, "POST", "/api/admin/payments/1001/notify", nil, admin)
	assert.Equal(t, fiber.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, "PAYMENT_NOT_APPROVED", body["code"])
}
