package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poltrona/internal/device"
	"poltrona/internal/events"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"
	"poltrona/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDevice struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeDevice) Activate(ctx context.Context, address string, body device.Activation) error {
	f.calls.Add(1)
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func testPolicy() device.RetryPolicy {
	return device.RetryPolicy{MaxAttempts: 3, AttemptTimeout: 50 * time.Millisecond, Backoff: device.LinearBackoff(time.Millisecond)}
}

type fixture struct {
	db       *gorm.DB
	payments repositories.PaymentRepository
	audits   repositories.AuditRepository
	chair    *models.Chair
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	chair := testutil.SeedChair(t, db, "p1", "10.00", 900)
	payments := repositories.NewPaymentRepository(db)
	_, err := payments.InsertIfAbsent(context.Background(), &models.Payment{
		PaymentID: "111",
		ChairID:   "p1",
		Amount:    decimal.RequireFromString("10.00"),
		Status:    models.PaymentStatusApproved,
		Processed: true,
	})
	require.NoError(t, err)
	return fixture{db: db, payments: payments, audits: repositories.NewAuditRepository(db), chair: chair}
}

func (f fixture) service(dev Device) Service {
	auditSvc := audit.NewService(f.audits, events.Noop{}, logger.Discard())
	return NewService(f.payments, dev, auditSvc, testPolicy(), logger.Discard())
}

func TestNotify_Delivered(t *testing.T) {
	f := setup(t)
	dev := &fakeDevice{}

	res, err := f.service(dev).Notify(context.Background(), f.chair, "111")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), dev.calls.Load())

	p, err := f.payments.Find(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, models.Notified, p.Notification().Kind)
	assert.Equal(t, 1, p.NotificationAttempts)

	entries, _, err := f.audits.List(context.Background(), repositories.AuditFilter{Action: models.ActionDeviceNotified}, repositories.Page{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNotify_AlreadyNotifiedIsSkipped(t *testing.T) {
	f := setup(t)
	dev := &fakeDevice{}
	svc := f.service(dev)

	_, err := svc.Notify(context.Background(), f.chair, "111")
	require.NoError(t, err)

	res, err := svc.Notify(context.Background(), f.chair, "111")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, res.Delivered)
	assert.Equal(t, int32(1), dev.calls.Load())

	p, err := f.payments.Find(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, 1, p.NotificationAttempts)
}

func TestNotify_FailureSpendsEveryAttempt(t *testing.T) {
	f := setup(t)
	dev := &fakeDevice{fail: true}

	res, err := f.service(dev).Notify(context.Background(), f.chair, "111")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Contains(t, res.LastError, "connection refused")
	assert.Equal(t, int32(3), dev.calls.Load())

	p, err := f.payments.Find(context.Background(), "111")
	require.NoError(t, err)
	assert.Nil(t, p.NotifiedAt)
	assert.Nil(t, p.NotifyClaimedAt)
	assert.Equal(t, 3, p.NotificationAttempts)

	entries, _, err := f.audits.List(context.Background(), repositories.AuditFilter{Action: models.ActionDeviceNotifyFailed}, repositories.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].NewValues["error"], "connection refused")
}

func TestNotify_MissingAddress(t *testing.T) {
	f := setup(t)
	dev := &fakeDevice{}
	f.chair.Address = ""

	res, err := f.service(dev).Notify(context.Background(), f.chair, "111")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, int32(0), dev.calls.Load())
}

func TestNotify_ConcurrentCallersSendOnce(t *testing.T) {
	f := setup(t)
	dev := &fakeDevice{}
	svc := f.service(dev)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Notify(context.Background(), f.chair, "111")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), dev.calls.Load())
}

func TestBurstLength(t *testing.T) {
	assert.Equal(t, 18*time.Second, burstLength(device.DefaultRetryPolicy()))
}
