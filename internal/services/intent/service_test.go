package intent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/events"
	"poltrona/internal/logger"
	"poltrona/internal/models"
	"poltrona/internal/processor"
	"poltrona/internal/repositories"
	"poltrona/internal/services/audit"
	"poltrona/internal/services/session"
	"poltrona/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) CreatePayment(ctx context.Context, req processor.CreatePaymentRequest) (*processor.Payment, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(*processor.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func remotePayment(id string) *processor.Payment {
	p := &processor.Payment{ID: processor.PaymentID(id), Status: "pending", TransactionAmount: decimal.RequireFromString("10.00")}
	p.PointOfInteraction.TransactionData.QRCode = "pix-" + id
	p.PointOfInteraction.TransactionData.QRCodeBase64 = "b64-" + id
	return p
}

func withKey(key string) interface{} {
	return mock.MatchedBy(func(req processor.CreatePaymentRequest) bool { return req.IdempotencyKey == key })
}

type fixture struct {
	db       *gorm.DB
	chairs   repositories.ChairRepository
	payments repositories.PaymentRepository
	proc     *MockProcessor
	svc      Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)

	chairs := repositories.NewChairRepository(db, nil)
	payments := repositories.NewPaymentRepository(db)
	auditSvc := audit.NewService(repositories.NewAuditRepository(db), events.Noop{}, logger.Discard())
	sessions := session.NewService(repositories.NewUnitOfWork(db, nil), chairs, auditSvc, logger.Discard())
	proc := new(MockProcessor)

	svc := NewService(chairs, payments, proc, sessions, auditSvc, Config{PollWindow: 30 * time.Minute}, logger.Discard())
	return fixture{db: db, chairs: chairs, payments: payments, proc: proc, svc: svc}
}

func TestCreate_IsIdempotentPerChair(t *testing.T) {
	f := setup(t)
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-0")).Return(remotePayment("111"), nil).Once()
	ctx := context.Background()

	first, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "111", first.PaymentID)
	assert.Equal(t, "pix-111", first.QRCode)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("10.00")))
	assert.False(t, first.Reused)

	second, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.QRCode, second.QRCode)
	assert.True(t, second.Reused)

	f.proc.AssertNumberOfCalls(t, "CreatePayment", 1)

	p, err := f.payments.Find(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, models.SourceIntent, p.Source)
}

func TestCreate_ConcurrentRequestsConverge(t *testing.T) {
	f := setup(t)
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-0")).Return(remotePayment("111"), nil)

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, err := f.svc.Create(context.Background(), "p1")
			if assert.NoError(t, err) {
				ids[i] = in.PaymentID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, "111", id)
	}
}

func TestCreate_BusyChairReportsRemainingTime(t *testing.T) {
	f := setup(t)
	testutil.StartSession(t, f.db, "p1", "000", time.Now().Add(200*time.Second))

	_, err := f.svc.Create(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrChairBusy)

	seconds, ok := appErrors.RetryAfter(err)
	require.True(t, ok)
	assert.InDelta(t, 200, seconds, 2)
	f.proc.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCreate_ExpiredSessionIsClosedInline(t *testing.T) {
	f := setup(t)
	testutil.StartSession(t, f.db, "p1", "000", time.Now().Add(-time.Second))
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-1")).Return(remotePayment("222"), nil).Once()

	in, err := f.svc.Create(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "222", in.PaymentID)
	f.proc.AssertExpectations(t)
}

func TestCreate_RejectionsAndMissingChairs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "ghost")
	assert.ErrorIs(t, err, appErrors.ErrChairNotFound)

	require.NoError(t, f.db.Model(&models.Chair{}).Where("chair_id = ?", "p1").Update("active", false).Error)
	_, err = f.svc.Create(ctx, "p1")
	assert.ErrorIs(t, err, appErrors.ErrChairInactive)
}

func TestCreate_ProcessorFailureLeavesChairUnbound(t *testing.T) {
	f := setup(t)
	f.proc.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "p1")
	assert.ErrorIs(t, err, appErrors.ErrUpstreamUnavailable)

	chair, err := f.chairs.FindByChairID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, chair.Intent.Bound())
}

func TestCreate_ProcessorNotConfigured(t *testing.T) {
	f := setup(t)
	f.proc.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, processor.ErrNotConfigured).Once()

	_, err := f.svc.Create(context.Background(), "p1")
	assert.ErrorIs(t, err, appErrors.ErrConfigMissing)
}

func TestCreate_ResolvedIntentIsReplaced(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-0")).Return(remotePayment("111"), nil).Once()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-1")).Return(remotePayment("222"), nil).Once()

	_, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	_, err = f.payments.TransitionFromPending(ctx, "111", models.PaymentStatusRejected, "cc_rejected", nil)
	require.NoError(t, err)

	in, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "222", in.PaymentID)
	assert.False(t, in.Reused)
	f.proc.AssertExpectations(t)
}

func TestCreate_AbandonedIntentIsReplaced(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-0")).Return(remotePayment("111"), nil).Once()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-1")).Return(remotePayment("222"), nil).Once()

	_, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.db.Model(&models.Payment{}).Where("payment_id = ?", "111").Update("created_at", old).Error)

	in, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "222", in.PaymentID)
}

func TestCreate_StrandedApprovalDoesNotBlockChair(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-0")).Return(remotePayment("111"), nil).Once()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-1")).Return(remotePayment("222"), nil).Once()

	_, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)

	// Paid while the chair was switched off; nothing opens a session.
	require.NoError(t, f.db.Model(&models.Chair{}).Where("chair_id = ?", "p1").Update("active", false).Error)
	approvedAt := time.Now().UTC().Add(-5 * time.Minute)
	moved, err := f.payments.TransitionFromPending(ctx, "111", models.PaymentStatusApproved, "accredited", &approvedAt)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoError(t, f.db.Model(&models.Chair{}).Where("chair_id = ?", "p1").Update("active", true).Error)

	in, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "222", in.PaymentID)
	assert.False(t, in.Reused)

	p, err := f.payments.Find(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, p.Status)
	assert.False(t, p.Processed)
	f.proc.AssertExpectations(t)
}

func TestCreate_FreshApprovalReportsBusy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-0")).Return(remotePayment("111"), nil).Once()

	_, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	approvedAt := time.Now().UTC()
	_, err = f.payments.TransitionFromPending(ctx, "111", models.PaymentStatusApproved, "accredited", &approvedAt)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "p1")
	assert.ErrorIs(t, err, appErrors.ErrChairBusy)

	// Once the grace window has passed the chair is offered again.
	f.proc.On("CreatePayment", mock.Anything, withKey("chair-p1-1")).Return(remotePayment("222"), nil).Once()
	f.svc.(*service).now = func() time.Time { return approvedAt.Add(approvalGrace + time.Second) }

	in, err := f.svc.Create(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "222", in.PaymentID)
	f.proc.AssertExpectations(t)
}
