package repositories_test

import (
	"context"
	"testing"
	"time"

	"poltrona/internal/models"
	"poltrona/internal/repositories"
	"poltrona/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestChairRepository_FindAndCreate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repositories.NewChairRepository(db, nil)
	ctx := context.Background()

	_, err := repo.FindByChairID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	chair := &models.Chair{ChairID: "p1", Address: "10.0.0.5", Price: decimal.RequireFromString("10.00"), DurationSeconds: 900, Active: true}
	require.NoError(t, repo.Create(ctx, chair))

	err = repo.Create(ctx, &models.Chair{ChairID: "p1", Address: "10.0.0.6", Price: decimal.NewFromInt(5), DurationSeconds: 60})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	got, err := repo.FindByChairID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 900, got.DurationSeconds)
	assert.False(t, got.Session.Active)
	assert.False(t, got.Intent.Bound())
}

func TestChairRepository_UpdateConfig(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	repo := repositories.NewChairRepository(db, nil)
	ctx := context.Background()

	price := decimal.RequireFromString("12.50")
	inactive := false
	got, err := repo.UpdateConfig(ctx, "p1", repositories.ChairConfigUpdate{Price: &price, Active: &inactive})
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price))
	assert.False(t, got.Active)
	assert.Equal(t, "127.0.0.1", got.Address)

	_, err = repo.UpdateConfig(ctx, "nope", repositories.ChairConfigUpdate{Price: &price})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestChairRepository_IntentBinding(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	repo := repositories.NewChairRepository(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	intent := models.ChairIntent{
		PaymentID: strPtr("111"),
		QRCode:    strPtr("000201..."),
		Amount:    decimal.NewNullDecimal(decimal.RequireFromString("10.00")),
		CreatedAt: &now,
	}
	ok, err := repo.AttachIntent(ctx, "p1", 0, intent)
	require.NoError(t, err)
	assert.True(t, ok)

	intent.PaymentID = strPtr("222")
	ok, err = repo.AttachIntent(ctx, "p1", 0, intent)
	require.NoError(t, err)
	assert.False(t, ok, "a bound intent must not be replaced")

	chair, err := repo.FindByChairID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "111", *chair.Intent.PaymentID)

	ok, err = repo.ReleaseIntent(ctx, "p1", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ReleaseIntent(ctx, "p1", 0)
	require.NoError(t, err)
	assert.False(t, ok, "stale sequence must not release twice")

	chair, err = repo.FindByChairID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, chair.Intent.Bound())
	assert.Equal(t, int64(1), chair.Intent.Seq)
	assert.False(t, chair.Intent.Amount.Valid)
}

func TestChairRepository_OpenSessionOnlyOnce(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	repo := repositories.NewChairRepository(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := repo.OpenSession(ctx, "p1", "111", now, now.Add(900*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.OpenSession(ctx, "p1", "222", now, now.Add(900*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	chair, err := repo.FindByChairID(ctx, "p1")
	require.NoError(t, err)
	session, active := chair.CurrentSession()
	require.True(t, active)
	assert.Equal(t, "111", session.PaymentID)
	assert.WithinDuration(t, now.Add(900*time.Second), session.EndsAt, time.Second)
}

func TestChairRepository_OpenSessionRefusesInactiveChair(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	require.NoError(t, db.Model(&models.Chair{}).Where("chair_id = ?", "p1").Update("active", false).Error)
	repo := repositories.NewChairRepository(db, nil)
	now := time.Now().UTC()

	ok, err := repo.OpenSession(context.Background(), "p1", "111", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChairRepository_ExpireSession(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	testutil.SeedChair(t, db, "p2", "10.00", 900)
	repo := repositories.NewChairRepository(db, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	testutil.StartSession(t, db, "p1", "111", now.Add(-time.Second))
	testutil.StartSession(t, db, "p2", "222", now.Add(10*time.Minute))
	_, err := repo.AttachIntent(ctx, "p1", 0, models.ChairIntent{PaymentID: strPtr("111"), CreatedAt: &now})
	require.NoError(t, err)

	expired, err := repo.ListExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "p1", expired[0].ChairID)

	ok, err := repo.ExpireSession(ctx, "p2", now)
	require.NoError(t, err)
	assert.False(t, ok, "running session must not expire early")

	ok, err = repo.ExpireSession(ctx, "p1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	p1, err := repo.FindByChairID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p1.Session.Active)
	assert.Nil(t, p1.Session.StartedAt)
	assert.Nil(t, p1.Session.EndsAt)
	assert.Nil(t, p1.Session.PaymentID)
	assert.False(t, p1.Intent.Bound())
	assert.Equal(t, "http://localhost/pay/p1", p1.PublicPaymentURL)

	p2, err := repo.FindByChairID(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, p2.Session.Active)
	assert.Equal(t, "222", *p2.Session.PaymentID)
}

type memoryChairCache struct {
	chairs      map[string]models.Chair
	invalidated []string
}

func (m *memoryChairCache) GetChair(ctx context.Context, chairID string) (*models.Chair, bool, error) {
	c, ok := m.chairs[chairID]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

func (m *memoryChairCache) CacheChair(ctx context.Context, chair *models.Chair) error {
	m.chairs[chair.ChairID] = *chair
	return nil
}

func (m *memoryChairCache) InvalidateChair(ctx context.Context, chairID string) error {
	delete(m.chairs, chairID)
	m.invalidated = append(m.invalidated, chairID)
	return nil
}

func TestChairRepository_GetConfigUsesCache(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	cache := &memoryChairCache{chairs: map[string]models.Chair{}}
	repo := repositories.NewChairRepository(db, cache)
	ctx := context.Background()

	_, err := repo.GetConfig(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, cache.chairs, "p1")

	location := "lobby"
	_, err = repo.UpdateConfig(ctx, "p1", repositories.ChairConfigUpdate{Location: &location})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, cache.invalidated)

	got, err := repo.GetConfig(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "lobby", got.Location)

	now := time.Now().UTC()
	opened, err := repo.OpenSession(ctx, "p1", "111", now, now.Add(-time.Second))
	require.NoError(t, err)
	require.True(t, opened)

	got, err = repo.GetConfig(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Session.Active)

	expired, err := repo.ExpireSession(ctx, "p1", now)
	require.NoError(t, err)
	require.True(t, expired)

	got, err = repo.GetConfig(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.Session.Active)
	assert.Equal(t, int64(1), got.Intent.Seq)

	// A write that matched nothing leaves the cached copy alone.
	_, err = repo.ExpireSession(ctx, "p1", now)
	require.NoError(t, err)
	assert.Contains(t, cache.chairs, "p1")
}

func TestUnitOfWork_InvalidatesAfterCommit(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedChair(t, db, "p1", "10.00", 900)
	cache := &memoryChairCache{chairs: map[string]models.Chair{}}
	repo := repositories.NewChairRepository(db, cache)
	ctx := context.Background()

	_, err := repo.GetConfig(ctx, "p1")
	require.NoError(t, err)

	now := time.Now().UTC()
	err = repositories.NewUnitOfWork(db, cache).Within(ctx, func(chairs repositories.ChairRepository, _ repositories.PaymentRepository) error {
		opened, err := chairs.OpenSession(ctx, "p1", "111", now, now.Add(time.Minute))
		require.True(t, opened)
		assert.Contains(t, cache.chairs, "p1", "cache is left alone until commit")
		return err
	})
	require.NoError(t, err)
	assert.NotContains(t, cache.chairs, "p1")

	got, err := repo.GetConfig(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Session.Active)
}
