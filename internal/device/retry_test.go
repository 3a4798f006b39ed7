package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.AttemptTimeout)
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
}

func TestRetryPolicy_StopsOnSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Millisecond)}
	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_HangingDeviceUsesEveryAttemptWithBackoff(t *testing.T) {
	release := make(chan struct{})
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	unit := 100 * time.Millisecond
	policy := RetryPolicy{
		MaxAttempts:    3,
		AttemptTimeout: 50 * time.Millisecond,
		Backoff:        LinearBackoff(unit),
	}
	client := NewClient()

	attempts, err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return client.Activate(ctx, srv.URL, Activation{ChairID: "p1", PaymentID: "111", Timestamp: time.Now()})
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), unit)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), 2*unit)
}

func TestRetryPolicy_CancelledContextStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Hour)}

	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
