package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wallex "github.com/wallexchange/wallex-go"

	"github.com/amirphl/ml-trader/internal/market"
)

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("BTC-USDT"))
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("btc-usdt"))
	assert.Equal(t, "ETHTMN", NormalizeSymbol("ETH-TMN"))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporarily unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestRetryShortCircuitsOnAuthError(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Equal(t, 1, calls)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, 5, 10*time.Second, func() error {
		return errors.New("still failing")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, isAuthError(errors.New("401 unauthorized")))
	assert.True(t, isAuthError(errors.New("Invalid API Key provided")))
	assert.True(t, isAuthError(errors.New("forbidden")))
	assert.False(t, isAuthError(errors.New("rate limit exceeded")))
	assert.False(t, isAuthError(nil))
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("insufficient balance")
	err := &ExecutionError{Symbol: "BTC-USDT", Side: market.Buy, Reason: cause.Error(), Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "BTC-USDT")
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestFloat64Ptr(t *testing.T) {
	n := wallex.Number("42.5")
	assert.Equal(t, 42.5, float64Ptr(&n))
	assert.Equal(t, 0.0, float64Ptr(nil))

	bad := wallex.Number("not-a-number")
	assert.Equal(t, 0.0, float64Ptr(&bad))
}
