package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/ml-trader/internal/market"
	"github.com/amirphl/ml-trader/internal/risk"
)

func sampleTrade() risk.ClosedTrade {
	return risk.ClosedTrade{
		Symbol:        "BTC-USDT",
		Side:          market.Buy,
		Size:          1.5,
		EntryPrice:    100,
		ExitPrice:     104,
		PnL:           6,
		PnLPercentage: 4,
		Reason:        "Take profit triggered",
		Timestamp:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, sink.LogTrade(ctx, sampleTrade()))
	require.NoError(t, sink.LogEvent(ctx, Event{
		Time: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Type: "circuit_breaker", Description: "daily loss limit",
	}))
	require.NoError(t, sink.LogEvent(ctx, Event{
		Time: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		Type: "emergency_close", Description: "shutdown",
	}))

	trades := sink.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "BTC-USDT", trades[0].Symbol)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	assert.Len(t, sink.Events("circuit_breaker", start, end), 1)
	assert.Len(t, sink.Events("", start, end), 2)
	assert.Empty(t, sink.Events("circuit_breaker", end, end.Add(time.Hour)))

	assert.NoError(t, sink.Close())
}

// failingSink always errors.
type failingSink struct{}

func (failingSink) LogTrade(context.Context, risk.ClosedTrade) error { return errors.New("boom") }
func (failingSink) LogEvent(context.Context, Event) error            { return errors.New("boom") }
func (failingSink) Close() error                                     { return errors.New("boom") }

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	mem := NewMemorySink()

	t.Run("fans out to every sink", func(t *testing.T) {
		multi := NewMultiSink(mem, nil, NewMemorySink())
		require.NoError(t, multi.LogTrade(ctx, sampleTrade()))
		assert.Len(t, mem.Trades(), 1)
	})

	t.Run("partial failure still delivers and reports the error", func(t *testing.T) {
		mem2 := NewMemorySink()
		multi := NewMultiSink(failingSink{}, mem2)
		err := multi.LogTrade(ctx, sampleTrade())
		assert.Error(t, err)
		assert.Len(t, mem2.Trades(), 1)
		assert.Error(t, multi.Close())
	})

	t.Run("empty multi sink is a no-op", func(t *testing.T) {
		multi := NewMultiSink()
		assert.NoError(t, multi.LogTrade(ctx, sampleTrade()))
		assert.NoError(t, multi.LogEvent(ctx, Event{}))
		assert.NoError(t, multi.Close())
	})
}
