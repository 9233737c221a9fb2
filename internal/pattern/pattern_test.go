package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/ml-trader/internal/candle"
)

func mk(open, high, low, close, volume float64) candle.Candle {
	return candle.Candle{
		Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Open:      open, High: high, Low: low, Close: close,
		Volume: volume,
		Symbol: "BTC-USDT",
	}
}

func TestDojiDetection(t *testing.T) {
	// Body 0.1 on a spread of 4: clearly a doji.
	matches := Detect([]candle.Candle{mk(100, 102, 98, 100.1, 50)})
	require.Len(t, matches, 1)
	assert.Equal(t, "doji", matches[0].Name)
	assert.Equal(t, Neutral, matches[0].Direction)

	// Full-body candle: nothing.
	assert.Empty(t, Detect([]candle.Candle{mk(100, 104, 100, 104, 50)}))
}

func TestBullishEngulfing(t *testing.T) {
	candles := []candle.Candle{
		mk(102, 102.5, 99.5, 100, 100), // bearish
		mk(99.5, 103.5, 99, 103, 200),  // bullish, covers previous body, volume doubles
	}
	matches := Detect(candles)
	require.NotEmpty(t, matches)

	var found *Match
	for i := range matches {
		if matches[i].Name == "bullish_engulfing" {
			found = &matches[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, Bullish, found.Direction)
	assert.Equal(t, 1, found.Index)
	assert.Greater(t, found.Strength, 0.3)
}

func TestBearishEngulfing(t *testing.T) {
	candles := []candle.Candle{
		mk(100, 102.5, 99.5, 102, 100),
		mk(102.5, 103, 99, 99.5, 100),
	}
	matches := Detect(candles)
	require.Len(t, matches, 1)
	assert.Equal(t, "bearish_engulfing", matches[0].Name)
	assert.Equal(t, Bearish, matches[0].Direction)
}

func TestNoEngulfingWhenBodyNotCovered(t *testing.T) {
	candles := []candle.Candle{
		mk(102, 102.5, 99.5, 100, 100),
		mk(100.5, 102, 100, 101.5, 100), // bullish but body inside previous
	}
	assert.Empty(t, Detect(candles))
}

func TestHammerAfterDecline(t *testing.T) {
	candles := []candle.Candle{
		mk(110, 110.5, 107.5, 108, 100),
		mk(108, 108.5, 105.5, 106, 100),
		mk(106, 106.5, 103.5, 104, 100),
		// Small body near the top, long lower wick.
		mk(104, 104.5, 101, 104.4, 150),
	}
	matches := Detect(candles)

	var found *Match
	for i := range matches {
		if matches[i].Name == "hammer" {
			found = &matches[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, Bullish, found.Direction)
	assert.Equal(t, 3, found.Index)
}

func TestShootingStarAfterAdvance(t *testing.T) {
	candles := []candle.Candle{
		mk(100, 102.5, 99.5, 102, 100),
		mk(102, 104.5, 101.5, 104, 100),
		mk(104, 106.5, 103.5, 106, 100),
		// Small body near the bottom, long upper wick.
		mk(106, 109, 105.9, 106.4, 150),
	}
	matches := Detect(candles)

	var found *Match
	for i := range matches {
		if matches[i].Name == "shooting_star" {
			found = &matches[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, Bearish, found.Direction)
}

func TestLatestOnlyReturnsFinalCandle(t *testing.T) {
	candles := []candle.Candle{
		mk(100, 102, 98, 100.1, 50), // doji at index 0
		mk(100, 104, 100, 104, 50),  // plain candle
	}
	assert.Empty(t, Latest(candles))
	assert.Nil(t, Latest(nil))

	candles = append(candles, mk(104, 106, 102, 104.2, 50)) // doji at the end
	latest := Latest(candles)
	require.Len(t, latest, 1)
	assert.Equal(t, 2, latest[0].Index)
}

func TestBias(t *testing.T) {
	assert.Equal(t, 1.0, Bias([]Match{{Direction: Bullish, Strength: 0.5}}))
	assert.Equal(t, -1.0, Bias([]Match{{Direction: Bearish, Strength: 0.5}}))
	assert.Equal(t, 0.0, Bias([]Match{
		{Direction: Bullish, Strength: 0.5},
		{Direction: Bearish, Strength: 0.5},
	}))
	assert.Equal(t, 0.0, Bias(nil))
	assert.Equal(t, 0.0, Bias([]Match{{Direction: Neutral, Strength: 0.9}}))
}

func TestInvalidCandlesAreSkipped(t *testing.T) {
	bad := mk(100, 98, 102, 100.1, 50) // high < low
	assert.Empty(t, Detect([]candle.Candle{bad}))
}
