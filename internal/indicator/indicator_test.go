package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/ml-trader/internal/candle"
)

func testCandles(closes []float64) []candle.Candle {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100 + float64(i%7),
			Symbol:    "BTC-USDT",
		}
	}
	return out
}

// rampCloses generates a gently oscillating close series long enough for the
// full indicator set.
func rampCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 5*math.Sin(float64(i)/7) + float64(i)*0.05
	}
	return out
}

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		period   int
		expected []float64
		isNil    bool
	}{
		{
			name:     "Basic SMA",
			values:   []float64{1, 2, 3, 4, 5},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 2, 3, 4},
		},
		{
			name:   "Insufficient data",
			values: []float64{1, 2},
			period: 3,
			isNil:  true,
		},
		{
			name:   "Invalid period",
			values: []float64{1, 2, 3},
			period: 0,
			isNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSMA(tt.values, tt.period)
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.Len(t, got, len(tt.expected))
			for i, want := range tt.expected {
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
				} else {
					assert.InDelta(t, want, got[i], 1e-9, "index %d", i)
				}
			}
		})
	}
}

func TestCalculateEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	got := CalculateEMA(values, 3)
	require.Len(t, got, 6)

	// Seeded with SMA(1,2,3)=2, multiplier 0.5.
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 3.0, got[3], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)
	assert.InDelta(t, 5.0, got[5], 1e-9)

	assert.Nil(t, CalculateEMA([]float64{1, 2}, 3))
}

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
		isNil    bool
	}{
		{
			name:   "All increasing prices",
			prices: []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
			period: 3,
			expected: []float64{
				math.NaN(), math.NaN(),
				100, 100, 100, 100, 100, 100, 100, 100,
			},
		},
		{
			name:   "All decreasing prices",
			prices: []float64{19, 18, 17, 16, 15, 14, 13, 12, 11, 10},
			period: 3,
			expected: []float64{
				math.NaN(), math.NaN(),
				0, 0, 0, 0, 0, 0, 0, 0,
			},
		},
		{
			name:   "Insufficient data",
			prices: []float64{10, 11},
			period: 5,
			isNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateRSI(tt.prices, tt.period)
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.Len(t, got, len(tt.expected))
			for i, want := range tt.expected {
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
				} else {
					assert.InDelta(t, want, got[i], 0.01, "index %d", i)
				}
			}
		})
	}
}

func TestCalculateRSIBounds(t *testing.T) {
	prices := rampCloses(100)
	rsi := CalculateRSI(prices, 14)
	require.NotNil(t, rsi)
	for i := 14; i < len(rsi); i++ {
		assert.GreaterOrEqual(t, rsi[i], 0.0)
		assert.LessOrEqual(t, rsi[i], 100.0)
	}
}

func TestCalculateMACD(t *testing.T) {
	closes := rampCloses(100)
	got := CalculateMACD(closes, 12, 26, 9)

	assert.False(t, math.IsNaN(got.MACD))
	assert.False(t, math.IsNaN(got.Signal))
	assert.InDelta(t, got.MACD-got.Signal, got.Histogram, 1e-9)

	short := CalculateMACD(rampCloses(20), 12, 26, 9)
	assert.True(t, math.IsNaN(short.MACD))
}

func TestCalculateBollinger(t *testing.T) {
	// Constant series: zero deviation, all bands collapse to the mean.
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	got := CalculateBollinger(flat, 20, 2)
	assert.InDelta(t, 50.0, got.Upper, 1e-9)
	assert.InDelta(t, 50.0, got.Middle, 1e-9)
	assert.InDelta(t, 50.0, got.Lower, 1e-9)
	assert.InDelta(t, 0.0, got.Width, 1e-9)

	varied := CalculateBollinger(rampCloses(60), 20, 2)
	assert.Greater(t, varied.Upper, varied.Middle)
	assert.Less(t, varied.Lower, varied.Middle)
	assert.Greater(t, varied.Width, 0.0)
}

func TestCalculateATR(t *testing.T) {
	closes := rampCloses(60)
	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	for i, c := range closes {
		highs[i] = c + 2
		lows[i] = c - 2
	}
	atr := CalculateATR(highs, lows, closes, 14)
	assert.False(t, math.IsNaN(atr))
	assert.Greater(t, atr, 0.0)

	assert.True(t, math.IsNaN(CalculateATR(highs[:5], lows[:5], closes[:5], 14)))
}

func TestCalculateStochasticRange(t *testing.T) {
	closes := rampCloses(60)
	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	for i, c := range closes {
		highs[i] = c + 1
		lows[i] = c - 1
	}
	k, d := CalculateStochastic(highs, lows, closes, 14, 3, 3)
	assert.GreaterOrEqual(t, k, 0.0)
	assert.LessOrEqual(t, k, 100.0)
	assert.GreaterOrEqual(t, d, 0.0)
	assert.LessOrEqual(t, d, 100.0)
}

func TestCalculateWilliamsR(t *testing.T) {
	closes := rampCloses(30)
	highs := make([]float64, len(closes))
	lows := make([]float64, len(closes))
	for i, c := range closes {
		highs[i] = c + 1
		lows[i] = c - 1
	}
	wr := CalculateWilliamsR(highs, lows, closes, 14)
	assert.GreaterOrEqual(t, wr, -100.0)
	assert.LessOrEqual(t, wr, 0.0)
}

func TestCalculateOBV(t *testing.T) {
	closes := []float64{10, 11, 10, 10, 12}
	volumes := []float64{100, 200, 300, 400, 500}
	// +200 (up), -300 (down), 0 (flat), +500 (up)
	assert.InDelta(t, 400.0, CalculateOBV(closes, volumes), 1e-9)
}

func TestCalculateMomentumAndROC(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	assert.InDelta(t, 10.0, CalculateMomentum(closes, 10), 1e-9)
	assert.InDelta(t, 10.0, CalculateROC(closes, 10), 1e-9)

	assert.True(t, math.IsNaN(CalculateMomentum(closes[:5], 10)))
}

func TestCalculateAll(t *testing.T) {
	candles := testCandles(rampCloses(250))
	indicators, err := CalculateAll(candles)
	require.NoError(t, err)

	expectedKeys := []string{
		"ema_9", "ema_21", "ema_200", "sma_20", "sma_50",
		"rsi", "macd", "macd_signal", "macd_histogram",
		"bb_upper", "bb_middle", "bb_lower", "bb_width",
		"atr", "stoch_k", "stoch_d", "cci", "williams_r",
		"volume_avg", "volume_ratio", "obv", "adx", "momentum", "roc",
		"price_position", "volatility_10", "volatility_20",
		"support", "resistance", "trend_strength", "volume_trend",
		"price_acceleration",
	}
	for _, key := range expectedKeys {
		v, ok := indicators[key]
		require.True(t, ok, "missing indicator %s", key)
		assert.False(t, math.IsNaN(v), "indicator %s is NaN", key)
	}

	assert.GreaterOrEqual(t, indicators["price_position"], 0.0)
	assert.LessOrEqual(t, indicators["price_position"], 1.0)
	assert.LessOrEqual(t, indicators["support"], indicators["resistance"])
}

func TestCalculateAllInsufficientData(t *testing.T) {
	candles := testCandles(rampCloses(30))
	_, err := CalculateAll(candles)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalculateAllEMA200Fallback(t *testing.T) {
	closes := rampCloses(120) // enough for everything except the 200 EMA
	candles := testCandles(closes)
	indicators, err := CalculateAll(candles)
	require.NoError(t, err)
	assert.InDelta(t, closes[len(closes)-1], indicators["ema_200"], 1e-9)
}
