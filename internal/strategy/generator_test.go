package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/ml-trader/internal/candle"
	"github.com/amirphl/ml-trader/internal/indicator"
	"github.com/amirphl/ml-trader/internal/market"
	"github.com/amirphl/ml-trader/internal/ml"
)

// stubClassifier returns a canned prediction.
type stubClassifier struct {
	loaded bool
	pred   ml.Prediction
	err    error
}

func (s *stubClassifier) Predict(features []float64) (ml.Prediction, error) {
	return s.pred, s.err
}

func (s *stubClassifier) IsLoaded() bool { return s.loaded }

// bullishSnapshot builds n one-minute candles with steadily rising closes and
// a volume surge on the final candle.
func bullishSnapshot(n int, start time.Time) []candle.Candle {
	candles := make([]candle.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += 0.2
		volume := 100.0
		if i == n-1 {
			volume = 1000.0
		}
		candles[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      price + 0.05,
			Low:       open - 0.05,
			Close:     price,
			Volume:    volume,
			Symbol:    "BTC-USDT",
		}
	}
	return candles
}

func bullishState(volume float64) MarketState {
	return MarketState{
		Symbol: "BTC-USDT",
		Price:  112,
		Volume: volume,
		Trend:  market.Bullish,
		Indicators: map[string]float64{
			"rsi":         40,
			"ema_9":       110,
			"ema_21":      105,
			"ema_200":     100,
			"macd":        1.0,
			"macd_signal": 0.5,
			"volume_avg":  100,
		},
	}
}

func TestTechnicalScore(t *testing.T) {
	t.Run("all buy conditions met", func(t *testing.T) {
		sig := technicalScore(bullishState(200))
		require.NotNil(t, sig)
		assert.Equal(t, market.Buy, sig.side)
		assert.Equal(t, 1.0, sig.confidence)
	})

	t.Run("three of five is not enough", func(t *testing.T) {
		state := bullishState(100) // no volume surge
		state.Trend = market.Sideways
		// rsi zone, uptrend and macd still hold: score 0.6, not strictly above
		sig := technicalScore(state)
		assert.Nil(t, sig)
	})

	t.Run("all sell conditions met", func(t *testing.T) {
		state := MarketState{
			Symbol: "BTC-USDT",
			Price:  90,
			Volume: 200,
			Trend:  market.Bearish,
			Indicators: map[string]float64{
				"rsi":         75,
				"ema_9":       95,
				"ema_21":      98,
				"ema_200":     102,
				"macd":        -1.0,
				"macd_signal": -0.5,
				"volume_avg":  100,
			},
		}
		sig := technicalScore(state)
		require.NotNil(t, sig)
		assert.Equal(t, market.Sell, sig.side)
		assert.Equal(t, 1.0, sig.confidence)
	})

	t.Run("neutral market yields nothing", func(t *testing.T) {
		state := MarketState{
			Price:  100,
			Volume: 100,
			Trend:  market.Sideways,
			Indicators: map[string]float64{
				"rsi": 50, "ema_9": 100, "ema_21": 100, "ema_200": 100,
				"macd": 0, "macd_signal": 0, "volume_avg": 100,
			},
		}
		assert.Nil(t, technicalScore(state))
	})
}

func TestFuse(t *testing.T) {
	tech := technicalSignal{side: market.Buy, confidence: 0.8}

	t.Run("weighted combination", func(t *testing.T) {
		g := NewGenerator(Config{MinConfidence: 0.65}, &stubClassifier{
			loaded: true,
			pred:   ml.Prediction{Direction: market.Buy, Confidence: 0.9},
		})
		conf, err := g.fuse(tech, MarketState{Trend: market.Bullish})
		require.NoError(t, err)
		assert.InDelta(t, 0.4*0.8+0.6*0.9, conf, 1e-9)
	})

	t.Run("direction disagreement discards the setup", func(t *testing.T) {
		g := NewGenerator(Config{MinConfidence: 0.65}, &stubClassifier{
			loaded: true,
			pred:   ml.Prediction{Direction: market.Sell, Confidence: 0.99},
		})
		conf, err := g.fuse(tech, MarketState{Trend: market.Bullish})
		require.NoError(t, err)
		assert.Zero(t, conf)
	})

	t.Run("high volatility penalty", func(t *testing.T) {
		g := NewGenerator(Config{MinConfidence: 0.65}, &stubClassifier{
			loaded: true,
			pred:   ml.Prediction{Direction: market.Buy, Confidence: 0.9},
		})
		conf, err := g.fuse(tech, MarketState{Trend: market.Bullish, Volatility: 0.06})
		require.NoError(t, err)
		assert.InDelta(t, (0.4*0.8+0.6*0.9)*0.8, conf, 1e-9)
	})

	t.Run("sideways penalty", func(t *testing.T) {
		g := NewGenerator(Config{MinConfidence: 0.65}, &stubClassifier{
			loaded: true,
			pred:   ml.Prediction{Direction: market.Buy, Confidence: 0.9},
		})
		conf, err := g.fuse(tech, MarketState{Trend: market.Sideways})
		require.NoError(t, err)
		assert.InDelta(t, (0.4*0.8+0.6*0.9)*0.7, conf, 1e-9)
	})

	t.Run("unloaded model degrades to technical-only", func(t *testing.T) {
		g := NewGenerator(Config{MinConfidence: 0.65}, &stubClassifier{loaded: false})
		conf, err := g.fuse(tech, MarketState{Trend: market.Bullish})
		require.NoError(t, err)
		assert.Equal(t, 0.8, conf)
	})

	t.Run("nil classifier degrades to technical-only", func(t *testing.T) {
		g := NewGenerator(Config{MinConfidence: 0.65}, nil)
		conf, err := g.fuse(tech, MarketState{Trend: market.Bullish})
		require.NoError(t, err)
		assert.Equal(t, 0.8, conf)
	})
}

func TestDetermineTrend(t *testing.T) {
	tests := []struct {
		name                string
		ema9, ema21, ema200 float64
		expected            market.Trend
	}{
		{"bullish ladder", 110, 105, 100, market.Bullish},
		{"bearish ladder", 95, 98, 102, market.Bearish},
		{"mixed ordering", 105, 110, 100, market.Sideways},
		{"flat", 100, 100, 100, market.Sideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := determineTrend(map[string]float64{
				"ema_9": tt.ema9, "ema_21": tt.ema21, "ema_200": tt.ema200,
			})
			assert.Equal(t, tt.expected, trend)
		})
	}
}

func TestGenerateSignalFromSnapshot(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := bullishSnapshot(250, start)

	g := NewGenerator(Config{MinConfidence: 0.65}, nil)
	sig, err := g.GenerateSignal(candles)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, "BTC-USDT", sig.Symbol)
	assert.Equal(t, market.Buy, sig.Side)
	// RSI is pinned high by the monotone ramp, the other four buy conditions hold.
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
	assert.Equal(t, candles[len(candles)-1].Timestamp, sig.Timestamp)
	assert.Equal(t, candles[len(candles)-1].Close, sig.Price)
	assert.NotEmpty(t, sig.Features)
}

func TestGenerateSignalInsufficientData(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(Config{MinConfidence: 0.65}, nil)

	_, err := g.GenerateSignal(bullishSnapshot(30, start))
	assert.ErrorIs(t, err, indicator.ErrInsufficientData)
}

func TestCooldownSuppressesSecondSignal(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(Config{MinConfidence: 0.65, MinSignalInterval: 5 * time.Minute}, nil)

	first, err := g.GenerateSignal(bullishSnapshot(250, start))
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same setup three minutes later: inside the cooldown window.
	second, err := g.GenerateSignal(bullishSnapshot(253, start))
	require.NoError(t, err)
	assert.Nil(t, second)

	// Six minutes after the first emission the cooldown has elapsed.
	third, err := g.GenerateSignal(bullishSnapshot(256, start))
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, market.Buy, third.Side)
}

func TestCooldownIsPerSymbol(t *testing.T) {
	g := NewGenerator(Config{MinConfidence: 0.65, MinSignalInterval: 5 * time.Minute}, nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	g.recordSignal("BTC-USDT", now)
	assert.False(t, g.canSignal("BTC-USDT", now.Add(3*time.Minute)))
	assert.True(t, g.canSignal("ETH-USDT", now.Add(3*time.Minute)))
	assert.True(t, g.canSignal("BTC-USDT", now.Add(5*time.Minute)))
}

func TestState(t *testing.T) {
	g := NewGenerator(Config{MinConfidence: 0.65}, &stubClassifier{loaded: true})
	now := time.Now().UTC()
	g.recordSignal("BTC-USDT", now)

	state := g.State()
	assert.True(t, state.ModelLoaded)
	assert.Equal(t, 5*time.Minute, state.MinSignalInterval)
	assert.Equal(t, now, state.LastSignalTimes["BTC-USDT"])

	// The snapshot is a copy.
	state.LastSignalTimes["ETH-USDT"] = now
	assert.NotContains(t, g.State().LastSignalTimes, "ETH-USDT")
}

func TestAnalyzeMarketIncludesPatternBias(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(Config{MinConfidence: 0.65}, nil)

	state, err := g.AnalyzeMarket(bullishSnapshot(100, start))
	require.NoError(t, err)
	assert.Contains(t, state.Indicators, "pattern_bias")
}
