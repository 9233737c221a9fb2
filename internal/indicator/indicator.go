package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/amirphl/ml-trader/internal/candle"
)

// ErrInsufficientData is returned when a snapshot is too short to compute the
// indicator set. Callers should skip the current tick, not abort.
var ErrInsufficientData = errors.New("insufficient data for indicator calculation")

// MinCandles is the minimum snapshot length CalculateAll accepts.
const MinCandles = 50

// CalculateAll computes the full indicator map over a candle snapshot, keyed by
// the indicator's conventional name (ema_9, rsi, macd_signal, ...). The
// snapshot must hold at least MinCandles candles; the 200-period EMA falls back
// to the last close when fewer than 200 candles are available.
//
// Any NaN or Inf in the results fails the whole call: a broken value would
// poison the signal pipeline, so the tick is treated as transient and skipped.
func CalculateAll(candles []candle.Candle) (map[string]float64, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, len(candles), MinCandles)
	}

	closes := candle.Closes(candles)
	highs := candle.Highs(candles)
	lows := candle.Lows(candles)
	volumes := candle.Volumes(candles)

	indicators := make(map[string]float64, 32)

	// Moving averages
	indicators["ema_9"] = lastEMA(closes, 9)
	indicators["ema_21"] = lastEMA(closes, 21)
	if len(candles) >= 200 {
		indicators["ema_200"] = lastEMA(closes, 200)
	} else {
		indicators["ema_200"] = closes[len(closes)-1]
	}
	indicators["sma_20"] = lastSMA(closes, 20)
	indicators["sma_50"] = lastSMA(closes, 50)

	// RSI
	rsi := CalculateRSI(closes, 14)
	indicators["rsi"] = rsi[len(rsi)-1]

	// MACD
	macd := CalculateMACD(closes, 12, 26, 9)
	indicators["macd"] = macd.MACD
	indicators["macd_signal"] = macd.Signal
	indicators["macd_histogram"] = macd.Histogram

	// Bollinger Bands
	bb := CalculateBollinger(closes, 20, 2)
	indicators["bb_upper"] = bb.Upper
	indicators["bb_middle"] = bb.Middle
	indicators["bb_lower"] = bb.Lower
	indicators["bb_width"] = bb.Width

	// ATR
	indicators["atr"] = CalculateATR(highs, lows, closes, 14)

	// Stochastic
	stochK, stochD := CalculateStochastic(highs, lows, closes, 14, 3, 3)
	indicators["stoch_k"] = stochK
	indicators["stoch_d"] = stochD

	// CCI and Williams %R
	indicators["cci"] = CalculateCCI(highs, lows, closes, 14)
	indicators["williams_r"] = CalculateWilliamsR(highs, lows, closes, 14)

	// Volume
	indicators["volume_avg"] = lastSMA(volumes, 20)
	if indicators["volume_avg"] != 0 {
		indicators["volume_ratio"] = volumes[len(volumes)-1] / indicators["volume_avg"]
	} else {
		indicators["volume_ratio"] = 0
	}
	indicators["obv"] = CalculateOBV(closes, volumes)

	// ADX
	indicators["adx"] = CalculateADX(highs, lows, closes, 14)

	// Momentum
	indicators["momentum"] = CalculateMomentum(closes, 10)
	indicators["roc"] = CalculateROC(closes, 10)

	customIndicators(closes, highs, lows, volumes, indicators)

	for name, v := range indicators {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("indicator %s computed as %v", name, v)
		}
	}
	return indicators, nil
}

// customIndicators adds the derived indicators that have no standard
// definition: range position, rolling volatility, support/resistance, trend
// and volume strength, and price acceleration.
func customIndicators(closes, highs, lows, volumes []float64, indicators map[string]float64) {
	currentPrice := closes[len(closes)-1]

	recentHigh, recentLow := highestLowest(highs, lows, 20)
	if recentHigh != recentLow {
		indicators["price_position"] = (currentPrice - recentLow) / (recentHigh - recentLow)
	} else {
		indicators["price_position"] = 0.5
	}
	indicators["support"] = recentLow
	indicators["resistance"] = recentHigh

	returns := pctReturns(closes)
	indicators["volatility_10"] = stdDev(returns, 10)
	indicators["volatility_20"] = stdDev(returns, 20)

	ema9 := indicators["ema_9"]
	ema21 := indicators["ema_21"]
	if ema21 != 0 {
		indicators["trend_strength"] = (ema9 - ema21) / ema21
	} else {
		indicators["trend_strength"] = 0
	}

	volumeEMA := lastEMA(volumes, 10)
	if volumeEMA != 0 && !math.IsNaN(volumeEMA) {
		indicators["volume_trend"] = (volumes[len(volumes)-1] - volumeEMA) / volumeEMA
	} else {
		indicators["volume_trend"] = 0
	}

	n := len(closes)
	indicators["price_acceleration"] = (closes[n-1] - closes[n-2]) - (closes[n-2] - closes[n-3])
}
