package indicator

import "math"

// MACDResult holds the latest MACD line, signal line, and histogram values.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD computes MACD(fast, slow, signal) over the close series.
func CalculateMACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) < slow+signal || fast <= 0 || slow <= fast || signal <= 0 {
		return MACDResult{MACD: math.NaN(), Signal: math.NaN(), Histogram: math.NaN()}
	}

	emaFast := CalculateEMA(closes, fast)
	emaSlow := CalculateEMA(closes, slow)

	// MACD line is defined from the first index where the slow EMA exists.
	macdLine := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdLine = append(macdLine, emaFast[i]-emaSlow[i])
	}

	signalLine := CalculateEMA(macdLine, signal)
	m := macdLine[len(macdLine)-1]
	s := signalLine[len(signalLine)-1]
	return MACDResult{MACD: m, Signal: s, Histogram: m - s}
}

// BollingerResult holds the latest Bollinger Band levels.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64
}

// CalculateBollinger computes Bollinger Bands(period, ±dev σ) over the close series.
func CalculateBollinger(closes []float64, period int, dev float64) BollingerResult {
	if len(closes) < period || period <= 0 {
		nan := math.NaN()
		return BollingerResult{Upper: nan, Middle: nan, Lower: nan, Width: nan}
	}
	middle := lastSMA(closes, period)
	sd := stdDev(closes, period)
	upper := middle + dev*sd
	lower := middle - dev*sd
	width := 0.0
	if middle != 0 {
		width = (upper - lower) / middle
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower, Width: width}
}

// trueRanges returns the true range series (one element shorter than the input).
func trueRanges(highs, lows, closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	tr := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr = append(tr, math.Max(hl, math.Max(hc, lc)))
	}
	return tr
}

// CalculateATR returns the latest Wilder-smoothed Average True Range.
func CalculateATR(highs, lows, closes []float64, period int) float64 {
	tr := trueRanges(highs, lows, closes)
	if len(tr) < period || period <= 0 {
		return math.NaN()
	}
	var atr float64
	for i := 0; i < period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	for i := period; i < len(tr); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}

// CalculateADX returns the latest Average Directional Index using Wilder smoothing.
func CalculateADX(highs, lows, closes []float64, period int) float64 {
	if len(closes) < 2*period+1 || period <= 0 {
		return math.NaN()
	}

	tr := trueRanges(highs, lows, closes)
	plusDM := make([]float64, len(tr))
	minusDM := make([]float64, len(tr))
	for i := 1; i < len(closes); i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	var trSum, plusSum, minusSum float64
	for i := 0; i < period; i++ {
		trSum += tr[i]
		plusSum += plusDM[i]
		minusSum += minusDM[i]
	}

	dx := func(trS, plusS, minusS float64) float64 {
		if trS == 0 {
			return 0
		}
		plusDI := 100 * plusS / trS
		minusDI := 100 * minusS / trS
		if plusDI+minusDI == 0 {
			return 0
		}
		return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	dxValues := []float64{dx(trSum, plusSum, minusSum)}
	for i := period; i < len(tr); i++ {
		trSum = trSum - trSum/float64(period) + tr[i]
		plusSum = plusSum - plusSum/float64(period) + plusDM[i]
		minusSum = minusSum - minusSum/float64(period) + minusDM[i]
		dxValues = append(dxValues, dx(trSum, plusSum, minusSum))
	}

	// ADX seeds with the mean of the first period DX values, then Wilder-smooths.
	if len(dxValues) < period {
		return math.NaN()
	}
	var adx float64
	for i := 0; i < period; i++ {
		adx += dxValues[i]
	}
	adx /= float64(period)
	for i := period; i < len(dxValues); i++ {
		adx = (adx*float64(period-1) + dxValues[i]) / float64(period)
	}
	return adx
}

// CalculateOBV returns the latest On-Balance Volume value.
func CalculateOBV(closes, volumes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	var obv float64
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv += volumes[i]
		case closes[i] < closes[i-1]:
			obv -= volumes[i]
		}
	}
	return obv
}

// CalculateMomentum returns close[t] - close[t-period].
func CalculateMomentum(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	return closes[len(closes)-1] - closes[len(closes)-1-period]
}

// CalculateROC returns the rate of change over period bars, in percent.
func CalculateROC(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	prev := closes[len(closes)-1-period]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev * 100
}
