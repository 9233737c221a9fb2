// Package indicator provides technical analysis indicators for financial markets
package indicator

import "math"

// CalculateSMA returns the simple moving average series. The first period-1
// entries are NaN.
func CalculateSMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	sma := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		sma[i] = math.NaN()
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	sma[period-1] = sum / float64(period)
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		sma[i] = sum / float64(period)
	}
	return sma
}

// CalculateEMA returns the exponential moving average series, seeded with the
// SMA of the first period values. The first period-1 entries are NaN.
func CalculateEMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	ema := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		ema[i] = math.NaN()
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema[period-1] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema[i] = (values[i]-ema[i-1])*multiplier + ema[i-1]
	}
	return ema
}

// lastSMA returns the SMA of the trailing period values.
func lastSMA(values []float64, period int) float64 {
	sma := CalculateSMA(values, period)
	if sma == nil {
		return math.NaN()
	}
	return sma[len(sma)-1]
}

// lastEMA returns the latest EMA value.
func lastEMA(values []float64, period int) float64 {
	ema := CalculateEMA(values, period)
	if ema == nil {
		return math.NaN()
	}
	return ema[len(ema)-1]
}

// pctReturns returns the close-to-close fractional return series (one element
// shorter than the input).
func pctReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// stdDev returns the sample standard deviation of the trailing n values.
func stdDev(values []float64, n int) float64 {
	if n > len(values) {
		n = len(values)
	}
	if n < 2 {
		return 0
	}
	tail := values[len(values)-n:]
	var mean float64
	for _, v := range tail {
		mean += v
	}
	mean /= float64(n)
	var variance float64
	for _, v := range tail {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(n-1))
}

// highestLowest returns the max high and min low over the trailing n entries.
func highestLowest(highs, lows []float64, n int) (float64, float64) {
	if n > len(highs) {
		n = len(highs)
	}
	highest := highs[len(highs)-n]
	lowest := lows[len(lows)-n]
	for i := len(highs) - n + 1; i < len(highs); i++ {
		if highs[i] > highest {
			highest = highs[i]
		}
		if lows[i] < lowest {
			lowest = lows[i]
		}
	}
	return highest, lowest
}
