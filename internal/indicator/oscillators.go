package indicator

import "math"

// CalculateRSI returns the Wilder-smoothed RSI series. The first period-1
// entries are NaN.
func CalculateRSI(prices []float64, period int) []float64 {
	if len(prices) < period || period <= 0 {
		return nil
	}
	rsi := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		rsi[i] = math.NaN()
	}
	var gain, loss float64
	for i := 1; i < period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		rsi[period-1] = 100
	} else {
		rs := avgGain / avgLoss
		rsi[period-1] = 100 - (100 / (1 + rs))
	}
	for i := period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain = change
			loss = 0
		} else {
			gain = 0
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		if avgLoss == 0 {
			rsi[i] = 100
		} else {
			rs := avgGain / avgLoss
			rsi[i] = 100 - (100 / (1 + rs))
		}
	}
	return rsi
}

// CalculateStochastic returns the latest %K and %D of the stochastic
// oscillator: raw %K over periodK bars, smoothed by smoothK, with %D the
// smoothD-bar SMA of %K.
func CalculateStochastic(highs, lows, closes []float64, periodK, smoothK, smoothD int) (float64, float64) {
	need := periodK + smoothK + smoothD - 2
	if len(closes) < need || periodK <= 0 || smoothK <= 0 || smoothD <= 0 {
		return math.NaN(), math.NaN()
	}

	raw := make([]float64, 0, smoothK+smoothD-1)
	for i := len(closes) - (smoothK + smoothD - 1); i < len(closes); i++ {
		highest := highs[i-periodK+1]
		lowest := lows[i-periodK+1]
		for j := i - periodK + 2; j <= i; j++ {
			if highs[j] > highest {
				highest = highs[j]
			}
			if lows[j] < lowest {
				lowest = lows[j]
			}
		}
		if highest == lowest {
			raw = append(raw, 50.0)
			continue
		}
		raw = append(raw, 100.0*(closes[i]-lowest)/(highest-lowest))
	}

	k := make([]float64, 0, smoothD)
	for i := smoothK - 1; i < len(raw); i++ {
		var sum float64
		for j := i - smoothK + 1; j <= i; j++ {
			sum += raw[j]
		}
		k = append(k, sum/float64(smoothK))
	}

	var dSum float64
	for _, v := range k {
		dSum += v
	}
	return k[len(k)-1], dSum / float64(len(k))
}

// CalculateCCI returns the latest Commodity Channel Index over period bars.
func CalculateCCI(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return math.NaN()
	}

	tp := make([]float64, period)
	var sum float64
	for i := 0; i < period; i++ {
		idx := len(closes) - period + i
		tp[i] = (highs[idx] + lows[idx] + closes[idx]) / 3.0
		sum += tp[i]
	}
	mean := sum / float64(period)

	var meanDev float64
	for _, v := range tp {
		meanDev += math.Abs(v - mean)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return 0
	}
	return (tp[period-1] - mean) / (0.015 * meanDev)
}

// CalculateWilliamsR returns the latest Williams %R over period bars,
// in the conventional [-100, 0] range.
func CalculateWilliamsR(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return math.NaN()
	}
	highest, lowest := highestLowest(highs, lows, period)
	if highest == lowest {
		return -50
	}
	return -100 * (highest - closes[len(closes)-1]) / (highest - lowest)
}
