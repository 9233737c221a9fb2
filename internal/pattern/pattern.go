// Package pattern detects candlestick formations on recent candles. Matches
// are observational: they enrich signal metadata and the trade journal but do
// not gate entries.
package pattern

import (
	"math"

	"github.com/amirphl/ml-trader/internal/candle"
)

// Direction is the bias a formation implies.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Match is one detected formation. Index addresses the candle that completes
// the formation.
type Match struct {
	Name      string
	Direction Direction
	Strength  float64 // 0..1
	Index     int
}

// body, upperWick and lowerWick describe a single candle's anatomy.
func body(c candle.Candle) float64      { return math.Abs(c.Close - c.Open) }
func upperWick(c candle.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }
func lowerWick(c candle.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }
func spread(c candle.Candle) float64    { return c.High - c.Low }

func isBull(c candle.Candle) bool { return c.Close > c.Open }
func isBear(c candle.Candle) bool { return c.Close < c.Open }

// Detect scans the series and returns every formation found, in index order.
// Invalid candles are skipped rather than failing the whole scan.
func Detect(candles []candle.Candle) []Match {
	var matches []Match
	for i := range candles {
		if candles[i].Validate() != nil {
			continue
		}
		if m, ok := doji(candles, i); ok {
			matches = append(matches, m)
		}
		if m, ok := hammer(candles, i); ok {
			matches = append(matches, m)
		}
		if m, ok := engulfing(candles, i); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

// Latest returns only the formations completing on the final candle.
func Latest(candles []candle.Candle) []Match {
	if len(candles) == 0 {
		return nil
	}
	last := len(candles) - 1
	var out []Match
	for _, m := range Detect(candles) {
		if m.Index == last {
			out = append(out, m)
		}
	}
	return out
}

// Bias condenses a match set into a net directional hint: +1 bullish,
// -1 bearish, 0 mixed or empty.
func Bias(matches []Match) float64 {
	var score float64
	for _, m := range matches {
		switch m.Direction {
		case Bullish:
			score += m.Strength
		case Bearish:
			score -= m.Strength
		}
	}
	if score > 0 {
		return 1
	}
	if score < 0 {
		return -1
	}
	return 0
}

// doji: body under 10% of the spread.
func doji(candles []candle.Candle, i int) (Match, bool) {
	c := candles[i]
	sp := spread(c)
	if sp == 0 || body(c)/sp >= 0.1 {
		return Match{}, false
	}
	return Match{Name: "doji", Direction: Neutral, Strength: 0.3, Index: i}, true
}

// hammer: long lower wick after a decline reads bullish; the mirror image
// (shooting star) after an advance reads bearish. Requires three candles of
// context to establish the preceding move.
func hammer(candles []candle.Candle, i int) (Match, bool) {
	if i < 3 {
		return Match{}, false
	}
	c := candles[i]
	sp := spread(c)
	if sp == 0 {
		return Match{}, false
	}
	bodyRatio := body(c) / sp
	if bodyRatio < 0.1 || bodyRatio > 0.35 {
		return Match{}, false
	}

	declined := candles[i-3].Close > candles[i-1].Close
	advanced := candles[i-3].Close < candles[i-1].Close

	if declined && lowerWick(c) >= 2*body(c) && upperWick(c) <= body(c) {
		return Match{Name: "hammer", Direction: Bullish, Strength: wickStrength(lowerWick(c), body(c)), Index: i}, true
	}
	if advanced && upperWick(c) >= 2*body(c) && lowerWick(c) <= body(c) {
		return Match{Name: "shooting_star", Direction: Bearish, Strength: wickStrength(upperWick(c), body(c)), Index: i}, true
	}
	return Match{}, false
}

// engulfing: the current body fully covers the previous body in the opposite
// direction. Strength grows with the engulfing ratio and a volume expansion.
func engulfing(candles []candle.Candle, i int) (Match, bool) {
	if i < 1 {
		return Match{}, false
	}
	cur, prev := candles[i], candles[i-1]

	var dir Direction
	switch {
	case isBull(cur) && isBear(prev):
		dir = Bullish
	case isBear(cur) && isBull(prev):
		dir = Bearish
	default:
		return Match{}, false
	}

	curHigh, curLow := math.Max(cur.Open, cur.Close), math.Min(cur.Open, cur.Close)
	prevHigh, prevLow := math.Max(prev.Open, prev.Close), math.Min(prev.Open, prev.Close)
	if curHigh < prevHigh || curLow > prevLow {
		return Match{}, false
	}

	strength := 0.3
	if pb := body(prev); pb > 0 {
		strength = math.Min(body(cur)/pb/2, 1)
	}
	if cur.Volume > prev.Volume*1.5 {
		strength = math.Min(strength*1.2, 1)
	}
	name := "bullish_engulfing"
	if dir == Bearish {
		name = "bearish_engulfing"
	}
	return Match{Name: name, Direction: dir, Strength: math.Max(strength, 0.3), Index: i}, true
}

func wickStrength(wick, body float64) float64 {
	if body == 0 {
		return 0.3
	}
	return math.Min(wick/body/4, 1)
}
