// Package strategy fuses rule-based technical analysis with a learned
// classifier into trade signals.
package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/ml-trader/internal/candle"
	"github.com/amirphl/ml-trader/internal/indicator"
	"github.com/amirphl/ml-trader/internal/market"
	"github.com/amirphl/ml-trader/internal/ml"
	"github.com/amirphl/ml-trader/internal/pattern"
	"github.com/amirphl/ml-trader/internal/utils"
)

// MarketState is the per-tick view of one symbol, recomputed from every
// snapshot and never persisted.
type MarketState struct {
	Symbol     string             `json:"symbol"`
	Timestamp  time.Time          `json:"timestamp"`
	Price      float64            `json:"price"`
	Volume     float64            `json:"volume"`
	Trend      market.Trend       `json:"trend"`
	Volatility float64            `json:"volatility"`
	Indicators map[string]float64 `json:"indicators"`
	Patterns   []pattern.Match    `json:"patterns,omitempty"`
}

// TradeSignal is a fused entry signal, consumed once by the trading loop.
type TradeSignal struct {
	Symbol     string             `json:"symbol"`
	Side       market.Side        `json:"side"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
	Price      float64            `json:"price"`
	Features   map[string]float64 `json:"features"`
}

// State is the generator's queryable state for the status surface.
type State struct {
	LastSignalTimes   map[string]time.Time `json:"last_signal_times"`
	MinSignalInterval time.Duration        `json:"min_signal_interval"`
	ModelLoaded       bool                 `json:"model_loaded"`
}

// Config tunes signal generation.
type Config struct {
	MinConfidence     float64       // floor applied after fusion, e.g. 0.65
	MinSignalInterval time.Duration // per-symbol cooldown, default 5m
	FeatureColumns    []string      // classifier feature layout
}

// technicalSignal is the rule-based sub-signal before fusion.
type technicalSignal struct {
	side       market.Side
	confidence float64
}

// Generator produces at most one TradeSignal per snapshot. The technical and
// classifier sub-signals must agree on direction; combined confidence is
// 0.4*technical + 0.6*classifier, penalized in high-volatility and sideways
// markets. Without a loaded model it degrades to technical-only scoring.
type Generator struct {
	cfg        Config
	classifier ml.Classifier

	mu             sync.RWMutex
	lastSignalTime map[string]time.Time
}

// NewGenerator creates a generator. classifier may be a never-loaded instance;
// signals then carry the technical score as their confidence.
func NewGenerator(cfg Config, classifier ml.Classifier) *Generator {
	if cfg.MinSignalInterval <= 0 {
		cfg.MinSignalInterval = 5 * time.Minute
	}
	if len(cfg.FeatureColumns) == 0 {
		cfg.FeatureColumns = ml.DefaultFeatureColumns()
	}
	return &Generator{
		cfg:            cfg,
		classifier:     classifier,
		lastSignalTime: make(map[string]time.Time),
	}
}

// AnalyzeMarket computes the indicator map, trend label and volatility for a
// snapshot. Fails with indicator.ErrInsufficientData below 50 candles.
func (g *Generator) AnalyzeMarket(candles []candle.Candle) (MarketState, error) {
	indicators, err := indicator.CalculateAll(candles)
	if err != nil {
		return MarketState{}, err
	}

	latest := candles[len(candles)-1]
	patterns := pattern.Latest(candles)
	indicators["pattern_bias"] = pattern.Bias(patterns)

	return MarketState{
		Symbol:     latest.Symbol,
		Timestamp:  latest.Timestamp,
		Price:      latest.Close,
		Volume:     latest.Volume,
		Trend:      determineTrend(indicators),
		Volatility: indicators["volatility_20"],
		Indicators: indicators,
		Patterns:   patterns,
	}, nil
}

// GenerateSignal analyzes the snapshot and returns a fused signal, or nil when
// no tradeable setup exists. The cooldown timestamp is recorded only when a
// signal is actually returned.
func (g *Generator) GenerateSignal(candles []candle.Candle) (*TradeSignal, error) {
	state, err := g.AnalyzeMarket(candles)
	if err != nil {
		return nil, err
	}

	if !g.canSignal(state.Symbol, state.Timestamp) {
		utils.GetLogger().Debugf("Strategy | [%s] Signal suppressed by cooldown", state.Symbol)
		return nil, nil
	}

	tech := technicalScore(state)
	if tech == nil {
		return nil, nil
	}

	confidence, err := g.fuse(*tech, state)
	if err != nil {
		return nil, err
	}
	if confidence < g.cfg.MinConfidence {
		utils.GetLogger().Debugf("Strategy | [%s] %s rejected, confidence %.3f below floor %.2f",
			state.Symbol, tech.side, confidence, g.cfg.MinConfidence)
		return nil, nil
	}

	g.recordSignal(state.Symbol, state.Timestamp)
	utils.GetLogger().Infof("Strategy | [%s] Generated %s signal, confidence %.3f at %.2f",
		state.Symbol, tech.side, confidence, state.Price)

	return &TradeSignal{
		Symbol:     state.Symbol,
		Side:       tech.side,
		Confidence: confidence,
		Timestamp:  state.Timestamp,
		Price:      state.Price,
		Features:   state.Indicators,
	}, nil
}

// fuse combines the technical sub-signal with the classifier prediction and
// applies market-condition penalties. Directions must agree or the setup is
// discarded. A missing model leaves the technical confidence as-is.
func (g *Generator) fuse(tech technicalSignal, state MarketState) (float64, error) {
	confidence := tech.confidence

	if g.classifier != nil && g.classifier.IsLoaded() {
		features := ml.Features(g.cfg.FeatureColumns, state.Indicators)
		pred, err := g.classifier.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("classifier predict: %w", err)
		}
		if pred.Direction != tech.side {
			return 0, nil
		}
		confidence = 0.4*tech.confidence + 0.6*pred.Confidence
	}

	if state.Volatility > 0.05 {
		confidence *= 0.8
	}
	if state.Trend == market.Sideways {
		confidence *= 0.7
	}
	return confidence, nil
}

// technicalScore evaluates five boolean conditions per side and returns the
// stronger side when its score exceeds 0.6 and strictly beats the other side.
func technicalScore(state MarketState) *technicalSignal {
	ind := state.Indicators
	price := state.Price

	rsi := ind["rsi"]
	ema9 := ind["ema_9"]
	ema21 := ind["ema_21"]
	ema200 := ind["ema_200"]
	volumeAvg := ind["volume_avg"]

	rsiOversold := rsi < 30
	rsiOverbought := rsi > 70
	uptrend := ema9 > ema21 && ema21 > ema200 && price > ema9
	downtrend := ema9 < ema21 && ema21 < ema200 && price < ema9
	volumeSurge := state.Volume > volumeAvg*1.5
	macdBullish := ind["macd"] > ind["macd_signal"]
	macdBearish := ind["macd"] < ind["macd_signal"]

	buyConditions := []bool{
		rsiOversold || (rsi > 30 && rsi < 50),
		uptrend,
		macdBullish,
		volumeSurge,
		state.Trend == market.Bullish,
	}
	sellConditions := []bool{
		rsiOverbought || (rsi > 50 && rsi < 70),
		downtrend,
		macdBearish,
		volumeSurge,
		state.Trend == market.Bearish,
	}

	buyScore := score(buyConditions)
	sellScore := score(sellConditions)

	if buyScore > 0.6 && buyScore > sellScore {
		return &technicalSignal{side: market.Buy, confidence: buyScore}
	}
	if sellScore > 0.6 && sellScore > buyScore {
		return &technicalSignal{side: market.Sell, confidence: sellScore}
	}
	return nil
}

func score(conditions []bool) float64 {
	hits := 0
	for _, c := range conditions {
		if c {
			hits++
		}
	}
	return float64(hits) / float64(len(conditions))
}

func determineTrend(indicators map[string]float64) market.Trend {
	ema9 := indicators["ema_9"]
	ema21 := indicators["ema_21"]
	ema200 := indicators["ema_200"]

	switch {
	case ema9 > ema21 && ema21 > ema200:
		return market.Bullish
	case ema9 < ema21 && ema21 < ema200:
		return market.Bearish
	default:
		return market.Sideways
	}
}

func (g *Generator) canSignal(symbol string, now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	last, ok := g.lastSignalTime[symbol]
	if !ok {
		return true
	}
	return now.Sub(last) >= g.cfg.MinSignalInterval
}

func (g *Generator) recordSignal(symbol string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSignalTime[symbol] = at
}

// State returns a snapshot of the generator's runtime state.
func (g *Generator) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	times := make(map[string]time.Time, len(g.lastSignalTime))
	for k, v := range g.lastSignalTime {
		times[k] = v
	}
	loaded := g.classifier != nil && g.classifier.IsLoaded()
	return State{
		LastSignalTimes:   times,
		MinSignalInterval: g.cfg.MinSignalInterval,
		ModelLoaded:       loaded,
	}
}
