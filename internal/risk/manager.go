package risk

import (
	"math"
	"sync"
	"time"

	"github.com/amirphl/ml-trader/internal/market"
	"github.com/amirphl/ml-trader/internal/strategy"
	"github.com/amirphl/ml-trader/internal/utils"
)

// Config holds the risk limits. Zero values fall back to conservative defaults.
type Config struct {
	RiskPerTrade     float64       // fraction of balance risked per trade, e.g. 0.02
	MaxDailyLoss     float64       // fraction of balance, e.g. 0.05
	StopLossPct      float64       // e.g. 0.02
	TakeProfitPct    float64       // e.g. 0.04
	MaxPositionSize  float64       // fraction of balance per position, e.g. 0.1
	MaxOpenPositions int           // e.g. 3
	MinConfidence    float64       // admission floor, e.g. 0.65
	MaxDrawdown      float64       // admission ceiling, default 0.15
	MaxHoldingTime   time.Duration // time-based exit, default 24h
	MaxLossPct       float64       // percentage-based exit, default 5.0
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxOpenPositions <= 0 {
		out.MaxOpenPositions = 3
	}
	if out.MaxDrawdown <= 0 {
		out.MaxDrawdown = 0.15
	}
	if out.MaxHoldingTime <= 0 {
		out.MaxHoldingTime = 24 * time.Hour
	}
	if out.MaxLossPct <= 0 {
		out.MaxLossPct = 5.0
	}
	return out
}

// Manager owns the open-position list, daily counters, drawdown high-water
// mark and the circuit breaker. Daily counters reset exactly once per UTC
// calendar date; the breaker latches on a daily-loss breach or an emergency
// close and only the daily rollover clears it.
type Manager struct {
	cfg Config

	mu                   sync.RWMutex
	positions            []*Position
	balance              float64
	initialBalance       float64
	peakBalance          float64
	maxDrawdown          float64
	dailyPnL             float64
	dailyTrades          int
	lastReset            time.Time // UTC date of the last counter reset
	circuitBreakerActive bool
	tradeHistory         []ClosedTrade
}

// NewManager creates a risk manager with the given limits.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		lastReset: utcDate(time.Now()),
	}
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResetDailyCounters zeroes the daily counters and clears the circuit breaker
// on a UTC date rollover. Idempotent within the same day.
func (m *Manager) ResetDailyCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyCountersAt(time.Now())
}

func (m *Manager) resetDailyCountersAt(now time.Time) {
	today := utcDate(now)
	if today.Equal(m.lastReset) {
		return
	}
	m.dailyPnL = 0
	m.dailyTrades = 0
	m.circuitBreakerActive = false
	m.lastReset = today
	utils.GetLogger().Info("Risk | Daily counters reset")
}

// UpdateBalance records the latest balance and maintains the peak-balance
// high-water mark and running max drawdown.
func (m *Manager) UpdateBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balance = balance
	if m.initialBalance == 0 {
		m.initialBalance = balance
	}
	if balance > m.peakBalance {
		m.peakBalance = balance
	}
	if m.peakBalance > 0 {
		drawdown := (m.peakBalance - balance) / m.peakBalance
		m.maxDrawdown = math.Max(m.maxDrawdown, drawdown)
	}
}

// ShouldExecuteTrade applies every admission gate to a signal. It never
// mutates state beyond the daily rollover check.
func (m *Manager) ShouldExecuteTrade(signal *strategy.TradeSignal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyCountersAt(time.Now())

	if m.circuitBreakerActive {
		return false
	}
	if signal.Confidence < m.cfg.MinConfidence {
		utils.GetLogger().Infof("Risk | [%s] Confidence %.3f below threshold", signal.Symbol, signal.Confidence)
		return false
	}
	if m.dailyPnL <= -m.cfg.MaxDailyLoss*m.balance {
		utils.GetLogger().Warn("Risk | Daily loss limit reached")
		return false
	}
	if len(m.positions) >= m.cfg.MaxOpenPositions {
		utils.GetLogger().Warn("Risk | Maximum open positions reached")
		return false
	}
	if m.findPosition(signal.Symbol) != nil {
		utils.GetLogger().Infof("Risk | [%s] Position already open", signal.Symbol)
		return false
	}
	if m.maxDrawdown > m.cfg.MaxDrawdown {
		utils.GetLogger().Warnf("Risk | High drawdown %.2f%% blocks new trades", m.maxDrawdown*100)
		return false
	}
	return true
}

// CalculatePositionSize sizes a position from the risk budget and stop
// distance, scaled by confidence and capped by the per-position limit.
// Returns 0 when the breaker is active, the daily loss is breached (which
// latches the breaker) or the position cap is reached.
func (m *Manager) CalculatePositionSize(signal *strategy.TradeSignal, accountBalance float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyCountersAt(time.Now())

	if m.circuitBreakerActive {
		utils.GetLogger().Warn("Risk | Circuit breaker active, no new positions")
		return 0
	}
	if m.dailyPnL <= -m.cfg.MaxDailyLoss*accountBalance {
		utils.GetLogger().Warn("Risk | Daily loss limit reached, activating circuit breaker")
		m.circuitBreakerActive = true
		return 0
	}
	if len(m.positions) >= m.cfg.MaxOpenPositions {
		utils.GetLogger().Warn("Risk | Maximum open positions reached")
		return 0
	}

	riskAmount := accountBalance * m.cfg.RiskPerTrade
	confidenceMultiplier := math.Min(signal.Confidence/m.cfg.MinConfidence, 1.5)
	adjustedRisk := riskAmount * confidenceMultiplier

	stopLoss := shiftByPct(signal.Price, signal.Side, -m.cfg.StopLossPct)
	stopDistance := math.Abs(signal.Price - stopLoss)
	if stopDistance == 0 {
		return 0
	}
	size := adjustedRisk / stopDistance

	maxSize := m.cfg.MaxPositionSize * accountBalance / signal.Price
	size = math.Min(size, maxSize)

	utils.GetLogger().Infof("Risk | [%s] Calculated position size %.6f", signal.Symbol, size)
	return size
}

// shiftByPct moves price by pct in the direction favorable (positive pct) or
// adverse (negative pct) to the side.
func shiftByPct(price float64, side market.Side, pct float64) float64 {
	return price * (1 + pct*side.Sign())
}

// CheckExitConditions evaluates the exit rules in order and returns the first
// match. The reason strings are stable and recorded on the closed trade.
func (m *Manager) CheckExitConditions(p *Position) (bool, string) {
	if p.CurrentPrice == 0 {
		return false, "no current price"
	}

	if p.StopLoss > 0 {
		if p.Side == market.Buy && p.CurrentPrice <= p.StopLoss {
			return true, "Stop loss triggered"
		}
		if p.Side == market.Sell && p.CurrentPrice >= p.StopLoss {
			return true, "Stop loss triggered"
		}
	}

	if p.TakeProfit > 0 {
		if p.Side == market.Buy && p.CurrentPrice >= p.TakeProfit {
			return true, "Take profit triggered"
		}
		if p.Side == market.Sell && p.CurrentPrice <= p.TakeProfit {
			return true, "Take profit triggered"
		}
	}

	if time.Since(p.EntryTime) > m.cfg.MaxHoldingTime {
		return true, "Time-based exit"
	}

	if p.PnLPercentage() <= -m.cfg.MaxLossPct {
		return true, "Percentage loss limit"
	}

	return false, "no exit condition met"
}

// CalculateStopLossTakeProfit derives the protective levels for a signal.
func (m *Manager) CalculateStopLossTakeProfit(signal *strategy.TradeSignal) (stopLoss, takeProfit float64) {
	stopLoss = shiftByPct(signal.Price, signal.Side, -m.cfg.StopLossPct)
	takeProfit = shiftByPct(signal.Price, signal.Side, m.cfg.TakeProfitPct)
	return stopLoss, takeProfit
}

// RecordTrade appends a ClosedTrade and updates the daily counters. The
// returned trade is what the caller hands to the journal sink.
func (m *Manager) RecordTrade(symbol string, side market.Side, size, entryPrice, exitPrice, pnl float64, reason string) ClosedTrade {
	m.mu.Lock()
	defer m.mu.Unlock()

	trade := ClosedTrade{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
	if entryPrice != 0 && size != 0 {
		trade.PnLPercentage = pnl / (entryPrice * size) * 100
	}

	m.tradeHistory = append(m.tradeHistory, trade)
	m.dailyPnL += pnl
	m.dailyTrades++

	utils.GetLogger().Infof("Risk | [%s] Trade recorded %s PnL %.4f (%s)", symbol, side, pnl, reason)
	return trade
}

// AddPosition registers a filled position.
func (m *Manager) AddPosition(p *Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, p)
	utils.GetLogger().Infof("Risk | [%s] Added %s position, size %.6f", p.Symbol, p.Side, p.Size)
}

// RemovePosition removes and returns the position matching symbol and side,
// or nil if none exists.
func (m *Manager) RemovePosition(symbol string, side market.Side) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.positions {
		if p.Symbol == symbol && p.Side == side {
			m.positions = append(m.positions[:i], m.positions[i+1:]...)
			utils.GetLogger().Infof("Risk | [%s] Removed %s position", symbol, side)
			return p
		}
	}
	return nil
}

// UpdatePositionPrices refreshes the mark price of every position for symbol.
func (m *Manager) UpdatePositionPrices(symbol string, currentPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.positions {
		if p.Symbol == symbol {
			p.CurrentPrice = currentPrice
		}
	}
}

// GetPosition returns the open position for symbol, or nil. The single
// position per symbol rule is enforced at admission, side-agnostic.
func (m *Manager) GetPosition(symbol string) *Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPosition(symbol)
}

func (m *Manager) findPosition(symbol string) *Position {
	for _, p := range m.positions {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}

// OpenPositions returns a copy of the open-position list.
func (m *Manager) OpenPositions() []*Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Position, len(m.positions))
	copy(out, m.positions)
	return out
}

// EmergencyCloseAll atomically clears the position list, latches the circuit
// breaker and returns the cleared positions for external liquidation. This is
// the only force-removal path outside the normal close flow and never fails.
func (m *Manager) EmergencyCloseAll() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := m.positions
	m.positions = nil
	m.circuitBreakerActive = true
	utils.GetLogger().Error("Risk | Emergency close all positions triggered")
	return cleared
}

// Metrics returns a snapshot of the risk state.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var exposure, unrealized float64
	for _, p := range m.positions {
		exposure += p.Size * p.EntryPrice
		unrealized += p.UnrealizedPnL()
	}

	metrics := Metrics{
		Balance:              m.balance,
		DailyPnL:             m.dailyPnL,
		UnrealizedPnL:        unrealized,
		TotalExposure:        exposure,
		MaxDrawdown:          m.maxDrawdown,
		OpenPositions:        len(m.positions),
		DailyTrades:          m.dailyTrades,
		CircuitBreakerActive: m.circuitBreakerActive,
	}
	if m.balance > 0 {
		metrics.ExposureRatio = exposure / m.balance
	}
	return metrics
}

// PositionSummary returns per-position snapshots plus the aggregate
// unrealized PnL.
func (m *Manager) PositionSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := Summary{Positions: make([]Position, 0, len(m.positions))}
	for _, p := range m.positions {
		summary.Positions = append(summary.Positions, *p)
		summary.TotalPnL += p.UnrealizedPnL()
	}
	summary.TotalPositions = len(m.positions)
	return summary
}

// TradeHistory returns a copy of the closed-trade journal.
func (m *Manager) TradeHistory() []ClosedTrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClosedTrade, len(m.tradeHistory))
	copy(out, m.tradeHistory)
	return out
}

// CircuitBreakerActive reports whether new trade admission is blocked.
func (m *Manager) CircuitBreakerActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.circuitBreakerActive
}

// ActivateCircuitBreaker latches the breaker, e.g. after repeated close
// failures. Only the daily rollover clears it.
func (m *Manager) ActivateCircuitBreaker(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.circuitBreakerActive {
		m.circuitBreakerActive = true
		utils.GetLogger().Errorf("Risk | Circuit breaker activated: %s", reason)
	}
}
