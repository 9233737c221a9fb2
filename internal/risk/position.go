// Package risk is the position and risk state machine: it gatekeeps trade
// admission, sizes positions, evaluates exits, tracks drawdown and daily loss,
// and enforces the circuit breaker.
package risk

import (
	"time"

	"github.com/amirphl/ml-trader/internal/market"
)

// Position is one open position. CurrentPrice is the latest mark price and is
// refreshed every tick by the trading loop; all other fields are set at entry.
type Position struct {
	Symbol       string      `json:"symbol"`
	Side         market.Side `json:"side"`
	Size         float64     `json:"size"`
	EntryPrice   float64     `json:"entry_price"`
	EntryTime    time.Time   `json:"entry_time"`
	StopLoss     float64     `json:"stop_loss,omitempty"`
	TakeProfit   float64     `json:"take_profit,omitempty"`
	CurrentPrice float64     `json:"current_price,omitempty"`
}

// UnrealizedPnL values the position at the current mark price. Zero until the
// first price update arrives.
func (p *Position) UnrealizedPnL() float64 {
	if p.CurrentPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Size * p.Side.Sign()
}

// PnLPercentage is the unrealized PnL relative to the entry notional.
func (p *Position) PnLPercentage() float64 {
	if p.CurrentPrice == 0 || p.EntryPrice == 0 || p.Size == 0 {
		return 0
	}
	return p.UnrealizedPnL() / (p.EntryPrice * p.Size) * 100
}

// ClosedTrade is an append-only record of a completed round trip.
type ClosedTrade struct {
	Symbol        string      `json:"symbol"`
	Side          market.Side `json:"side"`
	Size          float64     `json:"size"`
	EntryPrice    float64     `json:"entry_price"`
	ExitPrice     float64     `json:"exit_price"`
	PnL           float64     `json:"pnl"`
	PnLPercentage float64     `json:"pnl_percentage"`
	Reason        string      `json:"reason"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Metrics is a point-in-time view of the risk state.
type Metrics struct {
	Balance              float64 `json:"balance"`
	DailyPnL             float64 `json:"daily_pnl"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	TotalExposure        float64 `json:"total_exposure"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	OpenPositions        int     `json:"open_positions"`
	DailyTrades          int     `json:"daily_trades"`
	CircuitBreakerActive bool    `json:"circuit_breaker_active"`
	ExposureRatio        float64 `json:"exposure_ratio"`
}

// Summary aggregates all open positions for the status surface.
type Summary struct {
	TotalPositions int        `json:"total_positions"`
	TotalPnL       float64    `json:"total_pnl"`
	Positions      []Position `json:"positions"`
}
