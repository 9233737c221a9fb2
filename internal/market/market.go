// Package market
package market

import (
	"fmt"
	"strings"
)

// Side is the direction of a signal, order, or position.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide validates a side string once, at the boundary where it enters the system.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return "", fmt.Errorf("invalid side: %q", s)
	}
}

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for buy and -1 for sell, the PnL direction multiplier.
func (s Side) Sign() float64 {
	if s == Buy {
		return 1
	}
	return -1
}

func (s Side) String() string { return string(s) }

// Trend is the market regime label derived from the EMA ladder.
type Trend string

const (
	Bullish  Trend = "bullish"
	Bearish  Trend = "bearish"
	Sideways Trend = "sideways"
)

// Balance represents an asset balance from an exchange
type Balance struct {
	Asset     string  `json:"asset"`     // Asset symbol (e.g., "BTC", "USDT")
	Available float64 `json:"available"` // Available balance for trading
	Locked    float64 `json:"locked"`    // Balance locked in orders
	Total     float64 `json:"total"`     // Total balance (available + locked)
	Fiat      bool    `json:"fiat"`      // Whether this is a fiat currency
}
