// Package exchange
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/ml-trader/internal/market"
)

// ErrAuthentication marks credential or signature failures. Callers must not
// retry these; the session is unusable until reconfigured.
var ErrAuthentication = errors.New("exchange authentication failed")

// ExecutionError reports an order the exchange rejected. The signal that
// produced the order is discarded; no position state changes.
type ExecutionError struct {
	Symbol string
	Side   market.Side
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("order rejected for %s %s: %s", e.Symbol, e.Side, e.Reason)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// OrderRequest represents a new order to be submitted.
type OrderRequest struct {
	Symbol   string
	Side     market.Side
	Type     string // "market" or "limit"
	Price    float64
	Quantity float64
}

// Order represents the exchange's view of a submitted order.
type Order struct {
	OrderID   string
	Status    string
	FilledQty float64
	AvgPrice  float64
	Timestamp time.Time
	Symbol    string
	Side      market.Side
	Type      string
	Price     float64
	Quantity  float64
}

// Gateway is the boundary to the trading venue. Every call is fallible and
// bounded by its context; implementations convert wire responses to the typed
// results above exactly once.
type Gateway interface {
	Name() string
	TestConnection(ctx context.Context) error
	GetBalance(ctx context.Context, asset string) (market.Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (Order, error)
}
