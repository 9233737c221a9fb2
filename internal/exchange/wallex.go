// Package exchange
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	wallex "github.com/wallexchange/wallex-go"
	"golang.org/x/time/rate"

	"github.com/amirphl/ml-trader/internal/market"
	"github.com/amirphl/ml-trader/internal/utils"
)

// WallexGateway implements Gateway on top of the Wallex REST client.
type WallexGateway struct {
	client  *wallex.Client
	limiter *rate.Limiter
}

// NewWallexGateway creates a gateway authenticated with apiKey. Outbound REST
// calls are rate limited to stay under the venue's request budget.
func NewWallexGateway(apiKey string) *WallexGateway {
	return &WallexGateway{
		client:  wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

func (w *WallexGateway) Name() string { return "wallex" }

// retry wraps idempotent reads with bounded retries and exponential backoff.
// Order placement is never retried here: a timed-out submit may have filled.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if isAuthError(err) {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		utils.GetLogger().Warnf("Exchange | Retry attempt %d/%d failed: %v. Backing off for %v", i, attempts, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, err)
}

// isAuthError sniffs credential failures out of the client's flat errors.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "forbidden")
}

// NormalizeSymbol converts e.g. btc-usdt to BTCUSDT for the Wallex API
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// TestConnection verifies the venue is reachable by listing markets.
func (w *WallexGateway) TestConnection(ctx context.Context) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	return retry(ctx, 3, 2*time.Second, func() error {
		markets, err := w.client.Markets()
		if err != nil {
			return fmt.Errorf("fetching markets: %w", err)
		}
		if len(markets) == 0 {
			return fmt.Errorf("no markets returned")
		}
		return nil
	})
}

// GetBalance fetches the balance for one asset (e.g. "USDT").
func (w *WallexGateway) GetBalance(ctx context.Context, asset string) (market.Balance, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return market.Balance{}, err
	}

	var balances map[string]*wallex.Balance
	err := retry(ctx, 3, 2*time.Second, func() error {
		var err error
		balances, err = w.client.Balances()
		if err != nil {
			return fmt.Errorf("fetching balances: %w", err)
		}
		return nil
	})
	if err != nil {
		return market.Balance{}, fmt.Errorf("GetBalance failed: %w", err)
	}

	wb, ok := balances[strings.ToUpper(asset)]
	if !ok {
		return market.Balance{Asset: strings.ToUpper(asset)}, nil
	}

	available, _ := strconv.ParseFloat(string(wb.Value), 64)
	locked, _ := strconv.ParseFloat(string(wb.Locked), 64)
	return market.Balance{
		Asset:     strings.ToUpper(asset),
		Available: available,
		Locked:    locked,
		Total:     available + locked,
		Fiat:      wb.Fiat,
	}, nil
}

// PlaceOrder submits an order. Rejections come back as *ExecutionError; the
// call is never internally retried.
func (w *WallexGateway) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return Order{}, err
	}
	select {
	case <-ctx.Done():
		return Order{}, ctx.Err()
	default:
	}

	params := &wallex.OrderParams{
		Symbol:   NormalizeSymbol(req.Symbol),
		Type:     strings.ToUpper(req.Type),
		Side:     strings.ToUpper(string(req.Side)),
		Price:    wallex.Number(strconv.FormatFloat(req.Price, 'f', 8, 64)),
		Quantity: wallex.Number(strconv.FormatFloat(req.Quantity, 'f', 8, 64)),
	}
	resp, err := w.client.PlaceOrder(params)
	if err != nil {
		if isAuthError(err) {
			return Order{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return Order{}, &ExecutionError{Symbol: req.Symbol, Side: req.Side, Reason: err.Error(), Err: err}
	}

	status := strings.ToUpper(resp.Status)
	if status == "CANCELED" || status == "REJECTED" || status == "EXPIRED" {
		return Order{}, &ExecutionError{Symbol: req.Symbol, Side: req.Side, Reason: "order " + strings.ToLower(status)}
	}

	return Order{
		OrderID:   resp.ClientOrderID,
		Status:    status,
		FilledQty: float64Ptr(resp.ExecutedQty),
		AvgPrice:  float64Ptr(resp.ExecutedPrice),
		Timestamp: resp.CreatedAt.UTC(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
	}, nil
}

func (w *WallexGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if err := w.client.CancelOrder(orderID); err != nil {
			if isAuthError(err) {
				return fmt.Errorf("%w: %v", ErrAuthentication, err)
			}
			return fmt.Errorf("cancel order %s: %w", orderID, err)
		}
		return nil
	}
}

func (w *WallexGateway) GetOrderStatus(ctx context.Context, orderID string) (Order, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return Order{}, err
	}

	var resp *wallex.Order
	err := retry(ctx, 3, 2*time.Second, func() error {
		var err error
		resp, err = w.client.Order(orderID)
		if err != nil {
			return fmt.Errorf("fetching order %s: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("GetOrderStatus failed: %w", err)
	}

	side, parseErr := market.ParseSide(resp.Side)
	if parseErr != nil {
		return Order{}, fmt.Errorf("order %s: %w", orderID, parseErr)
	}

	return Order{
		OrderID:   resp.ClientOrderID,
		Status:    strings.ToUpper(resp.Status),
		FilledQty: float64Ptr(resp.ExecutedQty),
		AvgPrice:  float64Ptr(resp.ExecutedPrice),
		Timestamp: resp.CreatedAt.UTC(),
		Symbol:    resp.Symbol,
		Side:      side,
		Type:      strings.ToLower(resp.Type),
		Price:     float64Ptr(&resp.Price),
		Quantity:  float64Ptr(&resp.OrigQty),
	}, nil
}

// Helper to safely dereference *wallex.Number
func float64Ptr(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	out, _ := strconv.ParseFloat(string(*n), 64)
	return out
}
