// Package bot is the orchestrating control loop: it wires the market stream,
// signal generator, risk manager and exchange gateway together and drives one
// decision cycle per tick.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/ml-trader/internal/candle"
	"github.com/amirphl/ml-trader/internal/exchange"
	"github.com/amirphl/ml-trader/internal/journal"
	"github.com/amirphl/ml-trader/internal/notifier"
	"github.com/amirphl/ml-trader/internal/risk"
	"github.com/amirphl/ml-trader/internal/strategy"
	"github.com/amirphl/ml-trader/internal/stream"
	"github.com/amirphl/ml-trader/internal/utils"
)

// State is the bot lifecycle phase.
type State string

const (
	Uninitialized State = "uninitialized"
	Connected     State = "connected"
	Running       State = "running"
	Stopped       State = "stopped"
)

// MarketStream is the candle feed the bot drives. *stream.Ingestor is the
// production implementation.
type MarketStream interface {
	Start(ctx context.Context) error
	Stop()
	Latest(n int) []candle.Candle
	Healthy() bool
	LastError() error
	SetDataCallback(stream.DataCallback)
	SetErrorCallback(stream.ErrorCallback)
}

// Config tunes the control loop.
type Config struct {
	Symbol          string
	LookbackPeriod  int           // candles pulled per tick, default 200
	TickInterval    time.Duration // default 5s
	GatewayTimeout  time.Duration // per-call bound on gateway requests, default 10s
	MaxCloseRetries int           // failed close attempts before alerting, default 5
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.LookbackPeriod <= 0 {
		out.LookbackPeriod = 200
	}
	if out.TickInterval <= 0 {
		out.TickInterval = 5 * time.Second
	}
	if out.GatewayTimeout <= 0 {
		out.GatewayTimeout = 10 * time.Second
	}
	if out.MaxCloseRetries <= 0 {
		out.MaxCloseRetries = 5
	}
	return out
}

// Performance is the per-tick metrics snapshot.
type Performance struct {
	Balance       float64   `json:"balance"`
	TotalTrades   int       `json:"total_trades"`
	DailyPnL      float64   `json:"daily_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	OpenPositions int       `json:"open_positions"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Uptime        string    `json:"uptime"`
}

// Status is the user-visible health surface.
type Status struct {
	State           State             `json:"state"`
	Running         bool              `json:"running"`
	Connected       bool              `json:"connected"`
	StreamHealthy   bool              `json:"stream_healthy"`
	Balance         float64           `json:"balance"`
	Performance     Performance       `json:"performance"`
	RiskMetrics     risk.Metrics      `json:"risk_metrics"`
	PositionSummary risk.Summary      `json:"position_summary"`
	StrategyState   strategy.State    `json:"strategy_state"`
	LastErrors      map[string]string `json:"last_errors,omitempty"`
}

// Bot owns the sequential decision loop. All risk state is mutated on the
// loop goroutine; Status reads go through the components' own locks.
type Bot struct {
	cfg       Config
	gateway   exchange.Gateway
	stream    MarketStream
	generator *strategy.Generator
	riskMgr   *risk.Manager
	sink      journal.TradeSink
	notifier  notifier.Notifier

	mu            sync.RWMutex
	state         State
	balance       float64
	startedAt     time.Time
	lastHeartbeat time.Time
	performance   Performance
	lastErrors    map[string]string

	// loop-goroutine only
	closeFailures map[string]int
	pendingTrades []risk.ClosedTrade
}

// New wires the bot. Initialize must succeed before Run.
func New(cfg Config, gateway exchange.Gateway, ms MarketStream, gen *strategy.Generator, rm *risk.Manager, sink journal.TradeSink, notif notifier.Notifier) *Bot {
	if sink == nil {
		sink = journal.NewMemorySink()
	}
	if notif == nil {
		notif = notifier.Noop{}
	}
	return &Bot{
		cfg:           cfg.withDefaults(),
		gateway:       gateway,
		stream:        ms,
		generator:     gen,
		riskMgr:       rm,
		sink:          sink,
		notifier:      notif,
		state:         Uninitialized,
		lastErrors:    make(map[string]string),
		closeFailures: make(map[string]int),
	}
}

// Initialize verifies gateway connectivity, seeds the balance and starts the
// market stream. A gateway that cannot be reached at all is fatal.
func (b *Bot) Initialize(ctx context.Context) error {
	utils.GetLogger().Infof("Bot | Initializing for %s on %s", b.cfg.Symbol, b.gateway.Name())

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
	defer cancel()
	if err := b.gateway.TestConnection(callCtx); err != nil {
		return fmt.Errorf("exchange connectivity check failed: %w", err)
	}

	if err := b.refreshBalance(ctx); err != nil {
		return fmt.Errorf("failed to fetch initial balance: %w", err)
	}

	b.stream.SetDataCallback(func(c candle.Candle) {
		utils.GetLogger().Debugf("Bot | New candle %s close %.2f", c.Timestamp.Format(time.RFC3339), c.Close)
	})
	b.stream.SetErrorCallback(func(err error) {
		b.recordError("stream", err)
	})
	if err := b.stream.Start(ctx); err != nil {
		return fmt.Errorf("failed to start market stream: %w", err)
	}

	b.mu.Lock()
	b.state = Connected
	b.mu.Unlock()
	utils.GetLogger().Infof("Bot | Initialized, balance %.2f", b.Balance())
	return nil
}

// Run drives the decision loop until ctx is cancelled, then performs the
// shutdown sequence: stop the stream, emergency-close the book, best-effort
// flatten every position.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Connected {
		b.mu.Unlock()
		return errors.New("bot: not initialized")
	}
	b.state = Running
	b.startedAt = time.Now().UTC()
	b.mu.Unlock()

	utils.GetLogger().Infof("Bot | Trading loop started, tick every %v", b.cfg.TickInterval)
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick is one decision cycle. Exit evaluation runs before entry consideration
// against the same price snapshot.
func (b *Bot) tick(ctx context.Context) {
	b.mu.Lock()
	b.lastHeartbeat = time.Now().UTC()
	b.mu.Unlock()

	b.riskMgr.ResetDailyCounters()

	if !b.stream.Healthy() {
		utils.GetLogger().Warn("Bot | Market stream unhealthy, restarting")
		if err := b.stream.LastError(); err != nil {
			b.recordError("stream", err)
		}
		b.stream.Stop()
		if err := b.stream.Start(ctx); err != nil {
			b.recordError("stream", err)
			return
		}
	}

	candles := b.stream.Latest(b.cfg.LookbackPeriod)
	if len(candles) < 50 {
		utils.GetLogger().Debugf("Bot | Only %d candles buffered, skipping tick", len(candles))
		return
	}

	price := candles[len(candles)-1].Close
	b.riskMgr.UpdatePositionPrices(b.cfg.Symbol, price)

	b.flushPendingTrades(ctx)
	b.checkExits(ctx)
	b.processSignal(ctx, candles)

	if err := b.refreshBalance(ctx); err != nil {
		b.recordError("gateway", err)
	}
	b.updatePerformance()
}

// checkExits evaluates every open position against the current mark price and
// closes the ones whose exit conditions fire.
func (b *Bot) checkExits(ctx context.Context) {
	for _, pos := range b.riskMgr.OpenPositions() {
		shouldExit, reason := b.riskMgr.CheckExitConditions(pos)
		if shouldExit {
			b.closePosition(ctx, pos, reason)
		}
	}
}

// processSignal generates at most one entry per tick and executes it if the
// risk gates admit it.
func (b *Bot) processSignal(ctx context.Context, candles []candle.Candle) {
	signal, err := b.generator.GenerateSignal(candles)
	if err != nil {
		b.recordError("strategy", err)
		return
	}
	if signal == nil {
		return
	}

	if !b.riskMgr.ShouldExecuteTrade(signal) {
		utils.GetLogger().Infof("Bot | [%s] Signal rejected by risk gates", signal.Symbol)
		return
	}

	size := b.riskMgr.CalculatePositionSize(signal, b.Balance())
	if size <= 0 {
		utils.GetLogger().Info("Bot | Position size is zero, skipping trade")
		return
	}

	b.executeTrade(ctx, signal, size)
}

func (b *Bot) executeTrade(ctx context.Context, signal *strategy.TradeSignal, size float64) {
	utils.GetLogger().Infof("Bot | Executing %s %s size %.6f confidence %.3f",
		signal.Side, signal.Symbol, size, signal.Confidence)

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
	defer cancel()
	order, err := b.gateway.PlaceOrder(callCtx, exchange.OrderRequest{
		Symbol:   signal.Symbol,
		Side:     signal.Side,
		Type:     "market",
		Quantity: size,
	})
	if err != nil {
		b.recordError("gateway", err)
		utils.GetLogger().Errorf("Bot | [%s] Trade execution failed: %v", signal.Symbol, err)
		return
	}

	stopLoss, takeProfit := b.riskMgr.CalculateStopLossTakeProfit(signal)
	b.riskMgr.AddPosition(&risk.Position{
		Symbol:       signal.Symbol,
		Side:         signal.Side,
		Size:         size,
		EntryPrice:   signal.Price,
		EntryTime:    signal.Timestamp,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		CurrentPrice: signal.Price,
	})
	utils.GetLogger().Infof("Bot | [%s] Order %s filled, stop %.2f take %.2f",
		signal.Symbol, order.OrderID, stopLoss, takeProfit)

	if err := b.refreshBalance(ctx); err != nil {
		b.recordError("gateway", err)
	}
}

// closePosition places the opposite-side order. On failure the position stays
// open and is re-evaluated next tick; after MaxCloseRetries consecutive
// failures for a symbol the notifier is alerted and the circuit breaker
// latches, while close attempts continue.
func (b *Bot) closePosition(ctx context.Context, pos *risk.Position, reason string) {
	utils.GetLogger().Infof("Bot | [%s] Closing %s position: %s", pos.Symbol, pos.Side, reason)

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
	defer cancel()
	_, err := b.gateway.PlaceOrder(callCtx, exchange.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     pos.Side.Opposite(),
		Type:     "market",
		Quantity: pos.Size,
	})
	if err != nil {
		b.recordError("gateway", err)
		b.closeFailures[pos.Symbol]++
		count := b.closeFailures[pos.Symbol]
		utils.GetLogger().Errorf("Bot | [%s] Failed to close position (attempt %d): %v", pos.Symbol, count, err)
		if count == b.cfg.MaxCloseRetries {
			msg := fmt.Sprintf("ALERT: %d consecutive close failures for %s, circuit breaker engaged", count, pos.Symbol)
			if nerr := b.notifier.SendWithRetry(msg); nerr != nil {
				utils.GetLogger().Errorf("Bot | Failed to deliver close-failure alert: %v", nerr)
			}
			b.riskMgr.ActivateCircuitBreaker("repeated close failures for " + pos.Symbol)
			b.logEvent(ctx, "close_failure", msg, map[string]any{"symbol": pos.Symbol, "attempts": count})
		}
		return
	}

	delete(b.closeFailures, pos.Symbol)

	exitPrice := pos.CurrentPrice
	if exitPrice == 0 {
		exitPrice = pos.EntryPrice
	}
	pnl := pos.UnrealizedPnL()

	trade := b.riskMgr.RecordTrade(pos.Symbol, pos.Side, pos.Size, pos.EntryPrice, exitPrice, pnl, reason)
	b.riskMgr.RemovePosition(pos.Symbol, pos.Side)
	utils.GetLogger().Infof("Bot | [%s] Position closed, PnL %.2f", pos.Symbol, pnl)

	b.journalTrade(ctx, trade)
	if err := b.refreshBalance(ctx); err != nil {
		b.recordError("gateway", err)
	}
}

// journalTrade delivers a closed trade to the sink. Failures queue the trade
// for redelivery next tick, giving every trade at-least-once emission.
func (b *Bot) journalTrade(ctx context.Context, trade risk.ClosedTrade) {
	if err := b.sink.LogTrade(ctx, trade); err != nil {
		b.recordError("journal", err)
		b.pendingTrades = append(b.pendingTrades, trade)
		utils.GetLogger().Warnf("Bot | Journal delivery failed, %d trades pending: %v", len(b.pendingTrades), err)
	}
}

func (b *Bot) flushPendingTrades(ctx context.Context) {
	if len(b.pendingTrades) == 0 {
		return
	}
	remaining := b.pendingTrades[:0]
	for _, trade := range b.pendingTrades {
		if err := b.sink.LogTrade(ctx, trade); err != nil {
			remaining = append(remaining, trade)
		}
	}
	b.pendingTrades = remaining
}

func (b *Bot) logEvent(ctx context.Context, eventType, description string, data map[string]any) {
	err := b.sink.LogEvent(ctx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        eventType,
		Description: description,
		Data:        data,
	})
	if err != nil {
		b.recordError("journal", err)
	}
}

// shutdown stops the stream, clears the book through the risk manager and
// best-effort flattens every returned position. Per-position failures are
// logged, never raised.
func (b *Bot) shutdown() {
	utils.GetLogger().Info("Bot | Shutting down")
	b.stream.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	positions := b.riskMgr.EmergencyCloseAll()
	if len(positions) > 0 {
		b.logEvent(ctx, "emergency_close", "liquidating open positions at shutdown",
			map[string]any{"positions": len(positions)})
	}
	for _, pos := range positions {
		callCtx, cancelCall := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
		_, err := b.gateway.PlaceOrder(callCtx, exchange.OrderRequest{
			Symbol:   pos.Symbol,
			Side:     pos.Side.Opposite(),
			Type:     "market",
			Quantity: pos.Size,
		})
		cancelCall()
		if err != nil {
			utils.GetLogger().Errorf("Bot | [%s] Failed to flatten position at shutdown: %v", pos.Symbol, err)
			continue
		}
		utils.GetLogger().Infof("Bot | [%s] Flattened position at shutdown", pos.Symbol)
	}

	b.mu.Lock()
	b.state = Stopped
	b.mu.Unlock()
	utils.GetLogger().Info("Bot | Stopped")
}

// refreshBalance pulls the quote-asset balance and feeds the drawdown tracker.
func (b *Bot) refreshBalance(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
	defer cancel()

	bal, err := b.gateway.GetBalance(callCtx, quoteAsset(b.cfg.Symbol))
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.balance = bal.Total
	b.mu.Unlock()
	b.riskMgr.UpdateBalance(bal.Total)
	return nil
}

// quoteAsset extracts the quote currency from a symbol like "BTC-USDT".
func quoteAsset(symbol string) string {
	if i := strings.LastIndex(symbol, "-"); i >= 0 && i+1 < len(symbol) {
		return symbol[i+1:]
	}
	return "USDT"
}

func (b *Bot) updatePerformance() {
	metrics := b.riskMgr.Metrics()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.performance = Performance{
		Balance:       b.balance,
		TotalTrades:   metrics.DailyTrades,
		DailyPnL:      metrics.DailyPnL,
		UnrealizedPnL: metrics.UnrealizedPnL,
		MaxDrawdown:   metrics.MaxDrawdown,
		OpenPositions: metrics.OpenPositions,
		LastHeartbeat: b.lastHeartbeat,
		Uptime:        time.Since(b.startedAt).Truncate(time.Second).String(),
	}
}

func (b *Bot) recordError(component string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErrors[component] = err.Error()
}

// Balance returns the last fetched quote balance.
func (b *Bot) Balance() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balance
}

// State returns the lifecycle phase.
func (b *Bot) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Status assembles the full health surface.
func (b *Bot) Status() Status {
	b.mu.RLock()
	lastErrors := make(map[string]string, len(b.lastErrors))
	for k, v := range b.lastErrors {
		lastErrors[k] = v
	}
	status := Status{
		State:       b.state,
		Running:     b.state == Running,
		Connected:   b.state == Connected || b.state == Running,
		Balance:     b.balance,
		Performance: b.performance,
		LastErrors:  lastErrors,
	}
	b.mu.RUnlock()

	status.StreamHealthy = b.stream.Healthy()
	status.RiskMetrics = b.riskMgr.Metrics()
	status.PositionSummary = b.riskMgr.PositionSummary()
	status.StrategyState = b.generator.State()
	return status
}
