// Package stream maintains the live candle feed for one symbol and interval.
//
// The ingestor owns the candle buffer: the websocket goroutine is the only
// writer, the trading loop reads copy-on-read snapshots via Latest. Reconnects
// follow an exponential backoff capped at 60s and stop for good after
// MaxReconnects consecutive failures.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amirphl/ml-trader/internal/candle"
	"github.com/amirphl/ml-trader/internal/tfutils"
	"github.com/amirphl/ml-trader/internal/utils"
)

// ConnectionState represents the state of the websocket connection
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

// Config holds the ingestor's connection parameters.
type Config struct {
	URL           string        // websocket endpoint
	Symbol        string        // e.g. "BTC-USDT"
	Interval      string        // e.g. "1m"
	BufferSize    int           // candle buffer capacity
	MaxReconnects int           // consecutive failures before giving up
	BackoffCap    time.Duration // maximum reconnect wait
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.URL == "" {
		out.URL = "wss://api.wallex.ir/socket.io/?EIO=4&transport=websocket"
	}
	if out.BufferSize <= 0 {
		out.BufferSize = 1000
	}
	if out.MaxReconnects <= 0 {
		out.MaxReconnects = 5
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = 60 * time.Second
	}
	return out
}

// Backoff returns the reconnect wait for the given attempt (starting at 1):
// min(2^attempt, cap) seconds.
func Backoff(attempt int, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if wait > cap || wait <= 0 {
		return cap
	}
	return wait
}

// DataCallback is invoked for every accepted candle, outside the buffer lock.
type DataCallback func(candle.Candle)

// ErrorCallback is invoked on connection-level failures.
type ErrorCallback func(error)

// Ingestor streams candles for one (symbol, interval) into a bounded buffer.
type Ingestor struct {
	cfg    Config
	buffer *candle.Buffer

	mu       sync.RWMutex
	state    ConnectionState
	lastErr  error
	conn     *websocket.Conn
	cancel   context.CancelFunc
	started  bool
	stopping bool

	dropped atomic.Int64

	onCandle DataCallback
	onError  ErrorCallback
}

// New creates an ingestor for cfg. Start must be called before candles flow.
func New(cfg Config) (*Ingestor, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("stream: symbol is required")
	}
	if !tfutils.IsValidInterval(cfg.Interval) {
		return nil, fmt.Errorf("stream: unsupported interval %q", cfg.Interval)
	}
	full := cfg.withDefaults()
	return &Ingestor{
		cfg:    full,
		buffer: candle.NewBuffer(full.BufferSize),
		state:  Disconnected,
	}, nil
}

// SetDataCallback registers the per-candle callback. Must be set before Start.
func (s *Ingestor) SetDataCallback(cb DataCallback) { s.onCandle = cb }

// SetErrorCallback registers the connection error callback. Must be set before Start.
func (s *Ingestor) SetErrorCallback(cb ErrorCallback) { s.onError = cb }

// Start opens the connection and begins streaming. Calling Start on a running
// ingestor is an error; calling it after Stop (or after reconnects were
// exhausted) restarts with a fresh attempt budget.
func (s *Ingestor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("stream: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.stopping = false
	s.state = Connecting
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop terminates the connection and any pending reconnect wait. It is
// idempotent and safe to call on a never-started ingestor.
func (s *Ingestor) Stop() {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	utils.GetLogger().Infof("Stream | Ingestor for %s stopped", s.cfg.Symbol)
}

// Latest returns a copy of the last n candles, oldest first.
func (s *Ingestor) Latest(n int) []candle.Candle {
	return s.buffer.Latest(n)
}

// BufferLen returns the number of buffered candles.
func (s *Ingestor) BufferLen() int { return s.buffer.Len() }

// Healthy reports whether the connection is established and streaming.
func (s *Ingestor) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Connected && s.conn != nil
}

// LastError returns the most recent connection-level error.
func (s *Ingestor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Dropped returns the count of malformed messages discarded so far.
func (s *Ingestor) Dropped() int64 { return s.dropped.Load() }

// run drives connect/stream/backoff cycles until stopped or the attempt
// budget is exhausted. The budget only refreshes on an explicit restart.
func (s *Ingestor) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.started = false
		s.state = Disconnected
		s.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectAndStream(ctx)
		if err == nil || ctx.Err() != nil {
			return // clean shutdown
		}

		s.mu.Lock()
		s.lastErr = err
		s.state = Reconnecting
		s.conn = nil
		s.mu.Unlock()

		if s.onError != nil {
			s.onError(err)
		}

		attempt++
		if attempt > s.cfg.MaxReconnects {
			s.mu.Lock()
			s.lastErr = fmt.Errorf("gave up after %d reconnect attempts: %w", s.cfg.MaxReconnects, err)
			s.mu.Unlock()
			utils.GetLogger().Errorf("Stream | %s gave up after %d reconnect attempts: %v", s.cfg.Symbol, s.cfg.MaxReconnects, err)
			return
		}

		wait := Backoff(attempt, s.cfg.BackoffCap)
		utils.GetLogger().Warnf("Stream | %s disconnected, retrying in %v (attempt %d/%d): %v",
			s.cfg.Symbol, wait, attempt, s.cfg.MaxReconnects, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// SubscribeMessage is used to subscribe to a channel via Socket.IO
// e.g. {"channel": "BTCUSDT@candle_1m"}
type SubscribeMessage struct {
	Channel string `json:"channel"`
}

// wireCandle is the broadcaster payload for one candle update.
type wireCandle struct {
	Timestamp int64  `json:"timestamp"` // unix seconds
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

func (s *Ingestor) channel() string {
	return normalizeSymbol(s.cfg.Symbol) + "@candle_" + s.cfg.Interval
}

func normalizeSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c == '-' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// connectAndStream handles a single websocket session. It returns nil on a
// clean shutdown and the terminating error otherwise.
func (s *Ingestor) connectAndStream(ctx context.Context) error {
	s.mu.Lock()
	s.state = Connecting
	s.lastErr = nil
	s.mu.Unlock()

	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}

	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Host, err)
	}
	defer c.Close()

	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	// Socket.IO connect, then subscribe. The subscription is re-sent on every
	// session so a reconnect always restores the channel.
	if err := c.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if err := s.subscribe(c); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Connected
	s.mu.Unlock()
	utils.GetLogger().Infof("Stream | Connected, subscribed to %s", s.channel())

	pingTicker := time.NewTicker(20 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pingTicker.C:
			c.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		default:
			c.SetReadDeadline(time.Now().Add(90 * time.Second))
			_, message, err := c.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			s.handleMessage(c, message)
		}
	}
}

func (s *Ingestor) subscribe(c *websocket.Conn) error {
	payload, err := json.Marshal(SubscribeMessage{Channel: s.channel()})
	if err != nil {
		return err
	}
	msg := fmt.Sprintf(`42["subscribe",%s]`, payload)
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// handleMessage processes one inbound socket.io frame and reports whether it
// carried candle data. Malformed frames are dropped and counted, never fatal.
func (s *Ingestor) handleMessage(c *websocket.Conn, message []byte) bool {
	msgStr := string(message)

	if msgStr == "2" {
		// Socket.IO ping, respond with pong
		c.WriteMessage(websocket.TextMessage, []byte("3"))
		return false
	}
	if msgStr == "40" {
		// Handshake acknowledged; re-issue the subscription.
		if err := s.subscribe(c); err != nil {
			utils.GetLogger().Warnf("Stream | Resubscribe failed: %v", err)
		}
		return false
	}
	if len(msgStr) < 2 || msgStr[:2] != "42" {
		return false
	}

	var eventArray []json.RawMessage
	if err := json.Unmarshal([]byte(msgStr[2:]), &eventArray); err != nil || len(eventArray) < 3 {
		s.drop("malformed event frame")
		return false
	}

	var eventName, channel string
	if err := json.Unmarshal(eventArray[0], &eventName); err != nil || eventName != "Broadcaster" {
		return false
	}
	if err := json.Unmarshal(eventArray[1], &channel); err != nil || channel != s.channel() {
		return false
	}

	parsed, err := s.parseCandle(eventArray[2])
	if err != nil {
		s.drop(err.Error())
		return false
	}

	s.buffer.Insert(parsed)
	if s.onCandle != nil {
		s.onCandle(parsed)
	}
	return true
}

func (s *Ingestor) parseCandle(raw json.RawMessage) (candle.Candle, error) {
	var wc wireCandle
	if err := json.Unmarshal(raw, &wc); err != nil {
		return candle.Candle{}, fmt.Errorf("malformed candle payload: %w", err)
	}

	open, err1 := strconv.ParseFloat(wc.Open, 64)
	high, err2 := strconv.ParseFloat(wc.High, 64)
	low, err3 := strconv.ParseFloat(wc.Low, 64)
	closePrice, err4 := strconv.ParseFloat(wc.Close, 64)
	volume, err5 := strconv.ParseFloat(wc.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return candle.Candle{}, errors.New("malformed candle prices")
	}

	c := candle.Candle{
		Timestamp: time.Unix(wc.Timestamp, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Symbol:    s.cfg.Symbol,
	}
	if err := c.Validate(); err != nil {
		return candle.Candle{}, fmt.Errorf("invalid candle: %w", err)
	}
	return c, nil
}

func (s *Ingestor) drop(reason string) {
	n := s.dropped.Add(1)
	utils.GetLogger().Debugf("Stream | Dropped malformed message (%s), total dropped %d", reason, n)
}
