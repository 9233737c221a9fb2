package journal

import (
	"context"
	"sync"
	"time"

	"github.com/amirphl/ml-trader/internal/risk"
)

// MemorySink keeps trades and events in memory. Used in tests and as a
// fallback when no durable sink is configured.
type MemorySink struct {
	mu     sync.RWMutex
	trades []risk.ClosedTrade
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) LogTrade(ctx context.Context, trade risk.ClosedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *MemorySink) LogEvent(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Trades returns a copy of all logged trades.
func (m *MemorySink) Trades() []risk.ClosedTrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]risk.ClosedTrade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Events returns a copy of the events of the given type, or all events when
// eventType is empty, within [start, end].
func (m *MemorySink) Events(eventType string, start, end time.Time) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if e.Time.Before(start) || e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *MemorySink) Close() error { return nil }
