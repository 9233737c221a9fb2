// Package journal delivers closed trades and operational events to durable
// sinks. The trading loop guarantees at-least-once emission; sinks must
// tolerate duplicates.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/ml-trader/internal/risk"
)

// Event is an operational record: circuit breaker trips, emergency
// liquidations, close failures.
type Event struct {
	Time        time.Time      `json:"time"`
	Type        string         `json:"type"` // e.g. "circuit_breaker", "emergency_close"
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// TradeSink receives every closed trade and event.
type TradeSink interface {
	LogTrade(ctx context.Context, trade risk.ClosedTrade) error
	LogEvent(ctx context.Context, event Event) error
	Close() error
}

// MultiSink fans out to several sinks. A write fails only if every delivery
// to at least one sink failed; partial failures are joined into one error.
type MultiSink struct {
	sinks []TradeSink
}

// NewMultiSink composes sinks into one. Nil entries are skipped.
func NewMultiSink(sinks ...TradeSink) *MultiSink {
	out := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

func (m *MultiSink) LogTrade(ctx context.Context, trade risk.ClosedTrade) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.LogTrade(ctx, trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) LogEvent(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.LogEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
