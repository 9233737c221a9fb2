// Package candle
package candle

import (
	"sort"
	"sync"
)

// Buffer is a bounded, timestamp-deduplicated candle window. Candles are kept
// sorted ascending by timestamp; inserting an existing timestamp overwrites it
// (last write wins) and overflow evicts the oldest entries.
//
// The buffer is the only state shared between the stream goroutine and the
// trading loop, so every read hands out a copy.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	candles  []Candle
}

// NewBuffer creates a buffer holding at most capacity candles.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{
		capacity: capacity,
		candles:  make([]Candle, 0, capacity),
	}
}

// Insert adds a candle, replacing any candle with the same timestamp and
// trimming the oldest entries beyond capacity.
func (b *Buffer) Insert(c Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := sort.Search(len(b.candles), func(i int) bool {
		return !b.candles[i].Timestamp.Before(c.Timestamp)
	})

	if idx < len(b.candles) && b.candles[idx].Timestamp.Equal(c.Timestamp) {
		b.candles[idx] = c
		return
	}

	b.candles = append(b.candles, Candle{})
	copy(b.candles[idx+1:], b.candles[idx:])
	b.candles[idx] = c

	if len(b.candles) > b.capacity {
		overflow := len(b.candles) - b.capacity
		b.candles = append(b.candles[:0], b.candles[overflow:]...)
	}
}

// Latest returns a copy of the last n candles, oldest first. It returns all
// candles if n exceeds the buffer size and an empty slice if the buffer is empty.
func (b *Buffer) Latest(n int) []Candle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || len(b.candles) == 0 {
		return []Candle{}
	}
	if n > len(b.candles) {
		n = len(b.candles)
	}
	out := make([]Candle, n)
	copy(out, b.candles[len(b.candles)-n:])
	return out
}

// Len returns the number of buffered candles.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.candles)
}

// Capacity returns the maximum number of buffered candles.
func (b *Buffer) Capacity() int { return b.capacity }

// LastClose returns the most recent close price, or false if the buffer is empty.
func (b *Buffer) LastClose() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.candles) == 0 {
		return 0, false
	}
	return b.candles[len(b.candles)-1].Close, true
}
