package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the analyzer from concrete suppliers and sinks
// (CSV files, SQLite, Redis). Each implementation satisfies one or more of them.

// BarReader supplies historical bars for an instrument, oldest first.
type BarReader interface {
	// ReadBars returns bars for symbol at or after from (zero = all).
	// limit <= 0 means no limit.
	ReadBars(symbol string, from time.Time, limit int) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// SymbolLister enumerates instruments with stored history.
type SymbolLister interface {
	Symbols() ([]string, error)
}

// BarWriter persists bars.
type BarWriter interface {
	// WriteBars upserts bars in a single batch.
	WriteBars(ctx context.Context, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// SignalWriter records emitted signal results.
type SignalWriter interface {
	WriteSignal(ctx context.Context, s *SignalResult) error
}

// BarStreamConsumer delivers live bars through a single-consumer channel.
type BarStreamConsumer interface {
	// ConsumeBars blocks until ctx is cancelled, pushing decoded bars into out.
	ConsumeBars(ctx context.Context, symbol string, out chan<- Bar) error

	// Close releases underlying resources.
	Close() error
}
