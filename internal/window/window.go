// Package window maintains the three rolling lookback windows. Every candle is
// shared by pointer across the windows, so a percentile written for one window
// is visible through the others.
package window

import (
	"fmt"

	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/ringbuf"
)

// Lengths holds the capacity of each window.
type Lengths struct {
	Short  int `yaml:"period_one" default:"5" validate:"gte=1"`
	Medium int `yaml:"period_two" default:"25" validate:"gte=1"`
	Long   int `yaml:"period_three" default:"50" validate:"gte=1"`
}

// Of returns the configured length for w.
func (l Lengths) Of(w candle.Window) int {
	switch w {
	case candle.Short:
		return l.Short
	case candle.Medium:
		return l.Medium
	default:
		return l.Long
	}
}

// DefaultLengths returns 5/25/50.
func DefaultLengths() Lengths {
	return Lengths{Short: 5, Medium: 25, Long: 50}
}

// Set is the rolling window set. Capacities are independent and need not be ascending.
type Set struct {
	rings [candle.NumWindows]*ringbuf.Ring[*candle.Candle]
}

// NewSet creates empty windows with the given capacities.
func NewSet(l Lengths) (*Set, error) {
	s := &Set{}
	for _, w := range candle.Windows {
		n := l.Of(w)
		if n < 1 {
			return nil, fmt.Errorf("window %s: length must be positive, got %d", w, n)
		}
		s.rings[w] = ringbuf.New[*candle.Candle](n)
	}
	return s, nil
}

// Insert appends c to every window, evicting the oldest where full.
func (s *Set) Insert(c *candle.Candle) {
	for _, r := range s.rings {
		r.Push(c)
	}
}

// IsSaturated reports whether w holds exactly its capacity.
func (s *Set) IsSaturated(w candle.Window) bool {
	return s.rings[w].Full()
}

// Ready reports whether every window is saturated.
func (s *Set) Ready() bool {
	for _, w := range candle.Windows {
		if !s.IsSaturated(w) {
			return false
		}
	}
	return true
}

// Len returns the current length of w.
func (s *Set) Len(w candle.Window) int {
	return s.rings[w].Len()
}

// Cap returns the capacity of w.
func (s *Set) Cap(w candle.Window) int {
	return s.rings[w].Cap()
}

// Candles returns the contents of w oldest-first.
func (s *Set) Candles(w candle.Window) []*candle.Candle {
	return s.rings[w].Slice()
}

// Latest returns the newest candle in w.
func (s *Set) Latest(w candle.Window) (*candle.Candle, bool) {
	return s.rings[w].Newest()
}

// Earliest returns the oldest candle in w.
func (s *Set) Earliest(w candle.Window) (*candle.Candle, bool) {
	return s.rings[w].Oldest()
}
