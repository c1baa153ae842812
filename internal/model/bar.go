package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput is returned when a bar carries values the analytics core
// cannot work with (NaN or infinite prices or volume).
var ErrInvalidInput = errors.New("invalid input")

// Bar is one OHLCV observation for a single instrument.
// Prices and volume are plain float64 values as delivered by the data supplier.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate rejects bars with non-finite fields. Suppliers call it at the
// boundary so nothing downstream has to deal with NaN.
func (b *Bar) Validate() error {
	fields := [...]struct {
		name string
		v    float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
		{"volume", b.Volume},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s %s is not finite (%v)", ErrInvalidInput, b.Time.Format(time.DateOnly), f.name, f.v)
		}
	}
	return nil
}

// StreamKey returns the Redis stream key for live bars: "bars:{symbol}".
func (b *Bar) StreamKey() string {
	return "bars:" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}
