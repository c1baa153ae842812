// Package indicator provides trend-strength calculations over candle windows.
//
// The ADX here follows Wilder's construction: true range and directional
// movement are smoothed with running sums, turned into directional indices,
// and the resulting DX series is averaged into the ADX line.
package indicator

import "errors"

// ErrInsufficientData is returned when a window is too short for the requested period.
var ErrInsufficientData = errors.New("insufficient data")

// DefaultADXPeriod is the classic 14-bar lookback.
const DefaultADXPeriod = 14

// DefaultTrendThreshold is the ADX level above which a market counts as trending.
const DefaultTrendThreshold = 25.0
