// Package candle turns a raw OHLCV bar into an analysed candle: body and wick
// geometry, single-candle pattern flags and the per-window percentile
// annotations written by the ranker.
package candle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"vpa-analyzer/internal/model"
)

// PatternConfig holds the wick multipliers used to classify patterns.
type PatternConfig struct {
	StarWickOverSpread    float64 `yaml:"star_wick_over_spread" default:"2" validate:"gt=0"`
	StarWickOverLowerWick float64 `yaml:"star_wick_over_lower_wick" default:"2" validate:"gt=0"`
	HammerWickOverSpread  float64 `yaml:"hammer_wick_over_spread" default:"2" validate:"gt=0"`
	HammerWickOverUpper   float64 `yaml:"hammer_wick_over_upper_wick" default:"2" validate:"gt=0"`
	DojiWicksOverSpread   float64 `yaml:"doji_wicks_over_spread" default:"2" validate:"gt=0"`
}

// DefaultPatternConfig returns the classic 2x multipliers.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		StarWickOverSpread:    2,
		StarWickOverLowerWick: 2,
		HammerWickOverSpread:  2,
		HammerWickOverUpper:   2,
		DojiWicksOverSpread:   2,
	}
}

// Candle is an analysed bar. Geometry and pattern flags are fixed at
// construction; percentile annotations are rewritten on every ranking pass.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	UpBar           bool
	Spread          float64
	HighLowSpread   float64
	HighOpenSpread  float64
	LowCloseSpread  float64
	HighCloseSpread float64
	UpperWick       float64
	LowerWick       float64

	ShootingStar   bool
	Hammer         bool
	LongLeggedDoji bool

	spreadPct [NumWindows]int
	volumePct [NumWindows]int
}

// New derives every candle feature from b. Wicks are measured from the close
// regardless of bar direction.
func New(b model.Bar, cfg PatternConfig) *Candle {
	c := &Candle{
		Time:   b.Time,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,

		UpBar:           b.Close > b.Open,
		Spread:          math.Abs(b.Close - b.Open),
		HighLowSpread:   b.High - b.Low,
		HighOpenSpread:  b.High - b.Open,
		LowCloseSpread:  b.Low - b.Close,
		HighCloseSpread: b.High - b.Close,
		UpperWick:       b.High - b.Close,
		LowerWick:       b.Close - b.Low,
	}

	if c.UpperWick > c.Spread*cfg.StarWickOverSpread && c.UpperWick > c.LowerWick*cfg.StarWickOverLowerWick {
		c.ShootingStar = true
	}
	if c.LowerWick > c.Spread*cfg.HammerWickOverSpread && c.LowerWick > c.UpperWick*cfg.HammerWickOverUpper {
		c.Hammer = true
	}
	if c.UpperWick > c.Spread*cfg.DojiWicksOverSpread && c.LowerWick > c.Spread*cfg.DojiWicksOverSpread {
		// A doji is never also a star or hammer.
		c.LongLeggedDoji = true
		c.ShootingStar = false
		c.Hammer = false
	}
	return c
}

// IsPattern reports whether any single-candle pattern was recognised.
func (c *Candle) IsPattern() bool {
	return c.ShootingStar || c.Hammer || c.LongLeggedDoji
}

// Annotate records both percentile buckets for w in one step.
func (c *Candle) Annotate(w Window, spreadPct, volumePct int) {
	c.spreadPct[w] = spreadPct
	c.volumePct[w] = volumePct
}

// SetSpreadPercentile records the spread bucket for w.
func (c *Candle) SetSpreadPercentile(w Window, p int) { c.spreadPct[w] = p }

// SetVolumePercentile records the volume bucket for w.
func (c *Candle) SetVolumePercentile(w Window, p int) { c.volumePct[w] = p }

// SpreadPercentile returns the spread bucket last written for w (0 if never ranked).
func (c *Candle) SpreadPercentile(w Window) int { return c.spreadPct[w] }

// VolumePercentile returns the volume bucket last written for w (0 if never ranked).
func (c *Candle) VolumePercentile(w Window) int { return c.volumePct[w] }

// Anomaly is the volume bucket minus the spread bucket for w.
// Positive values mean volume is large relative to the price move.
func (c *Candle) Anomaly(w Window) int {
	return c.volumePct[w] - c.spreadPct[w]
}

// Patterns returns the names of the recognised patterns.
func (c *Candle) Patterns() []string {
	var out []string
	if c.ShootingStar {
		out = append(out, "Shooting Star")
	}
	if c.Hammer {
		out = append(out, "Hammer")
	}
	if c.LongLeggedDoji {
		out = append(out, "Long Legged Doji")
	}
	return out
}

func (c *Candle) String() string {
	barType := "down_bar"
	if c.UpBar {
		barType = "up_bar"
	}
	return fmt.Sprintf("candle %s %s open=%g close=%g high=%g low=%g spread=%g volume=%g upper_wick=%g lower_wick=%g patterns=[%s] spread_pct=%d:%d:%d volume_pct=%d:%d:%d",
		c.Time.Format(time.DateOnly), barType, c.Open, c.Close, c.High, c.Low, c.Spread, c.Volume,
		c.UpperWick, c.LowerWick, strings.Join(c.Patterns(), ","),
		c.spreadPct[Short], c.spreadPct[Medium], c.spreadPct[Long],
		c.volumePct[Short], c.volumePct[Medium], c.volumePct[Long])
}

// BarVolume returns the traded volume.
func (c *Candle) BarVolume() float64 { return c.Volume }

// BarClose returns the closing price.
func (c *Candle) BarClose() float64 { return c.Close }
