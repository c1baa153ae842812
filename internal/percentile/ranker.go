package percentile

import (
	"fmt"
	"strings"

	"vpa-analyzer/internal/candle"
)

// ScanMode selects how a value is mapped onto the breakpoint ladder.
type ScanMode string

const (
	// ScanFirstExceeded climbs one stride per breakpoint the value exceeds and
	// stops at the first breakpoint >= value. Larger values get larger buckets.
	ScanFirstExceeded ScanMode = "first_exceeded"
	// ScanCumulative adds one stride for every breakpoint >= value. Kept for
	// comparing against historical runs; it ranks large values low.
	ScanCumulative ScanMode = "cumulative"
	// ScanBreakOnMiss adds one stride per leading breakpoint >= value and stops
	// at the first miss. Only the lowest and highest buckets are reachable.
	ScanBreakOnMiss ScanMode = "break_on_miss"
)

// Metric is the candle attribute being ranked.
type Metric int

const (
	Spread Metric = iota
	Volume
)

func (m Metric) String() string {
	if m == Volume {
		return "volume"
	}
	return "spread"
}

func (m Metric) of(c *candle.Candle) float64 {
	if m == Volume {
		return c.Volume
	}
	return c.Spread
}

// Config controls the breakpoint ladder.
type Config struct {
	Start  int      `yaml:"start" default:"5" validate:"gte=0,lt=100"`
	Stride int      `yaml:"stride" default:"5" validate:"gt=0,lte=100"`
	Scan   ScanMode `yaml:"scan" default:"first_exceeded" validate:"oneof=first_exceeded cumulative break_on_miss"`
}

// DefaultConfig returns start 5, stride 5, first-exceeded scan.
func DefaultConfig() Config {
	return Config{Start: 5, Stride: 5, Scan: ScanFirstExceeded}
}

// Levels returns the percentile levels start, start+stride, ... below 100.
func (c Config) Levels() []float64 {
	var out []float64
	for p := c.Start; p < 100; p += c.Stride {
		out = append(out, float64(p))
	}
	return out
}

// Validate checks the ladder parameters.
func (c Config) Validate() error {
	if c.Start < 0 || c.Start >= 100 {
		return fmt.Errorf("percentile start must be in [0,100), got %d", c.Start)
	}
	if c.Stride <= 0 {
		return fmt.Errorf("percentile stride must be positive, got %d", c.Stride)
	}
	// The top bucket is start + stride*len(levels); it must land on 100.
	if (100-c.Start)%c.Stride != 0 {
		return fmt.Errorf("percentile stride %d must divide 100-start (%d)", c.Stride, 100-c.Start)
	}
	switch c.Scan {
	case ScanFirstExceeded, ScanCumulative, ScanBreakOnMiss:
	default:
		return fmt.Errorf("unknown percentile scan mode %q", c.Scan)
	}
	return nil
}

// Bucket maps v onto the ladder described by breakpoints.
func Bucket(v float64, breakpoints []float64, start, stride int, mode ScanMode) int {
	bucket := start
	for _, bp := range breakpoints {
		switch mode {
		case ScanCumulative:
			if v <= bp {
				bucket += stride
			}
		case ScanBreakOnMiss:
			if v > bp {
				return bucket
			}
			bucket += stride
		default:
			if v <= bp {
				return bucket
			}
			bucket += stride
		}
	}
	return bucket
}

// Ranker owns the breakpoint table for one analysis run. Each run gets its
// own Ranker, so concurrent runs never share boundaries.
type Ranker struct {
	cfg    Config
	levels []float64
	table  [candle.NumWindows][2][]float64
}

// NewRanker validates cfg and returns an empty ranker.
func NewRanker(cfg Config) (*Ranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{cfg: cfg, levels: cfg.Levels()}, nil
}

// Rank recomputes the spread and volume breakpoints for w from candles and
// writes a bucket into every candle's annotation for w.
func (r *Ranker) Rank(w candle.Window, candles []*candle.Candle) {
	if len(candles) == 0 {
		return
	}
	sample := make([]float64, len(candles))
	for _, m := range [...]Metric{Spread, Volume} {
		for i, c := range candles {
			sample[i] = m.of(c)
		}
		r.table[w][m] = Percentiles(sample, r.levels)
	}

	spreadBP := r.table[w][Spread]
	volumeBP := r.table[w][Volume]
	for _, c := range candles {
		c.Annotate(w,
			Bucket(c.Spread, spreadBP, r.cfg.Start, r.cfg.Stride, r.cfg.Scan),
			Bucket(c.Volume, volumeBP, r.cfg.Start, r.cfg.Stride, r.cfg.Scan),
		)
	}
}

// Breakpoints returns the last computed boundaries for w and m (nil before the first Rank).
func (r *Ranker) Breakpoints(w candle.Window, m Metric) []float64 {
	return r.table[w][m]
}

// MaxBucket is the largest bucket the ladder can produce.
func (r *Ranker) MaxBucket() int {
	return r.cfg.Start + len(r.levels)*r.cfg.Stride
}

// Describe formats the boundary table for debug logs.
func (r *Ranker) Describe(w candle.Window, m Metric) string {
	bp := r.table[w][m]
	parts := make([]string, len(bp))
	for i, v := range bp {
		parts[i] = fmt.Sprintf("%.4g", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
