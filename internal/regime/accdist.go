// Package regime detects accumulation and distribution: a cluster of
// high-volume bars in the short window while price sits near the extremes of
// the long window.
package regime

import "vpa-analyzer/internal/percentile"

// Regime is the detected market phase.
type Regime string

const (
	None         Regime = ""
	Accumulation Regime = "Acc"
	Distribution Regime = "Dist"
)

// Name returns the long form used in reports.
func (r Regime) Name() string {
	switch r {
	case Accumulation:
		return "Accumulation"
	case Distribution:
		return "Distribution"
	default:
		return "None"
	}
}

// Sign is +1 for accumulation, -1 for distribution and 0 otherwise.
func (r Regime) Sign() float64 {
	switch r {
	case Accumulation:
		return 1
	case Distribution:
		return -1
	default:
		return 0
	}
}

// Sample is what the detector needs from a bar.
type Sample interface {
	BarVolume() float64
	BarClose() float64
}

// Config holds the percentile cut-offs.
type Config struct {
	HighVolumePercentile float64 `yaml:"high_volume_percentile" default:"65" validate:"gt=0,lt=100"`
	NearLowPercentile    float64 `yaml:"near_low_percentile" default:"20" validate:"gt=0,lt=100"`
	NearHighPercentile   float64 `yaml:"near_high_percentile" default:"80" validate:"gt=0,lt=100"`
	MinHighVolumeBars    int     `yaml:"min_high_volume_bars" default:"3" validate:"gte=1"`
}

// DefaultConfig returns 65th volume, 20th/80th close, three bars.
func DefaultConfig() Config {
	return Config{HighVolumePercentile: 65, NearLowPercentile: 20, NearHighPercentile: 80, MinHighVolumeBars: 3}
}

// Result is the outcome of one detection.
type Result struct {
	Detected bool
	Kind     Regime

	HighVolumeCount int
	// Levels of the long window: volume p65/p90, close p10/p20/p80.
	VolumeLevels [2]float64
	CloseLevels  [3]float64
}

// Detect evaluates the long and short windows (both oldest first).
// Accumulation is checked before distribution.
func Detect[T Sample](cfg Config, long, short []T) Result {
	var res Result
	if len(long) == 0 || len(short) == 0 {
		return res
	}

	vols := make([]float64, len(long))
	closes := make([]float64, len(long))
	for i, s := range long {
		vols[i] = s.BarVolume()
		closes[i] = s.BarClose()
	}
	v := percentile.Percentiles(vols, []float64{cfg.HighVolumePercentile, 90})
	c := percentile.Percentiles(closes, []float64{10, cfg.NearLowPercentile, cfg.NearHighPercentile})
	res.VolumeLevels = [2]float64{v[0], v[1]}
	res.CloseLevels = [3]float64{c[0], c[1], c[2]}

	for _, s := range short {
		if s.BarVolume() > v[0] {
			res.HighVolumeCount++
		}
	}

	last := short[len(short)-1].BarClose()
	nearLows := last < c[1]
	nearHighs := last > c[2]

	switch {
	case res.HighVolumeCount >= cfg.MinHighVolumeBars && nearLows:
		res.Detected, res.Kind = true, Accumulation
	case res.HighVolumeCount >= cfg.MinHighVolumeBars && nearHighs:
		res.Detected, res.Kind = true, Distribution
	}
	return res
}
