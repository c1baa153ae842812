package strategy

import "vpa-analyzer/internal/candle"

// WindowParams are the bar-counting thresholds for one rolling window.
type WindowParams struct {
	HighSpreadThreshold int `yaml:"high_spread_threshold" validate:"gte=0,lte=100"`
	HighVolumeThreshold int `yaml:"high_volume_threshold" validate:"gte=0,lte=100"`
	AnomalyThreshold    int `yaml:"anomaly_threshold" validate:"gte=0"`
	SignalBarCount      int `yaml:"signal_bar_count" validate:"gte=1"`
	HighSpreadCount     int `yaml:"high_spread_count" validate:"gte=0"`
	HighVolumeCount     int `yaml:"high_volume_count" validate:"gte=0"`
}

// TradingParameters holds WindowParams for each window.
type TradingParameters struct {
	PeriodOne   WindowParams `yaml:"period_one"`
	PeriodTwo   WindowParams `yaml:"period_two"`
	PeriodThree WindowParams `yaml:"period_three"`
}

// For returns the parameters for w.
func (p TradingParameters) For(w candle.Window) WindowParams {
	switch w {
	case candle.Short:
		return p.PeriodOne
	case candle.Medium:
		return p.PeriodTwo
	default:
		return p.PeriodThree
	}
}

// DefaultTradingParameters are tuned for 5/25/50 daily windows.
func DefaultTradingParameters() TradingParameters {
	return TradingParameters{
		PeriodOne: WindowParams{
			HighSpreadThreshold: 55, HighVolumeThreshold: 55, AnomalyThreshold: 20,
			SignalBarCount: 4, HighSpreadCount: 2, HighVolumeCount: 2,
		},
		PeriodTwo: WindowParams{
			HighSpreadThreshold: 55, HighVolumeThreshold: 55, AnomalyThreshold: 20,
			SignalBarCount: 15, HighSpreadCount: 8, HighVolumeCount: 8,
		},
		PeriodThree: WindowParams{
			HighSpreadThreshold: 55, HighVolumeThreshold: 55, AnomalyThreshold: 20,
			SignalBarCount: 28, HighSpreadCount: 15, HighVolumeCount: 15,
		},
	}
}

// ScoreConfig holds the weights and percentile cut-offs of the composer.
type ScoreConfig struct {
	UpBarWeight      float64 `yaml:"up_bar_weight" default:"1"`
	WideSpreadPct    int     `yaml:"wide_spread_pct" default:"70"`
	WideSpreadWeight float64 `yaml:"wide_spread_weight" default:"2.5"`
	HighVolumePct    int     `yaml:"high_volume_pct" default:"70"`
	HighVolumeWeight float64 `yaml:"high_volume_weight" default:"2.5"`
	ShootingStar     float64 `yaml:"shooting_star_weight" default:"3"`
	Hammer           float64 `yaml:"hammer_weight" default:"3"`

	TrendThreshold float64 `yaml:"trend_threshold" default:"25"`
	TrendWeight    float64 `yaml:"trend_weight" default:"5"`

	BarSignalWeight        float64 `yaml:"bar_signal_weight" default:"2.5"`
	VolumeBackedMultiplier float64 `yaml:"volume_backed_multiplier" default:"2"`

	RegimeWeight    float64 `yaml:"regime_weight" default:"10"`
	TestSpreadPct   int     `yaml:"test_spread_pct" default:"65"`
	TestVolumePct   int     `yaml:"test_volume_pct" default:"50"`
	TestPassWeight  float64 `yaml:"test_pass_weight" default:"5"`
	TestFailPenalty float64 `yaml:"test_fail_penalty" default:"2"`
	ClimaxSpreadPct int     `yaml:"climax_spread_pct" default:"40"`
	ClimaxVolumePct int     `yaml:"climax_volume_pct" default:"60"`
	ClimaxWeight    float64 `yaml:"climax_weight" default:"10"`
}

// DefaultScoreConfig returns the standard weights.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		UpBarWeight: 1, WideSpreadPct: 70, WideSpreadWeight: 2.5, HighVolumePct: 70, HighVolumeWeight: 2.5,
		ShootingStar: 3, Hammer: 3,
		TrendThreshold: 25, TrendWeight: 5,
		BarSignalWeight: 2.5, VolumeBackedMultiplier: 2,
		RegimeWeight: 10, TestSpreadPct: 65, TestVolumePct: 50, TestPassWeight: 5, TestFailPenalty: 2,
		ClimaxSpreadPct: 40, ClimaxVolumePct: 60, ClimaxWeight: 10,
	}
}

// Actionability maps a total score onto a recommendation.
type Actionability struct {
	BuyAt  float64 `yaml:"buy_at" default:"15"`
	SellAt float64 `yaml:"sell_at" default:"-15"`
}

// DefaultActionability returns ±15.
func DefaultActionability() Actionability {
	return Actionability{BuyAt: 15, SellAt: -15}
}
