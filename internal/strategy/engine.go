// Package strategy folds the candle, trend, bar-count and regime evidence for
// the newest bar into one weighted signal score with a reason breakdown.
package strategy

import (
	"fmt"
	"math"

	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/indicator"
	"vpa-analyzer/internal/model"
	"vpa-analyzer/internal/regime"
)

// Action is the trade direction implied by a score.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// WindowCounts are the per-window tallies behind the multi-bar score.
type WindowCounts struct {
	UpBars          int  `json:"up_bars"`
	HighSpreadCount int  `json:"high_spread_count"`
	HighVolumeCount int  `json:"high_volume_count"`
	AnomalyCount    int  `json:"anomaly_count"`
	Bull            bool `json:"bull"`
	Bear            bool `json:"bear"`
	VolumeBacked    bool `json:"volume_backed"`
}

// Signal is the composed verdict for one bar.
type Signal struct {
	Score     float64
	Direction Action
	SubScores model.SubScores
	Breakdown model.Breakdown
	Counts    [candle.NumWindows]WindowCounts
}

// Windows gives the composer read access to the rolling windows.
type Windows interface {
	Candles(w candle.Window) []*candle.Candle
	Cap(w candle.Window) int
}

// Input bundles everything known about the newest bar.
type Input struct {
	Candle  *candle.Candle
	Windows Windows
	// Trend is nil when the ADX could not be computed.
	Trend  *indicator.Trend
	Regime regime.Result
}

// Config configures a Composer.
type Config struct {
	Params        TradingParameters
	Score         ScoreConfig
	Actionability Actionability
}

// Composer scores bars. It holds no per-bar state.
type Composer struct {
	cfg Config
}

// NewComposer creates a composer.
func NewComposer(cfg Config) *Composer {
	return &Composer{cfg: cfg}
}

// Compose evaluates the four sub-scores for in.Candle and sums them.
func (c *Composer) Compose(in Input) Signal {
	var sig Signal

	sig.SubScores.SingleCandle, sig.Breakdown.SingleCandle = c.singleCandle(in.Candle)
	sig.SubScores.Trend, sig.Breakdown.Trend = c.trend(in.Trend)
	sig.SubScores.MultipleBar, sig.Breakdown.MultipleBar, sig.Counts = c.multipleBar(in.Windows)
	sig.SubScores.AccDist, sig.Breakdown.AccDist = c.accDist(in.Candle, in.Regime)

	sig.Score = sig.SubScores.Total()
	sig.Direction = ActionSell
	if sig.Score > 0 {
		sig.Direction = ActionBuy
	}
	return sig
}

// Recommend applies the actionability thresholds to score.
func (c *Composer) Recommend(score float64) model.Recommendation {
	switch {
	case score >= c.cfg.Actionability.BuyAt:
		return model.RecommendBuy
	case score <= c.cfg.Actionability.SellAt:
		return model.RecommendSell
	default:
		return model.RecommendHold
	}
}

func (c *Composer) singleCandle(k *candle.Candle) (float64, []string) {
	sc := c.cfg.Score
	sign := -1.0
	reasons := []string{"Down Bar"}
	if k.UpBar {
		sign = 1
		reasons[0] = "Up Bar"
	}
	score := sign * sc.UpBarWeight

	for _, w := range candle.Windows {
		if k.SpreadPercentile(w) <= sc.WideSpreadPct {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("Wide Spread (%s)", w))
		score += sign * sc.WideSpreadWeight
		if k.VolumePercentile(w) > sc.HighVolumePct {
			reasons = append(reasons, fmt.Sprintf("High Volume (%s)", w))
			score += sign * sc.HighVolumeWeight
		}
	}

	if k.ShootingStar {
		reasons = append(reasons, "Shooting Star")
		score -= sc.ShootingStar
	} else if k.Hammer {
		reasons = append(reasons, "Hammer")
		score += sc.Hammer
	}
	return score, reasons
}

func (c *Composer) trend(t *indicator.Trend) (float64, []string) {
	reasons := []string{}
	if t == nil || !t.Trending {
		return 0, reasons
	}
	reasons = append(reasons, "Market is trending")
	var score float64
	if t.Up {
		reasons = append(reasons, "Trending Up")
		score += c.cfg.Score.TrendWeight
	}
	if t.Down {
		reasons = append(reasons, "Trending Down")
		score -= c.cfg.Score.TrendWeight
	}
	return score, reasons
}

func (c *Composer) multipleBar(ws Windows) (float64, []string, [candle.NumWindows]WindowCounts) {
	var (
		counts  [candle.NumWindows]WindowCounts
		score   float64
		reasons = []string{}
	)
	// Bear thresholds are measured against the short window's length for every window.
	shortLen := ws.Cap(candle.Short)

	for _, w := range candle.Windows {
		p := c.cfg.Params.For(w)
		n := &counts[w]
		for _, k := range ws.Candles(w) {
			if k.UpBar {
				n.UpBars++
			}
			if k.SpreadPercentile(w) > p.HighSpreadThreshold {
				n.HighSpreadCount++
			}
			if k.VolumePercentile(w) > p.HighVolumeThreshold {
				n.HighVolumeCount++
			}
			if abs(k.Anomaly(w)) > p.AnomalyThreshold {
				n.AnomalyCount++
			}
		}

		if n.UpBars >= p.SignalBarCount {
			n.Bull = true
		} else if n.UpBars <= shortLen-p.SignalBarCount {
			n.Bear = true
		}
		if !n.Bull && !n.Bear {
			continue
		}
		n.VolumeBacked = n.HighSpreadCount >= p.HighSpreadCount &&
			n.HighVolumeCount >= p.HighVolumeCount &&
			n.AnomalyCount <= p.AnomalyThreshold

		adj := c.cfg.Score.BarSignalWeight
		label := "Bull"
		if n.Bear {
			adj, label = -adj, "Bear"
		}
		reasons = append(reasons, fmt.Sprintf("%s Signal (%s)", label, w))
		if n.VolumeBacked {
			score += adj * c.cfg.Score.VolumeBackedMultiplier
			reasons = append(reasons, fmt.Sprintf("Volume Backed (%s)", w))
		} else {
			score += adj
		}
	}
	return score, reasons, counts
}

func (c *Composer) accDist(k *candle.Candle, r regime.Result) (float64, []string) {
	reasons := []string{}
	if !r.Detected {
		return 0, reasons
	}
	sc := c.cfg.Score
	sign := r.Kind.Sign()
	score := sign * sc.RegimeWeight
	reasons = append(reasons, "Possible "+string(r.Kind))

	if k.SpreadPercentile(candle.Short) > sc.TestSpreadPct || k.IsPattern() {
		if k.VolumePercentile(candle.Short) < sc.TestVolumePct {
			reasons = append(reasons, "Test Pass")
			score += sign * sc.TestPassWeight
		} else {
			// A failed test weakens the regime signal.
			reasons = append(reasons, "Test Fail")
			score -= sign * sc.TestFailPenalty
		}
	}
	if k.SpreadPercentile(candle.Medium) < sc.ClimaxSpreadPct && k.VolumePercentile(candle.Medium) > sc.ClimaxVolumePct {
		reasons = append(reasons, "Climax")
		score += sign * sc.ClimaxWeight
	}
	return score, reasons
}

func abs(x int) int {
	return int(math.Abs(float64(x)))
}
