package analyzer

import (
	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/indicator"
	"vpa-analyzer/internal/percentile"
	"vpa-analyzer/internal/regime"
	"vpa-analyzer/internal/strategy"
	"vpa-analyzer/internal/window"
)

// Config holds everything the analysis core consumes.
type Config struct {
	Windows    window.Lengths
	Percentile percentile.Config
	ADXPeriod  int
	Patterns   candle.PatternConfig
	Regime     regime.Config
	Strategy   strategy.Config
}

// DefaultConfig returns the standard 5/25/50 setup.
func DefaultConfig() Config {
	return Config{
		Windows:    window.DefaultLengths(),
		Percentile: percentile.DefaultConfig(),
		ADXPeriod:  indicator.DefaultADXPeriod,
		Patterns:   candle.DefaultPatternConfig(),
		Regime:     regime.DefaultConfig(),
		Strategy: strategy.Config{
			Params:        strategy.DefaultTradingParameters(),
			Score:         strategy.DefaultScoreConfig(),
			Actionability: strategy.DefaultActionability(),
		},
	}
}
