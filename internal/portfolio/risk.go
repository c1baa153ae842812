// Package portfolio sizes trades for actionable recommendations. Money math is
// done in decimal so fractional risk percentages do not drift.
package portfolio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidSizing is returned when sizing inputs cannot produce a position.
var ErrInvalidSizing = errors.New("invalid sizing input")

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	RiskPerTrade    float64 `yaml:"risk_per_trade" default:"0.01" validate:"gt=0,lte=1"` // fraction of cash lost if the stop is hit
	MaxExposure     float64 `yaml:"max_exposure" default:"0.1" validate:"gt=0,lte=1"`    // fraction of cash committed to one position
	MaxPositionSize int64   `yaml:"max_position_size" validate:"gte=0"`                  // hard share cap, 0 = none
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		RiskPerTrade: 0.01,
		MaxExposure:  0.1,
	}
}

// TradeSize returns the position size in shares as the smaller of the
// risk-based size and the exposure-capped size:
//
//	min(cash*riskPerTrade/stopDistance, cash*maxExposure/price)
func TradeSize(cash, riskPerTrade, maxExposure, price, stopDistance decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price %s must be positive", ErrInvalidSizing, price)
	}
	if !stopDistance.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: stop distance %s must be positive", ErrInvalidSizing, stopDistance)
	}
	if cash.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: cash %s is negative", ErrInvalidSizing, cash)
	}

	byRisk := cash.Mul(riskPerTrade).Div(stopDistance)
	byExposure := cash.Mul(maxExposure).Div(price)
	return decimal.Min(byRisk, byExposure), nil
}

// Sizing is the outcome of sizing one trade.
type Sizing struct {
	Shares     int64           // whole shares to trade
	Exact      decimal.Decimal // unrounded TradeSize result
	Notional   decimal.Decimal // Shares * price
	RiskAmount decimal.Decimal // Shares * stop distance
	Capped     bool            // MaxPositionSize reduced the size
}

// Sizer applies RiskLimits to a cash balance.
type Sizer struct {
	limits RiskLimits
}

// NewSizer creates a Sizer.
func NewSizer(limits RiskLimits) *Sizer {
	return &Sizer{limits: limits}
}

// Limits returns the limits in force.
func (s *Sizer) Limits() RiskLimits { return s.limits }

// Size sizes a trade at price with the stop stopDistance away.
func (s *Sizer) Size(cash, price, stopDistance float64) (Sizing, error) {
	p := decimal.NewFromFloat(price)
	stop := decimal.NewFromFloat(stopDistance)

	exact, err := TradeSize(
		decimal.NewFromFloat(cash),
		decimal.NewFromFloat(s.limits.RiskPerTrade),
		decimal.NewFromFloat(s.limits.MaxExposure),
		p, stop,
	)
	if err != nil {
		return Sizing{}, err
	}

	shares := exact.Floor().IntPart()
	capped := false
	if s.limits.MaxPositionSize > 0 && shares > s.limits.MaxPositionSize {
		shares = s.limits.MaxPositionSize
		capped = true
	}

	n := decimal.NewFromInt(shares)
	return Sizing{
		Shares:     shares,
		Exact:      exact,
		Notional:   n.Mul(p),
		RiskAmount: n.Mul(stop),
		Capped:     capped,
	}, nil
}
