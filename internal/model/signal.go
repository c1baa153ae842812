package model

import (
	"encoding/json"
	"time"
)

// Recommendation is the caller-level verdict derived from a signal score.
type Recommendation string

const (
	RecommendBuy  Recommendation = "BUY"
	RecommendSell Recommendation = "SELL"
	RecommendHold Recommendation = "HOLD"
)

// Label returns the human-readable form printed by the CLIs.
func (r Recommendation) Label() string {
	switch r {
	case RecommendBuy:
		return "BUY Recommendation"
	case RecommendSell:
		return "SELL Recommendation"
	default:
		return "DO NOT TRADE"
	}
}

// Breakdown lists the reasons behind each sub-score.
type Breakdown struct {
	SingleCandle []string `json:"single_candle"`
	Trend        []string `json:"trend"`
	MultipleBar  []string `json:"multiple_bar"`
	AccDist      []string `json:"acc_dist"`
}

// SubScores holds the four weighted components that sum to the total score.
type SubScores struct {
	SingleCandle float64 `json:"single_candle"`
	Trend        float64 `json:"trend"`
	MultipleBar  float64 `json:"multiple_bar"`
	AccDist      float64 `json:"acc_dist"`
}

// Total is the sum of all components.
func (s SubScores) Total() float64 {
	return s.SingleCandle + s.Trend + s.MultipleBar + s.AccDist
}

// ADXSnapshot carries the trend diagnostics for the bar.
type ADXSnapshot struct {
	ADX         float64 `json:"adx"`
	LatestADX   float64 `json:"latest_adx"`
	MeanTR      float64 `json:"mean_tr"`
	MeanDMPlus  float64 `json:"mean_dm_plus"`
	MeanDMMinus float64 `json:"mean_dm_minus"`
	Available   bool    `json:"available"`
}

// WindowChange is the close-to-close move across one rolling window.
type WindowChange struct {
	Window       string  `json:"window"`
	InitialClose float64 `json:"initial_close"`
	FinalClose   float64 `json:"final_close"`
	ChangePct    float64 `json:"change_pct"`
}

// SignalResult is emitted for every bar processed once all windows are full.
type SignalResult struct {
	Symbol         string         `json:"symbol"`
	Time           time.Time      `json:"time"`
	Close          float64        `json:"close"`
	Score          float64        `json:"signal_score"`
	Direction      string         `json:"direction"`
	Recommendation Recommendation `json:"recommendation"`
	SubScores      SubScores      `json:"sub_scores"`
	Breakdown      Breakdown      `json:"breakdown"`
	ADX            ADXSnapshot    `json:"adx"`
	Regime         string         `json:"regime,omitempty"`
	WindowChanges  []WindowChange `json:"window_changes,omitempty"`
}

// Actionable reports whether the recommendation asks for a trade.
func (s *SignalResult) Actionable() bool {
	return s.Recommendation == RecommendBuy || s.Recommendation == RecommendSell
}

// StreamKey returns the Redis stream key: "signal:{symbol}".
func (s *SignalResult) StreamKey() string {
	return "signal:" + s.Symbol
}

// LatestKey returns the Redis key holding the most recent result.
func (s *SignalResult) LatestKey() string {
	return "signal:latest:" + s.Symbol
}

// Channel returns the Redis pub/sub channel for the symbol.
func (s *SignalResult) Channel() string {
	return "pub:signal:" + s.Symbol
}

// JSON returns the JSON-encoded result.
func (s *SignalResult) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
