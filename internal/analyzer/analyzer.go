// Package analyzer runs the per-bar pipeline for one instrument: build the
// candle, push it into the rolling windows, re-rank percentiles, evaluate the
// ADX and regime, and compose the signal.
//
// An Analyzer is single-threaded. Feed it bars in time order from one
// goroutine; run one Analyzer per symbol for parallel work.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/indicator"
	"vpa-analyzer/internal/logger"
	"vpa-analyzer/internal/model"
	"vpa-analyzer/internal/percentile"
	"vpa-analyzer/internal/regime"
	"vpa-analyzer/internal/strategy"
	"vpa-analyzer/internal/window"
)

// Analyzer holds the run state for one symbol.
type Analyzer struct {
	symbol string
	cfg    Config

	windows  *window.Set
	ranker   *percentile.Ranker
	composer *strategy.Composer

	log zerolog.Logger
	obs Observer

	processed int
	emitted   int
	announced bool
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(a *Analyzer) { a.obs = o }
}

// New creates an Analyzer for symbol.
func New(symbol string, cfg Config, opts ...Option) (*Analyzer, error) {
	set, err := window.NewSet(cfg.Windows)
	if err != nil {
		return nil, fmt.Errorf("analyzer windows: %w", err)
	}
	ranker, err := percentile.NewRanker(cfg.Percentile)
	if err != nil {
		return nil, fmt.Errorf("analyzer percentile: %w", err)
	}
	if cfg.ADXPeriod < 1 {
		return nil, fmt.Errorf("analyzer adx period must be positive, got %d", cfg.ADXPeriod)
	}

	a := &Analyzer{
		symbol:   symbol,
		cfg:      cfg,
		windows:  set,
		ranker:   ranker,
		composer: strategy.NewComposer(cfg.Strategy),
		log:      zerolog.Nop(),
		obs:      NopObserver{},
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.With().Str("component", "analyzer").Str("symbol", symbol).Logger()
	return a, nil
}

// Symbol returns the instrument being analysed.
func (a *Analyzer) Symbol() string { return a.symbol }

// Processed returns the number of bars accepted so far.
func (a *Analyzer) Processed() int { return a.processed }

// Ready reports whether the long window is saturated.
func (a *Analyzer) Ready() bool { return a.windows.IsSaturated(candle.Long) }

// Process runs one bar through the pipeline. It returns nil until the long
// window is saturated. Bars with non-finite values return model.ErrInvalidInput
// and leave the state untouched.
func (a *Analyzer) Process(ctx context.Context, b model.Bar) (*model.SignalResult, error) {
	if err := b.Validate(); err != nil {
		a.obs.BarRejected(a.symbol, err)
		return nil, err
	}
	start := time.Now()
	log := logger.WithTrace(ctx, a.log)

	c := candle.New(b, a.cfg.Patterns)
	a.windows.Insert(c)
	a.processed++
	log.Debug().Stringer("candle", c).Msg("candle added")

	if !a.windows.IsSaturated(candle.Long) {
		a.obs.BarProcessed(a.symbol, time.Since(start))
		return nil, nil
	}
	if !a.announced {
		log.Info().Int("bars", a.processed).Msg("rolling windows complete")
		a.announced = true
	}

	for _, w := range candle.Windows {
		a.ranker.Rank(w, a.windows.Candles(w))
		if e := log.Debug(); e.Enabled() {
			e.Str("window", w.String()).
				Str("spread_breakpoints", a.ranker.Describe(w, percentile.Spread)).
				Str("volume_breakpoints", a.ranker.Describe(w, percentile.Volume)).
				Msg("percentiles updated")
		}
	}

	long := a.windows.Candles(candle.Long)
	var (
		trend *indicator.Trend
		adx   model.ADXSnapshot
	)
	res, err := indicator.CalculateADX(long, a.cfg.ADXPeriod)
	switch {
	case err == nil:
		t := res.Classify(a.cfg.Strategy.Score.TrendThreshold)
		trend = &t
		adx = model.ADXSnapshot{
			ADX: res.ADX, LatestADX: res.Latest,
			MeanTR: res.MeanTR, MeanDMPlus: res.MeanDMPlus, MeanDMMinus: res.MeanDMMinus,
			Available: true,
		}
		v := res.Values()
		log.Debug().Floats64("adx", v[:]).Msg("adx values")
	case errors.Is(err, indicator.ErrInsufficientData):
		log.Warn().Err(err).Msg("trend scoring skipped")
		a.obs.TrendSkipped(a.symbol, err)
	default:
		return nil, fmt.Errorf("adx: %w", err)
	}

	reg := regime.Detect(a.cfg.Regime, long, a.windows.Candles(candle.Short))
	if reg.Detected {
		log.Info().Str("regime", reg.Kind.Name()).Int("high_volume_bars", reg.HighVolumeCount).Msg("possible regime identified")
	}

	sig := a.composer.Compose(strategy.Input{
		Candle:  c,
		Windows: a.windows,
		Trend:   trend,
		Regime:  reg,
	})

	out := &model.SignalResult{
		Symbol:         a.symbol,
		Time:           b.Time,
		Close:          b.Close,
		Score:          sig.Score,
		Direction:      string(sig.Direction),
		Recommendation: a.composer.Recommend(sig.Score),
		SubScores:      sig.SubScores,
		Breakdown:      sig.Breakdown,
		ADX:            adx,
		Regime:         string(reg.Kind),
	}
	a.emitted++

	log.Info().
		Time("bar_time", b.Time).
		Str("direction", out.Direction).
		Float64("score", out.Score).
		Strs("single_candle", sig.Breakdown.SingleCandle).
		Strs("trend", sig.Breakdown.Trend).
		Strs("multiple_bar", sig.Breakdown.MultipleBar).
		Strs("acc_dist", sig.Breakdown.AccDist).
		Msg("trade signal")

	a.obs.SignalEmitted(out)
	a.obs.BarProcessed(a.symbol, time.Since(start))
	return out, nil
}

// WindowChanges reports the close-to-close move across each window.
func (a *Analyzer) WindowChanges() []model.WindowChange {
	var out []model.WindowChange
	for _, w := range candle.Windows {
		first, ok1 := a.windows.Earliest(w)
		last, ok2 := a.windows.Latest(w)
		if !ok1 || !ok2 {
			continue
		}
		var pct float64
		if first.Close != 0 {
			pct = (last.Close - first.Close) / first.Close * 100
		}
		out = append(out, model.WindowChange{
			Window:       w.String(),
			InitialClose: first.Close,
			FinalClose:   last.Close,
			ChangePct:    pct,
		})
	}
	return out
}

// Run drains in until it is closed or ctx is cancelled, passing every result
// to sinks. Sink errors are logged and never stop the run. The final result
// carries the window change report. Returns nil if no bar produced a signal.
func (a *Analyzer) Run(ctx context.Context, in <-chan model.Bar, sinks ...Sink) (*model.SignalResult, error) {
	var last *model.SignalResult
	for {
		select {
		case <-ctx.Done():
			return a.finish(last), ctx.Err()
		case b, ok := <-in:
			if !ok {
				return a.finish(last), nil
			}
			bctx := logger.WithTraceID(ctx, logger.GenerateTraceID(a.symbol, b.Time))
			r, err := a.Process(bctx, b)
			if errors.Is(err, model.ErrInvalidInput) {
				a.log.Warn().Err(err).Msg("bar rejected")
				continue
			}
			if err != nil {
				return a.finish(last), err
			}
			if r == nil {
				continue
			}
			last = r
			a.emit(bctx, r, sinks)
		}
	}
}

func (a *Analyzer) emit(ctx context.Context, r *model.SignalResult, sinks []Sink) {
	for _, s := range sinks {
		if err := s.Emit(ctx, r); err != nil {
			a.obs.SinkFailed(a.symbol, s.Name(), err)
			l := logger.WithTrace(ctx, a.log)
			l.Error().Err(err).Str("sink", s.Name()).Msg("sink emit failed")
		}
	}
}

func (a *Analyzer) finish(last *model.SignalResult) *model.SignalResult {
	if last == nil {
		return nil
	}
	last.WindowChanges = a.WindowChanges()
	for _, wc := range last.WindowChanges {
		a.log.Info().
			Str("window", wc.Window).
			Float64("initial_close", wc.InitialClose).
			Float64("final_close", wc.FinalClose).
			Str("change", fmt.Sprintf("%.2f%%", wc.ChangePct)).
			Msg("window change")
	}
	a.log.Info().
		Int("bars", a.processed).
		Int("signals", a.emitted).
		Float64("score", last.Score).
		Str("recommendation", last.Recommendation.Label()).
		Msg("run complete")
	return last
}
