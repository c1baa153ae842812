// Package replay feeds stored bars into the analyzer as if they were arriving
// live, at a configurable speed.
package replay

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"
)

// maxGap caps the simulated wait between two bars.
const maxGap = 5 * time.Second

// Replayer reads bars from any BarReader and replays them in time order.
type Replayer struct {
	reader model.BarReader
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by reader.
func New(reader model.BarReader, log zerolog.Logger) *Replayer {
	return &Replayer{
		reader: reader,
		log:    log.With().Str("component", "replay").Logger(),
		sleep:  sleepCtx,
	}
}

// Run replays bars for symbol at or after from, emitting them into out.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// limit <= 0 replays everything. out is not closed. Returns the number of bars sent.
func (r *Replayer) Run(ctx context.Context, symbol string, from time.Time, limit int, speed float64, out chan<- model.Bar) (int, error) {
	bars, err := r.reader.ReadBars(symbol, from, limit)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		r.log.Warn().Str("symbol", symbol).Msg("no bars to replay")
		return 0, nil
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	r.log.Info().Str("symbol", symbol).Int("bars", len(bars)).Float64("speed", speed).Msg("replay loaded")

	var prev time.Time
	emitted := 0
	for _, b := range bars {
		if speed > 0 && !prev.IsZero() {
			if gap := b.Time.Sub(prev); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				if err := r.sleep(ctx, scaled); err != nil {
					r.log.Info().Int("emitted", emitted).Msg("replay cancelled")
					return emitted, err
				}
			}
		}
		prev = b.Time

		select {
		case out <- b:
			emitted++
		case <-ctx.Done():
			r.log.Info().Int("emitted", emitted).Msg("replay cancelled")
			return emitted, ctx.Err()
		}
	}

	r.log.Info().Int("emitted", emitted).Msg("replay completed")
	return emitted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
