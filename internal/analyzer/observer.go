package analyzer

import (
	"context"
	"time"

	"vpa-analyzer/internal/model"
)

// Observer receives analysis events. Implementations must be cheap; they are
// called inline on the processing path.
type Observer interface {
	BarProcessed(symbol string, elapsed time.Duration)
	BarRejected(symbol string, err error)
	SignalEmitted(r *model.SignalResult)
	TrendSkipped(symbol string, err error)
	SinkFailed(symbol, sink string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) BarProcessed(string, time.Duration) {}
func (NopObserver) BarRejected(string, error)          {}
func (NopObserver) SignalEmitted(*model.SignalResult)  {}
func (NopObserver) TrendSkipped(string, error)         {}
func (NopObserver) SinkFailed(string, string, error)   {}

// Sink consumes emitted results (Redis, SQLite journal, WebSocket, alerts).
type Sink interface {
	Name() string
	Emit(ctx context.Context, r *model.SignalResult) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, r *model.SignalResult) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Emit(ctx context.Context, r *model.SignalResult) error {
	return s.Fn(ctx, r)
}
