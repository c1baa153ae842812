package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate cap for bar and signal streams
	Logger       zerolog.Logger
}

// Writer publishes bars and signal results to Redis.
//
// Signals go out as one pipeline per result:
//
//	XADD  signal:{symbol}         (approx MAXLEN)
//	SET   signal:latest:{symbol}
//	PUBLISH pub:signal:{symbol}
type Writer struct {
	client *goredis.Client
	maxLen int64
	cb     *CircuitBreaker
	log    zerolog.Logger
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker exposes the circuit breaker guarding signal publication.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}

	l := cfg.Logger.With().Str("component", "redis").Logger()
	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to State) {
		l.Warn().Stringer("from", from).Stringer("to", to).Msg("circuit breaker transition")
	}

	l.Info().Str("addr", cfg.Addr).Msg("connected")
	return &Writer{client: client, maxLen: maxLen, cb: cb, log: l}, nil
}

// PublishBars appends bars to their per-symbol streams in a single pipeline.
// Used by feeders pushing history into the live path.
func (w *Writer) PublishBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	for i := range bars {
		b := &bars[i]
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: b.StreamKey(),
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(b.JSON())},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis bar pipeline (%d bars): %w", len(bars), err)
	}
	return nil
}

// PublishSignal writes s to its stream, latest key, and pub/sub channel.
// Returns ErrCircuitOpen without touching the network while the breaker is open.
func (w *Writer) PublishSignal(ctx context.Context, s *model.SignalResult) error {
	jsonData := string(s.JSON())
	return w.cb.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: s.StreamKey(),
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, s.LatestKey(), jsonData, defaultLatestTTL)
		pipe.Publish(ctx, s.Channel(), jsonData)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis signal pipeline for %s: %w", s.Symbol, err)
		}
		return nil
	})
}

// Name identifies the writer as an analyzer sink.
func (w *Writer) Name() string { return "redis" }

// Emit publishes r.
func (w *Writer) Emit(ctx context.Context, r *model.SignalResult) error {
	return w.PublishSignal(ctx, r)
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
