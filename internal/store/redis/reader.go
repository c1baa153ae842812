package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// readRetryDelay is the pause after a failed XREADGROUP.
const readRetryDelay = 500 * time.Millisecond

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "vpa-analyzer"
	ConsumerName  string // unique consumer name, e.g. hostname
	Logger        zerolog.Logger
}

// Reader reads bars from per-symbol Redis Streams, either as history
// (XRANGE) or live through a consumer group (XREADGROUP).
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
	log           zerolog.Logger
}

var (
	_ model.BarReader         = (*Reader)(nil)
	_ model.BarStreamConsumer = (*Reader)(nil)
)

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	group := cfg.ConsumerGroup
	if group == "" {
		group = "vpa-analyzer"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "analyzer-1"
	}

	l := cfg.Logger.With().Str("component", "redis-reader").Logger()
	l.Info().Str("addr", cfg.Addr).Str("group", group).Str("consumer", consumer).Msg("connected")
	return &Reader{client: client, consumerGroup: group, consumerName: consumer, log: l}, nil
}

// EnsureConsumerGroup creates the consumer group on stream if it doesn't exist.
// Fresh groups start at "0" so bars pushed before the analyzer started are seen.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, stream string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s: %w", stream, err)
	}
	return nil
}

// ReadBars reads stored bars for symbol from its stream, oldest first.
func (r *Reader) ReadBars(symbol string, from time.Time, limit int) ([]model.Bar, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msgs, err := r.client.XRange(ctx, streamKey(symbol), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", streamKey(symbol), err)
	}

	var bars []model.Bar
	for _, msg := range msgs {
		b, err := decodeBar(msg)
		if err != nil {
			r.log.Warn().Err(err).Str("id", msg.ID).Msg("skipping undecodable bar")
			continue
		}
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		bars = append(bars, b)
		if limit > 0 && len(bars) == limit {
			break
		}
	}
	return bars, nil
}

// ConsumeBars reads new bars for symbol through the consumer group and sends
// them to out. Messages are ACKed once handed off; undecodable ones are ACKed
// and dropped so they cannot wedge the group. Returns when ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, symbol string, out chan<- model.Bar) error {
	stream := streamKey(symbol)
	if err := r.EnsureConsumerGroup(ctx, stream); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  []string{stream, ">"},
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			r.log.Error().Err(err).Str("stream", stream).Msg("xreadgroup failed")
			if err := waitRetry(ctx, readRetryDelay); err != nil {
				return err
			}
			continue
		}

		for _, res := range results {
			for _, msg := range res.Messages {
				b, err := decodeBar(msg)
				if err != nil {
					r.log.Warn().Err(err).Str("id", msg.ID).Msg("dropping undecodable bar")
					r.client.XAck(ctx, res.Stream, r.consumerGroup, msg.ID)
					continue
				}

				select {
				case out <- b:
				case <-ctx.Done():
					return ctx.Err()
				}
				r.client.XAck(ctx, res.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

// LatestSignal returns the most recent published result for symbol, or nil if none.
func (r *Reader) LatestSignal(ctx context.Context, symbol string) (*model.SignalResult, error) {
	s := model.SignalResult{Symbol: symbol}
	data, err := r.client.Get(ctx, s.LatestKey()).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.LatestKey(), err)
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode latest signal: %w", err)
	}
	return &s, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

func streamKey(symbol string) string {
	b := model.Bar{Symbol: symbol}
	return b.StreamKey()
}

// decodeBar accepts either a JSON "data" field or flat OHLCV fields with a
// unix-seconds "ts".
func decodeBar(msg goredis.XMessage) (model.Bar, error) {
	var b model.Bar
	if data, ok := msg.Values["data"].(string); ok {
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return b, fmt.Errorf("unmarshal bar: %w", err)
		}
		return b, b.Validate()
	}

	field := func(name string) (float64, error) {
		s, ok := msg.Values[name].(string)
		if !ok {
			return 0, fmt.Errorf("missing field %q", name)
		}
		return strconv.ParseFloat(s, 64)
	}
	sym, _ := msg.Values["symbol"].(string)
	b.Symbol = sym

	ts, err := field("ts")
	if err != nil {
		return b, err
	}
	b.Time = time.Unix(int64(ts), 0).UTC()
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Volume},
	} {
		v, err := field(f.name)
		if err != nil {
			return b, err
		}
		*f.dst = v
	}
	return b, b.Validate()
}

// waitRetry pauses for d, returning early with ctx's error on cancellation.
func waitRetry(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
