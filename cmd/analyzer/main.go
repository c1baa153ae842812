// cmd/analyzer runs the VPA signal analysis for one instrument.
//
// Bars come from a CSV file, the SQLite bar history, or (live) a Redis stream.
// Every result after the long window saturates is passed to the configured
// sinks: SQLite journal, Redis, the WebSocket gateway and alert notifiers.
//
// Usage:
//
//	go run ./cmd/analyzer --config=configs/analyzer.yaml --symbol=SPY --cash=30000
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vpa-analyzer/config"
	"vpa-analyzer/internal/analyzer"
	"vpa-analyzer/internal/bus"
	"vpa-analyzer/internal/gateway"
	"vpa-analyzer/internal/logger"
	"vpa-analyzer/internal/marketdata/csvfeed"
	"vpa-analyzer/internal/marketdata/replay"
	"vpa-analyzer/internal/metrics"
	"vpa-analyzer/internal/model"
	"vpa-analyzer/internal/notification"
	"vpa-analyzer/internal/portfolio"
	redisstore "vpa-analyzer/internal/store/redis"
	sqlitestore "vpa-analyzer/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := flag.String("config", "", "Path to YAML config (empty = defaults)")
	symbol := flag.String("symbol", "", "Instrument to analyze (overrides source.symbol)")
	source := flag.String("source", "", "Bar source: csv, sqlite or redis (overrides source.kind)")
	path := flag.String("path", "", "CSV path (overrides source.path)")
	speed := flag.Float64("speed", 0, "Replay speed for stored bars (0=max, 1=realtime)")
	cash := flag.Float64("cash", 0, "Cash balance; when > 0 actionable results are sized")
	stop := flag.Float64("stop", 0, "Stop distance for sizing (0 = mean true range per bar)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[analyzer] %v", err)
	}
	if *symbol != "" {
		cfg.Source.Symbol = strings.ToUpper(*symbol)
	}
	if *source != "" {
		cfg.Source.Kind = *source
	}
	if *path != "" {
		cfg.Source.Path = *path
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[analyzer] %v: %v", config.ErrConfiguration, err)
	}

	lg, err := logger.Init("analyzer", cfg.Log)
	if err != nil {
		log.Fatalf("[analyzer] logger init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		lg.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	// ── Observability ──
	var obs analyzer.Observer = analyzer.NopObserver{}
	health := metrics.NewHealthStatus()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.NewMetrics(reg, health)
		obs = m
		srv := metrics.NewServer(cfg.Metrics.Addr, reg, health, lg)
		srv.Start()
		defer shutdown(srv.Stop)
	}

	// ── Sinks ──
	var sinks []analyzer.Sink

	var journal *sqlitestore.Writer
	if cfg.SQLite.JournalSignals {
		journal, err = sqlitestore.New(sqlitestore.WriterConfig{
			DBPath:    cfg.SQLite.Path,
			BatchSize: cfg.SQLite.BatchSize,
			Logger:    lg,
		})
		if err != nil {
			log.Fatalf("[analyzer] sqlite: %v", err)
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	var publisher *redisstore.Writer
	if cfg.Redis.Enabled {
		publisher, err = redisstore.New(redisstore.WriterConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
			Logger:       lg,
		})
		if err != nil {
			log.Fatalf("[analyzer] redis: %v", err)
		}
		defer publisher.Close()
		if m != nil {
			cb := publisher.Breaker()
			prev := cb.OnStateChange
			cb.OnStateChange = func(from, to redisstore.State) {
				if prev != nil {
					prev(from, to)
				}
				m.SetBreakerState("redis", int(to))
			}
		}
		sinks = append(sinks, publisher)
	}

	// Slow consumers (WebSocket clients, HTTP alerts) run off the analysis path.
	var async []analyzer.Sink
	if cfg.Gateway.Enabled {
		hub := gateway.NewHub(lg)
		srv := gateway.NewServer(cfg.Gateway.Addr, hub)
		srv.Start()
		defer shutdown(srv.Stop)
		async = append(async, hub)
	}
	async = append(async, notification.NewSink(buildNotifier(cfg, lg), cfg.Notification.OnlyActionable))

	resultCh := make(chan *model.SignalResult, 256)
	asyncDone := startAsyncSinks(resultCh, async, m, lg)
	sinks = append(sinks, analyzer.SinkFunc{
		Label: "async",
		Fn: func(ctx context.Context, r *model.SignalResult) error {
			cp := *r
			select {
			case resultCh <- &cp:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	if cfg.Metrics.Enabled {
		sqlDB := journalDB(journal)
		if publisher != nil {
			health.CheckRedis(ctx, publisher.Client())
			health.StartLivenessChecker(ctx, publisher.Client(), sqlDB, 15*time.Second)
		} else {
			health.StartLivenessChecker(ctx, nil, sqlDB, 15*time.Second)
		}
		if sqlDB != nil {
			health.CheckSQLite(ctx, sqlDB)
		}
	}

	// ── Analyzer ──
	a, err := analyzer.New(cfg.Source.Symbol, cfg.AnalyzerConfig(),
		analyzer.WithLogger(lg),
		analyzer.WithObserver(obs),
	)
	if err != nil {
		log.Fatalf("[analyzer] %v", err)
	}

	barCh := make(chan model.Bar, 1024)
	feedErr := make(chan error, 1)
	go func() {
		defer close(barCh)
		feedErr <- feed(ctx, cfg, *speed, barCh, lg)
	}()

	start := time.Now()
	last, runErr := a.Run(ctx, barCh, sinks...)
	cancel()
	close(resultCh)
	<-asyncDone
	if err := <-feedErr; err != nil && !errors.Is(err, context.Canceled) {
		lg.Error().Err(err).Msg("bar source failed")
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("[analyzer] %v", runErr)
	}

	printSummary(a, last, time.Since(start))
	if last != nil && last.Actionable() && *cash > 0 {
		printSizing(cfg.Sizing, last, *cash, *stop, cfg.Analysis.ADXPeriod)
	}
}

// feed pushes bars for the configured source into out.
func feed(ctx context.Context, cfg *config.Config, speed float64, out chan<- model.Bar, lg zerolog.Logger) error {
	src := cfg.Source
	switch src.Kind {
	case "redis":
		r, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			ConsumerGroup: cfg.Redis.ConsumerGroup,
			ConsumerName:  cfg.Redis.ConsumerName,
			Logger:        lg,
		})
		if err != nil {
			return err
		}
		defer r.Close()
		return r.ConsumeBars(ctx, src.Symbol, out)

	case "sqlite":
		r, err := sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = replay.New(r, lg).Run(ctx, src.Symbol, cfg.FromTime(), src.MaxRows, speed, out)
		return err

	default:
		f := csvfeed.New(src.Path, csvfeed.Options{
			Symbol:      src.Symbol,
			UseAdjClose: src.UseAdjClose,
			MaxRows:     src.MaxRows,
		}, lg)
		defer f.Close()
		_, err := replay.New(f, lg).Run(ctx, src.Symbol, cfg.FromTime(), src.MaxRows, speed, out)
		return err
	}
}

// startAsyncSinks fans results out to sinks, one goroutine each. The returned
// channel is closed once every sink has drained after in is closed.
func startAsyncSinks(in <-chan *model.SignalResult, sinks []analyzer.Sink, m *metrics.Metrics, lg zerolog.Logger) <-chan struct{} {
	fan := bus.New[*model.SignalResult](256, lg)
	fan.OnDrop = func(i int) {
		lg.Warn().Str("sink", sinks[i].Name()).Msg("sink backlog full, result dropped")
		if m != nil {
			m.SinkErrors.WithLabelValues(sinks[i].Name()).Inc()
		}
	}

	var wg sync.WaitGroup
	for _, s := range sinks {
		ch := fan.Subscribe()
		wg.Add(1)
		go func(s analyzer.Sink) {
			defer wg.Done()
			for r := range ch {
				if err := s.Emit(context.Background(), r); err != nil {
					lg.Error().Err(err).Str("sink", s.Name()).Str("symbol", r.Symbol).Msg("sink emit failed")
					if m != nil {
						m.SinkFailed(r.Symbol, s.Name(), err)
					}
				}
			}
		}(s)
	}
	go fan.Run(context.Background(), in)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func buildNotifier(cfg *config.Config, lg zerolog.Logger) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(lg)}
	nc := cfg.Notification
	if nc.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(nc.WebhookURL, nc.Timeout))
	}
	if nc.TelegramToken != "" {
		n = append(n, notification.NewTelegramNotifier(nc.TelegramToken, nc.TelegramChatID, nc.Timeout))
	}
	return n
}

func journalDB(w *sqlitestore.Writer) *sql.DB {
	if w == nil {
		return nil
	}
	return w.DB()
}

func shutdown(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stop(ctx)
}

func printSummary(a *analyzer.Analyzer, r *model.SignalResult, took time.Duration) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              VPA ANALYSIS COMPLETE           ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:          %-26s ║\n", a.Symbol())
	fmt.Printf("║  Bars processed:  %-26d ║\n", a.Processed())
	fmt.Printf("║  Elapsed:         %-26s ║\n", took.Round(time.Millisecond))
	if r == nil {
		fmt.Printf("║  %-43s ║\n", "Not enough bars to saturate the long window")
		fmt.Println("╚══════════════════════════════════════════════╝")
		return
	}
	fmt.Printf("║  Last bar:        %-26s ║\n", r.Time.Format("2006-01-02"))
	fmt.Printf("║  Close:           %-26.2f ║\n", r.Close)
	fmt.Printf("║  Signal score:    %-26.2f ║\n", r.Score)
	fmt.Printf("║  Direction:       %-26s ║\n", r.Direction)
	fmt.Printf("║  Recommendation:  %-26s ║\n", r.Recommendation.Label())
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Single candle:   %-26.2f ║\n", r.SubScores.SingleCandle)
	fmt.Printf("║  Trend:           %-26.2f ║\n", r.SubScores.Trend)
	fmt.Printf("║  Multiple bar:    %-26.2f ║\n", r.SubScores.MultipleBar)
	fmt.Printf("║  Acc/Dist:        %-26.2f ║\n", r.SubScores.AccDist)
	if r.ADX.Available {
		fmt.Printf("║  ADX:             %-26.2f ║\n", r.ADX.ADX)
	}
	if r.Regime != "" {
		fmt.Printf("║  Regime:          %-26s ║\n", r.Regime)
	}
	if len(r.WindowChanges) > 0 {
		fmt.Println("╠══════════════════════════════════════════════╣")
		for _, wc := range r.WindowChanges {
			fmt.Printf("║  %-13s %10.2f → %10.2f %+7.2f%% ║\n", wc.Window, wc.InitialClose, wc.FinalClose, wc.ChangePct)
		}
	}
	fmt.Println("╚══════════════════════════════════════════════╝")

	for _, group := range [][]string{r.Breakdown.SingleCandle, r.Breakdown.Trend, r.Breakdown.MultipleBar, r.Breakdown.AccDist} {
		for _, line := range group {
			fmt.Println("  -", line)
		}
	}
}

// printSizing sizes the trade behind an actionable result. Without an explicit
// stop the mean true range per bar over the ADX period is used.
func printSizing(limits portfolio.RiskLimits, r *model.SignalResult, cash, stop float64, period int) {
	if stop <= 0 && r.ADX.Available && period > 0 {
		stop = r.ADX.MeanTR / float64(period)
	}
	s, err := portfolio.NewSizer(limits).Size(cash, r.Close, stop)
	if err != nil {
		fmt.Printf("\n  sizing unavailable: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Printf("  %s %d shares @ %.2f (notional %s, risk %s, stop %.2f)",
		r.Recommendation, s.Shares, r.Close, s.Notional.StringFixed(2), s.RiskAmount.StringFixed(2), stop)
	if s.Capped {
		fmt.Print(" [capped]")
	}
	fmt.Println()
}
