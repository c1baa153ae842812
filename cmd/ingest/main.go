// cmd/ingest loads an OHLCV CSV file into the SQLite bar history and,
// optionally, pushes the same bars onto the symbol's Redis stream so a live
// analyzer can consume them.
//
// Usage:
//
//	go run ./cmd/ingest --csv=data/spy_data.csv --symbol=SPY --db=data/vpa.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vpa-analyzer/config"
	"vpa-analyzer/internal/logger"
	"vpa-analyzer/internal/marketdata/csvfeed"
	"vpa-analyzer/internal/model"
	redisstore "vpa-analyzer/internal/store/redis"
	sqlitestore "vpa-analyzer/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := flag.String("config", "", "Path to YAML config (empty = defaults)")
	csvPath := flag.String("csv", "", "CSV file to load (overrides source.path)")
	symbol := flag.String("symbol", "", "Symbol to store the bars under (overrides source.symbol)")
	dbPath := flag.String("db", "", "SQLite database (overrides sqlite.path)")
	adj := flag.Bool("adj", false, "Use the Adj Close column as close")
	toRedis := flag.Bool("redis", false, "Also append the bars to the Redis stream bars:{symbol}")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[ingest] %v", err)
	}
	if *csvPath != "" {
		cfg.Source.Path = *csvPath
	}
	if *symbol != "" {
		cfg.Source.Symbol = strings.ToUpper(*symbol)
	}
	if *dbPath != "" {
		cfg.SQLite.Path = *dbPath
	}
	if *adj {
		cfg.Source.UseAdjClose = true
	}

	lg, err := logger.Init("ingest", cfg.Log)
	if err != nil {
		log.Fatalf("[ingest] logger init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	feed := csvfeed.New(cfg.Source.Path, csvfeed.Options{
		Symbol:      cfg.Source.Symbol,
		UseAdjClose: cfg.Source.UseAdjClose,
		MaxRows:     cfg.Source.MaxRows,
	}, lg)
	bars, err := feed.ReadBars(cfg.Source.Symbol, cfg.FromTime(), 0)
	if err != nil {
		log.Fatalf("[ingest] read %s: %v", cfg.Source.Path, err)
	}
	if len(bars) == 0 {
		log.Fatalf("[ingest] no usable rows in %s", cfg.Source.Path)
	}

	writer, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:    cfg.SQLite.Path,
		BatchSize: cfg.SQLite.BatchSize,
		Logger:    lg,
	})
	if err != nil {
		log.Fatalf("[ingest] sqlite: %v", err)
	}
	defer writer.Close()

	start := time.Now()
	barCh := make(chan model.Bar, cfg.SQLite.BatchSize)
	go func() {
		defer close(barCh)
		for _, b := range bars {
			select {
			case barCh <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	committed := writer.Run(ctx, barCh)

	published := 0
	if *toRedis {
		pub, err := redisstore.New(redisstore.WriterConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
			Logger:       lg,
		})
		if err != nil {
			log.Fatalf("[ingest] redis: %v", err)
		}
		defer pub.Close()
		for i := 0; i < len(bars); i += cfg.SQLite.BatchSize {
			end := min(i+cfg.SQLite.BatchSize, len(bars))
			if err := pub.PublishBars(ctx, bars[i:end]); err != nil {
				lg.Error().Err(err).Int("offset", i).Msg("redis publish failed")
				break
			}
			published = end
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║           INGEST COMPLETE            ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:          %-18s ║\n", cfg.Source.Symbol)
	fmt.Printf("║  Rows read:       %-18d ║\n", len(bars))
	fmt.Printf("║  Rows rejected:   %-18d ║\n", feed.Rejected())
	fmt.Printf("║  Bars committed:  %-18d ║\n", committed)
	if *toRedis {
		fmt.Printf("║  Bars streamed:   %-18d ║\n", published)
	}
	fmt.Printf("║  Elapsed:         %-18s ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}
