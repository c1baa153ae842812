// cmd/screener runs the VPA analysis for every symbol in the SQLite bar
// history and ranks the final signal scores.
//
// Usage:
//
//	go run ./cmd/screener --config=configs/analyzer.yaml --workers=4 --top=5
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"vpa-analyzer/config"
	"vpa-analyzer/internal/analyzer"
	"vpa-analyzer/internal/logger"
	"vpa-analyzer/internal/marketdata/replay"
	"vpa-analyzer/internal/model"
	sqlitestore "vpa-analyzer/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := flag.String("config", "", "Path to YAML config (empty = defaults)")
	dbPath := flag.String("db", "", "SQLite database (overrides sqlite.path)")
	workers := flag.Int("workers", 4, "Symbols analyzed concurrently")
	top := flag.Int("top", 5, "Entries shown at each end of the ranking")
	journal := flag.Bool("journal", false, "Write each symbol's final result to the signal journal")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[screener] %v", err)
	}
	if *dbPath != "" {
		cfg.SQLite.Path = *dbPath
	}
	if *workers < 1 {
		*workers = 1
	}

	lg, err := logger.Init("screener", cfg.Log)
	if err != nil {
		log.Fatalf("[screener] logger init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	reader, err := sqlitestore.NewReader(cfg.SQLite.Path)
	if err != nil {
		log.Fatalf("[screener] sqlite open failed: %v", err)
	}
	defer reader.Close()

	symbols, err := reader.Symbols()
	if err != nil {
		log.Fatalf("[screener] list symbols: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatalf("[screener] no bars in %s, run cmd/ingest first", cfg.SQLite.Path)
	}

	var sinks []analyzer.Sink
	if *journal {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLite.Path, Logger: lg})
		if err != nil {
			log.Fatalf("[screener] sqlite writer: %v", err)
		}
		defer w.Close()
		sinks = append(sinks, w)
	}

	lg.Info().Int("symbols", len(symbols)).Int("workers", *workers).Msg("screening")

	jobs := make(chan string)
	results := make(chan Entry, len(symbols))
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				e, err := screen(ctx, cfg, reader, sym, lg, sinks)
				if err != nil {
					lg.Error().Err(err).Str("symbol", sym).Msg("screen failed")
					continue
				}
				if e != nil {
					results <- *e
				}
			}
		}()
	}

feed:
	for _, sym := range symbols {
		select {
		case jobs <- sym:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var entries []Entry
	for e := range results {
		entries = append(entries, e)
	}
	ranked := Rank(entries)

	printRanking(ranked, *top, len(symbols))
}

// screen analyzes the full history of one symbol. Sinks receive only the
// final result.
func screen(ctx context.Context, cfg *config.Config, r *sqlitestore.Reader, symbol string, lg zerolog.Logger, sinks []analyzer.Sink) (*Entry, error) {
	a, err := analyzer.New(symbol, cfg.AnalyzerConfig(), analyzer.WithLogger(lg.Level(zerolog.WarnLevel)))
	if err != nil {
		return nil, err
	}

	ch := make(chan model.Bar, 256)
	go func() {
		defer close(ch)
		if _, err := replay.New(r, lg).Run(ctx, symbol, cfg.FromTime(), cfg.Source.MaxRows, 0, ch); err != nil {
			lg.Warn().Err(err).Str("symbol", symbol).Msg("replay stopped")
		}
	}()

	last, err := a.Run(ctx, ch)
	if err != nil {
		return nil, err
	}
	if last == nil {
		lg.Warn().Str("symbol", symbol).Int("bars", a.Processed()).Msg("not enough history")
		return nil, nil
	}
	for _, s := range sinks {
		if err := s.Emit(ctx, last); err != nil {
			lg.Error().Err(err).Str("sink", s.Name()).Msg("sink emit failed")
		}
	}
	return &Entry{
		Symbol:         symbol,
		Score:          last.Score,
		Recommendation: last.Recommendation,
		Close:          last.Close,
	}, nil
}

func printRanking(ranked []Entry, top, total int) {
	head, tail := Extremes(ranked, top)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║               VPA SCREENER RESULTS           ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Symbols: %-6d  Ranked: %-18d ║\n", total, len(ranked))
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  %-42s  ║\n", "Top")
	for _, e := range head {
		fmt.Printf("║    %-8s %8.1f  %-21s ║\n", e.Symbol, e.Rounded(), e.Recommendation.Label())
	}
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  %-42s  ║\n", "Bottom")
	for _, e := range tail {
		fmt.Printf("║    %-8s %8.1f  %-21s ║\n", e.Symbol, e.Rounded(), e.Recommendation.Label())
	}
	fmt.Println("╚══════════════════════════════════════════════╝")
}
