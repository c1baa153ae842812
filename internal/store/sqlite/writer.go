package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/vpa.db"
	BatchSize int    // bars per transaction in Run (default 500)
	Logger    zerolog.Logger
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db        *sql.DB
	batchSize int
	log       zerolog.Logger
}

var (
	_ model.BarWriter    = (*Writer)(nil)
	_ model.SignalWriter = (*Writer)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	l := cfg.Logger.With().Str("component", "sqlite").Logger()
	l.Info().Str("path", cfg.DBPath).Msg("opened database")
	return &Writer{db: db, batchSize: batch, log: l}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			symbol         TEXT    NOT NULL,
			ts             INTEGER NOT NULL,
			score          REAL    NOT NULL,
			direction      TEXT    NOT NULL,
			recommendation TEXT    NOT NULL,
			regime         TEXT,
			data           TEXT    NOT NULL,
			created_at     INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batch size bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed. Returns the number of
// bars committed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) int {
	batch := make([]model.Bar, 0, w.batchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	committed := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.WriteBars(context.Background(), batch); err != nil {
			w.log.Error().Err(err).Int("bars", len(batch)).Msg("batch insert failed")
		} else {
			committed += len(batch)
			w.log.Debug().Int("bars", len(batch)).Dur("took", time.Since(start)).Msg("batch committed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return committed

		case b, ok := <-barCh:
			if !ok {
				flush()
				return committed
			}
			batch = append(batch, b)
			if len(batch) >= w.batchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars upserts bars in a single transaction.
func (w *Writer) WriteBars(ctx context.Context, bars []model.Bar) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert bar %s@%d: %w", b.Symbol, b.Time.Unix(), err)
		}
	}
	return tx.Commit()
}

// WriteSignal journals one signal result. A later result for the same bar replaces it.
func (w *Writer) WriteSignal(ctx context.Context, s *model.SignalResult) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	_, err = w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (symbol, ts, score, direction, recommendation, regime, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.Symbol, s.Time.Unix(), s.Score, s.Direction, string(s.Recommendation), s.Regime, string(data))
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// Name identifies the writer as an analyzer sink.
func (w *Writer) Name() string { return "sqlite" }

// Emit journals r.
func (w *Writer) Emit(ctx context.Context, r *model.SignalResult) error {
	return w.WriteSignal(ctx, r)
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
