// Package csvfeed loads daily OHLCV bars from CSV files in the common
// Date,Open,High,Low,Close,Adj Close,Volume layout.
package csvfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"
)

// Options controls how rows are turned into bars.
type Options struct {
	Symbol string
	// UseAdjClose takes the close from the "Adj Close" column when present.
	UseAdjClose bool
	// From drops bars before this time (zero = keep all).
	From time.Time
	// MaxRows stops after this many bars at or after From (0 = all).
	MaxRows int
}

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
}

// Feed reads bars from one CSV file. It satisfies model.BarReader.
type Feed struct {
	path     string
	opts     Options
	log      zerolog.Logger
	rejected int
}

// New creates a feed for path.
func New(path string, opts Options, log zerolog.Logger) *Feed {
	return &Feed{path: path, opts: opts, log: log.With().Str("component", "csvfeed").Logger()}
}

// ReadBars loads the file, sorts by date and returns bars at or after from.
// Rows with non-finite values are skipped and logged. symbol overrides the
// feed's configured symbol when non-empty.
func (f *Feed) ReadBars(symbol string, from time.Time, limit int) ([]model.Bar, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("csv open: %w", err)
	}
	defer file.Close()

	opts := f.opts
	if symbol != "" {
		opts.Symbol = symbol
	}
	if !from.IsZero() {
		opts.From = from
	}
	if limit > 0 && (opts.MaxRows == 0 || limit < opts.MaxRows) {
		opts.MaxRows = limit
	}

	bars, rejected, err := Parse(file, opts, func(line int, err error) {
		f.log.Warn().Int("line", line).Err(err).Msg("row rejected")
	})
	if err != nil {
		return nil, fmt.Errorf("csv parse %s: %w", f.path, err)
	}
	f.rejected += rejected

	f.log.Info().Str("path", f.path).Int("bars", len(bars)).Int("rejected", rejected).Msg("loaded")
	return bars, nil
}

// Rejected returns the number of rows skipped so far.
func (f *Feed) Rejected() int { return f.rejected }

// Close is a no-op; the file is closed after every read.
func (f *Feed) Close() error { return nil }

// Parse decodes CSV rows into bars sorted by time. onReject is called for
// each skipped row (it may be nil). The From filter and then the row cap
// apply after sorting.
func Parse(r io.Reader, opts Options, onReject func(line int, err error)) ([]model.Bar, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, opts.UseAdjClose)
	if err != nil {
		return nil, 0, err
	}

	var (
		bars     []model.Bar
		rejected int
		line     = 1
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, rejected, fmt.Errorf("line %d: %w", line, err)
		}

		b, err := parseRow(rec, cols, opts.Symbol)
		if err == nil {
			err = b.Validate()
		}
		if err != nil {
			rejected++
			if onReject != nil {
				onReject(line, err)
			}
			continue
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if !opts.From.IsZero() {
		i := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(opts.From) })
		bars = bars[i:]
	}
	if opts.MaxRows > 0 && len(bars) > opts.MaxRows {
		bars = bars[:opts.MaxRows]
	}
	return bars, rejected, nil
}

type columns struct {
	date, open, high, low, close, volume int
}

func columnIndex(header []string, useAdj bool) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	lookup := func(name string) (int, error) {
		i, ok := idx[name]
		if !ok {
			return 0, fmt.Errorf("missing column %q", name)
		}
		return i, nil
	}

	var c columns
	var err error
	for _, f := range []struct {
		dst  *int
		name string
	}{
		{&c.date, "date"}, {&c.open, "open"}, {&c.high, "high"},
		{&c.low, "low"}, {&c.close, "close"}, {&c.volume, "volume"},
	} {
		if *f.dst, err = lookup(f.name); err != nil {
			return c, err
		}
	}
	if useAdj {
		if i, ok := idx["adj close"]; ok {
			c.close = i
		}
	}
	return c, nil
}

func parseRow(rec []string, c columns, symbol string) (model.Bar, error) {
	if len(rec) <= max(c.date, c.open, c.high, c.low, c.close, c.volume) {
		return model.Bar{}, fmt.Errorf("%w: short row with %d fields", model.ErrInvalidInput, len(rec))
	}
	ts, err := parseTime(rec[c.date])
	if err != nil {
		return model.Bar{}, err
	}
	var vals [5]float64
	for i, col := range [...]int{c.open, c.high, c.low, c.close, c.volume} {
		// strconv accepts "NaN" and "Inf"; Validate rejects those afterwards.
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
		}
		vals[i] = v
	}
	return model.Bar{
		Symbol: symbol,
		Time:   ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", model.ErrInvalidInput, s)
}
