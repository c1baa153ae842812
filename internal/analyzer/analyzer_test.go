package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/model"
	"vpa-analyzer/internal/percentile"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func synthBars(n int) []model.Bar {
	out := make([]model.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		base := 100 + float64(i)*0.5 + 3*math.Sin(float64(i)/4)
		cl := base + float64(i%3-1)*0.7
		out[i] = model.Bar{
			Symbol: "SYN",
			Time:   start.AddDate(0, 0, i),
			Open:   base,
			High:   math.Max(base, cl) + 0.5 + float64(i%5)*0.1,
			Low:    math.Min(base, cl) - 0.4,
			Close:  cl,
			Volume: float64(1000 + (i*37)%500),
		}
	}
	return out
}

// lcgBars builds n reproducible bars from a 32-bit linear congruential
// generator. Prices are whole cents and volumes whole shares, so the same
// sequence can be regenerated exactly by any other implementation.
func lcgBars(n int, seed uint32) []model.Bar {
	state := seed
	next := func(m uint32) int64 {
		state = state*1664525 + 1013904223
		return int64((state >> 8) % m)
	}
	drift := [4]int64{35, -5, -45, 10}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	out := make([]model.Bar, n)
	p := int64(10000)
	for i := range out {
		move := drift[(i/25)%4] + next(301) - 150
		o, c := p, p+move
		hi := max(o, c) + next(120)
		lo := min(o, c) - next(120)
		if next(10) == 0 {
			hi += 300
		}
		if next(10) == 0 {
			lo -= 300
		}
		vol := 100000 + next(50000)
		if next(6) == 0 {
			vol += 150000 + next(100000)
		}
		out[i] = model.Bar{
			Symbol: "LCG",
			Time:   start.AddDate(0, 0, i),
			Open:   float64(o) / 100,
			High:   float64(hi) / 100,
			Low:    float64(lo) / 100,
			Close:  float64(c) / 100,
			Volume: float64(vol),
		}
		p = c
	}
	return out
}

type recordingObserver struct {
	mu        sync.Mutex
	processed int
	rejected  int
	signals   int
	skipped   int
	sinkFails map[string]int
}

func (o *recordingObserver) BarProcessed(string, time.Duration) { o.mu.Lock(); o.processed++; o.mu.Unlock() }
func (o *recordingObserver) BarRejected(string, error)          { o.mu.Lock(); o.rejected++; o.mu.Unlock() }
func (o *recordingObserver) SignalEmitted(*model.SignalResult)  { o.mu.Lock(); o.signals++; o.mu.Unlock() }
func (o *recordingObserver) TrendSkipped(string, error)         { o.mu.Lock(); o.skipped++; o.mu.Unlock() }
func (o *recordingObserver) SinkFailed(_, sink string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sinkFails == nil {
		o.sinkFails = map[string]int{}
	}
	o.sinkFails[sink]++
}

// ────────────────────────────────────────────────────────────
// Process
// ────────────────────────────────────────────────────────────

func TestProcess_EmitsOnceLongWindowSaturates(t *testing.T) {
	a, err := New("SYN", DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	for i, b := range synthBars(60) {
		r, err := a.Process(ctx, b)
		if err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		if i < 49 && r != nil {
			t.Fatalf("bar %d: result before long window saturated", i)
		}
		if i >= 49 {
			if r == nil {
				t.Fatalf("bar %d: expected a result", i)
			}
			if math.Abs(r.Score-r.SubScores.Total()) > 1e-9 {
				t.Fatalf("bar %d: score %v != sum of parts %v", i, r.Score, r.SubScores.Total())
			}
			wantDir := "SELL"
			if r.Score > 0 {
				wantDir = "BUY"
			}
			if r.Direction != wantDir {
				t.Fatalf("bar %d: direction %s for score %v", i, r.Direction, r.Score)
			}
			if !r.ADX.Available {
				t.Fatalf("bar %d: ADX should be available on a 50-bar window", i)
			}
			if len(r.Breakdown.SingleCandle) == 0 {
				t.Fatalf("bar %d: single-candle breakdown always names the bar direction", i)
			}
		}
	}
	if a.Processed() != 60 || !a.Ready() {
		t.Fatalf("processed=%d ready=%v", a.Processed(), a.Ready())
	}
}

func TestProcess_AnnotatesEveryWindowCandle(t *testing.T) {
	a, _ := New("SYN", DefaultConfig())
	for _, b := range synthBars(55) {
		a.Process(context.Background(), b)
	}
	for _, w := range candle.Windows {
		for _, c := range a.windows.Candles(w) {
			sp, vp := c.SpreadPercentile(w), c.VolumePercentile(w)
			if sp < 5 || sp > 100 || sp%5 != 0 || vp < 5 || vp > 100 || vp%5 != 0 {
				t.Fatalf("window %s: bucket out of range spread=%d volume=%d", w, sp, vp)
			}
		}
	}
}

func TestProcess_RejectsNonFiniteBar(t *testing.T) {
	obs := &recordingObserver{}
	a, _ := New("SYN", DefaultConfig(), WithObserver(obs))

	bad := synthBars(1)[0]
	bad.Open = math.NaN()
	r, err := a.Process(context.Background(), bad)
	if !errors.Is(err, model.ErrInvalidInput) || r != nil {
		t.Fatalf("expected ErrInvalidInput, got r=%v err=%v", r, err)
	}
	if a.Processed() != 0 || obs.rejected != 1 {
		t.Fatalf("rejected bar must not enter the windows (processed=%d rejected=%d)", a.Processed(), obs.rejected)
	}
}

func TestProcess_ShortLongWindowSkipsTrend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows.Short, cfg.Windows.Medium, cfg.Windows.Long = 3, 5, 10
	obs := &recordingObserver{}
	a, err := New("SYN", cfg, WithObserver(obs))
	if err != nil {
		t.Fatal(err)
	}

	var last *model.SignalResult
	for _, b := range synthBars(12) {
		r, err := a.Process(context.Background(), b)
		if err != nil {
			t.Fatalf("insufficient ADX data must not fail the bar: %v", err)
		}
		if r != nil {
			last = r
		}
	}
	if last == nil {
		t.Fatal("expected results once the 10-bar window filled")
	}
	if last.ADX.Available || last.SubScores.Trend != 0 || len(last.Breakdown.Trend) != 0 {
		t.Fatalf("trend should be skipped: %+v", last.ADX)
	}
	if obs.skipped != 3 {
		t.Fatalf("expected 3 skipped trend evaluations, got %d", obs.skipped)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows.Long = 0
	if _, err := New("X", cfg); err == nil {
		t.Error("expected error for zero-length window")
	}

	cfg = DefaultConfig()
	cfg.Percentile.Stride = 0
	if _, err := New("X", cfg); err == nil {
		t.Error("expected error for zero stride")
	}

	cfg = DefaultConfig()
	cfg.ADXPeriod = 0
	if _, err := New("X", cfg); err == nil {
		t.Error("expected error for zero ADX period")
	}
}

func TestIndependentRuns(t *testing.T) {
	bars := synthBars(70)
	a, _ := New("A", DefaultConfig())
	b, _ := New("B", DefaultConfig())

	var ra, rb *model.SignalResult
	for i := range bars {
		ra, _ = a.Process(context.Background(), bars[i])
		// b only sees the second half and must not be influenced by a.
		if i >= 20 {
			rb, _ = b.Process(context.Background(), bars[i])
		}
	}
	c, _ := New("C", DefaultConfig())
	var rc *model.SignalResult
	for _, bar := range bars[20:] {
		rc, _ = c.Process(context.Background(), bar)
	}
	if rb.Score != rc.Score {
		t.Fatalf("identical inputs diverged: %v vs %v", rb.Score, rc.Score)
	}
	if ra == nil {
		t.Fatal("expected a result for A")
	}
}

// ────────────────────────────────────────────────────────────
// Run
// ────────────────────────────────────────────────────────────

func TestRun_SinksAndWindowChanges(t *testing.T) {
	obs := &recordingObserver{}
	a, _ := New("SYN", DefaultConfig(), WithObserver(obs))

	bars := synthBars(55)
	bars[10].Volume = math.Inf(1)

	in := make(chan model.Bar, len(bars))
	for _, b := range bars {
		in <- b
	}
	close(in)

	var got []*model.SignalResult
	collect := SinkFunc{Label: "collect", Fn: func(_ context.Context, r *model.SignalResult) error {
		got = append(got, r)
		return nil
	}}
	failing := SinkFunc{Label: "broken", Fn: func(context.Context, *model.SignalResult) error {
		return errors.New("down")
	}}

	final, err := a.Run(context.Background(), in, failing, collect)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 54 valid bars, first signal on the 50th.
	if len(got) != 5 {
		t.Fatalf("expected 5 results, got %d", len(got))
	}
	if obs.sinkFails["broken"] != 5 {
		t.Fatalf("expected 5 sink failures, got %v", obs.sinkFails)
	}
	if final != got[len(got)-1] {
		t.Fatal("Run should return the last emitted result")
	}
	if len(final.WindowChanges) != 3 {
		t.Fatalf("expected 3 window changes, got %d", len(final.WindowChanges))
	}
	wc := final.WindowChanges[0]
	want := (wc.FinalClose - wc.InitialClose) / wc.InitialClose * 100
	if wc.Window != "period_one" || math.Abs(wc.ChangePct-want) > 1e-9 {
		t.Fatalf("window change = %+v", wc)
	}
	if wc.FinalClose != bars[54].Close {
		t.Fatalf("final close = %v, want %v", wc.FinalClose, bars[54].Close)
	}
}

func TestRun_SinkFailureLoggedWithTrace(t *testing.T) {
	var buf bytes.Buffer
	a, _ := New("SYN", DefaultConfig(), WithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel)))

	bars := synthBars(50)
	in := make(chan model.Bar, len(bars))
	for _, b := range bars {
		in <- b
	}
	close(in)

	failing := SinkFunc{Label: "broken", Fn: func(context.Context, *model.SignalResult) error {
		return errors.New("down")
	}}
	if _, err := a.Run(context.Background(), in, failing); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var found int
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if rec["message"] != "sink emit failed" {
			continue
		}
		found++
		if rec["sink"] != "broken" || rec["error"] != "down" || rec["level"] != "error" {
			t.Errorf("unexpected record %v", rec)
		}
		if id, _ := rec["trace_id"].(string); id == "" {
			t.Errorf("sink failure should carry the bar trace id: %v", rec)
		}
	}
	if found != 1 {
		t.Fatalf("expected 1 sink failure record, got %d", found)
	}
}

func TestRun_Cancelled(t *testing.T) {
	a, _ := New("SYN", DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := a.Run(ctx, make(chan model.Bar))
	if !errors.Is(err, context.Canceled) || r != nil {
		t.Fatalf("expected context.Canceled and no result, got %v, %v", r, err)
	}
}

// ────────────────────────────────────────────────────────────
// Reference scores
// ────────────────────────────────────────────────────────────

// TestProcess_ReferenceScores replays 120 generated bars with the cumulative
// bucket scan and checks every sub-score against values recomputed
// independently from the list-based scoring rules.
func TestProcess_ReferenceScores(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Percentile.Scan = percentile.ScanCumulative
	a, err := New("LCG", cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		bar                              int
		single, trend, multiple, accDist float64
	}{
		{49, -11.5, 0, -5, 0},
		{50, -8.5, 0, -5, 0},
		{51, 11, 0, -5, 0},
		{52, -4, 0, -5, 15},
		{53, -1, 0, -5, 20},
		{54, -1, 0, -5, 10},
		{55, -9, 0, -5, 0},
		{56, -1, 0, -5, 0},
		{57, 6, 0, -5, 0},
		{58, -3.5, 0, -5, 0},
		{59, -8.5, 0, -5, 0},
		{60, 1, 0, 0, 0},
		{61, 16, 0, 0, 0},
		{62, -1, 0, 0, 10},
		{63, -1, 0, 0, 10},
		{64, -16, 0, 0, 8},
		{65, -11, 0, -5, 0},
		{66, -1, 0, -5, 0},
		{67, 2, -5, -5, 0},
		{68, -1, -5, -5, 0},
		{69, -4, -5, -5, 0},
		{70, -3.5, -5, -5, 0},
		{71, -1, 0, -5, 0},
		{72, -11.5, -5, -5, 15},
		{73, 11, -5, -5, 8},
		{74, -11, -5, -5, 8},
		{75, -2, -5, 0, 18},
		{76, 1, -5, 0, 0},
		{77, -5.5, -5, 0, 0},
		{78, 4, -5, 0, 0},
		{79, 1, -5, 5, 0},
		{80, -6, -5, 0, 0},
		{81, -4, -5, 0, 0},
		{82, 1, -5, 0, 0},
		{83, -8.5, -5, 0, 0},
		{84, -1, -5, -5, 0},
		{85, 9, -5, 0, 0},
		{86, -1, -5, 0, 0},
		{87, -4, -5, -5, 0},
		{88, -1, -5, -5, 0},
		{89, 6.5, -5, 0, 0},
		{90, -6, -5, -5, 0},
		{91, 8.5, -5, 0, 0},
		{92, -1, -5, 0, 0},
		{93, 4, -5, 0, 0},
		{94, 13.5, -5, 0, 0},
		{95, -4, -5, 0, 0},
		{96, 4, -5, 0, 0},
		{97, 1, -5, 5, 0},
		{98, 2, -5, 0, 0},
		{99, 1, -5, 0, 0},
		{100, 4, -5, 5, 0},
		{101, 1, -5, 5, 0},
		{102, 1, -5, 5, 0},
		{103, 1, -5, 5, -20},
		{104, 3.5, -5, 5, -15},
		{105, 3.5, -5, 10, -15},
		{106, 1, -5, 10, -10},
		{107, 16, -5, 10, 0},
		{108, -14, -5, 10, 0},
		{109, 1, -5, 10, 0},
		{110, -4, -5, 5, 0},
		{111, 4, -5, 5, 0},
		{112, -3.5, -5, 5, -15},
		{113, -11.5, -5, 5, -8}, // distribution with a failed test: -10 + 2
		{114, 4, -5, 5, 0},
		{115, -4, -5, 5, -15},
		{116, 6, 0, 5, 0},
		{117, -11.5, 0, 5, 0},
		{118, 8.5, 0, 5, 0},
		{119, 1, 0, 7.5, 0},
	}

	var (
		got  []*model.SignalResult
		from []int
	)
	for i, b := range lcgBars(120, 9) {
		r, err := a.Process(context.Background(), b)
		if err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		if r != nil {
			got = append(got, r)
			from = append(from, i)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}

	recs := map[model.Recommendation]int{}
	for i, w := range want {
		r := got[i]
		if from[i] != w.bar {
			t.Fatalf("result %d came from bar %d, want %d", i, from[i], w.bar)
		}
		s := r.SubScores
		if s.SingleCandle != w.single || s.Trend != w.trend || s.MultipleBar != w.multiple || s.AccDist != w.accDist {
			t.Errorf("bar %d: sub-scores %v/%v/%v/%v, want %v/%v/%v/%v", w.bar,
				s.SingleCandle, s.Trend, s.MultipleBar, s.AccDist,
				w.single, w.trend, w.multiple, w.accDist)
		}
		total := w.single + w.trend + w.multiple + w.accDist
		if r.Score != total {
			t.Errorf("bar %d: score %v, want %v", w.bar, r.Score, total)
		}
		recs[r.Recommendation]++
	}
	if recs[model.RecommendBuy] == 0 || recs[model.RecommendSell] == 0 || recs[model.RecommendHold] == 0 {
		t.Errorf("expected every recommendation to occur, got %v", recs)
	}
}
