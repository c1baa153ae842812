package indicator

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/marketdata/csvfeed"
	"vpa-analyzer/internal/model"
	"vpa-analyzer/internal/window"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func hlc(i int, high, low, close float64) *candle.Candle {
	return candle.New(model.Bar{
		Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Open: close, High: high, Low: low, Close: close, Volume: 1000,
	}, candle.DefaultPatternConfig())
}

// staircase builds n candles whose range shifts by step each bar.
func staircase(n int, step float64) []*candle.Candle {
	out := make([]*candle.Candle, n)
	for i := range out {
		base := 100 + float64(i)*step
		out[i] = hlc(i, base+2, base, base+1)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f (tol=%g, diff=%g)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// Building blocks
// ────────────────────────────────────────────────────────────

func TestTrueRange(t *testing.T) {
	prev := hlc(0, 12, 10, 11)
	cases := []struct {
		name string
		cur  *candle.Candle
		want float64
	}{
		{"inside bar uses high-low", hlc(1, 11.5, 10.5, 11), 1},
		{"gap up uses high-prevClose", hlc(1, 15, 14, 14.5), 4},
		{"gap down uses low-prevClose", hlc(1, 8, 6, 7), 5},
	}
	for _, tc := range cases {
		assertClose(t, tc.name, TrueRange(prev, tc.cur), tc.want, 1e-12)
	}
}

func TestDirectionalMovement(t *testing.T) {
	prev := hlc(0, 12, 10, 11)
	cases := []struct {
		name        string
		cur         *candle.Candle
		plus, minus float64
	}{
		{"up move wins", hlc(1, 14, 9.5, 13), 2, 0},
		{"down move wins", hlc(1, 12.5, 7, 8), 0, 3},
		{"equal moves cancel", hlc(1, 13, 9, 11), 0, 0},
		{"inside bar", hlc(1, 11, 10.5, 11), 0, 0},
	}
	for _, tc := range cases {
		p, m := DirectionalMovement(prev, tc.cur)
		if p != tc.plus || m != tc.minus {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", tc.name, p, m, tc.plus, tc.minus)
		}
	}
}

func TestWilderSum(t *testing.T) {
	w := NewWilderSum(3)
	for i, x := range []float64{1, 2, 3} {
		v, ok := w.Update(x)
		if ok != (i == 2) {
			t.Fatalf("input %d: ok=%v", i, ok)
		}
		if i == 2 {
			assertClose(t, "seed", v, 6, 1e-12)
		}
	}
	v, _ := w.Update(4)
	assertClose(t, "smoothed", v, 6-2+4, 1e-12)

	w.Reset()
	if w.Ready() || w.Value() != 0 {
		t.Fatal("Reset should clear state")
	}
}

// ────────────────────────────────────────────────────────────
// ADX
// ────────────────────────────────────────────────────────────

func TestCalculateADX_InsufficientData(t *testing.T) {
	_, err := CalculateADX(staircase(14, 1), 14)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := CalculateADX(staircase(15, 1), 14); err != nil {
		t.Fatalf("15 candles should be enough for period 14: %v", err)
	}
}

func TestCalculateADX_ShortWindowSeed(t *testing.T) {
	// 15 candles give one DX value; the seed still divides by the period.
	r, err := CalculateADX(staircase(15, 1), 14)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "ADX", r.ADX, 100.0/14, 1e-9)
	if len(r.Series) != 1 {
		t.Fatalf("expected one ADX value, got %d", len(r.Series))
	}
}

func TestCalculateADX_SteadyUptrend(t *testing.T) {
	// TR is 2 and DM+ is 1 on every bar, so DI+ = 50, DI- = 0 and DX = 100.
	r, err := CalculateADX(staircase(50, 1), DefaultADXPeriod)
	if err != nil {
		t.Fatal(err)
	}
	got := r.Values()
	want := [4]float64{100, 28, 14, 0}
	for i := range want {
		assertClose(t, "Values", got[i], want[i], 1e-9)
	}
	assertClose(t, "Latest", r.Latest, 100, 1e-9)

	tr := r.Classify(DefaultTrendThreshold)
	if !tr.Trending || !tr.Up || tr.Down {
		t.Errorf("expected trending up, got %+v", tr)
	}
}

func TestCalculateADX_SteadyDowntrend(t *testing.T) {
	r, err := CalculateADX(staircase(50, -1), DefaultADXPeriod)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "MeanDMMinus", r.MeanDMMinus, 14, 1e-9)
	assertClose(t, "MeanDMPlus", r.MeanDMPlus, 0, 1e-9)

	tr := r.Classify(DefaultTrendThreshold)
	if !tr.Trending || tr.Up || !tr.Down {
		t.Errorf("expected trending down, got %+v", tr)
	}
}

func TestCalculateADX_SeriesLength(t *testing.T) {
	r, err := CalculateADX(staircase(52, 0.5), 14)
	if err != nil {
		t.Fatal(err)
	}
	// 51 pairs -> 38 smoothed values -> 25 ADX values.
	if len(r.Series) != 25 {
		t.Fatalf("expected 25 ADX values, got %d", len(r.Series))
	}
}

// ────────────────────────────────────────────────────────────
// Reference data
// ────────────────────────────────────────────────────────────

// irregularBars are 40 daily high/low/close rows with gaps, outside bars and
// reversals, so every smoothing step sees changing inputs.
var irregularBars = [][3]float64{
	{101.79, 99.62, 101.32},
	{102.33, 96.19, 100.19},
	{102.29, 96.44, 101.40},
	{102.25, 98.21, 101.74},
	{102.71, 101.68, 102.63},
	{103.46, 102.17, 102.27},
	{105.57, 100.13, 101.30},
	{102.04, 100.80, 101.44},
	{103.31, 100.50, 102.59},
	{105.31, 102.12, 104.30},
	{109.89, 103.72, 105.80},
	{106.73, 105.42, 105.60},
	{106.76, 105.29, 106.68},
	{111.03, 106.50, 107.41},
	{108.39, 106.93, 108.09},
	{110.09, 107.30, 109.52},
	{114.18, 108.91, 110.98},
	{114.15, 106.99, 110.77},
	{111.68, 108.99, 110.12},
	{112.25, 106.32, 111.57},
	{111.90, 110.84, 111.01},
	{111.69, 110.98, 111.07},
	{112.82, 110.48, 112.03},
	{112.65, 110.84, 111.56},
	{112.93, 107.79, 112.74},
	{113.70, 109.63, 112.67},
	{113.73, 111.85, 112.88},
	{113.71, 111.73, 111.98},
	{113.02, 111.95, 112.50},
	{113.66, 111.61, 113.13},
	{114.28, 111.74, 112.85},
	{113.50, 110.96, 111.84},
	{112.81, 109.79, 110.77},
	{111.01, 108.97, 109.49},
	{109.93, 107.59, 108.19},
	{109.59, 107.88, 109.07},
	{109.87, 107.94, 108.37},
	{108.55, 106.23, 107.32},
	{108.33, 106.76, 107.99},
	{109.11, 107.15, 108.79},
}

func irregularCandles(n int) []*candle.Candle {
	out := make([]*candle.Candle, n)
	for i := range out {
		r := irregularBars[i]
		out[i] = hlc(i, r[0], r[1], r[2])
	}
	return out
}

// TestCalculateADX_IrregularBars compares against values computed with the
// list-based reference algorithm: sum-seeded Wilder smoothing of TR and DM,
// ADX seeded with the mean of the first 14 DX values, series means reported.
func TestCalculateADX_IrregularBars(t *testing.T) {
	cases := []struct {
		name    string
		n       int
		want    [4]float64
		latest  float64
		entries int
	}{
		{
			name:    "40 bars",
			n:       40,
			want:    [4]float64{42.950325778422965, 43.62711754413926, 10.87779200045404, 5.9137618875636235},
			latest:  25.05127490700943,
			entries: 13,
		},
		{
			// One DX value: the seed is still divided by the full period.
			name:    "minimum 15 bars",
			n:       15,
			want:    [4]float64{4.4661654135338305, 45.97, 15.439999999999984, 3.5600000000000023},
			latest:  4.4661654135338305,
			entries: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := CalculateADX(irregularCandles(tc.n), DefaultADXPeriod)
			if err != nil {
				t.Fatal(err)
			}
			got := r.Values()
			labels := [4]string{"adx", "mean TR", "mean DM+", "mean DM-"}
			for i := range tc.want {
				assertClose(t, labels[i], got[i], tc.want[i], 1e-9)
			}
			assertClose(t, "latest adx", r.Latest, tc.latest, 1e-9)
			if len(r.Series) != tc.entries {
				t.Fatalf("series length = %d, want %d", len(r.Series), tc.entries)
			}
		})
	}

	r, _ := CalculateADX(irregularCandles(40), DefaultADXPeriod)
	if trend := r.Classify(25); !trend.Trending || !trend.Up || trend.Down {
		t.Fatalf("40 bars should classify as trending up, got %+v", trend)
	}
}

// TestCalculateADX_SPY checks the first 52 daily SPY bars (close taken from
// Adj Close) against known-good values. The data file is not distributed with
// the repository; drop spy_data.csv into testdata/ to run it.
func TestCalculateADX_SPY(t *testing.T) {
	path := filepath.Join("..", "..", "testdata", "spy_data.csv")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("reference data not available: %v", err)
	}

	feed := csvfeed.New(path, csvfeed.Options{Symbol: "SPY", UseAdjClose: true, MaxRows: 52}, zerolog.Nop())
	bars, err := feed.ReadBars("", time.Time{}, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bars) != 52 {
		t.Fatalf("expected 52 bars, got %d", len(bars))
	}

	set, _ := window.NewSet(window.DefaultLengths())
	for i, b := range bars {
		if i == 6 {
			_, err := CalculateADX(set.Candles(candle.Long), DefaultADXPeriod)
			if !errors.Is(err, ErrInsufficientData) {
				t.Fatalf("6 candles: expected ErrInsufficientData, got %v", err)
			}
		}
		set.Insert(candle.New(b, candle.DefaultPatternConfig()))
	}

	r, err := CalculateADX(set.Candles(candle.Long), DefaultADXPeriod)
	if err != nil {
		t.Fatal(err)
	}
	want := [4]float64{40.48136255393826, 175.39975020822467, 27.52034622638257, 19.060191841982864}
	got := r.Values()
	for i := range want {
		assertClose(t, "SPY ADX", got[i], want[i], 1e-9)
	}
}
