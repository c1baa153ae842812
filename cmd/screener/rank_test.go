package main

import "testing"

func symbols(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Symbol
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRank(t *testing.T) {
	ranked := Rank([]Entry{
		{Symbol: "IWM", Score: -12.5},
		{Symbol: "SPY", Score: 17.04},
		{Symbol: "QQQ", Score: 17.01}, // ties SPY at one decimal
		{Symbol: "DIA", Score: 2.5},
	})
	want := []string{"QQQ", "SPY", "DIA", "IWM"}
	if got := symbols(ranked); !equal(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
}

func TestRounded(t *testing.T) {
	tests := []struct {
		score, want float64
	}{
		{17.04, 17.0},
		{17.05, 17.1},
		{-2.56, -2.6},
		{0, 0},
	}
	for _, tt := range tests {
		if got := (Entry{Score: tt.score}).Rounded(); got != tt.want {
			t.Errorf("Rounded(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestExtremes(t *testing.T) {
	ranked := Rank([]Entry{
		{Symbol: "A", Score: 5}, {Symbol: "B", Score: 4}, {Symbol: "C", Score: 3},
		{Symbol: "D", Score: 2}, {Symbol: "E", Score: 1},
	})

	top, bottom := Extremes(ranked, 2)
	if !equal(symbols(top), []string{"A", "B"}) {
		t.Errorf("top = %v", symbols(top))
	}
	if !equal(symbols(bottom), []string{"E", "D"}) {
		t.Errorf("bottom = %v", symbols(bottom))
	}

	top, bottom = Extremes(ranked[:3], 5)
	if len(top) != 3 || len(bottom) != 3 {
		t.Errorf("short ranking: top %d bottom %d, want 3 and 3", len(top), len(bottom))
	}
}
