package main

import (
	"math"
	"sort"

	"vpa-analyzer/internal/model"
)

// Entry is one symbol's final result in the ranking.
type Entry struct {
	Symbol         string
	Score          float64
	Recommendation model.Recommendation
	Close          float64
}

// Rounded is the score rounded to one decimal place, the ranking key.
func (e Entry) Rounded() float64 {
	return math.Round(e.Score*10) / 10
}

// Rank sorts entries by rounded score, highest first. Ties keep symbol order.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Rounded(), out[j].Rounded()
		if ri != rj {
			return ri > rj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Extremes returns the first n and last n entries of a ranking. The bottom
// slice is ordered lowest score first. Short rankings overlap.
func Extremes(ranked []Entry, n int) (top, bottom []Entry) {
	if n > len(ranked) {
		n = len(ranked)
	}
	top = ranked[:n]
	bottom = make([]Entry, 0, n)
	for i := len(ranked) - 1; i >= len(ranked)-n; i-- {
		bottom = append(bottom, ranked[i])
	}
	return top, bottom
}
