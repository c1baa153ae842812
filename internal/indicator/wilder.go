package indicator

// WilderSum is Wilder's running-sum smoother. The first value is the plain sum
// of the first period inputs; after that each input updates the total as
// total - total/period + x.
type WilderSum struct {
	period int
	count  int
	total  float64
}

// NewWilderSum creates a smoother for the given period.
func NewWilderSum(period int) *WilderSum {
	return &WilderSum{period: period}
}

// Update feeds x and returns the current total. ok is false until period
// inputs have been seen.
func (w *WilderSum) Update(x float64) (total float64, ok bool) {
	w.count++
	if w.count <= w.period {
		w.total += x
		return w.total, w.count == w.period
	}
	w.total = w.total - w.total/float64(w.period) + x
	return w.total, true
}

// Value returns the current total.
func (w *WilderSum) Value() float64 { return w.total }

// Ready reports whether the seed sum is complete.
func (w *WilderSum) Ready() bool { return w.count >= w.period }

// Reset clears the smoother for reuse.
func (w *WilderSum) Reset() {
	w.count = 0
	w.total = 0
}
