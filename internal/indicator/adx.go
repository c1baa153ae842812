package indicator

import (
	"fmt"
	"math"

	"vpa-analyzer/internal/candle"
)

// ADXResult is the outcome of one ADX evaluation.
//
// ADX is the first value of the smoothed ADX series, which is the figure the
// scoring rules were calibrated against. Latest holds the final value of the
// same series for diagnostics.
type ADXResult struct {
	ADX         float64
	MeanTR      float64
	MeanDMPlus  float64
	MeanDMMinus float64

	Latest float64
	Series []float64
}

// Values returns [adx, mean TR, mean DM+, mean DM-].
func (r ADXResult) Values() [4]float64 {
	return [4]float64{r.ADX, r.MeanTR, r.MeanDMPlus, r.MeanDMMinus}
}

// Trend classifies direction and strength from an ADXResult.
type Trend struct {
	Trending bool
	Up       bool
	Down     bool
}

// Classify marks the market trending when ADX exceeds threshold. Direction
// comes from comparing the mean smoothed directional movements.
func (r ADXResult) Classify(threshold float64) Trend {
	return Trend{
		Trending: r.ADX > threshold,
		Up:       r.MeanDMPlus > r.MeanDMMinus,
		Down:     r.MeanDMMinus > r.MeanDMPlus,
	}
}

// TrueRange is the largest of high-low, |high-prevClose| and |low-prevClose|.
func TrueRange(prev, cur *candle.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// DirectionalMovement returns DM+ and DM- for a pair of consecutive candles.
// When the up move and down move are equal both are zero.
func DirectionalMovement(prev, cur *candle.Candle) (plus, minus float64) {
	up := cur.High - prev.High
	down := prev.Low - cur.Low
	if up > down {
		plus = math.Max(up, 0)
	}
	if down > up {
		minus = math.Max(down, 0)
	}
	return plus, minus
}

// CalculateADX evaluates the ADX over candles (oldest first).
// It needs at least period+1 candles.
func CalculateADX(candles []*candle.Candle, period int) (ADXResult, error) {
	if period < 1 {
		return ADXResult{}, fmt.Errorf("adx period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return ADXResult{}, fmt.Errorf("%w: not enough data to calculate ADX: at least %d periods are required, got %d", ErrInsufficientData, period+1, len(candles))
	}

	trS := NewWilderSum(period)
	plusS := NewWilderSum(period)
	minusS := NewWilderSum(period)

	var trSeries, plusSeries, minusSeries, dx []float64
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1], candles[i]
		plus, minus := DirectionalMovement(prev, cur)

		tr, ok := trS.Update(TrueRange(prev, cur))
		p, _ := plusS.Update(plus)
		m, _ := minusS.Update(minus)
		if !ok {
			continue
		}
		trSeries = append(trSeries, tr)
		plusSeries = append(plusSeries, p)
		minusSeries = append(minusSeries, m)

		diPlus := 100 * p / tr
		diMinus := 100 * m / tr
		dx = append(dx, 100*math.Abs(diPlus-diMinus)/(diPlus+diMinus))
	}

	series := adxSeries(dx, period)
	return ADXResult{
		ADX:         series[0],
		MeanTR:      mean(trSeries),
		MeanDMPlus:  mean(plusSeries),
		MeanDMMinus: mean(minusSeries),
		Latest:      series[len(series)-1],
		Series:      series,
	}, nil
}

// adxSeries seeds with the first period DX values summed and divided by
// period (fewer values are summed when the window is short), then applies
// Wilder's average.
func adxSeries(dx []float64, period int) []float64 {
	seedN := min(period, len(dx))
	var sum float64
	for _, v := range dx[:seedN] {
		sum += v
	}
	out := []float64{sum / float64(period)}
	for i := period; i < len(dx); i++ {
		prev := out[len(out)-1]
		out = append(out, (prev*float64(period-1)+dx[i])/float64(period))
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
