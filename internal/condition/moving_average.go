package condition

import "math"

// Moving average kinds
const (
	KindSMA = "sma"
	KindEMA = "ema"
)

// movingAverage computes the average of col[0:n] for every index in [0, n).
// Entries before the first full window are NaN. The values depend only on
// col[0:n], and the arithmetic is a single forward pass, so a prefix of the
// series yields bit-identical values to the full series at shared indices.
func movingAverage(kind string, col []float64, period, n int) []float64 {
	out := make([]float64, n)
	for j := range out {
		out[j] = math.NaN()
	}
	if period <= 0 || n < period {
		return out
	}

	sum := 0.0
	for j := 0; j < period; j++ {
		sum += col[j]
	}
	p := float64(period)
	out[period-1] = sum / p

	switch kind {
	case KindEMA:
		alpha := 2 / (p + 1)
		for j := period; j < n; j++ {
			out[j] = alpha*col[j] + (1-alpha)*out[j-1]
		}
	default:
		for j := period; j < n; j++ {
			sum += col[j] - col[j-period]
			out[j] = sum / p
		}
	}
	return out
}
