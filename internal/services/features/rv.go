package features

// TradingDaysPerYear is the annualization base for daily bars.
const TradingDaysPerYear = 252

// DailyRV proxies daily realized variance by the squared log return.
func DailyRV(logReturns []float64) []float64 {
	out := make([]float64, len(logReturns))
	for i, r := range logReturns {
		out[i] = r * r
	}
	return out
}

// TrailingMean averages xs[t-n+1 .. t], truncating at the left edge.
// Returns 0 when t is out of range.
func TrailingMean(xs []float64, t, n int) float64 {
	if t < 0 || t >= len(xs) || n < 1 {
		return 0
	}
	lo := t - n + 1
	if lo < 0 {
		lo = 0
	}
	var sum float64
	for i := lo; i <= t; i++ {
		sum += xs[i]
	}
	return sum / float64(t-lo+1)
}
