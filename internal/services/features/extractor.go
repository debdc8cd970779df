package features

import (
	"math"
	"time"

	domrepo "PowerDesk/internal/domain/repository"
)

// ComputeLogReturns computes log returns r_t = ln(P_t / P_{t-1}).
// It returns a slice of length len(prices)-1, or nil if insufficient data.
// Non-positive prices (possible in power markets) yield a zero return.
func ComputeLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		cur := prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over a rolling window
// using the provided number of bars per year. Returns the latest window sigma.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	// annualize
	return math.Sqrt(variance * barsPerYear)
}

// MeanStd returns the mean and sample standard deviation of xs.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// ZScores standardises xs; all zeros when there is no dispersion.
func ZScores(xs []float64) []float64 {
	mean, std := MeanStd(xs)
	out := make([]float64, len(xs))
	if std == 0 {
		return out
	}
	for i, x := range xs {
		out[i] = (x - mean) / std
	}
	return out
}

// BarsPerYear returns the approximate number of buckets per year.
func BarsPerYear(res domrepo.Resolution) float64 {
	switch res {
	case domrepo.ResSettlement:
		return 365 * 48
	case domrepo.ResHour:
		return 365 * 24
	case domrepo.ResDay:
		return 365
	default:
		return 365 * 48
	}
}

// AlignFromTo rounds a time range to bucket boundaries.
func AlignFromTo(from, to time.Time, res domrepo.Resolution) (time.Time, time.Time) {
	d := res.Interval()
	if d <= 0 {
		return from, to
	}
	if res == domrepo.ResDay {
		from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
		to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
		return from, to
	}
	return from.Truncate(d), to.Truncate(d)
}
