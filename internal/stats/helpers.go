package stats

import (
	"math"
	"sort"
)

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Pct returns num/denom as a percentage rounded to two decimals, 0 when
// denom is 0.
func Pct(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return Round2(float64(num) / float64(denom) * 100)
}

func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stddev is the sample standard deviation.
func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	sum := 0.0
	for _, v := range vals {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func describe(counts []int) Distribution {
	if len(counts) == 0 {
		return Distribution{}
	}
	vals := make([]float64, len(counts))
	lo, hi := counts[0], counts[0]
	for i, c := range counts {
		vals[i] = float64(c)
		lo = min(lo, c)
		hi = max(hi, c)
	}
	return Distribution{
		Mean:   Round2(mean(vals)),
		Median: Round2(median(vals)),
		StdDev: Round2(stddev(vals)),
		Min:    lo,
		Max:    hi,
	}
}
