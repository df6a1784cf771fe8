package cluster

import "math"

// Standardize returns a copy of X with every column centred on its mean and
// divided by its population standard deviation. Constant columns become 0.
func Standardize(X [][]float64) [][]float64 {
	if len(X) == 0 {
		return nil
	}
	n, width := float64(len(X)), len(X[0])
	means := make([]float64, width)
	stds := make([]float64, width)
	for _, row := range X {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, width)
		for j, v := range row {
			if stds[j] > 0 {
				scaled[j] = (v - means[j]) / stds[j]
			}
		}
		out[i] = scaled
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func centroid(X [][]float64, idx []int) []float64 {
	c := make([]float64, len(X[idx[0]]))
	for _, i := range idx {
		for j, v := range X[i] {
			c[j] += v
		}
	}
	for j := range c {
		c[j] /= float64(len(idx))
	}
	return c
}
