package cluster

import (
	"math"
	"math/rand/v2"
)

// KMeans is Lloyd's algorithm with k-means++ seeding. The best of Restarts
// runs (lowest inertia) wins.
type KMeans struct {
	K        int
	Restarts int
	MaxIter  int
	Seed     uint64
}

// Name implements Method.
func (KMeans) Name() string { return MethodKMeans }

// Fit assigns every row to one of K clusters; no row is Noise.
func (k KMeans) Fit(X [][]float64) ([]int, Result) {
	rng := rand.New(rand.NewPCG(k.Seed, k.Seed))
	restarts := max(k.Restarts, 1)

	var best []int
	bestInertia := math.Inf(1)
	for r := 0; r < restarts; r++ {
		labels, inertia := k.run(X, rng)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}

	res := describe(MethodKMeans, best)
	res.NClusters = k.K
	for c := 0; c < k.K; c++ {
		if _, ok := res.ClusterSizes[clusterName(c)]; !ok {
			res.ClusterSizes[clusterName(c)] = 0
		}
	}
	inertia := bestInertia
	res.Inertia = &inertia
	return best, res
}

func (k KMeans) run(X [][]float64, rng *rand.Rand) ([]int, float64) {
	centers := seedPlusPlus(X, k.K, rng)
	labels := make([]int, len(X))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < max(k.MaxIter, 1); iter++ {
		changed := false
		for i, row := range X {
			c := nearest(row, centers)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = recenter(X, labels, centers)
	}

	var inertia float64
	for i, row := range X {
		inertia += sqDist(row, centers[labels[i]])
	}
	return labels, inertia
}

// seedPlusPlus picks k initial centres, each drawn with probability
// proportional to its squared distance from the nearest centre so far.
func seedPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := [][]float64{clone(X[rng.IntN(len(X))])}
	d2 := make([]float64, len(X))
	for len(centers) < k {
		var total float64
		for i, row := range X {
			d2[i] = sqDist(row, centers[nearest(row, centers)])
			total += d2[i]
		}
		if total == 0 {
			centers = append(centers, clone(X[rng.IntN(len(X))]))
			continue
		}
		target := rng.Float64() * total
		pick := len(X) - 1
		for i, d := range d2 {
			target -= d
			if target < 0 {
				pick = i
				break
			}
		}
		centers = append(centers, clone(X[pick]))
	}
	return centers
}

// recenter moves each centre to the mean of its members. An empty cluster
// takes the point farthest from its current centre.
func recenter(X [][]float64, labels []int, old [][]float64) [][]float64 {
	members := make([][]int, len(old))
	for i, c := range labels {
		members[c] = append(members[c], i)
	}
	centers := make([][]float64, len(old))
	for c := range old {
		if len(members[c]) > 0 {
			centers[c] = centroid(X, members[c])
		}
	}
	for c := range centers {
		if centers[c] != nil {
			continue
		}
		far, farD := 0, -1.0
		for i, row := range X {
			if d := sqDist(row, old[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		centers[c] = clone(X[far])
	}
	return centers
}

func nearest(row []float64, centers [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centers {
		if d := sqDist(row, ctr); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func clone(v []float64) []float64 { return append([]float64(nil), v...) }
