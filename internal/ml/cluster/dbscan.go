package cluster

// Noise labels points that belong to no cluster.
const Noise = -1

// DBSCAN is density-based clustering over Euclidean distance. A point is a
// core point when at least MinSamples points, itself included, lie within Eps.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

// Name implements Method.
func (DBSCAN) Name() string { return MethodDBSCAN }

// Fit labels every row with a cluster id (0, 1, ... in discovery order) or
// Noise.
func (d DBSCAN) Fit(X [][]float64) ([]int, Result) {
	n := len(X)
	eps2 := d.Eps * d.Eps

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbors[i] = append(neighbors[i], i)
		for j := i + 1; j < n; j++ {
			if sqDist(X[i], X[j]) <= eps2 {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}
	core := make([]bool, n)
	for i, nb := range neighbors {
		core[i] = len(nb) >= d.MinSamples
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != Noise || !core[i] {
			continue
		}
		labels[i] = next
		queue := []int{i}
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			if !core[p] {
				continue
			}
			for _, q := range neighbors[p] {
				if labels[q] == Noise {
					labels[q] = next
					queue = append(queue, q)
				}
			}
		}
		next++
	}

	res := describe(MethodDBSCAN, labels)
	res.Eps = d.Eps
	res.MinSamples = d.MinSamples
	return labels, res
}
