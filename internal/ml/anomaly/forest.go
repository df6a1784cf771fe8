package anomaly

import (
	"math"
	"math/rand/v2"
)

const eulerGamma = 0.5772156649015329

// avgPathLength is c(n), the mean path length of an unsuccessful search in a
// binary search tree of n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

type node struct {
	feature     int
	split       float64
	left, right *node
	size        int // leaf only
}

func (n *node) leaf() bool { return n.left == nil }

// iTree is one isolation tree grown on a subsample.
type iTree struct {
	root *node
}

func growTree(X [][]float64, idx []int, maxDepth int, rng *rand.Rand) iTree {
	return iTree{root: grow(X, idx, 0, maxDepth, rng)}
}

func grow(X [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	// candidate features are those that still vary within the node
	width := len(X[idx[0]])
	var candidates []int
	lo := make([]float64, width)
	hi := make([]float64, width)
	for f := 0; f < width; f++ {
		lo[f], hi[f] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := X[i][f]
			lo[f] = math.Min(lo[f], v)
			hi[f] = math.Max(hi[f], v)
		}
		if hi[f] > lo[f] {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(idx)}
	}

	f := candidates[rng.IntN(len(candidates))]
	split := lo[f] + rng.Float64()*(hi[f]-lo[f])
	var left, right []int
	for _, i := range idx {
		if X[i][f] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature: f,
		split:   split,
		left:    grow(X, left, depth+1, maxDepth, rng),
		right:   grow(X, right, depth+1, maxDepth, rng),
	}
}

// pathLength is the depth at which x is isolated, plus c(size) for points
// that end in an unsplit leaf.
func (t iTree) pathLength(x []float64) float64 {
	n, depth := t.root, 0.0
	for !n.leaf() {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + avgPathLength(n.size)
}

// forest is an isolation forest fitted on one matrix.
type forest struct {
	trees []iTree
	psi   int
}

func fitForest(X [][]float64, trees, maxSamples int, seed uint64) *forest {
	rng := rand.New(rand.NewPCG(seed, seed))
	psi := min(maxSamples, len(X))
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	f := &forest{trees: make([]iTree, trees), psi: psi}
	for t := range f.trees {
		sample := rng.Perm(len(X))[:psi]
		f.trees[t] = growTree(X, sample, maxDepth, rng)
	}
	return f
}

// score returns s(x) = 2^(-E[h(x)]/c(psi)) in (0, 1]; higher is more
// anomalous.
func (f *forest) score(x []float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += t.pathLength(x)
	}
	mean := total / float64(len(f.trees))
	c := avgPathLength(f.psi)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}
